// Package replicatetest provides in-memory collaborators for exercising the
// replication pipeline without a server or client binaries.
package replicatetest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vbp1/tablerepl/internal/pgdump"
	"github.com/vbp1/tablerepl/internal/postgres"
	"github.com/vbp1/tablerepl/internal/replicate"
)

// Log records calls across all fakes in order.
type Log struct {
	mu    sync.Mutex
	calls []string
}

func (l *Log) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

// Calls returns a copy of the recorded calls.
func (l *Log) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// Filter returns the calls that start with any of the prefixes.
func (l *Log) Filter(prefixes ...string) []string {
	var out []string
	for _, c := range l.Calls() {
		for _, p := range prefixes {
			if strings.HasPrefix(c, p) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// DB is an in-memory replicate.Database.
type DB struct {
	Name string
	log  *Log

	WalLevelValue string
	VersionNum    int              // server_version_num
	Tables        map[string]int64 // "schema.table" -> size
	Publications  map[string]bool
	Slots         map[string]bool
	ActiveSlots   map[string]bool
	Subscriptions map[string]bool
	Subscription  postgres.Subscription // last created

	// Fail makes the named method return the error.
	Fail   map[string]error
	Closed bool
}

func newDB(name string, log *Log) *DB {
	return &DB{
		Name:          name,
		log:           log,
		WalLevelValue: "logical",
		VersionNum:    160004,
		Tables:        map[string]int64{},
		Publications:  map[string]bool{},
		Slots:         map[string]bool{},
		ActiveSlots:   map[string]bool{},
		Subscriptions: map[string]bool{},
		Fail:          map[string]error{},
	}
}

func (d *DB) call(method string, args ...string) error {
	d.log.add("%s:%s %s", d.Name, method, strings.Join(args, " "))
	return d.Fail[method]
}

func (d *DB) Close() { d.Closed = true }

func (d *DB) EnsureVersion(_ context.Context, min int) error {
	if err := d.call("EnsureVersion", strconv.Itoa(min)); err != nil {
		return err
	}
	if d.VersionNum < min {
		return fmt.Errorf("PostgreSQL >= %d required, server reports %d", min/10000, d.VersionNum)
	}
	return nil
}

func (d *DB) WalLevel(context.Context) (string, error) {
	if err := d.call("WalLevel"); err != nil {
		return "", err
	}
	return d.WalLevelValue, nil
}

func (d *DB) TableExists(_ context.Context, schema, table string) (bool, error) {
	if err := d.call("TableExists", schema+"."+table); err != nil {
		return false, err
	}
	_, ok := d.Tables[schema+"."+table]
	return ok, nil
}

func (d *DB) TableSize(_ context.Context, schema, table string) (int64, bool, error) {
	if err := d.call("TableSize", schema+"."+table); err != nil {
		return 0, false, err
	}
	size, ok := d.Tables[schema+"."+table]
	return size, ok, nil
}

func (d *DB) PublicationExists(_ context.Context, name string) (bool, error) {
	if err := d.call("PublicationExists", name); err != nil {
		return false, err
	}
	return d.Publications[name], nil
}

func (d *DB) CreatePublication(_ context.Context, name, schema, table string) error {
	if err := d.call("CreatePublication", name, schema+"."+table); err != nil {
		return err
	}
	d.Publications[name] = true
	return nil
}

func (d *DB) DropPublication(_ context.Context, name string) error {
	if err := d.call("DropPublication", name); err != nil {
		return err
	}
	delete(d.Publications, name)
	return nil
}

func (d *DB) SlotExists(_ context.Context, name string) (bool, error) {
	if err := d.call("SlotExists", name); err != nil {
		return false, err
	}
	return d.Slots[name], nil
}

func (d *DB) SlotActive(_ context.Context, name string) (bool, error) {
	if err := d.call("SlotActive", name); err != nil {
		return false, err
	}
	return d.ActiveSlots[name], nil
}

func (d *DB) CreateLogicalSlot(_ context.Context, name string) (string, error) {
	if err := d.call("CreateLogicalSlot", name); err != nil {
		return "", err
	}
	d.Slots[name] = true
	return "0/16B3748", nil
}

func (d *DB) DropSlot(_ context.Context, name string) error {
	if err := d.call("DropSlot", name); err != nil {
		return err
	}
	delete(d.Slots, name)
	return nil
}

func (d *DB) SubscriptionExists(_ context.Context, name string) (bool, error) {
	if err := d.call("SubscriptionExists", name); err != nil {
		return false, err
	}
	return d.Subscriptions[name], nil
}

func (d *DB) CreateSubscription(_ context.Context, s postgres.Subscription) error {
	if err := d.call("CreateSubscription", s.Name, s.Publication, s.Slot); err != nil {
		return err
	}
	d.Subscriptions[s.Name] = true
	d.Subscription = s
	return nil
}

func (d *DB) DetachSubscription(_ context.Context, name string) error {
	return d.call("DetachSubscription", name)
}

func (d *DB) DropSubscription(_ context.Context, name string) error {
	if err := d.call("DropSubscription", name); err != nil {
		return err
	}
	delete(d.Subscriptions, name)
	return nil
}

// Tools is an in-memory replicate.Toolchain. Dump creates an empty file so
// callers can observe its removal.
type Tools struct {
	log *Log

	Entries     []pgdump.Entry
	FailDump    error
	FailList    error
	FailRestore error

	DumpConn     pgdump.Conn
	RestoreConn  pgdump.Conn
	RestoreJobs  int
	ListFile     string
	RestoredList []pgdump.Entry // content of the list file at restore time
	PassFileSeen string         // pgpass content at dump time
}

func (t *Tools) Dump(_ context.Context, conn pgdump.Conn, schema, table, file string) error {
	t.log.add("tools:Dump %s %s.%s %s", conn.Database, schema, table, file)
	t.DumpConn = conn
	if conn.PassFile != nil {
		data, _ := io.ReadAll(io.NewSectionReader(conn.PassFile, 0, 1<<16))
		t.PassFileSeen = string(data)
	}
	if t.FailDump != nil {
		return t.FailDump
	}
	return os.WriteFile(file, []byte("PGDMP"), 0o600)
}

func (t *Tools) List(_ context.Context, file string) ([]pgdump.Entry, error) {
	t.log.add("tools:List %s", file)
	if t.FailList != nil {
		return nil, t.FailList
	}
	return t.Entries, nil
}

func (t *Tools) Restore(_ context.Context, conn pgdump.Conn, file, listFile string, jobs int) error {
	t.log.add("tools:Restore %s %s", conn.Database, file)
	t.RestoreConn = conn
	t.RestoreJobs = jobs
	t.ListFile = listFile
	f, err := os.Open(listFile)
	if err != nil {
		return err
	}
	defer f.Close()
	if t.RestoredList, err = pgdump.ParseList(f); err != nil {
		return err
	}
	return t.FailRestore
}

// Env wires fakes into replicate.Deps.
type Env struct {
	Log    *Log
	Source *DB
	Dest   *DB
	Tools  *Tools

	Password    string
	PasswordErr error
	DialErr     error
	ConnectErr  map[string]error // by database
	FreeBytes   uint64           // 0 disables the disk check
}

// NewEnv returns an environment where source holds public.orders and the
// destination is empty.
func NewEnv(sourceDB, destDB string) *Env {
	log := &Log{}
	e := &Env{
		Log:        log,
		Source:     newDB(sourceDB, log),
		Dest:       newDB(destDB, log),
		Tools:      &Tools{log: log},
		Password:   "s3cret",
		ConnectErr: map[string]error{},
	}
	e.Source.Tables["public.orders"] = 8192
	e.Tools.Entries = []pgdump.Entry{
		{DumpID: 218, Tag: "TABLE public orders postgres", Line: "218; 1259 16390 TABLE public orders postgres"},
		{DumpID: 3362, Tag: "TABLE DATA public orders postgres", Line: "3362; 0 16390 TABLE DATA public orders postgres"},
		{DumpID: 3215, Tag: "CONSTRAINT public orders orders_pkey postgres", Line: "3215; 2606 16395 CONSTRAINT public orders orders_pkey postgres"},
		{DumpID: 3216, Tag: "FK CONSTRAINT public orders orders_customer_id_fkey postgres", Line: "3216; 2606 16401 FK CONSTRAINT public orders orders_customer_id_fkey postgres"},
		{DumpID: 3214, Tag: "INDEX public orders_created_at_idx postgres", Line: "3214; 1259 16402 INDEX public orders_created_at_idx postgres"},
	}
	return e
}

// Deps returns replicate.Deps backed by the fakes.
func (e *Env) Deps() replicate.Deps {
	d := replicate.Deps{
		Tools: e.Tools,
		Dial: func(_ context.Context, network, addr string) (net.Conn, error) {
			e.Log.add("dial %s %s", network, addr)
			if e.DialErr != nil {
				return nil, e.DialErr
			}
			c1, c2 := net.Pipe()
			_ = c2.Close()
			return c1, nil
		},
		Password: func() (string, error) {
			e.Log.add("password")
			return e.Password, e.PasswordErr
		},
		Connect: func(_ context.Context, t *replicate.ConnectionTarget, database string, _ time.Duration) (replicate.Database, error) {
			e.Log.add("connect %s", database)
			if err := e.ConnectErr[database]; err != nil {
				return nil, err
			}
			switch database {
			case e.Source.Name:
				return e.Source, nil
			case e.Dest.Name:
				return e.Dest, nil
			}
			return nil, errors.New("database \"" + database + "\" does not exist")
		},
	}
	if e.FreeBytes > 0 {
		d.FreeBytes = func(string) (uint64, error) { return e.FreeBytes, nil }
	}
	return d
}
