package pgdump

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/vbp1/tablerepl/internal/process"
)

// ChildPassFile is where a child finds PassFile, the first inherited fd.
const ChildPassFile = "/dev/fd/3"

// Conn holds libpq connection parameters shared by pg_dump and pg_restore.
// The password never appears here: PassFile is an open pgpass file handed to
// the child as fd 3.
type Conn struct {
	Host     string
	Port     int
	User     string
	Database string
	PassFile *os.File
}

func (c Conn) args() []string {
	return []string{
		"--host", c.Host,
		"--port", strconv.Itoa(c.Port),
		"--username", c.User,
		"--dbname", c.Database,
		"--no-password",
	}
}

func (c Conn) env() []string {
	if c.PassFile == nil {
		return nil
	}
	return []string{"PGPASSFILE=" + ChildPassFile}
}

func (c Conn) files() []*os.File {
	if c.PassFile == nil {
		return nil
	}
	return []*os.File{c.PassFile}
}

// Tools runs pg_dump / pg_restore through a process.Runner.
type Tools struct {
	Runner     process.Runner
	DumpBin    string // default "pg_dump"
	RestoreBin string // default "pg_restore"
}

// New returns Tools using the binaries found in PATH.
func New(r process.Runner) *Tools {
	return &Tools{Runner: r, DumpBin: "pg_dump", RestoreBin: "pg_restore"}
}

// DumpSpec builds the pg_dump invocation exporting schema and data of a single
// table in custom format.
func (t *Tools) DumpSpec(conn Conn, schema, table, file string) process.Spec {
	args := conn.args()
	args = append(args,
		"--format=custom",
		"--table", pgx.Identifier{schema, table}.Sanitize(),
		"--file", file,
	)
	return process.Spec{Bin: t.DumpBin, Args: args, Env: conn.env(), ExtraFiles: conn.files()}
}

// ListSpec builds the pg_restore invocation printing the archive catalog.
func (t *Tools) ListSpec(file string) process.Spec {
	return process.Spec{Bin: t.RestoreBin, Args: []string{"--list", file}}
}

// RestoreSpec builds the pg_restore invocation restoring only the entries
// named in listFile.
func (t *Tools) RestoreSpec(conn Conn, file, listFile string, jobs int) process.Spec {
	args := conn.args()
	args = append(args, "--use-list", listFile)
	if jobs > 1 {
		args = append(args, "--jobs", strconv.Itoa(jobs))
	}
	args = append(args, file)
	return process.Spec{Bin: t.RestoreBin, Args: args, Env: conn.env(), ExtraFiles: conn.files()}
}

// Dump exports schema.table into file.
func (t *Tools) Dump(ctx context.Context, conn Conn, schema, table, file string) error {
	res := t.Runner.Run(ctx, t.DumpSpec(conn, schema, table, file))
	if err := res.Failed(); err != nil {
		return fmt.Errorf("pg_dump: %w", err)
	}
	return nil
}

// List returns the catalog entries of the archive in their original order.
func (t *Tools) List(ctx context.Context, file string) ([]Entry, error) {
	res := t.Runner.Run(ctx, t.ListSpec(file))
	if err := res.Failed(); err != nil {
		return nil, fmt.Errorf("pg_restore --list: %w", err)
	}
	return ParseList(strings.NewReader(string(res.Stdout)))
}

// Restore loads the entries listed in listFile from file into conn.Database.
func (t *Tools) Restore(ctx context.Context, conn Conn, file, listFile string, jobs int) error {
	res := t.Runner.Run(ctx, t.RestoreSpec(conn, file, listFile, jobs))
	if err := res.Failed(); err != nil {
		return fmt.Errorf("pg_restore: %w", err)
	}
	return nil
}

// PassFileLine renders one pgpass(5) entry matching any database.
func PassFileLine(host string, port int, user, password string) string {
	esc := strings.NewReplacer(`\`, `\\`, `:`, `\:`)
	return fmt.Sprintf("%s:%d:*:%s:%s\n", esc.Replace(host), port, esc.Replace(user), esc.Replace(password))
}
