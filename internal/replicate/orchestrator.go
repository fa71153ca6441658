package replicate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vbp1/tablerepl/internal/pgdump"
	"github.com/vbp1/tablerepl/internal/postgres"
	"github.com/vbp1/tablerepl/internal/report"
	"github.com/vbp1/tablerepl/internal/runctx"
	"github.com/vbp1/tablerepl/internal/util/memfile"
)

// Orchestrator keeps state across pipeline steps.
type Orchestrator struct {
	target *ConnectionTarget
	job    JobSpec
	names  Names
	opts   Options
	deps   Deps

	src Database
	dst Database

	rc       *runctx.RunCtx
	passFile *os.File // memfd, never on disk
	dumpPath string

	reportText string
	results    []StageResult
}

func newOrchestrator(target *ConnectionTarget, job JobSpec, opts Options, deps Deps) *Orchestrator {
	return &Orchestrator{
		target: target,
		job:    job,
		names:  DeriveNames(job),
		opts:   opts.withDefaults(),
		deps:   deps,
	}
}

// Close releases connections, the password file and the run dir; safe to
// call multiple times.
func (o *Orchestrator) Close() {
	if o.passFile != nil {
		_ = o.passFile.Close()
		o.passFile = nil
	}
	if o.src != nil {
		o.src.Close()
		o.src = nil
	}
	if o.dst != nil {
		o.dst.Close()
		o.dst = nil
	}
	if o.rc != nil {
		if err := o.rc.Cleanup(); err != nil {
			slog.Warn("remove run dir", "dir", o.rc.Dir, "err", err)
		}
		o.rc = nil
	}
}

// Run executes the setup pipeline and echoes the follow-up commands to out.
// It stops at the first failing stage; completed stages are not rolled back.
func Run(ctx context.Context, target *ConnectionTarget, job JobSpec, opts Options, deps Deps, out io.Writer) ([]StageResult, error) {
	if job.Cleanup {
		return nil, &Error{Kind: InvalidArguments, Op: "run", Err: fmt.Errorf("cleanup is a separate mode")}
	}
	if err := Validate(target, job); err != nil {
		return nil, err
	}
	o := newOrchestrator(target, job, opts, deps)
	defer o.Close()

	steps := map[Stage]func(context.Context) error{
		StagePreflight: o.stepPreflight,
		StageDump:      o.stepDump,
		StageRestore:   o.stepRestore,
		StagePublish:   o.stepPublish,
		StageSlot:      o.stepSlot,
		StageSubscribe: o.stepSubscribe,
		StageReport:    o.stepReport,
	}
	pr := o.opts.Progress
	for _, stage := range pipelineStages {
		pr.Begin(string(stage))
		slog.Info("stage start", "stage", stage)
		err := steps[stage](ctx)
		o.results = append(o.results, resultOf(stage, err))
		if err != nil {
			pr.Finish(false)
			slog.Error("stage failed", "stage", stage, "err", err)
			return o.results, err
		}
		pr.Advance()
	}
	pr.Finish(true)

	if _, err := io.WriteString(out, o.reportText); err != nil {
		slog.Warn("echo report", "err", err)
	}
	slog.Info("replication setup completed",
		"table", job.Schema+"."+job.Table,
		"publication", o.names.Publication,
		"slot", o.names.Slot,
		"subscription", o.names.Subscription)
	return o.results, nil
}

// stepPreflight checks reachability, credentials and server capabilities,
// then prepares the run dir and the in-memory password file.
func (o *Orchestrator) stepPreflight(ctx context.Context) error {
	if err := o.connect(ctx); err != nil {
		return err
	}
	// publications and subscriptions appeared in 10
	if err := o.src.EnsureVersion(ctx, 100000); err != nil {
		return failed("preflight", err)
	}
	lvl, err := o.src.WalLevel(ctx)
	if err != nil {
		return failed("preflight", err)
	}
	if lvl != "logical" {
		return &Error{
			Kind: ExternalCommandFailed,
			Op:   "preflight",
			Err:  fmt.Errorf("wal_level is %q, logical replication needs \"logical\"", lvl),
			Hint: o.psql(o.job.SourceDB, "ALTER SYSTEM SET wal_level = logical;") + "\n# then restart the server",
		}
	}

	rc, err := runctx.New("tablerepl_", o.opts.KeepRunTmp)
	if err != nil {
		return failed("preflight", err)
	}
	o.rc = rc
	line := pgdump.PassFileLine(o.target.Host, o.target.Port, o.target.User, o.target.Password)
	o.passFile, err = memfile.New("pgpass", []byte(line))
	if err != nil {
		return failed("preflight", err)
	}
	return nil
}

// connect checks host:port, reads the password and opens both databases.
func (o *Orchestrator) connect(ctx context.Context) error {
	if err := o.reach(ctx); err != nil {
		return err
	}
	if err := o.openSource(ctx); err != nil {
		return err
	}
	return o.openDestination(ctx)
}

// reach checks that host:port accepts connections, then reads the password.
func (o *Orchestrator) reach(ctx context.Context) error {
	addr := net.JoinHostPort(o.target.Host, strconv.Itoa(o.target.Port))
	dctx, cancel := context.WithTimeout(ctx, o.opts.ConnectTimeout)
	conn, err := o.deps.Dial(dctx, "tcp", addr)
	cancel()
	if err != nil {
		return &Error{
			Kind: HostUnreachable,
			Op:   "preflight",
			Err:  fmt.Errorf("cannot connect to %s: %w", addr, err),
			Hint: fmt.Sprintf("pg_isready -h %s -p %d", o.target.Host, o.target.Port),
		}
	}
	_ = conn.Close()
	slog.Debug("host reachable", "addr", addr)

	if o.target.Password == "" && o.deps.Password != nil {
		pw, err := o.deps.Password()
		if err != nil {
			return &Error{Kind: AuthenticationFailed, Op: "preflight", Err: fmt.Errorf("read password: %w", err)}
		}
		o.target.Password = pw
	}
	return nil
}

// openSource connects to the source database, which also verifies the
// password.
func (o *Orchestrator) openSource(ctx context.Context) error {
	src, err := o.deps.Connect(ctx, o.target, o.job.SourceDB, o.opts.ConnectTimeout)
	if err != nil {
		return &Error{
			Kind: AuthenticationFailed,
			Op:   "preflight",
			Err:  fmt.Errorf("authenticate as %s on %s: %w", o.target.User, o.job.SourceDB, err),
		}
	}
	o.src = src
	slog.Info("credentials verified", "target", o.target, "db", o.job.SourceDB)
	return nil
}

func (o *Orchestrator) openDestination(ctx context.Context) error {
	dst, err := o.deps.Connect(ctx, o.target, o.job.DestinationDB, o.opts.ConnectTimeout)
	if err != nil {
		return failed("preflight", fmt.Errorf("connect to destination %s: %w", o.job.DestinationDB, err))
	}
	o.dst = dst
	return nil
}

// stepDump exports the table into {source_db}.dump.
func (o *Orchestrator) stepDump(ctx context.Context) error {
	size, found, err := o.src.TableSize(ctx, o.job.Schema, o.job.Table)
	if err != nil {
		return failed("dump", err)
	}
	if !found {
		return failed("dump", fmt.Errorf("table %s not found in source database %s", o.qualified(), o.job.SourceDB))
	}
	if o.deps.FreeBytes != nil {
		free, err := o.deps.FreeBytes(o.opts.WorkDir)
		switch {
		case err != nil:
			slog.Warn("disk space check skipped", "dir", o.opts.WorkDir, "err", err)
		case free < uint64(size):
			return failed("dump", fmt.Errorf("insufficient space in %s: free %s, table occupies %s",
				o.opts.WorkDir, postgres.PrettyBytes(int64(free)), postgres.PrettyBytes(size)))
		}
	}

	o.dumpPath = filepath.Join(o.opts.WorkDir, o.job.SourceDB+".dump")
	if err := o.deps.Tools.Dump(ctx, o.conn(o.job.SourceDB), o.job.Schema, o.job.Table, o.dumpPath); err != nil {
		return failed("dump", err)
	}
	slog.Info("dump written", "file", o.dumpPath, "table_size", postgres.PrettyBytes(size))
	return nil
}

// stepRestore loads the dump into the destination without FK constraints.
func (o *Orchestrator) stepRestore(ctx context.Context) error {
	exists, err := o.dst.TableExists(ctx, o.job.Schema, o.job.Table)
	if err != nil {
		return failed("restore", err)
	}
	if exists {
		if err := os.Remove(o.dumpPath); err != nil {
			slog.Warn("remove dump", "file", o.dumpPath, "err", err)
		}
		return &Error{
			Kind: ObjectAlreadyExists,
			Op:   "restore",
			Err:  fmt.Errorf("table %s already exists in destination database %s", o.qualified(), o.job.DestinationDB),
			Hint: o.psql(o.job.DestinationDB, "DROP TABLE "+o.qualified()+";"),
		}
	}

	entries, err := o.deps.Tools.List(ctx, o.dumpPath)
	if err != nil {
		return failed("restore", err)
	}
	kept := pgdump.WithoutForeignKeys(entries)
	slog.Info("restore list", "entries", len(entries), "fk_skipped", len(entries)-len(kept))

	listPath := o.rc.Path("restore.list")
	if err := pgdump.WriteList(listPath, kept); err != nil {
		return failed("restore", err)
	}
	if err := o.deps.Tools.Restore(ctx, o.conn(o.job.DestinationDB), o.dumpPath, listPath, o.opts.Jobs); err != nil {
		slog.Warn("dump kept for inspection", "file", o.dumpPath)
		return failed("restore", err)
	}
	if err := os.Remove(o.dumpPath); err != nil {
		slog.Warn("remove dump", "file", o.dumpPath, "err", err)
	}
	return nil
}

// stepPublish creates the single-table publication on the source.
func (o *Orchestrator) stepPublish(ctx context.Context) error {
	name := o.names.Publication
	if err := o.ensureAbsent(ctx, "publish", "publication", name, o.job.SourceDB, o.src.PublicationExists, o.dropPublicationHint()); err != nil {
		return err
	}
	if err := o.src.CreatePublication(ctx, name, o.job.Schema, o.job.Table); err != nil {
		return failed("publish", err)
	}
	slog.Info("publication created", "name", name)
	return nil
}

// stepSlot creates the logical slot on the source. It is created here rather
// than by CREATE SUBSCRIPTION, which would block when publisher and
// subscriber share a cluster.
func (o *Orchestrator) stepSlot(ctx context.Context) error {
	name := o.names.Slot
	if err := o.ensureAbsent(ctx, "slot", "replication slot", name, o.job.SourceDB, o.src.SlotExists, o.dropSlotHint()); err != nil {
		return err
	}
	lsn, err := o.src.CreateLogicalSlot(ctx, name)
	if err != nil {
		return failed("slot", err)
	}
	slog.Info("replication slot created", "name", name, "lsn", lsn)
	return nil
}

// stepSubscribe creates the subscription on the destination bound to the slot.
func (o *Orchestrator) stepSubscribe(ctx context.Context) error {
	name := o.names.Subscription
	hint := o.detachSubscriptionHint() + "\n" + o.dropSubscriptionHint()
	if err := o.ensureAbsent(ctx, "subscribe", "subscription", name, o.job.DestinationDB, o.dst.SubscriptionExists, hint); err != nil {
		return err
	}
	err := o.dst.CreateSubscription(ctx, postgres.Subscription{
		Name:        name,
		Publication: o.names.Publication,
		Slot:        o.names.Slot,
		ConnInfo: postgres.ConnInfo(map[string]string{
			"host":     o.target.Host,
			"port":     strconv.Itoa(o.target.Port),
			"dbname":   o.job.SourceDB,
			"user":     o.target.User,
			"password": o.target.Password,
		}),
	})
	if err != nil {
		return failed("subscribe", err)
	}
	slog.Info("subscription created", "name", name)
	return nil
}

// stepReport writes the follow-up commands file.
func (o *Orchestrator) stepReport(_ context.Context) error {
	o.reportText = report.Render(o.reportParams())
	path := filepath.Join(o.opts.WorkDir, o.opts.ReportFile)
	if err := report.Write(path, o.reportText); err != nil {
		return failed("report", err)
	}
	slog.Info("report written", "file", path)
	return nil
}

// ensureAbsent returns ObjectAlreadyExists when exists reports name present.
func (o *Orchestrator) ensureAbsent(ctx context.Context, op, what, name, db string, exists func(context.Context, string) (bool, error), hint string) error {
	ok, err := exists(ctx, name)
	if err != nil {
		return failed(op, err)
	}
	if ok {
		return &Error{
			Kind: ObjectAlreadyExists,
			Op:   op,
			Err:  fmt.Errorf("%s %s already exists in database %s", what, name, db),
			Hint: hint,
		}
	}
	return nil
}

func (o *Orchestrator) dropPublicationHint() string {
	return o.psql(o.job.SourceDB, "DROP PUBLICATION "+postgres.DisplayIdent(o.names.Publication)+";")
}

func (o *Orchestrator) dropSlotHint() string {
	return o.psql(o.job.SourceDB, "SELECT pg_drop_replication_slot("+postgres.Literal(o.names.Slot)+");")
}

func (o *Orchestrator) detachSubscriptionHint() string {
	var lines []string
	for _, stmt := range postgres.DetachStatements(postgres.DisplayIdent(o.names.Subscription)) {
		lines = append(lines, o.psql(o.job.DestinationDB, stmt+";"))
	}
	return strings.Join(lines, "\n")
}

func (o *Orchestrator) dropSubscriptionHint() string {
	return o.psql(o.job.DestinationDB, "DROP SUBSCRIPTION "+postgres.DisplayIdent(o.names.Subscription)+";")
}

func (o *Orchestrator) conn(db string) pgdump.Conn {
	return pgdump.Conn{
		Host:     o.target.Host,
		Port:     o.target.Port,
		User:     o.target.User,
		Database: db,
		PassFile: o.passFile,
	}
}

func (o *Orchestrator) qualified() string {
	return postgres.DisplayQualified(o.job.Schema, o.job.Table)
}

func (o *Orchestrator) psql(db, sql string) string {
	return report.PSQL(o.target.Host, o.target.Port, o.target.User, db, sql)
}

func (o *Orchestrator) reportParams() report.Params {
	return report.Params{
		Host:          o.target.Host,
		Port:          o.target.Port,
		User:          o.target.User,
		SourceDB:      o.job.SourceDB,
		DestinationDB: o.job.DestinationDB,
		Schema:        o.job.Schema,
		Table:         o.job.Table,
		Publication:   o.names.Publication,
		Subscription:  o.names.Subscription,
		Slot:          o.names.Slot,
	}
}
