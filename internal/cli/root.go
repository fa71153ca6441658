package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vbp1/tablerepl/internal/log"
	"github.com/vbp1/tablerepl/internal/pgdump"
	"github.com/vbp1/tablerepl/internal/process"
	"github.com/vbp1/tablerepl/internal/progress"
	"github.com/vbp1/tablerepl/internal/replicate"
	"github.com/vbp1/tablerepl/internal/util/disk"
)

// EnvPrefix prefixes environment variables that may stand in for flags,
// e.g. TABLEREPL_HOST or TABLEREPL_REPORT_FILE.
const EnvPrefix = "TABLEREPL"

// Config holds values of CLI flags after flag/env resolution.
type Config struct {
	Host          string
	Port          int
	User          string
	SourceDB      string
	DestinationDB string
	Schema        string
	Table         string
	Cleanup       string

	Jobs           int
	WorkDir        string
	ReportFile     string
	Progress       string
	ConnectTimeout time.Duration
	Verbose        bool
	Debug          bool
	LogFile        string
	KeepRunTmp     bool
}

func (c *Config) target() *replicate.ConnectionTarget {
	return &replicate.ConnectionTarget{Host: c.Host, Port: c.Port, User: c.User}
}

func (c *Config) job() replicate.JobSpec {
	return replicate.JobSpec{
		SourceDB:      c.SourceDB,
		DestinationDB: c.DestinationDB,
		Schema:        c.Schema,
		Table:         c.Table,
		Cleanup:       c.Cleanup == "true",
	}
}

// IO carries the output streams. Tests substitute buffers.
type IO struct {
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultDeps wires the production collaborators.
func DefaultDeps(stdin *os.File, stderr io.Writer) replicate.Deps {
	d := &net.Dialer{}
	return replicate.Deps{
		Connect:   replicate.PostgresConnector,
		Tools:     pgdump.New(process.Exec{}),
		Dial:      d.DialContext,
		Password:  PromptPassword(stdin, stderr),
		FreeBytes: disk.FreeBytes,
	}
}

// Execute runs tablerepl with args (without the program name) and returns the
// process exit status.
func Execute(ctx context.Context, args []string, deps replicate.Deps, stdio IO) int {
	if stdio.Stdout == nil {
		stdio.Stdout = os.Stdout
	}
	if stdio.Stderr == nil {
		stdio.Stderr = os.Stderr
	}
	out := newPrinter(stdio.Stdout)

	code := 0
	cmd, cfg := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdio.Stdout)
	cmd.SetErr(stdio.Stderr)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if (cmd.Flags().Changed("cleanup") || cfg.Cleanup != "") && cfg.Cleanup != "true" {
			return invalidf("--cleanup accepts only the value true, got %q", cfg.Cleanup)
		}
		_, closeLog := log.Setup(log.Options{Debug: cfg.Debug, Verbose: cfg.Verbose, File: cfg.LogFile, Stderr: stdio.Stderr})
		defer func() { _ = closeLog() }()

		if cfg.Cleanup == "true" {
			code = 1
			return runCleanup(ctx, cfg, deps, out)
		}
		return runSetup(ctx, cfg, deps, stdio, out)
	}

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return code
	}
	out.failure(err)
	if replicate.KindOf(err) == replicate.InvalidArguments {
		fmt.Fprint(stdio.Stdout, "\n"+cmd.UsageString())
	}
	return 1
}

func runSetup(ctx context.Context, cfg *Config, deps replicate.Deps, stdio IO, out *printer) error {
	target, job := cfg.target(), cfg.job()
	if err := replicate.Validate(target, job); err != nil {
		return err
	}
	mode, err := progress.ResolveMode(cfg.Progress, isTerminal(stdio.Stderr))
	if err != nil {
		return invalidf("%v", err)
	}
	opts := replicate.Options{
		WorkDir:        cfg.WorkDir,
		ReportFile:     cfg.ReportFile,
		Jobs:           cfg.Jobs,
		ConnectTimeout: cfg.ConnectTimeout,
		Progress:       progress.New(mode, len(replicate.PipelineStages()), stdio.Stderr),
		KeepRunTmp:     cfg.KeepRunTmp,
	}
	if _, err := replicate.Run(ctx, target, job, opts, deps, stdio.Stdout); err != nil {
		return err
	}
	out.success(fmt.Sprintf("Replication of %s.%s from %s to %s is set up", job.Schema, job.Table, job.SourceDB, job.DestinationDB))
	return nil
}

func runCleanup(ctx context.Context, cfg *Config, deps replicate.Deps, out *printer) error {
	opts := replicate.Options{ConnectTimeout: cfg.ConnectTimeout}
	res, err := replicate.Cleanup(ctx, cfg.target(), cfg.job(), opts, deps, replicate.CleanupOptions{ContinueOnError: true})
	if err != nil {
		return err
	}
	for _, s := range res.Steps {
		out.step(s)
	}
	if err := res.Err(); err != nil {
		out.warning("cleanup finished with errors", err)
		return nil
	}
	out.success("Cleanup finished")
	return nil
}

func newRootCmd() (*cobra.Command, *Config) {
	cfg := &Config{}
	cmd := &cobra.Command{
		Use:   "tablerepl -h host -p port -u username -s source_db -d destination_db -c schema -t table [--cleanup true]",
		Short: "Copy one table between databases and keep it in sync via logical replication",
		Long: `tablerepl dumps a single table from the source database, restores it into
the destination database without foreign keys, and connects the two with a
publication, a logical replication slot and a subscription.

With --cleanup true it removes the publication, slot and subscription instead.
The password is prompted once and never passed through the environment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return invalidf("unexpected arguments: %s", strings.Join(args, " "))
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &replicate.Error{Kind: replicate.InvalidArguments, Op: "parse", Err: err}
	})

	f := cmd.Flags()
	f.SortFlags = false
	f.StringP("host", "h", "", "Server host (required)")
	f.IntP("port", "p", 0, "Server port (required)")
	f.StringP("username", "u", "", "User for every connection (required)")
	f.StringP("source-db", "s", "", "Source database (required)")
	f.StringP("destination-db", "d", "", "Destination database (required)")
	f.StringP("schema", "c", "", "Schema of the table (required)")
	f.StringP("table", "t", "", "Table to replicate (required)")
	f.String("cleanup", "", "Pass \"true\" to remove publication, slot and subscription")
	f.Int("jobs", 4, "Parallel pg_restore jobs")
	f.String("workdir", ".", "Directory for the dump and the report")
	f.String("report-file", "replication_commands.txt", "Report file name inside --workdir")
	f.String("progress", progress.ModeAuto, "Progress display mode: auto|bar|plain|none")
	f.Duration("connect-timeout", 5*time.Second, "Timeout of the reachability check and connections")
	f.Bool("verbose", false, "Verbose output")
	f.Bool("debug", false, "Enable debug trace output")
	f.String("log-file", "", "Also write logs as JSON to this file (rotated)")
	f.Bool("keep-run-tmp", false, "Preserve temporary run directory")
	// -h is the host; help keeps only its long form
	f.Bool("help", false, "Show this help")

	// flags win over TABLEREPL_* variables, which win over defaults
	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		v := viper.New()
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		v.AutomaticEnv()
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		return load(v, cfg)
	}
	return cmd, cfg
}

func load(v *viper.Viper, cfg *Config) error {
	port, err := strconv.Atoi(v.GetString("port"))
	if err != nil {
		return invalidf("port must be a number, got %q", v.GetString("port"))
	}
	cfg.Port = port
	cfg.Host = v.GetString("host")
	cfg.User = v.GetString("username")
	cfg.SourceDB = v.GetString("source-db")
	cfg.DestinationDB = v.GetString("destination-db")
	cfg.Schema = v.GetString("schema")
	cfg.Table = v.GetString("table")
	cfg.Cleanup = v.GetString("cleanup")
	cfg.Jobs = v.GetInt("jobs")
	cfg.WorkDir = v.GetString("workdir")
	cfg.ReportFile = v.GetString("report-file")
	cfg.Progress = v.GetString("progress")
	cfg.ConnectTimeout = v.GetDuration("connect-timeout")
	cfg.Verbose = v.GetBool("verbose")
	cfg.Debug = v.GetBool("debug")
	cfg.LogFile = v.GetString("log-file")
	cfg.KeepRunTmp = v.GetBool("keep-run-tmp")
	if cfg.Jobs < 1 {
		return invalidf("--jobs must be at least 1")
	}
	return nil
}

func invalidf(format string, args ...any) error {
	return &replicate.Error{Kind: replicate.InvalidArguments, Op: "parse", Err: fmt.Errorf(format, args...)}
}
