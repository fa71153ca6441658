package replicate

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vbp1/tablerepl/internal/progress"
	"github.com/vbp1/tablerepl/internal/report"
)

// ConnectionTarget identifies the server and the credentials used for every
// external call. The password lives only in memory.
type ConnectionTarget struct {
	Host     string
	Port     int
	User     string
	Password string
}

// LogValue keeps the password out of logs.
func (t *ConnectionTarget) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("host", t.Host),
		slog.Int("port", t.Port),
		slog.String("user", t.User),
	)
}

// JobSpec names the table to replicate and where. Immutable after parsing.
type JobSpec struct {
	SourceDB      string
	DestinationDB string
	Schema        string
	Table         string
	Cleanup       bool
}

// MaxIdentifierLen is NAMEDATALEN-1 of a default PostgreSQL build.
const MaxIdentifierLen = 63

// Names are the server-side object names derived from a JobSpec.
type Names struct {
	Publication  string
	Subscription string
	Slot         string
}

// DeriveNames computes object names. Slot names may not contain hyphens, so
// they are replaced with underscores.
func DeriveNames(j JobSpec) Names {
	return Names{
		Publication:  fmt.Sprintf("%s_%s_publication", j.Schema, j.Table),
		Subscription: fmt.Sprintf("%s_%s_subscription", j.Schema, j.Table),
		Slot:         strings.ReplaceAll(fmt.Sprintf("%s_%s_slot", j.SourceDB, j.Table), "-", "_"),
	}
}

// Validate reports every missing parameter at once, using CLI flag names.
func Validate(t *ConnectionTarget, j JobSpec) error {
	var missing []string
	check := func(v, flag string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, flag)
		}
	}
	check(t.Host, "-h host")
	if t.Port == 0 {
		missing = append(missing, "-p port")
	}
	check(t.User, "-u username")
	check(j.SourceDB, "-s source_db")
	check(j.DestinationDB, "-d destination_db")
	check(j.Schema, "-c schema")
	check(j.Table, "-t table")
	if len(missing) > 0 {
		return &Error{Kind: InvalidArguments, Op: "validate", Err: fmt.Errorf("missing required parameter(s): %s", strings.Join(missing, ", "))}
	}
	if t.Port < 1 || t.Port > 65535 {
		return &Error{Kind: InvalidArguments, Op: "validate", Err: fmt.Errorf("port must be between 1 and 65535, got %d", t.Port)}
	}
	if j.SourceDB == j.DestinationDB {
		return &Error{Kind: InvalidArguments, Op: "validate", Err: fmt.Errorf("source and destination database are both %q", j.SourceDB)}
	}
	// longer names are truncated by the server and would no longer match the
	// existence checks
	n := DeriveNames(j)
	for _, name := range []string{n.Publication, n.Subscription, n.Slot} {
		if len(name) > MaxIdentifierLen {
			return &Error{Kind: InvalidArguments, Op: "validate", Err: fmt.Errorf("derived name %q is %d bytes, PostgreSQL allows %d; use a shorter schema, table or source database name", name, len(name), MaxIdentifierLen)}
		}
	}
	return nil
}

// Options tune a run. Zero values are replaced by defaults.
type Options struct {
	WorkDir        string        // dump and report location, default "."
	ReportFile     string        // default report.DefaultFile
	Jobs           int           // pg_restore workers, default 4
	ConnectTimeout time.Duration // default 5s
	Progress       progress.Tracker
	KeepRunTmp     bool
}

func (o Options) withDefaults() Options {
	if o.WorkDir == "" {
		o.WorkDir = "."
	}
	if o.ReportFile == "" {
		o.ReportFile = report.DefaultFile
	}
	if o.Jobs <= 0 {
		o.Jobs = 4
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.Progress == nil {
		o.Progress = progress.Nop{}
	}
	return o
}
