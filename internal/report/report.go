// Package report renders the follow-up administrative commands printed after
// a successful replication setup.
package report

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/vbp1/tablerepl/internal/postgres"
)

// DefaultFile is written in the working directory, overwriting earlier runs.
const DefaultFile = "replication_commands.txt"

// Block titles, in output order.
const (
	TitleSourceStatus      = "Check replication status on source"
	TitleDestinationStatus = "Check subscription status on destination"
	TitleDropPublication   = "Drop publication on source"
	TitleDropSubscription  = "Detach and drop subscription on destination"
)

// Params carries everything the commands refer to. No password.
type Params struct {
	Host          string
	Port          int
	User          string
	SourceDB      string
	DestinationDB string
	Schema        string
	Table         string
	Publication   string
	Subscription  string
	Slot          string
}

// Block is one labeled group of commands.
type Block struct {
	Title    string
	Commands []string
}

// Blocks returns the four command groups.
func Blocks(p Params) []Block {
	src := func(sql string) string { return PSQL(p.Host, p.Port, p.User, p.SourceDB, sql) }
	dst := func(sql string) string { return PSQL(p.Host, p.Port, p.User, p.DestinationDB, sql) }
	sub := postgres.DisplayIdent(p.Subscription)

	return []Block{
		{TitleSourceStatus, []string{
			src("SELECT application_name, state, sent_lsn, replay_lsn FROM pg_stat_replication;"),
			src(fmt.Sprintf("SELECT slot_name, active, confirmed_flush_lsn FROM pg_replication_slots WHERE slot_name = %s;", postgres.Literal(p.Slot))),
		}},
		{TitleDestinationStatus, []string{
			dst(fmt.Sprintf("SELECT subname, pid, received_lsn, latest_end_lsn, last_msg_receipt_time FROM pg_stat_subscription WHERE subname = %s;", postgres.Literal(p.Subscription))),
			dst(fmt.Sprintf("SELECT count(*) FROM %s;", postgres.DisplayQualified(p.Schema, p.Table))),
		}},
		{TitleDropPublication, []string{
			src(fmt.Sprintf("DROP PUBLICATION %s;", postgres.DisplayIdent(p.Publication))),
		}},
		{TitleDropSubscription, []string{
			dst(fmt.Sprintf("ALTER SUBSCRIPTION %s DISABLE;", sub)),
			dst(fmt.Sprintf("ALTER SUBSCRIPTION %s SET (slot_name = NONE);", sub)),
			dst(fmt.Sprintf("DROP SUBSCRIPTION %s;", sub)),
			src(fmt.Sprintf("SELECT pg_drop_replication_slot(%s);", postgres.Literal(p.Slot))),
		}},
	}
}

// Render formats all blocks as plain text.
func Render(p Params) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Logical replication of %s: %s -> %s\n",
		postgres.DisplayQualified(p.Schema, p.Table), p.SourceDB, p.DestinationDB)
	fmt.Fprintf(&b, "# publication=%s slot=%s subscription=%s\n", p.Publication, p.Slot, p.Subscription)
	for i, blk := range Blocks(p) {
		fmt.Fprintf(&b, "\n## %d. %s\n", i+1, blk.Title)
		for _, c := range blk.Commands {
			b.WriteString(c)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Write replaces path with content.
func Write(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

// PSQL renders a ready-to-paste psql invocation running sql against db.
func PSQL(host string, port int, user, db, sql string) string {
	return fmt.Sprintf("psql -h %s -p %s -U %s -d %s -c %s",
		shellWord(host), strconv.Itoa(port), shellWord(user), shellWord(db), doubleQuoted(sql))
}

var safeWord = regexp.MustCompile(`^[A-Za-z0-9_./:@%+=,-]+$`)

func shellWord(s string) string {
	if safeWord.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func doubleQuoted(s string) string {
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")
	return `"` + esc.Replace(s) + `"`
}
