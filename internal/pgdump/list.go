package pgdump

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ForeignKeyDesc is the catalog descriptor pg_dump uses for FK constraints.
const ForeignKeyDesc = "FK CONSTRAINT"

// Entry is one restorable item of a pg_restore --list catalog, e.g.
//
//	3254; 2606 16412 FK CONSTRAINT public orders orders_customer_id_fkey postgres
type Entry struct {
	DumpID int
	// Tag is everything after the catalog/object OIDs: descriptor, schema, name, owner.
	Tag  string
	Line string
}

// IsForeignKey reports whether the entry restores a foreign-key constraint.
func (e Entry) IsForeignKey() bool {
	return strings.HasPrefix(e.Tag, ForeignKeyDesc+" ")
}

// ParseList parses pg_restore --list output. Comment and blank lines are
// dropped; entries keep their order.
func ParseList(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ";") {
			continue
		}
		e, err := parseEntry(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseEntry(line string) (Entry, error) {
	idPart, rest, ok := strings.Cut(line, ";")
	if !ok {
		return Entry{}, fmt.Errorf("malformed list entry %q", line)
	}
	id, err := strconv.Atoi(strings.TrimSpace(idPart))
	if err != nil {
		return Entry{}, fmt.Errorf("malformed dump id in %q: %w", line, err)
	}
	// catalog OID and object OID precede the tag
	fields := strings.Fields(rest)
	if len(fields) < 3 {
		return Entry{}, fmt.Errorf("malformed list entry %q", line)
	}
	return Entry{DumpID: id, Tag: strings.Join(fields[2:], " "), Line: line}, nil
}

// WithoutForeignKeys returns the entries that are not FK constraints, in the
// original relative order.
func WithoutForeignKeys(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.IsForeignKey() {
			continue
		}
		out = append(out, e)
	}
	return out
}

// WriteList writes entries as a pg_restore --use-list file.
func WriteList(path string, entries []Entry) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := w.WriteString(e.Line + "\n"); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
