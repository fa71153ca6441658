// Package memfile holds secrets in anonymous memory-backed files that never
// appear on a filesystem.
package memfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// New returns a memfd containing content with mode 0600. The file vanishes
// when the last descriptor is closed; children reach it through ExtraFiles
// as /dev/fd/N.
func New(name string, content []byte) (*os.File, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create %s: %w", name, err)
	}
	// libpq ignores a password file readable by group or others
	if err := unix.Fchmod(fd, 0o600); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("chmod %s: %w", name, err)
	}
	f := os.NewFile(uintptr(fd), name)
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	return f, nil
}
