package disk

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Space holds information about free and total bytes.
// Values are in bytes.
type Space struct {
	Free  uint64
	Total uint64
}

// Usage returns available (for unprivileged user) and total bytes on the filesystem containing path.
func Usage(path string) (Space, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Space{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	return Space{Free: st.Bavail * bsize, Total: st.Blocks * bsize}, nil
}

// FreeBytes returns the bytes available to an unprivileged user under path.
func FreeBytes(path string) (uint64, error) {
	sp, err := Usage(path)
	if err != nil {
		return 0, err
	}
	return sp.Free, nil
}
