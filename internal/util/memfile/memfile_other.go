//go:build !linux

package memfile

import (
	"errors"
	"os"
)

// New is only available on Linux, where memfd_create exists.
func New(name string, content []byte) (*os.File, error) {
	return nil, errors.New("memfile: anonymous memory files need Linux")
}
