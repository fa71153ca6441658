// Package specdiff compares two OpenAPI documents with the containerized
// oasdiff tool. Both documents must live in one specs directory, which is
// mounted read-only.
package specdiff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vbp1/tablerepl/internal/process"
)

const (
	// Image is the container image providing the diff.
	Image = "tufin/oasdiff"
	// DefaultSpecsDir is resolved against the working directory.
	DefaultSpecsDir = "specs"

	mountPoint = "/specs"
)

// ErrUsage is returned for a wrong number of arguments.
var ErrUsage = errors.New("usage: specdiff BASE REVISION (paths relative to the specs directory)")

// Differ runs the comparison.
type Differ struct {
	Runner    process.Runner
	DockerBin string // default "docker"
	SpecsDir  string // default DefaultSpecsDir
}

// BuildSpec validates args and returns the container invocation.
func (d *Differ) BuildSpec(args []string) (process.Spec, error) {
	if len(args) != 2 {
		return process.Spec{}, ErrUsage
	}
	dir := d.SpecsDir
	if dir == "" {
		dir = DefaultSpecsDir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return process.Spec{}, err
	}
	for _, name := range args {
		if !filepath.IsLocal(name) {
			return process.Spec{}, fmt.Errorf("%s: must be a path inside %s", name, dir)
		}
		st, err := os.Stat(filepath.Join(abs, name))
		if err != nil {
			return process.Spec{}, fmt.Errorf("spec file %s not found in %s", name, dir)
		}
		if st.IsDir() {
			return process.Spec{}, fmt.Errorf("%s is a directory", name)
		}
	}
	bin := d.DockerBin
	if bin == "" {
		bin = "docker"
	}
	return process.Spec{
		Bin: bin,
		Args: []string{
			"run", "--rm",
			"-v", abs + ":" + mountPoint + ":ro",
			Image, "diff",
			mountPoint + "/" + filepath.ToSlash(args[0]),
			mountPoint + "/" + filepath.ToSlash(args[1]),
		},
	}, nil
}

// Run executes the diff and copies its output to stdout. A failed run is
// returned as an error carrying the tail of the tool's stderr.
func (d *Differ) Run(ctx context.Context, args []string, stdout io.Writer) error {
	spec, err := d.BuildSpec(args)
	if err != nil {
		return err
	}
	res := d.Runner.Run(ctx, spec)
	if _, err := stdout.Write(res.Stdout); err != nil {
		return err
	}
	if err := res.Failed(); err != nil {
		return fmt.Errorf("oasdiff: %w", err)
	}
	return nil
}
