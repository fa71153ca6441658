package process

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestExecCapturesOutput(t *testing.T) {
	res := Exec{}.Run(context.Background(), Spec{Bin: "sh", Args: []string{"-c", "echo out; echo err 1>&2; exit 3"}})
	if res.ExitCode != 3 {
		t.Fatalf("exit code: want 3, got %d", res.ExitCode)
	}
	if strings.TrimSpace(string(res.Stdout)) != "out" {
		t.Fatalf("stdout: %q", res.Stdout)
	}
	err := res.Failed()
	if err == nil || !strings.Contains(err.Error(), "err") || !strings.Contains(err.Error(), "code 3") {
		t.Fatalf("Failed(): %v", err)
	}
}

func TestExecPassesEnv(t *testing.T) {
	res := Exec{}.Run(context.Background(), Spec{
		Bin:  "sh",
		Args: []string{"-c", "printf %s \"$TABLEREPL_PROBE\""},
		Env:  []string{"TABLEREPL_PROBE=ok"},
	})
	if res.Failed() != nil {
		t.Fatalf("run: %v", res.Failed())
	}
	if string(res.Stdout) != "ok" {
		t.Fatalf("env not propagated: %q", res.Stdout)
	}
}

func TestExecPassesExtraFiles(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "extra")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString("from parent"); err != nil {
		t.Fatal(err)
	}
	res := Exec{}.Run(context.Background(), Spec{
		Bin:        "sh",
		Args:       []string{"-c", "cat /dev/fd/3"},
		ExtraFiles: []*os.File{f},
	})
	if res.Failed() != nil {
		t.Fatalf("run: %v", res.Failed())
	}
	if string(res.Stdout) != "from parent" {
		t.Fatalf("fd 3 content: %q", res.Stdout)
	}
}

func TestResultFailedNil(t *testing.T) {
	if err := (Result{Cmd: "true"}).Failed(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	err := (Result{Cmd: "x", ExitCode: 1, Err: errors.New("boom")}).Failed()
	if err == nil || strings.Contains(err.Error(), "\n") {
		t.Fatalf("want single-line error without stderr, got %q", err)
	}
}
