package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vbp1/tablerepl/internal/replicate/replicatetest"
	"github.com/vbp1/tablerepl/internal/report"
)

func baseArgs(workdir string) []string {
	return []string{"-h", "db1", "-p", "5432", "-u", "admin", "-s", "shop", "-d", "analytics",
		"-c", "public", "-t", "orders", "--workdir", workdir, "--progress", "none"}
}

func run(t *testing.T, env *replicatetest.Env, args ...string) (int, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, env.Deps(), IO{Stdout: &stdout, Stderr: &stderr})
	return code, stdout.String()
}

func TestFreshTable(t *testing.T) {
	env := replicatetest.NewEnv("shop", "analytics")
	dir := t.TempDir()

	code, out := run(t, env, baseArgs(dir)...)
	require.Equal(t, 0, code, out)
	require.Contains(t, out, report.TitleDropSubscription)
	require.Contains(t, out, "is set up")
	require.FileExists(t, filepath.Join(dir, "replication_commands.txt"))
	require.NoFileExists(t, filepath.Join(dir, "shop.dump"))
	require.Len(t, env.Log.Filter("password"), 1)
}

func TestTableAlreadyExists(t *testing.T) {
	env := replicatetest.NewEnv("shop", "analytics")
	env.Dest.Tables["public.orders"] = 0

	code, out := run(t, env, baseArgs(t.TempDir())...)
	require.Equal(t, 1, code)
	require.Contains(t, out, "ObjectAlreadyExists")
	require.Contains(t, out, "DROP TABLE public.orders;")
	require.Empty(t, env.Log.Filter("tools:Restore", "shop:Create", "analytics:Create"))
}

func TestMissingTable(t *testing.T) {
	env := replicatetest.NewEnv("shop", "analytics")
	args := []string{"-h", "db1", "-p", "5432", "-u", "admin", "-s", "shop", "-d", "analytics", "-c", "public"}

	code, out := run(t, env, args...)
	require.Equal(t, 1, code)
	require.Contains(t, out, "InvalidArguments")
	require.Contains(t, out, "-t table")
	require.Contains(t, out, "Usage:")
	require.Empty(t, env.Log.Calls(), "no external call expected")
}

func TestCleanupExitsOne(t *testing.T) {
	env := replicatetest.NewEnv("shop", "analytics")

	code, out := run(t, env, append(baseArgs(t.TempDir()), "--cleanup", "true")...)
	require.Equal(t, 1, code)
	require.Equal(t, []string{
		"shop:DropPublication public_orders_publication",
		"shop:DropSlot shop_orders_slot",
		"analytics:DetachSubscription public_orders_subscription",
		"analytics:DropSubscription public_orders_subscription",
	}, env.Log.Filter("shop:Drop", "analytics:Detach", "analytics:Drop"))
	require.Contains(t, out, "Cleanup finished")
	require.Empty(t, env.Log.Filter("tools:"))
}

func TestCleanupReportsEveryFailure(t *testing.T) {
	env := replicatetest.NewEnv("shop", "analytics")
	env.Dest.Fail["DetachSubscription"] = os.ErrNotExist
	env.Dest.Fail["DropSubscription"] = os.ErrNotExist

	code, out := run(t, env, append(baseArgs(t.TempDir()), "--cleanup", "true")...)
	require.Equal(t, 1, code)
	require.Contains(t, out, "cleanup finished with errors")
	require.Contains(t, out, "2 errors occurred")
	require.Len(t, env.Log.Filter("shop:Drop"), 2)
	require.Contains(t, out, `-d analytics -c "ALTER SUBSCRIPTION public_orders_subscription DISABLE;"`)
}

func TestCleanupActiveSlotHint(t *testing.T) {
	env := replicatetest.NewEnv("shop", "analytics")
	env.Source.ActiveSlots["shop_orders_slot"] = true
	env.Source.Fail["DropSlot"] = errors.New(`replication slot "shop_orders_slot" is active for PID 4242`)

	code, out := run(t, env, append(baseArgs(t.TempDir()), "--cleanup", "true")...)
	require.Equal(t, 1, code)
	require.Contains(t, out, "is active for PID 4242")
	require.Contains(t, out, `psql -h db1 -p 5432 -U admin -d shop -c "SELECT pg_drop_replication_slot('shop_orders_slot');"`)
}

func TestInvalidInvocations(t *testing.T) {
	cases := map[string][]string{
		"unknown flag":    append(baseArgs("."), "--bogus"),
		"cleanup false":   append(baseArgs("."), "--cleanup", "false"),
		"cleanup empty":   append(baseArgs("."), "--cleanup="),
		"positional":      append(baseArgs("."), "extra"),
		"port not number": {"-h", "db1", "-p", "x", "-u", "admin", "-s", "a", "-d", "b", "-c", "public", "-t", "orders"},
		"bad progress":    append(baseArgs("."), "--progress", "fancy"),
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			env := replicatetest.NewEnv("shop", "analytics")
			code, out := run(t, env, args...)
			require.Equal(t, 1, code)
			require.Contains(t, out, "InvalidArguments")
			require.Empty(t, env.Log.Calls())
		})
	}
}

func TestHelp(t *testing.T) {
	env := replicatetest.NewEnv("shop", "analytics")
	code, out := run(t, env, "--help")
	require.Equal(t, 0, code)
	require.Contains(t, out, "-h, --host")
	require.Contains(t, out, "--cleanup")
	require.NotContains(t, out, "-h, --help")
	require.Empty(t, env.Log.Calls())
}

func TestFlagsFromEnvironment(t *testing.T) {
	t.Setenv("TABLEREPL_TABLE", "orders")
	t.Setenv("TABLEREPL_REPORT_FILE", "cmds.txt")
	env := replicatetest.NewEnv("shop", "analytics")
	dir := t.TempDir()

	args := []string{"-h", "db1", "-p", "5432", "-u", "admin", "-s", "shop", "-d", "analytics",
		"-c", "public", "--workdir", dir, "--progress", "none"}
	code, out := run(t, env, args...)
	require.Equal(t, 0, code, out)
	require.FileExists(t, filepath.Join(dir, "cmds.txt"))
}

func TestFlagOverridesEnvironment(t *testing.T) {
	t.Setenv("TABLEREPL_TABLE", "missing")
	env := replicatetest.NewEnv("shop", "analytics")
	code, out := run(t, env, baseArgs(t.TempDir())...)
	require.Equal(t, 0, code, out)
	require.NotEmpty(t, env.Log.Filter("tools:Dump shop public.orders"))
}

func TestPromptPasswordFromPipe(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	_, err = w.WriteString("s3cret\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var prompt bytes.Buffer
	pw, err := PromptPassword(r, &prompt)()
	require.NoError(t, err)
	require.Equal(t, "s3cret", pw)
	require.True(t, strings.HasPrefix(prompt.String(), "Password:"))
}

func TestPromptPasswordEmpty(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, w.Close())

	_, err = PromptPassword(r, &bytes.Buffer{})()
	require.Error(t, err)
}
