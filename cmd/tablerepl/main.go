package main

import (
	"context"
	"os"

	"github.com/vbp1/tablerepl/internal/cli"
	"github.com/vbp1/tablerepl/internal/util/signalctx"
)

func main() {
	ctx, stop := signalctx.WithSignals(context.Background())
	deps := cli.DefaultDeps(os.Stdin, os.Stderr)
	code := cli.Execute(ctx, os.Args[1:], deps, cli.IO{Stdout: os.Stdout, Stderr: os.Stderr})
	stop()
	os.Exit(code)
}
