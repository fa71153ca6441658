package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vbp1/tablerepl/internal/process"
	"github.com/vbp1/tablerepl/internal/specdiff"
	"github.com/vbp1/tablerepl/internal/util/signalctx"
)

func main() {
	ctx, stop := signalctx.WithSignals(context.Background())
	defer stop()

	d := &specdiff.Differ{Runner: process.Exec{}}
	cmd := &cobra.Command{
		Use:           "specdiff BASE REVISION",
		Short:         "Diff two OpenAPI documents from ./specs with oasdiff",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return d.Run(cmd.Context(), args, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&d.SpecsDir, "specs-dir", specdiff.DefaultSpecsDir, "Directory holding the documents")

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "specdiff:", err)
		stop()
		os.Exit(1)
	}
}
