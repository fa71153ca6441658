package signalctx

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// WithSignals returns a context canceled on SIGINT or SIGTERM. The received
// signal is logged; stop releases the signal handler.
func WithSignals(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-ctx.Done():
		case sig := <-c:
			slog.Warn("signal received, aborting", "signal", sig.String())
			cancel()
		}
	}()

	return ctx, func() {
		signal.Stop(c)
		cancel()
	}
}
