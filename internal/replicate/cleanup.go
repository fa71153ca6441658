package replicate

import (
	"context"
	"log/slog"

	"github.com/hashicorp/go-multierror"
)

// CleanupOptions control the teardown path.
type CleanupOptions struct {
	// ContinueOnError attempts every step even after one fails.
	ContinueOnError bool
}

// CleanupResult collects the outcome of each attempted teardown step.
type CleanupResult struct {
	Steps []StageResult
}

// Err aggregates step failures; nil when every attempted step succeeded.
func (r *CleanupResult) Err() error {
	var merr *multierror.Error
	for _, s := range r.Steps {
		if s.Err != nil {
			merr = multierror.Append(merr, s.Err)
		}
	}
	return merr.ErrorOrNil()
}

// Cleanup tears down what Run created, in fixed order: publication and slot
// on the source, then detach and drop the subscription on the destination.
// Each database is opened on its own; when one cannot be reached its steps
// fail with that error and the other side's steps still run. The returned
// error covers validation, reachability and the password prompt only; step
// failures are in the result, each with a remediation hint.
func Cleanup(ctx context.Context, target *ConnectionTarget, job JobSpec, opts Options, deps Deps, copts CleanupOptions) (*CleanupResult, error) {
	if err := Validate(target, job); err != nil {
		return nil, err
	}
	o := newOrchestrator(target, job, opts, deps)
	defer o.Close()

	if err := o.reach(ctx); err != nil {
		return nil, err
	}
	srcErr := o.openSource(ctx)
	if srcErr != nil {
		slog.Warn("source unavailable for cleanup", "db", job.SourceDB, "err", srcErr)
	}
	dstErr := o.openDestination(ctx)
	if dstErr != nil {
		slog.Warn("destination unavailable for cleanup", "db", job.DestinationDB, "err", dstErr)
	}

	steps := []struct {
		stage   Stage
		connErr error
		hint    string
		fn      func(context.Context) error
	}{
		{StageDropPublication, srcErr, o.dropPublicationHint(), func(ctx context.Context) error { return o.src.DropPublication(ctx, o.names.Publication) }},
		{StageDropSlot, srcErr, o.dropSlotHint(), o.dropSlot},
		{StageDetachSubscription, dstErr, o.detachSubscriptionHint(), func(ctx context.Context) error { return o.dst.DetachSubscription(ctx, o.names.Subscription) }},
		{StageDropSubscription, dstErr, o.dropSubscriptionHint(), func(ctx context.Context) error { return o.dst.DropSubscription(ctx, o.names.Subscription) }},
	}

	res := &CleanupResult{}
	for _, s := range steps {
		err := s.connErr
		if err == nil {
			err = s.fn(ctx)
		}
		if err != nil {
			err = stepFailure(s.stage, err, s.hint)
			slog.Warn("cleanup step failed", "step", s.stage, "err", err)
		} else {
			slog.Info("cleanup step done", "step", s.stage)
		}
		res.Steps = append(res.Steps, resultOf(s.stage, err))
		if err != nil && !copts.ContinueOnError {
			break
		}
	}
	return res, nil
}

// stepFailure keeps the kind of a classified cause and attaches hint.
func stepFailure(stage Stage, err error, hint string) *Error {
	kind := KindOf(err)
	if kind == 0 {
		kind = ExternalCommandFailed
	}
	return &Error{Kind: kind, Op: string(stage), Hint: hint, Err: err}
}

// dropSlot warns when a walsender still holds the slot; the drop is attempted
// regardless and fails server-side in that case.
func (o *Orchestrator) dropSlot(ctx context.Context) error {
	active, err := o.src.SlotActive(ctx, o.names.Slot)
	switch {
	case err != nil:
		slog.Warn("cannot read slot state", "slot", o.names.Slot, "err", err)
	case active:
		slog.Warn("replication slot is active; detach the subscription first", "slot", o.names.Slot)
	}
	return o.src.DropSlot(ctx, o.names.Slot)
}
