package replicate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vbp1/tablerepl/internal/replicate"
)

var teardownCalls = []string{
	"shop:DropPublication public_orders_publication",
	"shop:DropSlot shop_orders_slot",
	"analytics:DetachSubscription public_orders_subscription",
	"analytics:DropSubscription public_orders_subscription",
}

func TestCleanupOrder(t *testing.T) {
	env, target, job, opts := setup(t)
	job.Cleanup = true

	res, err := replicate.Cleanup(context.Background(), target, job, opts, env.Deps(), replicate.CleanupOptions{ContinueOnError: true})
	require.NoError(t, err)
	require.NoError(t, res.Err())
	require.Equal(t, teardownCalls, env.Log.Filter("shop:Drop", "analytics:Detach", "analytics:Drop"))
	require.Len(t, res.Steps, 4)
	// nothing from the setup pipeline runs
	require.Empty(t, env.Log.Filter("tools:", "shop:Create", "analytics:Create", "analytics:TableExists"))
}

func TestCleanupContinuesAndAggregates(t *testing.T) {
	env, target, job, opts := setup(t)
	env.Source.Fail["DropPublication"] = errors.New(`publication "public_orders_publication" does not exist`)
	env.Source.Fail["DropSlot"] = errors.New(`replication slot "shop_orders_slot" is active`)
	env.Source.ActiveSlots["shop_orders_slot"] = true

	res, err := replicate.Cleanup(context.Background(), target, job, opts, env.Deps(), replicate.CleanupOptions{ContinueOnError: true})
	require.NoError(t, err)
	require.Equal(t, teardownCalls, env.Log.Filter("shop:Drop", "analytics:Detach", "analytics:Drop"))

	outcomes := []replicate.Outcome{}
	for _, s := range res.Steps {
		outcomes = append(outcomes, s.Outcome)
	}
	require.Equal(t, []replicate.Outcome{replicate.OutcomeFailed, replicate.OutcomeFailed, replicate.OutcomeSuccess, replicate.OutcomeSuccess}, outcomes)

	require.Contains(t, replicate.HintOf(res.Steps[1].Err), `-d shop -c "SELECT pg_drop_replication_slot('shop_orders_slot');"`)
	require.Contains(t, replicate.HintOf(res.Steps[0].Err), "DROP PUBLICATION public_orders_publication;")

	agg := res.Err()
	require.Error(t, agg)
	require.ErrorContains(t, agg, "2 errors occurred")
	require.ErrorContains(t, agg, "is active")
}

func TestCleanupDestinationUnavailable(t *testing.T) {
	env, target, job, opts := setup(t)
	env.ConnectErr["analytics"] = errors.New(`database "analytics" does not exist`)

	res, err := replicate.Cleanup(context.Background(), target, job, opts, env.Deps(), replicate.CleanupOptions{ContinueOnError: true})
	require.NoError(t, err)
	// source side still torn down
	require.Equal(t, teardownCalls[:2], env.Log.Filter("shop:Drop", "analytics:"))
	require.Len(t, res.Steps, 4)
	for i, want := range []replicate.Outcome{replicate.OutcomeSuccess, replicate.OutcomeSuccess, replicate.OutcomeFailed, replicate.OutcomeFailed} {
		require.Equal(t, want, res.Steps[i].Outcome, "step %s", res.Steps[i].Stage)
	}
	require.ErrorContains(t, res.Steps[2].Err, `"analytics" does not exist`)
	require.Contains(t, replicate.HintOf(res.Steps[3].Err), "DROP SUBSCRIPTION public_orders_subscription;")
}

func TestCleanupSourceUnavailable(t *testing.T) {
	env, target, job, opts := setup(t)
	env.ConnectErr["shop"] = errors.New(`database "shop" does not exist`)

	res, err := replicate.Cleanup(context.Background(), target, job, opts, env.Deps(), replicate.CleanupOptions{ContinueOnError: true})
	require.NoError(t, err)
	require.Equal(t, teardownCalls[2:], env.Log.Filter("shop:", "analytics:Detach", "analytics:Drop"))
	require.Equal(t, replicate.AuthenticationFailed, replicate.KindOf(res.Steps[0].Err))
	require.Error(t, res.Err())
}

func TestCleanupStopOnError(t *testing.T) {
	env, target, job, opts := setup(t)
	env.Source.Fail["DropSlot"] = errors.New("boom")

	res, err := replicate.Cleanup(context.Background(), target, job, opts, env.Deps(), replicate.CleanupOptions{})
	require.NoError(t, err)
	require.Len(t, res.Steps, 2)
	require.Empty(t, env.Log.Filter("analytics:Detach", "analytics:Drop"))
}

func TestCleanupPreflight(t *testing.T) {
	env, target, job, opts := setup(t)
	env.DialErr = errors.New("no route to host")
	res, err := replicate.Cleanup(context.Background(), target, job, opts, env.Deps(), replicate.CleanupOptions{ContinueOnError: true})
	require.Nil(t, res)
	require.Equal(t, replicate.HostUnreachable, replicate.KindOf(err))
}
