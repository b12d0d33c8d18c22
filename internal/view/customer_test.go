package view_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicenow/marketplace-be/internal/identity"
	"github.com/servicenow/marketplace-be/internal/job"
	"github.com/servicenow/marketplace-be/internal/store/memstore"
	"github.com/servicenow/marketplace-be/internal/view"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func newFixture(t *testing.T) (*job.Engine, *memstore.Store) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := memstore.New(logger)
	require.NoError(t, err)

	return job.NewEngine(store, logger), store
}

func TestCustomer_StartUnauthenticated(t *testing.T) {
	engine, store := newFixture(t)

	vm := view.NewCustomer(engine, store, identity.Static{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := vm.Start(context.Background())
	assert.ErrorIs(t, err, job.ErrUnauthenticated)
}

func TestCustomer_InitialSnapshot(t *testing.T) {
	engine, store := newFixture(t)

	vm := view.NewCustomer(engine, store, identity.Static{User: "customer-1"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	snap := vm.Snapshot()
	assert.True(t, snap.IsLoading, "loading until the first delivery")

	require.NoError(t, vm.Start(context.Background()))
	defer vm.Close()

	require.Eventually(t, func() bool {
		return !vm.Snapshot().IsLoading
	}, waitFor, tick)

	assert.Empty(t, vm.Snapshot().Jobs)
}

func TestCustomer_Submit(t *testing.T) {
	engine, store := newFixture(t)

	vm := view.NewCustomer(engine, store, identity.Static{User: "customer-1"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, vm.Start(context.Background()))
	defer vm.Close()

	vm.Submit("fix breaker")

	require.Eventually(t, func() bool {
		return len(vm.Snapshot().Jobs) == 1
	}, waitFor, tick)

	snap := vm.Snapshot()
	assert.Equal(t, "fix breaker", snap.Jobs[0].Description)
	assert.Equal(t, job.StatusRequested, snap.Jobs[0].Status)
	assert.Empty(t, snap.ErrorMessage)
}

func TestCustomer_SubmitEmptyDescription(t *testing.T) {
	engine, store := newFixture(t)

	vm := view.NewCustomer(engine, store, identity.Static{User: "customer-1"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, vm.Start(context.Background()))
	defer vm.Close()

	vm.Submit("   ")

	require.Eventually(t, func() bool {
		return vm.Snapshot().ErrorMessage != ""
	}, waitFor, tick)

	assert.Equal(t, "please describe the problem", vm.Snapshot().ErrorMessage)
	assert.Empty(t, vm.Snapshot().Jobs)

	vm.ClearError()
	assert.Empty(t, vm.Snapshot().ErrorMessage)
}

func TestCustomer_SeesOnlyOwnJobs(t *testing.T) {
	ctx := context.Background()
	engine, store := newFixture(t)

	_, err := engine.CreateJob(ctx, "customer-2", "someone else's job")
	require.NoError(t, err)

	vm := view.NewCustomer(engine, store, identity.Static{User: "customer-1"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, vm.Start(ctx))
	defer vm.Close()

	require.Eventually(t, func() bool {
		return !vm.Snapshot().IsLoading
	}, waitFor, tick)

	assert.Empty(t, vm.Snapshot().Jobs)

	vm.Submit("fix breaker")

	require.Eventually(t, func() bool {
		return len(vm.Snapshot().Jobs) == 1
	}, waitFor, tick)

	assert.Equal(t, "customer-1", vm.Snapshot().Jobs[0].CustomerID)
}

func TestCustomer_Confirm(t *testing.T) {
	ctx := context.Background()
	engine, store := newFixture(t)

	id, err := engine.CreateJob(ctx, "customer-1", "fix breaker")
	require.NoError(t, err)
	require.NoError(t, engine.AcceptJob(ctx, id, "worker-1"))
	require.NoError(t, engine.BeginWork(ctx, id, "worker-1"))

	otp, err := engine.RequestCompletion(ctx, id, "worker-1")
	require.NoError(t, err)

	vm := view.NewCustomer(engine, store, identity.Static{User: "customer-1"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, vm.Start(ctx))
	defer vm.Close()

	require.Eventually(t, func() bool {
		snap := vm.Snapshot()
		return len(snap.Jobs) == 1 && snap.Jobs[0].Status == job.StatusAwaitingConfirmation
	}, waitFor, tick)

	vm.Confirm(id, otp)

	require.Eventually(t, func() bool {
		snap := vm.Snapshot()
		return len(snap.Jobs) == 1 && snap.Jobs[0].Status == job.StatusCompleted
	}, waitFor, tick)

	assert.Empty(t, vm.Snapshot().ErrorMessage)
}

func TestCustomer_ConfirmWrongCode(t *testing.T) {
	ctx := context.Background()
	engine, store := newFixture(t)

	id, err := engine.CreateJob(ctx, "customer-1", "fix breaker")
	require.NoError(t, err)
	require.NoError(t, engine.AcceptJob(ctx, id, "worker-1"))
	require.NoError(t, engine.BeginWork(ctx, id, "worker-1"))

	otp, err := engine.RequestCompletion(ctx, id, "worker-1")
	require.NoError(t, err)

	wrong := "0000"
	if wrong == otp {
		wrong = "0001"
	}

	vm := view.NewCustomer(engine, store, identity.Static{User: "customer-1"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, vm.Start(ctx))
	defer vm.Close()

	vm.Confirm(id, wrong)

	require.Eventually(t, func() bool {
		return vm.Snapshot().ErrorMessage != ""
	}, waitFor, tick)

	j, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, job.StatusAwaitingConfirmation, j.Status)
}

func TestCustomer_Close(t *testing.T) {
	engine, store := newFixture(t)

	vm := view.NewCustomer(engine, store, identity.Static{User: "customer-1"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, vm.Start(context.Background()))

	require.Eventually(t, func() bool {
		return !vm.Snapshot().IsLoading
	}, waitFor, tick)

	require.NoError(t, vm.Close())
	require.NoError(t, vm.Close(), "close is idempotent")
}

func TestCustomer_CloseBeforeStart(t *testing.T) {
	engine, store := newFixture(t)

	vm := view.NewCustomer(engine, store, identity.Static{User: "customer-1"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, vm.Close())
}
