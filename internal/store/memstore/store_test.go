package memstore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicenow/marketplace-be/internal/job"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	return store
}

func requestedJob(customerID string) *job.Job {
	return &job.Job{
		CustomerID:  customerID,
		ServiceType: job.ServiceTypeElectrician,
		Description: "fix breaker",
		Status:      job.StatusRequested,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestStore_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.Insert(ctx, requestedJob("customer-1"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "customer-1", got.CustomerID)
	assert.Equal(t, job.StatusRequested, got.Status)
}

func TestStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, job.ErrJobNotFound)
}

func TestStore_InsertKeepsCallerID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	j := requestedJob("customer-1")
	j.ID = "fixed-id"

	id, err := store.Insert(ctx, j)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id)
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Insert(ctx, requestedJob("customer-1"))
	require.NoError(t, err)
	_, err = store.Insert(ctx, requestedJob("customer-1"))
	require.NoError(t, err)
	id3, err := store.Insert(ctx, requestedJob("customer-2"))
	require.NoError(t, err)

	require.NoError(t, store.ConditionalUpdate(ctx, id3,
		job.Expectation{Status: job.StatusRequested},
		job.Change{Status: job.StatusAccepted, WorkerID: "worker-1"},
	))

	tests := []struct {
		name   string
		filter job.Filter
		want   int
	}{
		{name: "all", filter: job.Filter{}, want: 3},
		{name: "by customer", filter: job.Filter{CustomerID: "customer-1"}, want: 2},
		{name: "by status", filter: job.Filter{Status: job.StatusRequested}, want: 2},
		{name: "customer and status", filter: job.Filter{CustomerID: "customer-2", Status: job.StatusAccepted}, want: 1},
		{name: "no match", filter: job.Filter{CustomerID: "customer-9"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := store.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, jobs, tt.want)
		})
	}
}

func TestStore_ConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.Insert(ctx, requestedJob("customer-1"))
	require.NoError(t, err)

	err = store.ConditionalUpdate(ctx, id,
		job.Expectation{Status: job.StatusRequested},
		job.Change{Status: job.StatusAccepted, WorkerID: "worker-1"},
	)
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, job.StatusAccepted, got.Status)
	assert.Equal(t, "worker-1", got.WorkerID)
}

func TestStore_ConditionalUpdate_ExpectationMismatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.Insert(ctx, requestedJob("customer-1"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		expect job.Expectation
	}{
		{name: "wrong status", expect: job.Expectation{Status: job.StatusAccepted}},
		{name: "wrong worker", expect: job.Expectation{Status: job.StatusRequested, WorkerID: "worker-9"}},
		{name: "wrong customer", expect: job.Expectation{Status: job.StatusRequested, CustomerID: "customer-9"}},
		{name: "wrong code", expect: job.Expectation{Status: job.StatusRequested, CompletionOTP: "1234"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.ConditionalUpdate(ctx, id, tt.expect,
				job.Change{Status: job.StatusAccepted},
			)
			assert.ErrorIs(t, err, job.ErrPreconditionFailed)
		})
	}

	// The record is untouched after every failed attempt.
	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, job.StatusRequested, got.Status)
}

func TestStore_ConditionalUpdate_MissingJob(t *testing.T) {
	store := newTestStore(t)

	err := store.ConditionalUpdate(context.Background(), "does-not-exist",
		job.Expectation{Status: job.StatusRequested},
		job.Change{Status: job.StatusAccepted},
	)
	assert.ErrorIs(t, err, job.ErrPreconditionFailed)
}

func TestStore_ConditionalUpdate_ClearsCode(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.Insert(ctx, requestedJob("customer-1"))
	require.NoError(t, err)

	code := "4321"
	require.NoError(t, store.ConditionalUpdate(ctx, id,
		job.Expectation{Status: job.StatusRequested},
		job.Change{Status: job.StatusAwaitingConfirmation, CompletionOTP: &code},
	))

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "4321", got.CompletionOTP)

	cleared := ""
	require.NoError(t, store.ConditionalUpdate(ctx, id,
		job.Expectation{Status: job.StatusAwaitingConfirmation, CompletionOTP: "4321"},
		job.Change{Status: job.StatusCompleted, CompletionOTP: &cleared},
	))

	got, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got.CompletionOTP)
	assert.Equal(t, job.StatusCompleted, got.Status)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.Insert(ctx, requestedJob("customer-1"))
	require.NoError(t, err)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	got.Status = job.StatusCompleted

	again, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, job.StatusRequested, again.Status, "mutating a returned job must not touch the store")
}

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sub, err := store.Subscribe(ctx, job.Filter{Status: job.StatusRequested})
	require.NoError(t, err)
	defer sub.Close()

	// Initial snapshot is empty.
	snap := <-sub.Updates()
	require.NoError(t, snap.Err)
	assert.Empty(t, snap.Jobs)

	id, err := store.Insert(ctx, requestedJob("customer-1"))
	require.NoError(t, err)

	snap = <-sub.Updates()
	require.NoError(t, snap.Err)
	require.Len(t, snap.Jobs, 1)
	assert.Equal(t, id, snap.Jobs[0].ID)

	// Accepting the job removes it from the requested view.
	require.NoError(t, store.ConditionalUpdate(ctx, id,
		job.Expectation{Status: job.StatusRequested},
		job.Change{Status: job.StatusAccepted, WorkerID: "worker-1"},
	))

	snap = <-sub.Updates()
	require.NoError(t, snap.Err)
	assert.Empty(t, snap.Jobs)
}

func TestStore_Subscribe_CustomerFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sub, err := store.Subscribe(ctx, job.Filter{CustomerID: "customer-1"})
	require.NoError(t, err)
	defer sub.Close()

	snap := <-sub.Updates()
	require.NoError(t, snap.Err)
	require.Empty(t, snap.Jobs)

	_, err = store.Insert(ctx, requestedJob("customer-1"))
	require.NoError(t, err)

	snap = <-sub.Updates()
	require.NoError(t, snap.Err)
	require.Len(t, snap.Jobs, 1)
	assert.Equal(t, "customer-1", snap.Jobs[0].CustomerID)
}

func TestStore_Subscribe_CloseStopsDelivery(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sub, err := store.Subscribe(ctx, job.Filter{})
	require.NoError(t, err)

	snap := <-sub.Updates()
	require.NoError(t, snap.Err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "close is idempotent")

	// The updates channel is closed once the watcher exits.
	select {
	case _, ok := <-sub.Updates():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("updates channel not closed after Close")
	}
}

func TestStore_Subscribe_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := newTestStore(t)

	sub, err := store.Subscribe(ctx, job.Filter{})
	require.NoError(t, err)

	snap := <-sub.Updates()
	require.NoError(t, snap.Err)

	cancel()

	select {
	case _, ok := <-sub.Updates():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("updates channel not closed after context cancel")
	}
}
