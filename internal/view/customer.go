// Package view holds the customer and worker view models: live projections
// over the job store plus fire-and-forget command dispatch. A view model
// never mutates job state locally; everything it shows arrives through its
// subscription.
package view

import (
	"context"
	"log/slog"
	"sync"

	"github.com/servicenow/marketplace-be/internal/identity"
	"github.com/servicenow/marketplace-be/internal/job"
)

// CustomerSnapshot is the customer view model's observable state. An error
// message is single-shot: the presentation layer shows it once and calls
// ClearError.
type CustomerSnapshot struct {
	Jobs         []job.Job
	IsLoading    bool
	ErrorMessage string
}

// Customer projects one customer's jobs and dispatches their commands.
type Customer struct {
	engine *job.Engine
	store  job.Store
	ident  identity.Provider
	logger *slog.Logger

	mu   sync.Mutex
	snap CustomerSnapshot

	changes chan struct{}
	results chan error

	self   string
	ctx    context.Context
	cancel context.CancelFunc
	sub    job.Subscription
	done   chan struct{}
}

// NewCustomer creates the customer view model. Call Start to begin the live
// subscription.
func NewCustomer(engine *job.Engine, store job.Store, ident identity.Provider, logger *slog.Logger) *Customer {
	return &Customer{
		engine:  engine,
		store:   store,
		ident:   ident,
		logger:  logger,
		snap:    CustomerSnapshot{IsLoading: true},
		changes: make(chan struct{}, 1),
		results: make(chan error, 8),
		done:    make(chan struct{}),
	}
}

// Start resolves the owning user and opens the live subscription over their
// jobs. It fails with job.ErrUnauthenticated before any store call when no
// identity is bound.
func (v *Customer) Start(ctx context.Context) error {
	uid, err := v.ident.CurrentUser(ctx)
	if err != nil {
		return err
	}
	v.self = string(uid)

	ctx, cancel := context.WithCancel(ctx)

	sub, err := v.store.Subscribe(ctx, job.Filter{CustomerID: v.self})
	if err != nil {
		cancel()
		return err
	}

	v.ctx = ctx
	v.cancel = cancel
	v.sub = sub

	go v.loop()

	return nil
}

// loop is the view model's single thread of control: subscription deliveries
// and command results both land here.
func (v *Customer) loop() {
	defer close(v.done)

	for {
		select {
		case snap, ok := <-v.sub.Updates():
			if !ok {
				return
			}

			v.mu.Lock()
			v.snap.IsLoading = false
			if snap.Err != nil {
				v.snap.ErrorMessage = snap.Err.Error()
			} else {
				v.snap.Jobs = snap.Jobs
			}
			v.mu.Unlock()
			v.notify()

		case err := <-v.results:
			if err == nil {
				continue
			}

			v.logger.Warn("Customer command failed",
				slog.String("customer_id", v.self),
				slog.Any("error", err),
			)

			v.mu.Lock()
			v.snap.ErrorMessage = err.Error()
			v.mu.Unlock()
			v.notify()
		}
	}
}

// Submit creates a new job from the description. Fire-and-forget: the new
// job appears through the subscription, a failure through ErrorMessage.
func (v *Customer) Submit(description string) {
	go func() {
		_, err := v.engine.CreateJob(v.ctx, v.self, description)
		v.post(err)
	}()
}

// Confirm completes a job with the code the worker handed over.
func (v *Customer) Confirm(jobID, code string) {
	go func() {
		v.post(v.engine.ConfirmCompletion(v.ctx, jobID, v.self, code))
	}()
}

// Snapshot returns the current observable state.
func (v *Customer) Snapshot() CustomerSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snap
}

// Changes signals snapshot updates. Notifications coalesce; read Snapshot
// after each receive.
func (v *Customer) Changes() <-chan struct{} {
	return v.changes
}

// ClearError consumes the displayed error.
func (v *Customer) ClearError() {
	v.mu.Lock()
	v.snap.ErrorMessage = ""
	v.mu.Unlock()
	v.notify()
}

// Close tears down the subscription and stops the loop.
func (v *Customer) Close() error {
	if v.cancel == nil {
		return nil
	}
	v.cancel()
	v.sub.Close()
	<-v.done
	return nil
}

func (v *Customer) notify() {
	select {
	case v.changes <- struct{}{}:
	default:
	}
}

func (v *Customer) post(err error) {
	select {
	case v.results <- err:
	case <-v.ctx.Done():
	}
}
