package view

import (
	"context"
	"log/slog"
	"sync"

	"github.com/servicenow/marketplace-be/internal/identity"
	"github.com/servicenow/marketplace-be/internal/job"
)

// WorkerSnapshot is the worker view model's observable state. LastOTP is the
// most recently minted completion code, shown to the worker once and cleared
// with ClearOTP; it never travels to the customer through the system.
type WorkerSnapshot struct {
	Jobs         []job.Job
	IsLoading    bool
	ErrorMessage string
	LastOTP      string
}

// Worker projects the pool of unclaimed jobs and dispatches worker commands.
// The pool is not filtered by worker: every idle worker sees every open job
// and the first successful accept wins.
type Worker struct {
	engine *job.Engine
	store  job.Store
	ident  identity.Provider
	logger *slog.Logger

	mu   sync.Mutex
	snap WorkerSnapshot

	changes chan struct{}
	results chan workerResult

	self   string
	ctx    context.Context
	cancel context.CancelFunc
	sub    job.Subscription
	done   chan struct{}
}

type workerResult struct {
	otp string
	err error
}

// NewWorker creates the worker view model. Call Start to begin the live
// subscription.
func NewWorker(engine *job.Engine, store job.Store, ident identity.Provider, logger *slog.Logger) *Worker {
	return &Worker{
		engine:  engine,
		store:   store,
		ident:   ident,
		logger:  logger,
		snap:    WorkerSnapshot{IsLoading: true},
		changes: make(chan struct{}, 1),
		results: make(chan workerResult, 8),
		done:    make(chan struct{}),
	}
}

// Start resolves the worker identity and opens the live subscription over
// the requested-job pool.
func (v *Worker) Start(ctx context.Context) error {
	uid, err := v.ident.CurrentUser(ctx)
	if err != nil {
		return err
	}
	v.self = string(uid)

	ctx, cancel := context.WithCancel(ctx)

	sub, err := v.store.Subscribe(ctx, job.Filter{Status: job.StatusRequested})
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

func (v *Worker) loop() {
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

		case res := <-v.results:
			if res.err == nil && res.otp == "" {
				continue
			}

			v.mu.Lock()
			if res.err != nil {
				v.logger.Warn("Worker command failed",
					slog.String("worker_id", v.self),
					slog.Any("error", res.err),
				)
				v.snap.ErrorMessage = res.err.Error()
			} else {
				v.snap.LastOTP = res.otp
			}
			v.mu.Unlock()
			v.notify()
		}
	}
}

// Accept claims an open job. With several workers racing on the same
// snapshot only one wins; the rest see the precondition failure in
// ErrorMessage.
func (v *Worker) Accept(jobID string) {
	go func() {
		v.post(workerResult{err: v.engine.AcceptJob(v.ctx, jobID, v.self)})
	}()
}

// Begin moves an accepted job to in_progress.
func (v *Worker) Begin(jobID string) {
	go func() {
		v.post(workerResult{err: v.engine.BeginWork(v.ctx, jobID, v.self)})
	}()
}

// RequestCompletion mints the completion code; it surfaces in LastOTP for
// the worker to hand to the customer in person.
func (v *Worker) RequestCompletion(jobID string) {
	go func() {
		otp, err := v.engine.RequestCompletion(v.ctx, jobID, v.self)
		v.post(workerResult{otp: otp, err: err})
	}()
}

// Snapshot returns the current observable state.
func (v *Worker) Snapshot() WorkerSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snap
}

// Changes signals snapshot updates. Notifications coalesce; read Snapshot
// after each receive.
func (v *Worker) Changes() <-chan struct{} {
	return v.changes
}

// ClearError consumes the displayed error.
func (v *Worker) ClearError() {
	v.mu.Lock()
	v.snap.ErrorMessage = ""
	v.mu.Unlock()
	v.notify()
}

// ClearOTP consumes the displayed completion code.
func (v *Worker) ClearOTP() {
	v.mu.Lock()
	v.snap.LastOTP = ""
	v.mu.Unlock()
	v.notify()
}

// Close tears down the subscription and stops the loop.
func (v *Worker) Close() error {
	if v.cancel == nil {
		return nil
	}
	v.cancel()
	v.sub.Close()
	<-v.done
	return nil
}

func (v *Worker) notify() {
	select {
	case v.changes <- struct{}{}:
	default:
	}
}

func (v *Worker) post(res workerResult) {
	select {
	case v.results <- res:
	case <-v.ctx.Done():
	}
}
