package job

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"
)

// Engine drives the job lifecycle. Every mutating operation is one atomic
// conditional update keyed on the job's current status (and, where relevant,
// the caller's identity), so concurrent workers racing on the same job cannot
// corrupt state. The engine holds no job state of its own.
type Engine struct {
	store  Store
	logger *slog.Logger

	now     func() time.Time
	mintOTP func() (string, error)
}

// NewEngine creates an Engine over the given store.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:   store,
		logger:  logger,
		now:     time.Now,
		mintOTP: mintOTP,
	}
}

// CreateJob persists a new electrician job for customerID in status
// "requested" and returns its id.
func (e *Engine) CreateJob(ctx context.Context, customerID, description string) (string, error) {
	if customerID == "" {
		return "", ErrUnauthenticated
	}

	description = strings.TrimSpace(description)
	if description == "" {
		return "", &ValidationError{Field: "description", Msg: "please describe the problem"}
	}

	j := &Job{
		CustomerID:  customerID,
		ServiceType: ServiceTypeElectrician,
		Description: description,
		Status:      StatusRequested,
		CreatedAt:   e.now().UTC(),
	}

	id, err := e.store.Insert(ctx, j)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	e.logger.Info("Job created",
		slog.String("job_id", id),
		slog.String("customer_id", customerID),
	)

	return id, nil
}

// AcceptJob claims a requested job for workerID. Two workers racing on the
// same subscription snapshot both land here; the conditional update lets
// exactly one win, the other gets ErrPreconditionFailed.
func (e *Engine) AcceptJob(ctx context.Context, jobID, workerID string) error {
	if workerID == "" {
		return ErrUnauthenticated
	}

	err := e.store.ConditionalUpdate(ctx, jobID,
		Expectation{Status: StatusRequested},
		Change{Status: StatusAccepted, WorkerID: workerID},
	)
	if err != nil {
		return fmt.Errorf("failed to accept job: %w", err)
	}

	e.logger.Info("Job accepted",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
	)

	return nil
}

// BeginWork moves an accepted job to in_progress. Only the bound worker may
// do this.
func (e *Engine) BeginWork(ctx context.Context, jobID, workerID string) error {
	if workerID == "" {
		return ErrUnauthenticated
	}

	err := e.store.ConditionalUpdate(ctx, jobID,
		Expectation{Status: StatusAccepted, WorkerID: workerID},
		Change{Status: StatusInProgress},
	)
	if err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}

	e.logger.Info("Job in progress",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
	)

	return nil
}

// RequestCompletion mints a one-time completion code, stores it, and moves
// the job to awaiting_confirmation. The code is returned to the worker's side
// only; the customer obtains it in person, which is what proves the worker
// was physically present.
func (e *Engine) RequestCompletion(ctx context.Context, jobID, workerID string) (string, error) {
	if workerID == "" {
		return "", ErrUnauthenticated
	}

	code, err := e.mintOTP()
	if err != nil {
		return "", fmt.Errorf("failed to generate completion code: %w", err)
	}

	err = e.store.ConditionalUpdate(ctx, jobID,
		Expectation{Status: StatusInProgress, WorkerID: workerID},
		Change{Status: StatusAwaitingConfirmation, CompletionOTP: &code},
	)
	if err != nil {
		return "", fmt.Errorf("failed to request completion: %w", err)
	}

	e.logger.Info("Job awaiting confirmation",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
	)

	return code, nil
}

// ConfirmCompletion completes the job if code matches the stored completion
// code and the caller is the requesting customer. The code is cleared on
// success, making it single-use.
func (e *Engine) ConfirmCompletion(ctx context.Context, jobID, customerID, code string) error {
	if customerID == "" {
		return ErrUnauthenticated
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return &ValidationError{Field: "code", Msg: "please enter the completion code"}
	}

	cleared := ""
	err := e.store.ConditionalUpdate(ctx, jobID,
		Expectation{
			Status:        StatusAwaitingConfirmation,
			CustomerID:    customerID,
			CompletionOTP: code,
		},
		Change{Status: StatusCompleted, CompletionOTP: &cleared},
	)
	if err != nil {
		return fmt.Errorf("failed to confirm completion: %w", err)
	}

	e.logger.Info("Job completed",
		slog.String("job_id", jobID),
		slog.String("customer_id", customerID),
	)

	return nil
}

// mintOTP returns a uniformly random 4-digit code in [1000, 9999]. The code
// is the completion trust anchor, so it comes from crypto/rand.
func mintOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", fmt.Errorf("failed to read random source: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()+1000), nil
}
