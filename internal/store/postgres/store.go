// Package postgres implements the job store on PostgreSQL. Transitions are
// single conditional UPDATE statements, so the database serializes
// per-record writers, and live subscriptions ride the RabbitMQ change feed.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/servicenow/marketplace-be/internal/job"
	"github.com/servicenow/marketplace-be/shared/postgresql"
	"github.com/servicenow/marketplace-be/shared/rabbitmq"
)

// defaultPollInterval is the subscription's re-query fallback for events the
// feed dropped.
const defaultPollInterval = 30 * time.Second

// Store is a PostgreSQL-backed job store.
type Store struct {
	db           *sqlx.DB
	feed         *rabbitmq.Client
	logger       *slog.Logger
	pollInterval time.Duration
}

// New creates a Store over the given database and change-feed clients.
func New(pg *postgresql.Client, feed *rabbitmq.Client, logger *slog.Logger) *Store {
	return &Store{
		db:           pg.GetDB(),
		feed:         feed,
		logger:       logger,
		pollInterval: defaultPollInterval,
	}
}

// row mirrors the jobs table; worker_id and completion_otp are NULL until
// their lifecycle stage binds them.
type row struct {
	JobID         string         `db:"job_id"`
	CustomerID    string         `db:"customer_id"`
	WorkerID      sql.NullString `db:"worker_id"`
	ServiceType   string         `db:"service_type"`
	Description   string         `db:"description"`
	Status        string         `db:"status"`
	CompletionOTP sql.NullString `db:"completion_otp"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (r row) toJob() job.Job {
	return job.Job{
		ID:            r.JobID,
		CustomerID:    r.CustomerID,
		WorkerID:      r.WorkerID.String,
		ServiceType:   r.ServiceType,
		Description:   r.Description,
		Status:        r.Status,
		CompletionOTP: r.CompletionOTP.String,
		CreatedAt:     r.CreatedAt,
	}
}

// Insert stores a new job, assigning an id if the record has none.
func (s *Store) Insert(ctx context.Context, j *job.Job) (string, error) {
	id := j.ID
	if id == "" {
		id = uuid.New().String()
	}

	query := `
		INSERT INTO jobs (
			job_id, customer_id, service_type,
			description, status, created_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		id,
		j.CustomerID,
		j.ServiceType,
		j.Description,
		j.Status,
		j.CreatedAt,
	)
	if err != nil {
		return "", job.NewTransportError(err)
	}

	s.announce(ctx, id)

	return id, nil
}

// ConditionalUpdate applies change iff expect matches the current row. The
// predicate rides in the WHERE clause, so the database enforces the
// at-most-one-winner guarantee; zero matched rows means the precondition
// failed or the job does not exist, which the caller treats the same way.
func (s *Store) ConditionalUpdate(ctx context.Context, id string, expect job.Expectation, change job.Change) error {
	query, args := buildConditionalUpdate(id, expect, change)

	var updated string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Conditional update lost",
				slog.String("job_id", id),
				slog.String("expected_status", expect.Status),
			)
			return job.ErrPreconditionFailed
		}
		return job.NewTransportError(err)
	}

	s.announce(ctx, id)

	return nil
}

// buildConditionalUpdate renders the transition as one UPDATE ... WHERE
// statement with a RETURNING clause to detect the losing writer.
func buildConditionalUpdate(id string, expect job.Expectation, change job.Change) (string, []interface{}) {
	set := []string{}
	args := []interface{}{}
	argIdx := 1

	set = append(set, fmt.Sprintf("status = $%d", argIdx))
	args = append(args, change.Status)
	argIdx++

	if change.WorkerID != "" {
		set = append(set, fmt.Sprintf("worker_id = $%d", argIdx))
		args = append(args, change.WorkerID)
		argIdx++
	}

	if change.CompletionOTP != nil {
		// An empty value clears the code.
		set = append(set, fmt.Sprintf("completion_otp = NULLIF($%d, '')", argIdx))
		args = append(args, *change.CompletionOTP)
		argIdx++
	}

	query := "UPDATE jobs SET " + strings.Join(set, ", ")

	query += fmt.Sprintf(" WHERE job_id = $%d", argIdx)
	args = append(args, id)
	argIdx++

	if expect.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, expect.Status)
		argIdx++
	}

	if expect.WorkerID != "" {
		query += fmt.Sprintf(" AND worker_id = $%d", argIdx)
		args = append(args, expect.WorkerID)
		argIdx++
	}

	if expect.CustomerID != "" {
		query += fmt.Sprintf(" AND customer_id = $%d", argIdx)
		args = append(args, expect.CustomerID)
		argIdx++
	}

	if expect.CompletionOTP != "" {
		query += fmt.Sprintf(" AND completion_otp = $%d", argIdx)
		args = append(args, expect.CompletionOTP)
		argIdx++
	}

	query += " RETURNING job_id"

	return query, args
}

// Get returns the job with the given id.
func (s *Store) Get(ctx context.Context, id string) (*job.Job, error) {
	query := `
		SELECT
			job_id, customer_id, worker_id, service_type,
			description, status, completion_otp, created_at
		FROM jobs
		WHERE job_id = $1
	`

	var r row
	err := s.db.GetContext(ctx, &r, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, job.ErrJobNotFound
		}
		return nil, job.NewTransportError(err)
	}

	j := r.toJob()
	return &j, nil
}

// List returns all jobs matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter job.Filter) ([]job.Job, error) {
	query := `
		SELECT
			job_id, customer_id, worker_id, service_type,
			description, status, completion_otp, created_at
		FROM jobs
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.CustomerID != "" {
		query += fmt.Sprintf(" AND customer_id = $%d", argIdx)
		args = append(args, filter.CustomerID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	query += " ORDER BY created_at DESC, job_id DESC"

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, job.NewTransportError(err)
	}

	jobs := make([]job.Job, len(rows))
	for i, r := range rows {
		jobs[i] = r.toJob()
	}
	return jobs, nil
}

// announce publishes the change event for id. A feed failure does not fail
// the write that already committed; subscribers catch up on their poll
// interval.
func (s *Store) announce(ctx context.Context, id string) {
	if s.feed == nil {
		return
	}
	if err := s.feed.PublishChange(ctx, id); err != nil {
		s.logger.Warn("Failed to announce job change",
			slog.String("job_id", id),
			slog.Any("error", err),
		)
	}
}
