package postgres

import (
	"context"

	"github.com/servicenow/marketplace-be/internal/job"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id         TEXT        PRIMARY KEY,
	customer_id    TEXT        NOT NULL,
	worker_id      TEXT,
	service_type   TEXT        NOT NULL,
	description    TEXT        NOT NULL,
	status         TEXT        NOT NULL,
	completion_otp TEXT,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_customer ON jobs (customer_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status, created_at DESC);
`

// EnsureSchema creates the jobs table and its indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return job.NewTransportError(err)
	}
	return nil
}
