// Package memstore implements the job store in memory on go-memdb. Writes go
// through single write transactions, which is what makes ConditionalUpdate
// atomic, and subscriptions are built on memdb watch channels.
package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/segmentio/ksuid"

	"github.com/servicenow/marketplace-be/internal/job"
)

const tableJobs = "jobs"

func jobsTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: tableJobs,
		Indexes: map[string]*memdb.IndexSchema{
			"id": {
				Name:    "id",
				Unique:  true,
				Indexer: &memdb.StringFieldIndex{Field: "ID"},
			},
			"status": {
				Name:    "status",
				Indexer: &memdb.StringFieldIndex{Field: "Status"},
			},
			"customer": {
				Name:    "customer",
				Indexer: &memdb.StringFieldIndex{Field: "CustomerID"},
			},
		},
	}
}

// Store is an in-memory job store.
type Store struct {
	db     *memdb.MemDB
	logger *slog.Logger
}

// New creates an empty in-memory job store.
func New(logger *slog.Logger) (*Store, error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableJobs: jobsTableSchema(),
		},
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create memdb: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Insert stores a new job, assigning an id if the record has none.
func (s *Store) Insert(ctx context.Context, j *job.Job) (string, error) {
	rec := *j
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	tx := s.db.Txn(true)
	defer tx.Abort()

	if err := tx.Insert(tableJobs, &rec); err != nil {
		return "", job.NewTransportError(err)
	}
	tx.Commit()

	return rec.ID, nil
}

// ConditionalUpdate applies change to the job iff expect matches its current
// state, all inside one write transaction. A missing record fails the
// precondition the same way a mismatched one does.
func (s *Store) ConditionalUpdate(ctx context.Context, id string, expect job.Expectation, change job.Change) error {
	tx := s.db.Txn(true)
	defer tx.Abort()

	raw, err := tx.First(tableJobs, "id", id)
	if err != nil {
		return job.NewTransportError(err)
	}
	if raw == nil {
		return job.ErrPreconditionFailed
	}

	cur := raw.(*job.Job)
	if !expect.Matches(cur) {
		return job.ErrPreconditionFailed
	}

	next := *cur
	change.Apply(&next)

	if err := tx.Insert(tableJobs, &next); err != nil {
		return job.NewTransportError(err)
	}
	tx.Commit()

	return nil
}

// Get returns the job with the given id.
func (s *Store) Get(ctx context.Context, id string) (*job.Job, error) {
	tx := s.db.Txn(false)
	defer tx.Abort()

	raw, err := tx.First(tableJobs, "id", id)
	if err != nil {
		return nil, job.NewTransportError(err)
	}
	if raw == nil {
		return nil, job.ErrJobNotFound
	}

	rec := *raw.(*job.Job)
	return &rec, nil
}

// List returns all jobs matching the filter.
func (s *Store) List(ctx context.Context, filter job.Filter) ([]job.Job, error) {
	tx := s.db.Txn(false)
	defer tx.Abort()

	jobs, err := listTx(tx, filter, nil)
	if err != nil {
		return nil, job.NewTransportError(err)
	}
	return jobs, nil
}

// listTx reads the filtered job set inside tx. When ws is non-nil the
// iterator's watch channel is registered so the caller wakes on any change to
// the matched index range.
func listTx(tx *memdb.Txn, filter job.Filter, ws memdb.WatchSet) ([]job.Job, error) {
	var (
		iter memdb.ResultIterator
		err  error
	)

	switch {
	case filter.CustomerID != "":
		iter, err = tx.Get(tableJobs, "customer", filter.CustomerID)
	case filter.Status != "":
		iter, err = tx.Get(tableJobs, "status", filter.Status)
	default:
		iter, err = tx.Get(tableJobs, "id")
	}
	if err != nil {
		return nil, err
	}

	if ws != nil {
		ws.Add(iter.WatchCh())
	}

	var jobs []job.Job
	for next := iter.Next(); next != nil; next = iter.Next() {
		j := next.(*job.Job)
		if !filter.Matches(j) {
			continue
		}
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

// Subscribe opens a live query over the filter. The first snapshot is
// delivered immediately; after that one snapshot per observed change, in
// memdb commit order.
func (s *Store) Subscribe(ctx context.Context, filter job.Filter) (job.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	sub := &subscription{
		id:      ksuid.New().String(),
		updates: make(chan job.Snapshot),
		cancel:  cancel,
	}

	s.logger.Debug("Subscription opened",
		slog.String("subscription_id", sub.id),
		slog.String("filter_customer", filter.CustomerID),
		slog.String("filter_status", filter.Status),
	)

	go s.watch(ctx, sub, filter)

	return sub, nil
}

func (s *Store) watch(ctx context.Context, sub *subscription, filter job.Filter) {
	defer close(sub.updates)

	for {
		ws := memdb.NewWatchSet()

		tx := s.db.Txn(false)
		jobs, err := listTx(tx, filter, ws)
		tx.Abort()

		if err != nil {
			sub.deliver(ctx, job.Snapshot{Err: job.NewTransportError(err)})
			return
		}

		if !sub.deliver(ctx, job.Snapshot{Jobs: jobs}) {
			return
		}

		if err := ws.WatchCtx(ctx); err != nil {
			// Subscription canceled.
			s.logger.Debug("Subscription closed",
				slog.String("subscription_id", sub.id),
			)
			return
		}
	}
}

type subscription struct {
	id      string
	updates chan job.Snapshot

	closeOnce sync.Once
	cancel    context.CancelFunc
}

func (s *subscription) Updates() <-chan job.Snapshot {
	return s.updates
}

func (s *subscription) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}

// deliver sends snap unless the subscription is canceled first. It reports
// whether the delivery happened.
func (s *subscription) deliver(ctx context.Context, snap job.Snapshot) bool {
	select {
	case s.updates <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}
