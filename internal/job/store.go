package job

import "context"

// Expectation is a field-equality predicate over a job's current state. Zero
// fields are not checked. A ConditionalUpdate succeeds only if every set
// field matches the stored record at the moment of the write.
type Expectation struct {
	Status        string
	WorkerID      string
	CustomerID    string
	CompletionOTP string
}

// Matches reports whether j satisfies the expectation.
func (e Expectation) Matches(j *Job) bool {
	if e.Status != "" && j.Status != e.Status {
		return false
	}
	if e.WorkerID != "" && j.WorkerID != e.WorkerID {
		return false
	}
	if e.CustomerID != "" && j.CustomerID != e.CustomerID {
		return false
	}
	if e.CompletionOTP != "" && j.CompletionOTP != e.CompletionOTP {
		return false
	}
	return true
}

// Change holds the new field values applied by a ConditionalUpdate. Status is
// always set. WorkerID is bound when non-empty; it is never rewritten once
// set. CompletionOTP is untouched when nil, cleared when it points at the
// empty string.
type Change struct {
	Status        string
	WorkerID      string
	CompletionOTP *string
}

// Apply writes the change onto j.
func (c Change) Apply(j *Job) {
	j.Status = c.Status
	if c.WorkerID != "" {
		j.WorkerID = c.WorkerID
	}
	if c.CompletionOTP != nil {
		j.CompletionOTP = *c.CompletionOTP
	}
}

// Filter selects jobs by field equality. Zero fields match everything.
type Filter struct {
	CustomerID string
	Status     string
}

// Matches reports whether j is selected by the filter.
func (f Filter) Matches(j *Job) bool {
	if f.CustomerID != "" && j.CustomerID != f.CustomerID {
		return false
	}
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	return true
}

// Snapshot is one delivery on a subscription: the full filtered job set at a
// point in the store's change sequence, or a terminal subscription error.
// After a delivery with a non-nil Err no further snapshots arrive.
type Snapshot struct {
	Jobs []Job
	Err  error
}

// Subscription is a live query over the job collection. Snapshots are
// delivered in increasing order of the store's change sequence. Close cancels
// the subscription; it takes effect no later than the next would-be delivery,
// after which the updates channel is closed.
type Subscription interface {
	Updates() <-chan Snapshot
	Close() error
}

// Store is the durable owner of job records. All cross-actor coordination
// goes through ConditionalUpdate, which must be atomic: exactly one writer
// wins each transition and every loser receives ErrPreconditionFailed.
type Store interface {
	Insert(ctx context.Context, j *Job) (string, error)
	ConditionalUpdate(ctx context.Context, id string, expect Expectation, change Change) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, filter Filter) ([]Job, error)
	Subscribe(ctx context.Context, filter Filter) (Subscription, error)
}
