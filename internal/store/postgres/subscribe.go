package postgres

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/servicenow/marketplace-be/internal/job"
)

// Subscribe opens a live query over the filter. The first snapshot is
// delivered immediately; after that the filtered set is re-queried whenever
// the change feed announces a mutation, and on a poll interval as a backstop.
// Re-querying on every wake keeps snapshots monotonic in database commit
// order.
func (s *Store) Subscribe(ctx context.Context, filter job.Filter) (job.Subscription, error) {
	feed, err := s.feed.Subscribe()
	if err != nil {
		return nil, job.NewTransportError(err)
	}

	ctx, cancel := context.WithCancel(ctx)

	sub := &subscription{
		updates: make(chan job.Snapshot),
		cancel:  cancel,
		closed:  make(chan struct{}),
	}

	go func() {
		defer close(sub.closed)
		defer close(sub.updates)
		defer feed.Close()

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		var last []job.Job
		first := true

		requery := func() bool {
			jobs, err := s.List(ctx, filter)
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				sub.deliver(ctx, job.Snapshot{Err: err})
				return false
			}

			if !first && reflect.DeepEqual(jobs, last) {
				// Event for a job outside the filter.
				return true
			}
			first = false
			last = jobs

			return sub.deliver(ctx, job.Snapshot{Jobs: jobs})
		}

		if !requery() {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return

			case _, ok := <-feed.Deliveries():
				if !ok {
					s.logger.Warn("Change feed dropped")
					sub.deliver(ctx, job.Snapshot{Err: job.NewTransportError(errFeedClosed)})
					return
				}
				if !requery() {
					return
				}

			case <-ticker.C:
				if !requery() {
					return
				}
			}
		}
	}()

	return sub, nil
}

var errFeedClosed = &feedClosedError{}

type feedClosedError struct{}

func (*feedClosedError) Error() string { return "change feed closed" }

type subscription struct {
	updates chan job.Snapshot

	closeOnce sync.Once
	cancel    context.CancelFunc
	closed    chan struct{}
}

func (s *subscription) Updates() <-chan job.Snapshot {
	return s.updates
}

func (s *subscription) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}

func (s *subscription) deliver(ctx context.Context, snap job.Snapshot) bool {
	select {
	case s.updates <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}
