// Package harvest acquires many problems at once, expanding contests into
// their problem lists and retrying degraded results.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/Gaurav-Gosain/cfproblem/fetch"
	"github.com/Gaurav-Gosain/cfproblem/problem"
)

var (
	// ErrNoDocument is recorded when every attempt came back empty.
	ErrNoDocument = errors.New("no document")
	// ErrPartial is recorded when only summary metadata could be obtained.
	ErrPartial = errors.New("partial document")
	// ErrNoLister is returned when contests are requested without a Lister.
	ErrNoLister = errors.New("contest expansion needs a lister")
)

const (
	DefaultParallelism  = 4
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 10 * time.Second
)

// Acquirer is the cache-facing read used for every problem.
type Acquirer interface {
	Get(ctx context.Context, id problem.ID, forceRefresh bool) *problem.Document
}

// Lister lists the problems of a contest.
type Lister interface {
	ContestProblems(ctx context.Context, contest int) ([]fetch.Summary, error)
}

// EventType names a progress event.
type EventType string

const (
	EventFetching EventType = "fetching"
	EventRetry    EventType = "retry"
	EventDone     EventType = "done"
	EventPartial  EventType = "partial"
	EventError    EventType = "error"
)

// Event is emitted during a harvest for progress tracking.
type Event struct {
	Type    EventType
	ID      problem.ID
	Attempt int
	Delay   time.Duration // only for retry events
	Err     error
}

// Options configures a harvest.
type Options struct {
	IDs          []problem.ID
	Contests     []int
	Lister       Lister // required when Contests is set
	Parallelism  int
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	OnEvent      func(Event) // optional progress callback
}

func (o *Options) emit(e Event) {
	if o.OnEvent != nil {
		o.OnEvent(e)
	}
}

func (o *Options) defaults() {
	if o.Parallelism <= 0 {
		o.Parallelism = DefaultParallelism
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.MaxDelay < o.InitialDelay {
		o.MaxDelay = max(DefaultMaxDelay, o.InitialDelay)
	}
}

// Run acquires every requested problem and returns one result per problem.
// Failures are reported in the results, not as an error; the error is only
// set when the harvest could not start or ctx ended it.
func Run(ctx context.Context, acq Acquirer, opts Options) ([]Result, error) {
	opts.defaults()
	if len(opts.Contests) > 0 && opts.Lister == nil {
		return nil, ErrNoLister
	}

	store := NewResultStore()
	ids := expand(ctx, store, &opts)

	g := new(errgroup.Group)
	g.SetLimit(opts.Parallelism)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			store.Add(acquire(ctx, acq, id, &opts))
			return nil
		})
	}
	_ = g.Wait()

	return store.Results(), ctx.Err()
}

// expand merges the explicit ids with the problems of every contest,
// dropping duplicates. A contest that cannot be listed is recorded as a
// failed result under its bare contest id.
func expand(ctx context.Context, store *ResultStore, opts *Options) []problem.ID {
	seen := make(map[string]bool)
	var ids []problem.ID
	add := func(id problem.ID) {
		if !seen[id.Key()] {
			seen[id.Key()] = true
			ids = append(ids, id)
		}
	}

	for _, id := range opts.IDs {
		add(id)
	}
	for _, contest := range opts.Contests {
		summaries, err := opts.Lister.ContestProblems(ctx, contest)
		if err != nil {
			err = fmt.Errorf("list contest %d: %w", contest, err)
			store.Add(Result{ID: problem.ID{Contest: contest}, Err: err})
			opts.emit(Event{Type: EventError, ID: problem.ID{Contest: contest}, Err: err})
			continue
		}
		for _, s := range summaries {
			add(problem.ID{Contest: contest, Index: s.Index})
		}
	}
	return ids
}

// acquire reads one problem through the cache, retrying with a forced
// refresh while the result is missing or partial.
func acquire(ctx context.Context, acq Acquirer, id problem.ID, opts *Options) Result {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.InitialDelay
	b.MaxInterval = opts.MaxDelay
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(opts.MaxAttempts-1)), ctx)

	res := Result{ID: id}
	op := func() error {
		res.Attempts++
		opts.emit(Event{Type: EventFetching, ID: id, Attempt: res.Attempts})
		doc := acq.Get(ctx, id, res.Attempts > 1)
		if doc != nil && (res.Doc == nil || !doc.IsPartial()) {
			res.Doc = doc
		}
		switch {
		case doc == nil:
			return ErrNoDocument
		case doc.IsPartial():
			return ErrPartial
		}
		return nil
	}
	notify := func(err error, d time.Duration) {
		opts.emit(Event{Type: EventRetry, ID: id, Attempt: res.Attempts, Delay: d, Err: err})
	}

	res.Err = backoff.RetryNotify(op, policy, notify)
	switch {
	case res.Err == nil:
		opts.emit(Event{Type: EventDone, ID: id, Attempt: res.Attempts})
	case res.Partial():
		res.Err = ErrPartial
		opts.emit(Event{Type: EventPartial, ID: id, Attempt: res.Attempts, Err: res.Err})
	default:
		opts.emit(Event{Type: EventError, ID: id, Attempt: res.Attempts, Err: res.Err})
	}
	return res
}
