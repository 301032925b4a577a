package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gaurav-Gosain/cfproblem/problem"
	"github.com/Gaurav-Gosain/cfproblem/store"
)

var id1A = problem.ID{Contest: 1, Index: "A"}

// fakeFetcher counts calls and optionally blocks until released.
type fakeFetcher struct {
	calls   atomic.Int32
	release chan struct{}
	doc     *problem.Document
	panics  bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, id problem.ID) *problem.Document {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.panics {
		panic("boom")
	}
	return f.doc
}

// countingStore wraps a Memory store and counts calls.
type countingStore struct {
	*store.Memory
	finds   atomic.Int32
	upserts atomic.Int32
	err     error
}

func (c *countingStore) FindByID(ctx context.Context, key string) (*problem.Document, bool, error) {
	c.finds.Add(1)
	if c.err != nil {
		return nil, false, c.err
	}
	return c.Memory.FindByID(ctx, key)
}

func (c *countingStore) Upsert(ctx context.Context, key string, doc *problem.Document) error {
	c.upserts.Add(1)
	return c.Memory.Upsert(ctx, key, doc)
}

func newCountingStore() *countingStore {
	return &countingStore{Memory: store.NewMemory()}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func watermelon() *problem.Document {
	return &problem.Document{ID: "1A", Name: "Theatre Square", Description: "<p>x</p>"}
}

func TestSingleFlight(t *testing.T) {
	for name, doc := range map[string]*problem.Document{"document": watermelon(), "nil": nil} {
		t.Run(name, func(t *testing.T) {
			f := &fakeFetcher{release: make(chan struct{}), doc: doc}
			svc := New(f, newCountingStore())

			const n = 16
			results := make([]*problem.Document, n)
			var started, done sync.WaitGroup
			for i := range n {
				started.Add(1)
				done.Add(1)
				go func() {
					defer done.Done()
					started.Done()
					results[i] = svc.Get(context.Background(), id1A, false)
				}()
			}
			started.Wait()
			// Give every goroutine time to join the flight before it settles.
			require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
			time.Sleep(20 * time.Millisecond)
			close(f.release)
			done.Wait()

			assert.EqualValues(t, 1, f.calls.Load())
			for _, r := range results {
				assert.Same(t, results[0], r)
			}
			if doc != nil {
				assert.Same(t, doc, results[0])
			} else {
				assert.Nil(t, results[0])
			}
		})
	}
}

func TestMemoryHitSkipsEverything(t *testing.T) {
	f := &fakeFetcher{doc: watermelon()}
	durable := newCountingStore()
	svc := New(f, durable)

	first := svc.Get(context.Background(), id1A, false)
	require.NotNil(t, first)
	finds := durable.finds.Load()

	second := svc.Get(context.Background(), id1A, false)
	assert.Same(t, first, second)
	assert.EqualValues(t, 1, f.calls.Load())
	assert.Equal(t, finds, durable.finds.Load())
	assert.Zero(t, durable.upserts.Load())
}

func TestForceRefreshBypassesFreshEntry(t *testing.T) {
	f := &fakeFetcher{doc: watermelon()}
	durable := newCountingStore()
	require.NoError(t, durable.Memory.Upsert(context.Background(), "1A", watermelon()))
	svc := New(f, durable)

	require.NotNil(t, svc.Get(context.Background(), id1A, false))
	assert.Zero(t, f.calls.Load())

	require.NotNil(t, svc.Get(context.Background(), id1A, true))
	assert.EqualValues(t, 1, f.calls.Load())

	// Durable tier is not consulted on a forced refresh.
	assert.EqualValues(t, 1, durable.finds.Load())
}

func TestDurableHitIsPromoted(t *testing.T) {
	f := &fakeFetcher{}
	durable := newCountingStore()
	require.NoError(t, durable.Memory.Upsert(context.Background(), "1A", watermelon()))

	var lookups []Lookup
	svc := New(f, durable, WithLookupHook(func(l Lookup) { lookups = append(lookups, l) }))

	doc := svc.Get(context.Background(), id1A, false)
	require.NotNil(t, doc)
	assert.Equal(t, "Theatre Square", doc.Name)
	assert.Equal(t, 1, svc.Len())

	again := svc.Get(context.Background(), id1A, false)
	assert.Same(t, doc, again)
	assert.EqualValues(t, 1, durable.finds.Load())
	assert.Zero(t, f.calls.Load())

	require.Len(t, lookups, 2)
	assert.Equal(t, TierDurable, lookups[0].Tier)
	assert.Equal(t, TierMemory, lookups[1].Tier)
}

func TestDurableHasNoTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	f := &fakeFetcher{}
	durable := newCountingStore()
	require.NoError(t, durable.Memory.Upsert(context.Background(), "1A", watermelon()))
	svc := New(f, durable, WithClock(clock.Now), WithTTL(time.Minute))

	require.NotNil(t, svc.Get(context.Background(), id1A, false))
	clock.Advance(24 * time.Hour)
	require.NotNil(t, svc.Get(context.Background(), id1A, false))
	assert.Zero(t, f.calls.Load())
	assert.EqualValues(t, 2, durable.finds.Load())
}

func TestNilIsCachedUntilTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	f := &fakeFetcher{}
	svc := New(f, nil, WithClock(clock.Now))

	assert.Nil(t, svc.Get(context.Background(), id1A, false))
	assert.Nil(t, svc.Get(context.Background(), id1A, false))
	assert.EqualValues(t, 1, f.calls.Load())

	clock.Advance(DefaultTTL - time.Second)
	assert.Nil(t, svc.Get(context.Background(), id1A, false))
	assert.EqualValues(t, 1, f.calls.Load())

	clock.Advance(2 * time.Second)
	f.doc = watermelon()
	assert.NotNil(t, svc.Get(context.Background(), id1A, false))
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestDurableErrorFallsThroughToFetch(t *testing.T) {
	f := &fakeFetcher{doc: watermelon()}
	durable := newCountingStore()
	durable.err = errors.New("redis down")
	svc := New(f, durable)

	assert.NotNil(t, svc.Get(context.Background(), id1A, false))
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestFetcherPanicBecomesCachedNil(t *testing.T) {
	f := &fakeFetcher{panics: true}
	svc := New(f, nil)

	assert.Nil(t, svc.Get(context.Background(), id1A, false))

	// The key is not stuck: a forced refresh starts a new flight.
	f.panics = false
	f.doc = watermelon()
	assert.NotNil(t, svc.Get(context.Background(), id1A, true))
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestCallerCancelDoesNotCancelFetch(t *testing.T) {
	f := &fakeFetcher{release: make(chan struct{}), doc: watermelon()}
	svc := New(f, nil)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan *problem.Document, 1)
	go func() { got <- svc.Get(ctx, id1A, false) }()

	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.Nil(t, <-got)

	close(f.release)
	require.Eventually(t, func() bool { return svc.Len() == 1 }, time.Second, time.Millisecond)

	doc := svc.Get(context.Background(), id1A, false)
	require.NotNil(t, doc)
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestEvict(t *testing.T) {
	f := &fakeFetcher{doc: watermelon()}
	svc := New(f, nil)

	svc.Get(context.Background(), id1A, false)
	assert.Equal(t, 1, svc.Len())
	svc.Evict(id1A)
	assert.Zero(t, svc.Len())
}

// stallingStore holds its first FindByID until gate is closed.
type stallingStore struct {
	*store.Memory
	calls   atomic.Int32
	entered chan struct{}
	gate    chan struct{}
}

func (s *stallingStore) FindByID(ctx context.Context, key string) (*problem.Document, bool, error) {
	if s.calls.Add(1) == 1 {
		close(s.entered)
		<-s.gate
	}
	return s.Memory.FindByID(ctx, key)
}

func TestSlowDurableMissJoinsSettledFetch(t *testing.T) {
	f := &fakeFetcher{doc: watermelon()}
	durable := &stallingStore{Memory: store.NewMemory(), entered: make(chan struct{}), gate: make(chan struct{})}
	var lookups []Lookup
	var mu sync.Mutex
	svc := New(f, durable, WithLookupHook(func(l Lookup) {
		mu.Lock()
		defer mu.Unlock()
		lookups = append(lookups, l)
	}))

	slow := make(chan *problem.Document, 1)
	go func() { slow <- svc.Get(context.Background(), id1A, false) }()
	<-durable.entered

	first := svc.Get(context.Background(), id1A, false)
	require.NotNil(t, first)
	close(durable.gate)
	second := <-slow

	assert.EqualValues(t, 1, f.calls.Load())
	assert.Same(t, first, second)
	require.Len(t, lookups, 2)
	assert.Equal(t, TierRemote, lookups[0].Tier)
	assert.Equal(t, TierMemory, lookups[1].Tier)
	assert.True(t, lookups[1].Found)
}
