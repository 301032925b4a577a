package cache

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"charm.land/log/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Gaurav-Gosain/cfproblem/problem"
	"github.com/Gaurav-Gosain/cfproblem/store"
)

// DefaultTTL bounds how long the memory tier trusts an entry, nil included.
const DefaultTTL = 5 * time.Minute

// Fetcher produces a document for id, or nil when every source failed.
type Fetcher interface {
	Fetch(ctx context.Context, id problem.ID) *problem.Document
}

// Tier names where a lookup was answered.
type Tier string

const (
	TierMemory  Tier = "memory"
	TierDurable Tier = "durable"
	TierRemote  Tier = "remote"
)

// Lookup describes how one Get call was served.
type Lookup struct {
	Key     string
	Tier    Tier
	Found   bool // false for a cached or fetched nil
	Shared  bool // joined an in-flight fetch started by another caller
	Refresh bool
}

// Service is the two-tier cache in front of a Fetcher. It owns the memory
// tier and the in-flight fetch table; nothing else touches them.
type Service struct {
	fetcher Fetcher
	durable store.Store
	ttl     time.Duration
	now     func() time.Time
	logger  *log.Logger
	onGet   func(Lookup)

	mu      sync.Mutex
	entries map[string]problem.Entry
	flights singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLookupHook registers a callback run once per Get.
func WithLookupHook(fn func(Lookup)) Option {
	return func(s *Service) { s.onGet = fn }
}

// New builds a Service. durable may be nil to run with the memory tier only.
func New(fetcher Fetcher, durable store.Store, opts ...Option) *Service {
	s := &Service{
		fetcher: fetcher,
		durable: durable,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  log.New(io.Discard),
		entries: make(map[string]problem.Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the document for id, consulting the memory tier, then the
// durable tier, then a single shared remote fetch. It never fails: a nil
// result means no document is available right now.
func (s *Service) Get(ctx context.Context, id problem.ID, forceRefresh bool) *problem.Document {
	key := id.Key()
	lookup := Lookup{Key: key, Refresh: forceRefresh}

	if forceRefresh {
		s.Evict(id)
	} else if e, ok := s.fresh(key); ok {
		lookup.Tier, lookup.Found = TierMemory, e.Doc != nil
		s.report(lookup)
		return e.Doc
	}

	if !forceRefresh && s.durable != nil {
		doc, ok, err := s.durable.FindByID(ctx, key)
		switch {
		case err != nil:
			s.logger.Warn("Durable lookup failed", "id", key, "err", err)
		case ok:
			s.put(key, doc)
			lookup.Tier, lookup.Found = TierDurable, true
			s.report(lookup)
			return doc
		}
	}

	ch := s.flights.DoChan(key, func() (any, error) {
		// A flight that settled while this caller was in the durable tier
		// has already filled memory.
		if !forceRefresh {
			if e, ok := s.fresh(key); ok {
				return flight{doc: e.Doc, cached: true}, nil
			}
		}
		return flight{doc: s.fetch(context.WithoutCancel(ctx), id)}, nil
	})

	select {
	case res := <-ch:
		f, _ := res.Val.(flight)
		lookup.Tier, lookup.Found, lookup.Shared = TierRemote, f.doc != nil, res.Shared
		if f.cached {
			lookup.Tier = TierMemory
		}
		s.report(lookup)
		return f.doc
	case <-ctx.Done():
		s.logger.Debug("Caller gave up waiting", "id", key, "err", ctx.Err())
		return nil
	}
}

type flight struct {
	doc    *problem.Document
	cached bool
}

// fetch runs inside the flight. The memory entry is written before the
// flight settles so later callers never miss both.
func (s *Service) fetch(ctx context.Context, id problem.ID) (doc *problem.Document) {
	key := id.Key()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Fetcher panicked", "id", key, "panic", fmt.Sprint(r))
			doc = nil
		}
		s.put(key, doc)
	}()
	doc = s.fetcher.Fetch(ctx, id)
	if doc == nil {
		s.logger.Warn("No document available", "id", key)
	}
	return doc
}

func (s *Service) fresh(key string) (problem.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !e.Fresh(s.now(), s.ttl) {
		return problem.Entry{}, false
	}
	return e, true
}

func (s *Service) put(key string, doc *problem.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = problem.Entry{Doc: doc, StoredAt: s.now()}
}

// Evict drops the memory entry for id. The durable tier is untouched.
func (s *Service) Evict(id problem.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id.Key())
}

// Len is the number of memory entries, expired ones included.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Service) report(l Lookup) {
	if s.onGet != nil {
		s.onGet(l)
	}
}
