package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gaurav-Gosain/cfproblem/extract"
	"github.com/Gaurav-Gosain/cfproblem/problem"
	"github.com/Gaurav-Gosain/cfproblem/store"
)

const problemPage = `<html><body>
<span class="tag-box">greedy</span><span class="tag-box">*1200</span>
<div class="problem-statement">
<div class="header"><div class="title">A. Two Sums</div>
<div class="time-limit"><div class="property-title">time limit per test</div>2 seconds</div>
<div class="memory-limit"><div class="property-title">memory limit per test</div>256 megabytes</div></div>
<div><p>Given $$$a$$$ and $$$b$$$.</p></div>
<div class="input-specification"><div class="section-title">Input</div><p>Two integers.</p></div>
<div class="output-specification"><div class="section-title">Output</div><p>One integer.</p></div>
<div class="sample-tests"><div class="sample-test">
<div class="input"><pre><div class="test-example-line">1 2</div></pre></div>
<div class="output"><pre><div class="test-example-line">3</div></pre></div>
</div></div>
</div></body></html>`

const challengePage = `<!DOCTYPE html><html><head><title>Just a moment...</title></head>
<body><script>window._cf_chl_opt={cvId: '3'};</script></body></html>`

const errorPage = `<html><body><div class="error">No such problem</div></body></html>`

const summaryBody = `{"status":"OK","result":{"contest":{"id":1234},"problems":[
{"contestId":1234,"index":"A","name":"Two Sums","type":"PROGRAMMING","rating":1200,"tags":["greedy","math"]},
{"contestId":1234,"index":"B","name":"Unrated","type":"PROGRAMMING","tags":[]}
]}}`

type remote struct {
	t      *testing.T
	mu     sync.Mutex
	hits   map[string]int
	routes map[string]func(w http.ResponseWriter, r *http.Request)
	seen   []http.Header
}

func newRemote(t *testing.T) *remote {
	return &remote{t: t, hits: map[string]int{}, routes: map[string]func(http.ResponseWriter, *http.Request){}}
}

func (rm *remote) handle(path string, status int, body string) {
	rm.routes[path] = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (rm *remote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rm.mu.Lock()
	rm.hits[r.URL.Path]++
	rm.seen = append(rm.seen, r.Header.Clone())
	h, ok := rm.routes[r.URL.Path]
	rm.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (rm *remote) count(path string) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.hits[path]
}

func (rm *remote) start() *httptest.Server {
	srv := httptest.NewServer(rm)
	rm.t.Cleanup(srv.Close)
	return srv
}

type attemptLog struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (l *attemptLog) record(a Attempt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, a)
}

func (l *attemptLog) outcomes() []Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Outcome, len(l.attempts))
	for i, a := range l.attempts {
		out[i] = a.Outcome
	}
	return out
}

func newTestOrchestrator(srv *httptest.Server, durable store.Store, log *attemptLog, opts ...Option) *Orchestrator {
	base := []Option{
		WithBaseURL(srv.URL),
		WithAPIURL(srv.URL + "/api"),
		WithAttemptHook(log.record),
	}
	return New(durable, append(base, opts...)...)
}

var id1234A = problem.ID{Contest: 1234, Index: "A"}

func TestFetchFallsBackPastChallenge(t *testing.T) {
	rm := newRemote(t)
	rm.handle("/contest/1234/problem/A", http.StatusOK, challengePage)
	rm.handle("/problemset/problem/1234/A", http.StatusOK, problemPage)
	srv := rm.start()

	mem := store.NewMemory()
	log := &attemptLog{}
	doc := newTestOrchestrator(srv, mem, log).Fetch(context.Background(), id1234A)
	require.NotNil(t, doc)

	want, err := extract.ExtractInto(problemPage, id1234A)
	require.NoError(t, err)
	assert.Equal(t, want, doc)

	assert.Equal(t, []Outcome{OutcomeBlocked, OutcomeOK}, log.outcomes())
	assert.ErrorIs(t, log.attempts[0].Err, ErrChallenge)
	assert.Equal(t, KindPage, log.attempts[0].Kind)
	assert.Zero(t, rm.count("/api/contest.standings"))

	stored, ok, err := mem.FindByID(context.Background(), "1234A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, doc, stored)
}

func TestFetchChallengeWithErrorStatusIsBlocked(t *testing.T) {
	rm := newRemote(t)
	rm.handle("/contest/1234/problem/A", http.StatusForbidden, challengePage)
	rm.handle("/problemset/problem/1234/A", http.StatusOK, problemPage)
	srv := rm.start()

	log := &attemptLog{}
	doc := newTestOrchestrator(srv, nil, log).Fetch(context.Background(), id1234A)
	require.NotNil(t, doc)
	assert.Equal(t, []Outcome{OutcomeBlocked, OutcomeOK}, log.outcomes())
	assert.Equal(t, http.StatusForbidden, log.attempts[0].Status)
}

func TestFetchContestPageFirst(t *testing.T) {
	rm := newRemote(t)
	rm.handle("/contest/1234/problem/A", http.StatusOK, problemPage)
	rm.handle("/problemset/problem/1234/A", http.StatusOK, problemPage)
	srv := rm.start()

	log := &attemptLog{}
	doc := newTestOrchestrator(srv, nil, log).Fetch(context.Background(), id1234A)
	require.NotNil(t, doc)
	assert.Equal(t, "Two Sums", doc.Name)
	assert.Equal(t, 1, rm.count("/contest/1234/problem/A"))
	assert.Zero(t, rm.count("/problemset/problem/1234/A"))
}

func TestFetchSummaryFallback(t *testing.T) {
	rm := newRemote(t)
	rm.handle("/contest/1234/problem/A", http.StatusNotFound, "gone")
	rm.handle("/problemset/problem/1234/A", http.StatusOK, errorPage)
	rm.handle("/api/contest.standings", http.StatusOK, summaryBody)
	srv := rm.start()

	mem := store.NewMemory()
	log := &attemptLog{}
	doc := newTestOrchestrator(srv, mem, log).Fetch(context.Background(), id1234A)
	require.NotNil(t, doc)

	assert.True(t, doc.IsPartial())
	assert.Equal(t, "1234A", doc.ID)
	assert.Equal(t, "Two Sums", doc.Name)
	assert.Equal(t, []string{"greedy", "math"}, doc.Tags)
	require.NotNil(t, doc.Rating)
	assert.Equal(t, 1200, *doc.Rating)

	assert.Equal(t, []Outcome{OutcomeTransport, OutcomeMismatch, OutcomeOK}, log.outcomes())
	assert.ErrorIs(t, log.attempts[0].Err, ErrUnexpectedStatus)
	assert.ErrorIs(t, log.attempts[1].Err, extract.ErrNoStatement)
	assert.Equal(t, KindSummary, log.attempts[2].Kind)

	// Partial documents never reach the durable tier.
	assert.Zero(t, mem.Len())
}

func TestFetchSummaryUnratedProblem(t *testing.T) {
	rm := newRemote(t)
	rm.handle("/api/contest.standings", http.StatusOK, summaryBody)
	srv := rm.start()

	doc := newTestOrchestrator(srv, nil, &attemptLog{}).Fetch(context.Background(), problem.ID{Contest: 1234, Index: "B"})
	require.NotNil(t, doc)
	assert.Nil(t, doc.Rating)
	assert.Equal(t, []string{}, doc.Tags)
}

func TestFetchExhausted(t *testing.T) {
	rm := newRemote(t)
	rm.handle("/api/contest.standings", http.StatusOK, summaryBody)
	srv := rm.start()

	log := &attemptLog{}
	doc := newTestOrchestrator(srv, nil, log).Fetch(context.Background(), problem.ID{Contest: 1234, Index: "Z"})
	assert.Nil(t, doc)
	assert.Equal(t, []Outcome{OutcomeTransport, OutcomeTransport, OutcomeMismatch}, log.outcomes())
	assert.ErrorIs(t, log.attempts[2].Err, ErrNotInContest)
}

func TestFetchSummaryFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		want   Outcome
	}{
		"api failed":   {http.StatusBadRequest, `{"status":"FAILED","comment":"contestId: Contest with id 1234 not found"}`, OutcomeTransport},
		"server error": {http.StatusInternalServerError, "oops", OutcomeTransport},
		"challenge":    {http.StatusServiceUnavailable, challengePage, OutcomeBlocked},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rm := newRemote(t)
			rm.handle("/api/contest.standings", tc.status, tc.body)
			srv := rm.start()

			log := &attemptLog{}
			doc := newTestOrchestrator(srv, nil, log).Fetch(context.Background(), id1234A)
			assert.Nil(t, doc)
			outcomes := log.outcomes()
			require.Len(t, outcomes, 3)
			assert.Equal(t, tc.want, outcomes[2])
		})
	}
}

func TestFetchSendsBrowserHeaders(t *testing.T) {
	rm := newRemote(t)
	rm.handle("/contest/1234/problem/A", http.StatusOK, problemPage)
	srv := rm.start()

	doc := newTestOrchestrator(srv, nil, &attemptLog{}, WithUserAgent("TestBrowser/1.0")).Fetch(context.Background(), id1234A)
	require.NotNil(t, doc)

	rm.mu.Lock()
	defer rm.mu.Unlock()
	require.NotEmpty(t, rm.seen)
	h := rm.seen[0]
	assert.Equal(t, "TestBrowser/1.0", h.Get("User-Agent"))
	assert.Equal(t, "en-US,en;q=0.9", h.Get("Accept-Language"))
	assert.Contains(t, h.Get("Accept"), "text/html")
	assert.Equal(t, "navigate", h.Get("Sec-Fetch-Mode"))
}

func TestFetchTimeoutAdvancesChain(t *testing.T) {
	rm := newRemote(t)
	rm.routes["/contest/1234/problem/A"] = func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}
	rm.handle("/problemset/problem/1234/A", http.StatusOK, problemPage)
	srv := rm.start()

	log := &attemptLog{}
	doc := newTestOrchestrator(srv, nil, log, WithTimeout(100*time.Millisecond)).Fetch(context.Background(), id1234A)
	require.NotNil(t, doc)
	assert.Equal(t, []Outcome{OutcomeTransport, OutcomeOK}, log.outcomes())
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	log := &attemptLog{}
	doc := newTestOrchestrator(srv, nil, log).Fetch(context.Background(), id1234A)
	assert.Nil(t, doc)
	for _, a := range log.attempts {
		assert.Equal(t, OutcomeTransport, a.Outcome)
		assert.Error(t, a.Err)
	}
}

func TestFetchCanceledContext(t *testing.T) {
	rm := newRemote(t)
	srv := rm.start()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := newTestOrchestrator(srv, nil, &attemptLog{}).Fetch(ctx, id1234A)
	assert.Nil(t, doc)
	assert.Zero(t, rm.count("/contest/1234/problem/A"))
}

type failingStore struct{}

func (failingStore) FindByID(context.Context, string) (*problem.Document, bool, error) {
	return nil, false, errors.New("down")
}

func (failingStore) Upsert(context.Context, string, *problem.Document) error {
	return errors.New("down")
}

func TestFetchPersistFailureIsSwallowed(t *testing.T) {
	rm := newRemote(t)
	rm.handle("/contest/1234/problem/A", http.StatusOK, problemPage)
	srv := rm.start()

	doc := newTestOrchestrator(srv, failingStore{}, &attemptLog{}).Fetch(context.Background(), id1234A)
	require.NotNil(t, doc)
	assert.Equal(t, "Two Sums", doc.Name)
}

func TestContestProblems(t *testing.T) {
	rm := newRemote(t)
	rm.handle("/api/contest.standings", http.StatusOK, summaryBody)
	srv := rm.start()

	problems, err := newTestOrchestrator(srv, nil, &attemptLog{}).ContestProblems(context.Background(), 1234)
	require.NoError(t, err)
	require.Len(t, problems, 2)
	assert.Equal(t, "A", problems[0].Index)
	assert.Equal(t, "B", problems[1].Index)
}

func TestCandidateURLs(t *testing.T) {
	o := New(nil, WithBaseURL("https://example.test/"))
	assert.Equal(t, []string{
		"https://example.test/contest/1234/problem/A",
		"https://example.test/problemset/problem/1234/A",
	}, o.CandidateURLs(id1234A))
}

func TestIsChallenge(t *testing.T) {
	assert.True(t, IsChallenge([]byte(challengePage)))
	assert.False(t, IsChallenge([]byte(problemPage)))
	assert.False(t, IsChallenge([]byte(`<script src="/cdn-cgi/challenge-platform/scripts/jsd/main.js"></script>`)))
}
