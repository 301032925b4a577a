package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"charm.land/log/v2"
	"github.com/gocolly/colly/v2"

	"github.com/Gaurav-Gosain/cfproblem/extract"
	"github.com/Gaurav-Gosain/cfproblem/problem"
	"github.com/Gaurav-Gosain/cfproblem/store"
)

const (
	DefaultBaseURL   = "https://codeforces.com"
	DefaultAPIURL    = "https://codeforces.com/api"
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// browserHeaders accompany every request; requests without them are served
// challenge pages far more often.
var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Cache-Control":             "no-cache",
	"Pragma":                    "no-cache",
	"Sec-Ch-Ua":                 `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
	"Sec-Ch-Ua-Mobile":          "?0",
	"Sec-Ch-Ua-Platform":        `"Windows"`,
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Upgrade-Insecure-Requests": "1",
}

// Orchestrator walks the fallback chain for one problem: contest page,
// problemset page, then the contest summary API.
type Orchestrator struct {
	baseURL   string
	apiURL    string
	timeout   time.Duration
	userAgent string
	store     store.Store
	logger    *log.Logger
	onAttempt func(Attempt)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithBaseURL(u string) Option {
	return func(o *Orchestrator) { o.baseURL = strings.TrimRight(u, "/") }
}

func WithAPIURL(u string) Option {
	return func(o *Orchestrator) { o.apiURL = strings.TrimRight(u, "/") }
}

func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(o *Orchestrator) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAttemptHook registers a callback invoked after every classified attempt.
func WithAttemptHook(fn func(Attempt)) Option {
	return func(o *Orchestrator) { o.onAttempt = fn }
}

// New builds an Orchestrator. durable may be nil, in which case full
// extractions are not persisted.
func New(durable store.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		baseURL:   DefaultBaseURL,
		apiURL:    DefaultAPIURL,
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		store:     durable,
		logger:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) emit(a Attempt) {
	if o.onAttempt != nil {
		o.onAttempt(a)
	}
}

// CandidateURLs lists the page URLs tried for id, in order.
func (o *Orchestrator) CandidateURLs(id problem.ID) []string {
	return []string{
		fmt.Sprintf("%s/contest/%d/problem/%s", o.baseURL, id.Contest, id.Index),
		fmt.Sprintf("%s/problemset/problem/%d/%s", o.baseURL, id.Contest, id.Index),
	}
}

// Fetch returns a full document, a partial one from the summary API, or nil.
// It never returns an error; every failure is logged and reported through
// the attempt hook.
func (o *Orchestrator) Fetch(ctx context.Context, id problem.ID) *problem.Document {
	for _, u := range o.CandidateURLs(id) {
		if ctx.Err() != nil {
			return nil
		}
		if doc := o.tryPage(ctx, id, u); doc != nil {
			o.persist(ctx, doc)
			return doc
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	return o.trySummary(ctx, id)
}

func (o *Orchestrator) tryPage(ctx context.Context, id problem.ID, u string) *problem.Document {
	start := time.Now()
	status, body, err := o.get(ctx, u, browserHeaders["Accept"])
	a := Attempt{ID: id, URL: u, Kind: KindPage, Status: status}

	switch {
	case len(body) > 0 && IsChallenge(body):
		a.Outcome, a.Err = OutcomeBlocked, ErrChallenge
		o.logger.Warn("Blocked by challenge page", "id", id, "url", u, "status", status)
	case err != nil:
		a.Outcome, a.Err = OutcomeTransport, err
		o.logger.Info("Fetch failed", "id", id, "url", u, "err", err)
	case status != http.StatusOK:
		a.Outcome, a.Err = OutcomeTransport, fmt.Errorf("%w: %d", ErrUnexpectedStatus, status)
		o.logger.Info("Fetch failed", "id", id, "url", u, "status", status)
	}
	if a.Outcome != "" {
		a.Elapsed = time.Since(start)
		o.emit(a)
		return nil
	}

	doc, err := extract.ExtractInto(string(body), id)
	a.Elapsed = time.Since(start)
	if err != nil {
		a.Outcome, a.Err = OutcomeMismatch, err
		o.logger.Info("Not a problem page", "id", id, "url", u, "err", err)
		o.emit(a)
		return nil
	}

	a.Outcome = OutcomeOK
	o.logger.Debug("Fetched", "id", id, "url", u, "elapsed", a.Elapsed)
	o.emit(a)
	return doc
}

func (o *Orchestrator) trySummary(ctx context.Context, id problem.ID) *problem.Document {
	start := time.Now()
	a := Attempt{ID: id, URL: o.summaryURL(id.Contest), Kind: KindSummary}

	problems, status, err := o.contestProblems(ctx, id.Contest)
	a.Status = status
	if err != nil {
		a.Outcome, a.Err = OutcomeTransport, err
		if errors.Is(err, ErrChallenge) {
			a.Outcome = OutcomeBlocked
			o.logger.Warn("Summary blocked by challenge page", "id", id, "url", a.URL)
		} else {
			o.logger.Info("Summary fallback failed", "id", id, "err", err)
		}
		a.Elapsed = time.Since(start)
		o.emit(a)
		return nil
	}

	a.Elapsed = time.Since(start)
	for _, p := range problems {
		if !strings.EqualFold(p.Index, id.Index) {
			continue
		}
		a.Outcome = OutcomeOK
		o.emit(a)
		o.logger.Info("Using partial document from summary", "id", id)
		return p.Document(id)
	}

	a.Outcome, a.Err = OutcomeMismatch, ErrNotInContest
	o.logger.Info("Problem missing from summary", "id", id)
	o.emit(a)
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, doc *problem.Document) {
	if o.store == nil {
		return
	}
	if err := o.store.Upsert(ctx, doc.ID, doc); err != nil {
		o.logger.Error("Persist failed", "id", doc.ID, "err", err)
	}
}

// get performs a single GET with the browser header set. The body is
// returned for non-200 responses as well so challenge pages can be spotted.
func (o *Orchestrator) get(ctx context.Context, u, accept string) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	c := colly.NewCollector(
		colly.UserAgent(o.userAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.StdlibContext(reqCtx),
	)
	c.SetRequestTimeout(o.timeout)

	c.OnRequest(func(r *colly.Request) {
		for k, v := range browserHeaders {
			r.Headers.Set(k, v)
		}
		r.Headers.Set("Accept", accept)
	})

	var (
		status int
		body   []byte
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
			body = r.Body
		}
	})

	if err := c.Visit(u); err != nil {
		return status, body, fmt.Errorf("get %s: %w", u, err)
	}
	return status, body, nil
}
