package fetch

import (
	"bytes"
	"errors"
	"time"

	"github.com/Gaurav-Gosain/cfproblem/problem"
)

var (
	// ErrChallenge marks a response that is a bot-challenge interstitial.
	ErrChallenge = errors.New("bot challenge page")
	// ErrUnexpectedStatus marks a non-200 response without challenge markers.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrNotInContest is reported when the summary endpoint does not list the index.
	ErrNotInContest = errors.New("problem not listed in contest summary")
)

// Kind tells which endpoint an attempt went to.
type Kind string

const (
	KindPage    Kind = "page"
	KindSummary Kind = "summary"
)

// Outcome classifies a single attempt.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeTransport Outcome = "transport"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeMismatch  Outcome = "mismatch"
)

// Attempt is reported once per endpoint tried.
type Attempt struct {
	ID      problem.ID
	URL     string
	Kind    Kind
	Outcome Outcome
	Status  int
	Err     error
	Elapsed time.Duration
}

var challengeMarkers = [][]byte{
	[]byte("Just a moment..."),
	[]byte("cf-browser-verification"),
	[]byte("Checking your browser"),
	[]byte("cf_chl_opt"),
	[]byte("Attention Required! | Cloudflare"),
}

// IsChallenge reports whether body looks like an anti-bot interstitial.
// Normal pages also load scripts from /cdn-cgi/challenge-platform, so that
// path is not a marker on its own.
func IsChallenge(body []byte) bool {
	for _, m := range challengeMarkers {
		if bytes.Contains(body, m) {
			return true
		}
	}
	return false
}
