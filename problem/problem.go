package problem

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidID is returned when a string cannot be parsed as a problem id.
var ErrInvalidID = errors.New("invalid problem id")

// ID identifies a problem by contest and index, e.g. contest 1234 index "A".
type ID struct {
	Contest int
	Index   string
}

// Key returns the storage key for the problem ("1234A").
func (id ID) Key() string {
	return strconv.Itoa(id.Contest) + id.Index
}

func (id ID) String() string {
	return id.Key()
}

var (
	keyPattern  = regexp.MustCompile(`^(\d+)\s*/?\s*([A-Za-z][0-9]?)$`)
	pathPattern = regexp.MustCompile(`/(?:contest|gym)/(\d+)/problem/([A-Za-z][0-9]?)/?$|/problemset/problem/(\d+)/([A-Za-z][0-9]?)/?$`)
)

// ParseID accepts "1234A", "1234b1", "1234/A" and the contest or problemset
// URL shapes of a problem page.
func ParseID(raw string) (ID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ID{}, fmt.Errorf("%w: empty", ErrInvalidID)
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ID{}, fmt.Errorf("%w: %q: %v", ErrInvalidID, raw, err)
		}
		m := pathPattern.FindStringSubmatch(u.Path)
		if m == nil {
			return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, raw)
		}
		if m[1] != "" {
			return newID(m[1], m[2])
		}
		return newID(m[3], m[4])
	}

	m := keyPattern.FindStringSubmatch(s)
	if m == nil {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, raw)
	}
	return newID(m[1], m[2])
}

func newID(contest, index string) (ID, error) {
	n, err := strconv.Atoi(contest)
	if err != nil || n <= 0 {
		return ID{}, fmt.Errorf("%w: contest %q", ErrInvalidID, contest)
	}
	return ID{Contest: n, Index: strings.ToUpper(index)}, nil
}

// TestCase is one official sample. Either side may be empty.
type TestCase struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Document is a problem statement. Free-text fields hold the source markup
// verbatim, math included; they are normalized only when displayed.
type Document struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	TimeLimit           string     `json:"timeLimit"`
	MemoryLimit         string     `json:"memoryLimit"`
	Description         string     `json:"description"`
	InputSpecification  string     `json:"inputSpecification"`
	OutputSpecification string     `json:"outputSpecification"`
	Note                string     `json:"note"`
	SampleTestCases     []TestCase `json:"sampleTestCases"`
	Tags                []string   `json:"tags"`
	Rating              *int       `json:"rating,omitempty"`
}

// IsPartial reports whether the document came from the summary fallback and
// carries metadata only.
func (d *Document) IsPartial() bool {
	return d.Description == "" &&
		d.InputSpecification == "" &&
		d.OutputSpecification == "" &&
		d.Note == "" &&
		len(d.SampleTestCases) == 0
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.SampleTestCases != nil {
		c.SampleTestCases = append([]TestCase(nil), d.SampleTestCases...)
	}
	if d.Tags != nil {
		c.Tags = append([]string(nil), d.Tags...)
	}
	if d.Rating != nil {
		r := *d.Rating
		c.Rating = &r
	}
	return &c
}

// Entry is a cached lookup result. A nil Doc records a confirmed failure.
type Entry struct {
	Doc      *Document
	StoredAt time.Time
}

// Fresh reports whether the entry is younger than ttl at now.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) < ttl
}

// IntPtr is a helper for building ratings.
func IntPtr(v int) *int {
	return &v
}
