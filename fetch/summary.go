package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Gaurav-Gosain/cfproblem/problem"
)

// Summary is one problem row from the contest standings endpoint.
type Summary struct {
	ContestID int      `json:"contestId"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Tags      []string `json:"tags"`
	Rating    *int     `json:"rating,omitempty"`
}

// Document builds the partial document for the summary row.
func (s Summary) Document(id problem.ID) *problem.Document {
	tags := make([]string, 0, len(s.Tags))
	tags = append(tags, s.Tags...)
	doc := &problem.Document{
		ID:              id.Key(),
		Name:            s.Name,
		SampleTestCases: []problem.TestCase{},
		Tags:            tags,
	}
	if s.Rating != nil {
		doc.Rating = problem.IntPtr(*s.Rating)
	}
	return doc
}

type standingsResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Result  struct {
		Problems []Summary `json:"problems"`
	} `json:"result"`
}

func (o *Orchestrator) summaryURL(contest int) string {
	return fmt.Sprintf("%s/contest.standings?contestId=%d&from=1&count=1", o.apiURL, contest)
}

// ContestProblems lists the problems of a contest from the summary endpoint.
func (o *Orchestrator) ContestProblems(ctx context.Context, contest int) ([]Summary, error) {
	problems, _, err := o.contestProblems(ctx, contest)
	return problems, err
}

func (o *Orchestrator) contestProblems(ctx context.Context, contest int) ([]Summary, int, error) {
	u := o.summaryURL(contest)
	status, body, err := o.get(ctx, u, "application/json")
	if len(body) > 0 && IsChallenge(body) {
		return nil, status, fmt.Errorf("summary %d: %w", contest, ErrChallenge)
	}
	if err != nil {
		return nil, status, err
	}

	var resp standingsResponse
	if jerr := json.Unmarshal(body, &resp); jerr != nil {
		if status != http.StatusOK {
			return nil, status, fmt.Errorf("summary %d: %w: %d", contest, ErrUnexpectedStatus, status)
		}
		return nil, status, fmt.Errorf("summary %d: decode: %w", contest, jerr)
	}
	if resp.Status != "OK" {
		return nil, status, fmt.Errorf("summary %d: api status %q: %s", contest, resp.Status, resp.Comment)
	}
	return resp.Result.Problems, status, nil
}
