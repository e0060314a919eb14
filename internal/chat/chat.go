// Package chat answers free-text questions with matching reports and competitions.
package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/DanielBronsky/cnpf-feeder/internal/models"
)

const MaxResults = 10

const (
	TypeReport      = "report"
	TypeCompetition = "competition"
)

var (
	reportWords      = []string{"report", "отчет", "отчёт"}
	competitionWords = []string{"competition", "соревн", "турнир"}
)

type Result struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	HasPhotos   bool   `json:"hasPhotos"`
	PhotosCount int    `json:"photosCount"`
	Location    string `json:"location,omitempty"`
}

type Reply struct {
	Message string   `json:"message"`
	Results []Result `json:"results"`
}

// Searcher is the part of the store the assistant reads.
type Searcher interface {
	ListReports(ctx context.Context, limit int) ([]models.Report, error)
	ListCompetitions(ctx context.Context) ([]models.Competition, error)
	SearchReports(ctx context.Context, words []string, limit int) ([]models.Report, error)
	SearchCompetitions(ctx context.Context, words []string, limit int) ([]models.Competition, error)
}

type Assistant struct {
	store Searcher
}

func New(s Searcher) *Assistant {
	return &Assistant{store: s}
}

// query is a parsed question.
type query struct {
	words        []string
	reports      bool
	competitions bool
	topic        bool
}

func hasPrefix(word string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(word, p) {
			return true
		}
	}
	return false
}

// parse keeps lower-cased words of three or more letters. Topic words select
// the result types and are not searched for.
func parse(q string) query {
	var out query
	fields := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range fields {
		if len([]rune(w)) < 3 {
			continue
		}
		switch {
		case hasPrefix(w, reportWords):
			out.reports = true
		case hasPrefix(w, competitionWords):
			out.competitions = true
		default:
			out.words = append(out.words, w)
		}
	}
	out.topic = out.reports || out.competitions
	if !out.topic {
		out.reports, out.competitions = true, true
	}
	return out
}

func (a *Assistant) Answer(ctx context.Context, q string) (Reply, error) {
	parsed := parse(q)
	if len(parsed.words) == 0 && !parsed.topic {
		return Reply{
			Message: "Ask about reports or competitions, for example \"pike reports\" or \"competitions on the lake\".",
			Results: []Result{},
		}, nil
	}

	results := []Result{}
	if parsed.reports {
		reports, err := a.reports(ctx, parsed)
		if err != nil {
			return Reply{}, fmt.Errorf("search reports: %w", err)
		}
		for _, r := range reports {
			results = append(results, Result{
				ID:          r.ID.Hex(),
				Type:        TypeReport,
				Title:       r.Title,
				HasPhotos:   len(r.Photos) > 0,
				PhotosCount: len(r.Photos),
			})
		}
	}
	if parsed.competitions && len(results) < MaxResults {
		comps, err := a.competitions(ctx, parsed, MaxResults-len(results))
		if err != nil {
			return Reply{}, fmt.Errorf("search competitions: %w", err)
		}
		for _, c := range comps {
			results = append(results, Result{
				ID:       c.ID.Hex(),
				Type:     TypeCompetition,
				Title:    c.Title,
				Location: c.Location,
			})
		}
	}
	if len(results) > MaxResults {
		results = results[:MaxResults]
	}
	return Reply{Message: summary(q, results), Results: results}, nil
}

func (a *Assistant) reports(ctx context.Context, q query) ([]models.Report, error) {
	if len(q.words) == 0 {
		return a.store.ListReports(ctx, MaxResults)
	}
	return a.store.SearchReports(ctx, q.words, MaxResults)
}

func (a *Assistant) competitions(ctx context.Context, q query, limit int) ([]models.Competition, error) {
	if len(q.words) > 0 {
		return a.store.SearchCompetitions(ctx, q.words, limit)
	}
	comps, err := a.store.ListCompetitions(ctx)
	if err != nil {
		return nil, err
	}
	if len(comps) > limit {
		comps = comps[:limit]
	}
	return comps, nil
}

func summary(q string, results []Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("Nothing found for %q. Try other words.", strings.TrimSpace(q))
	}
	var reports, comps int
	for _, r := range results {
		if r.Type == TypeReport {
			reports++
		} else {
			comps++
		}
	}
	return fmt.Sprintf("Found %d report(s) and %d competition(s).", reports, comps)
}

// Text renders the reply as plain text for messengers.
func (r Reply) Text() string {
	var b strings.Builder
	b.WriteString(r.Message)
	for _, res := range r.Results {
		b.WriteString("\n• ")
		b.WriteString(res.Title)
		switch {
		case res.Type == TypeCompetition && res.Location != "":
			b.WriteString(" (" + res.Location + ")")
		case res.HasPhotos:
			fmt.Fprintf(&b, " [%d photo(s)]", res.PhotosCount)
		}
	}
	return b.String()
}
