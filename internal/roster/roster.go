// Package roster builds the per-competition registration table used by the
// CSV download and the Google Sheets export.
package roster

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/DanielBronsky/cnpf-feeder/internal/models"
	"github.com/DanielBronsky/cnpf-feeder/internal/util"
)

var Header = []string{"type", "team", "first_name", "last_name", "coach", "registered_by", "registered_at"}

// Source is the read side of the store the roster needs.
type Source interface {
	CompetitionByID(ctx context.Context, id primitive.ObjectID) (*models.Competition, error)
	ListCompetitions(ctx context.Context) ([]models.Competition, error)
	ListRegistrations(ctx context.Context, competitionID primitive.ObjectID) ([]models.Registration, error)
	UsersByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error)
}

// Exporter publishes a roster table somewhere outside the service.
type Exporter interface {
	ExportRoster(ctx context.Context, sheetTitle string, table [][]string) error
}

type Roster struct {
	Competition *models.Competition
	Rows        [][]string
}

// Build loads one competition and lays out one row per participant.
func Build(ctx context.Context, src Source, competitionID primitive.ObjectID) (*Roster, error) {
	comp, err := src.CompetitionByID(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	return build(ctx, src, comp)
}

func build(ctx context.Context, src Source, comp *models.Competition) (*Roster, error) {
	regs, err := src.ListRegistrations(ctx, comp.ID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	ids := make([]primitive.ObjectID, 0, len(regs))
	for _, r := range regs {
		ids = append(ids, r.UserID)
	}
	users, err := src.UsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load registrants: %w", err)
	}

	rows := [][]string{}
	for _, r := range regs {
		by := "unknown"
		if u, ok := users[r.UserID]; ok {
			by = u.DisplayName()
		}
		coach := ""
		if r.Coach != nil {
			coach = r.Coach.FullName()
		}
		for _, p := range r.Participants {
			rows = append(rows, []string{r.Type, r.TeamName, p.FirstName, p.LastName, coach, by, util.ISO(r.CreatedAt)})
		}
	}
	return &Roster{Competition: comp, Rows: rows}, nil
}

// Table returns the header followed by the rows.
func (r *Roster) Table() [][]string {
	return append([][]string{Header}, r.Rows...)
}

// csvCell keeps spreadsheet software from evaluating user text as a formula.
func csvCell(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}

// WriteCSV writes the table with formula-like cells neutralised.
func (r *Roster) WriteCSV(w io.Writer) error {
	table := r.Table()
	out := make([][]string, len(table))
	for i, row := range table {
		out[i] = make([]string, len(row))
		for j, v := range row {
			out[i][j] = csvCell(v)
		}
	}
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(out); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// FileName is the download name for the CSV.
func (r *Roster) FileName() string {
	return "registrations_" + r.Competition.ID.Hex() + ".csv"
}

// SheetTitle names the spreadsheet tab of a competition. Tab titles are capped at 100 characters.
func SheetTitle(c *models.Competition) string {
	suffix := " #" + c.ID.Hex()[18:]
	title := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', '*', '?', '/', '\\', ':':
			return ' '
		}
		return r
	}, strings.TrimSpace(c.Title))
	if rs := []rune(title); len(rs) > 100-len(suffix) {
		title = string(rs[:100-len(suffix)])
	}
	return title + suffix
}

// Export builds and publishes the roster of one competition.
func Export(ctx context.Context, src Source, exp Exporter, competitionID primitive.ObjectID) (*Roster, error) {
	r, err := Build(ctx, src, competitionID)
	if err != nil {
		return nil, err
	}
	if err := exp.ExportRoster(ctx, SheetTitle(r.Competition), r.Table()); err != nil {
		return nil, err
	}
	return r, nil
}

// ExportAll publishes every competition and returns how many succeeded.
// It keeps going after a failed competition and reports the first error.
func ExportAll(ctx context.Context, src Source, exp Exporter) (int, error) {
	comps, err := src.ListCompetitions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list competitions: %w", err)
	}
	var first error
	done := 0
	for i := range comps {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		r, err := build(ctx, src, &comps[i])
		if err == nil {
			err = exp.ExportRoster(ctx, SheetTitle(&comps[i]), r.Table())
		}
		if err != nil {
			if first == nil {
				first = fmt.Errorf("export %s: %w", comps[i].ID.Hex(), err)
			}
			continue
		}
		done++
	}
	return done, first
}
