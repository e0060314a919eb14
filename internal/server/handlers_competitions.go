package server

import (
	"net/http"

	"github.com/DanielBronsky/cnpf-feeder/internal/auth"
	"github.com/DanielBronsky/cnpf-feeder/internal/forms"
	"github.com/DanielBronsky/cnpf-feeder/internal/models"
)

func (s *Server) listCompetitions(w http.ResponseWriter, r *http.Request) error {
	comps, err := s.store.ListCompetitions(r.Context())
	if err != nil {
		return err
	}
	now := s.now()
	out := make([]competitionView, 0, len(comps))
	for i := range comps {
		out = append(out, newCompetitionView(&comps[i], now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"competitions": out})
	return nil
}

func (s *Server) loadCompetition(r *http.Request) (*models.Competition, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return s.store.CompetitionByID(r.Context(), id)
}

func (s *Server) getCompetition(w http.ResponseWriter, r *http.Request) error {
	c, err := s.loadCompetition(r)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"competition": newCompetitionView(c, s.now())})
	return nil
}

func (s *Server) createCompetition(w http.ResponseWriter, r *http.Request) error {
	limitBody(w, r, maxJSONBody)
	req, err := forms.Competition(r.Body)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	c := &models.Competition{
		CreatedBy: auth.UserFrom(r.Context()).ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	req.Apply(c)
	if err := s.store.InsertCompetition(r.Context(), c); err != nil {
		return err
	}
	s.log.Info("competition created", "competition_id", c.ID.Hex())
	writeJSON(w, http.StatusCreated, okBody{OK: true, ID: c.ID.Hex()})
	return nil
}

func (s *Server) updateCompetition(w http.ResponseWriter, r *http.Request) error {
	c, err := s.loadCompetition(r)
	if err != nil {
		return err
	}
	limitBody(w, r, maxJSONBody)
	req, err := forms.CompetitionPatch(r.Body, c)
	if err != nil {
		return err
	}
	req.Apply(c)
	c.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateCompetition(r.Context(), c); err != nil {
		return err
	}
	return ok(w)
}

func (s *Server) deleteCompetition(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	ctx := r.Context()
	if err := s.store.DeleteCompetition(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteRegistrationsFor(ctx, id); err != nil {
		s.log.Warn("orphaned registrations left behind", "competition_id", id.Hex(), "err", err)
	}
	return ok(w)
}
