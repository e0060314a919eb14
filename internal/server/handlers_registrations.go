package server

import (
	"errors"
	"fmt"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/DanielBronsky/cnpf-feeder/internal/auth"
	"github.com/DanielBronsky/cnpf-feeder/internal/forms"
	"github.com/DanielBronsky/cnpf-feeder/internal/models"
	"github.com/DanielBronsky/cnpf-feeder/internal/roster"
	"github.com/DanielBronsky/cnpf-feeder/internal/store"
	"github.com/DanielBronsky/cnpf-feeder/internal/util"
)

// csvToken signs the download link of one competition's roster, so the file
// can be fetched without a session.
func (s *Server) csvToken(competitionID primitive.ObjectID) string {
	return util.HMACSHA256Hex(s.cfg.AuthSecret, "export:"+competitionID.Hex())
}

func (s *Server) listRegistrations(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	comp, err := s.loadCompetition(r)
	if err != nil {
		return err
	}
	regs, err := s.store.ListRegistrations(ctx, comp.ID)
	if err != nil {
		return err
	}
	ids := make([]primitive.ObjectID, 0, len(regs))
	for _, reg := range regs {
		ids = append(ids, reg.UserID)
	}
	owners, err := s.store.UsersByIDs(ctx, ids)
	if err != nil {
		return err
	}

	me := auth.UserFrom(ctx)
	out := make([]registrationView, 0, len(regs))
	for i := range regs {
		out = append(out, newRegistrationView(&regs[i], owners[regs[i].UserID], me))
	}
	body := map[string]any{"registrations": out}
	if me != nil && me.IsAdmin {
		body["csvUrl"] = fmt.Sprintf("/competitions/%s/registrations.csv?token=%s", comp.ID.Hex(), s.csvToken(comp.ID))
	}
	writeJSON(w, http.StatusOK, body)
	return nil
}

// checkTeamSlot fails when comp has no room for another team.
func (s *Server) checkTeamSlot(r *http.Request, comp *models.Competition) error {
	if comp.TeamLimit == nil {
		return nil
	}
	teams, err := s.store.CountTeamRegistrations(r.Context(), comp.ID)
	if err != nil {
		return err
	}
	if teams >= int64(*comp.TeamLimit) {
		return conflict("Team limit reached")
	}
	return nil
}

func (s *Server) createRegistration(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	me := auth.UserFrom(ctx)
	comp, err := s.loadCompetition(r)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	if opens := comp.RegistrationOpensAt(); !opens.IsZero() && now.Before(opens) {
		return conflict("Registration is not open yet")
	}

	limitBody(w, r, maxJSONBody)
	req, err := forms.Registration(r.Body, comp)
	if err != nil {
		return err
	}
	if req.Type == models.RegistrationTeam {
		if err := s.checkTeamSlot(r, comp); err != nil {
			return err
		}
	}

	reg := &models.Registration{
		CompetitionID: comp.ID,
		UserID:        me.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	req.Apply(reg)
	if err := s.store.InsertRegistration(ctx, reg); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return conflict("You are already registered for this competition")
		}
		return err
	}
	s.notifier.RegistrationCreated(ctx, comp, reg, me.Username)
	writeJSON(w, http.StatusCreated, okBody{OK: true, ID: reg.ID.Hex()})
	return nil
}

func (s *Server) loadRegistration(r *http.Request) (*models.Registration, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	reg, err := s.store.RegistrationByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireOwnerOrAdmin(auth.UserFrom(r.Context()), reg.UserID); err != nil {
		return nil, err
	}
	return reg, nil
}

func (s *Server) updateRegistration(w http.ResponseWriter, r *http.Request) error {
	reg, err := s.loadRegistration(r)
	if err != nil {
		return err
	}
	comp, err := s.store.CompetitionByID(r.Context(), reg.CompetitionID)
	if err != nil {
		return err
	}

	limitBody(w, r, maxJSONBody)
	req, err := forms.RegistrationPatch(r.Body, reg, comp)
	if err != nil {
		return err
	}
	if req.Type == models.RegistrationTeam && reg.Type != models.RegistrationTeam {
		if err := s.checkTeamSlot(r, comp); err != nil {
			return err
		}
	}
	req.Apply(reg)
	reg.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateRegistration(r.Context(), reg); err != nil {
		return err
	}
	return ok(w)
}

func (s *Server) deleteRegistration(w http.ResponseWriter, r *http.Request) error {
	reg, err := s.loadRegistration(r)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRegistration(r.Context(), reg.ID); err != nil {
		return err
	}
	return ok(w)
}

// registrationsCSV serves the roster to admins, or to anyone holding the
// signed link from the admin listing.
func (s *Server) registrationsCSV(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	me := auth.UserFrom(r.Context())
	if me == nil || !me.IsAdmin {
		token := r.URL.Query().Get("token")
		if token == "" {
			if err := auth.RequireAdmin(me); err != nil {
				return err
			}
		}
		if !util.ValidHMAC(s.cfg.AuthSecret, "export:"+id.Hex(), token) {
			return auth.ErrForbidden
		}
	}

	ros, err := roster.Build(r.Context(), s.store, id)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ros.FileName()))
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	w.WriteHeader(http.StatusOK)
	return ros.WriteCSV(w)
}

func (s *Server) exportRegistrations(w http.ResponseWriter, r *http.Request) error {
	if s.exporter == nil {
		return &httpError{status: http.StatusServiceUnavailable, msg: "Sheets export is not configured"}
	}
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	ros, err := roster.Export(r.Context(), s.store, s.exporter, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		s.log.Error("sheets export failed", "competition_id", id.Hex(), "err", err)
		return &httpError{status: http.StatusBadGateway, msg: "Sheets export failed"}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"sheet": roster.SheetTitle(ros.Competition),
		"rows":  len(ros.Rows),
	})
	return nil
}
