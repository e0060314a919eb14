package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/DanielBronsky/cnpf-feeder/internal/auth"
	"github.com/DanielBronsky/cnpf-feeder/internal/forms"
	"github.com/DanielBronsky/cnpf-feeder/internal/models"
	"github.com/DanielBronsky/cnpf-feeder/internal/store"
)

// maxPhotoIndex bounds the photo route before any lookup.
const maxPhotoIndex = 100

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	reports, err := s.store.ListReports(ctx, forms.ReportLimit(r.URL.Query().Get("limit")))
	if err != nil {
		return err
	}
	ids := make([]primitive.ObjectID, 0, len(reports))
	for _, rep := range reports {
		ids = append(ids, rep.AuthorID)
	}
	authors, err := s.store.UsersByIDs(ctx, ids)
	if err != nil {
		return err
	}

	me := auth.UserFrom(ctx)
	out := make([]reportView, 0, len(reports))
	for i := range reports {
		out = append(out, newReportView(&reports[i], authors[reports[i].AuthorID], me))
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": out})
	return nil
}

func (s *Server) loadReport(r *http.Request) (*models.Report, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return s.store.ReportByID(r.Context(), id)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) error {
	rep, err := s.loadReport(r)
	if err != nil {
		return err
	}
	authors, err := s.store.UsersByIDs(r.Context(), []primitive.ObjectID{rep.AuthorID})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report": newReportView(rep, authors[rep.AuthorID], auth.UserFrom(r.Context())),
	})
	return nil
}

func (s *Server) createReport(w http.ResponseWriter, r *http.Request) error {
	me := auth.UserFrom(r.Context())
	src, err := parseSource(w, r, maxReportBody)
	if err != nil {
		return err
	}
	defer src.Close()
	req, err := forms.Report(src)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	rep := &models.Report{
		AuthorID:  me.ID,
		Title:     req.Title,
		Text:      req.Text,
		Photos:    req.Photos,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if rep.Photos == nil {
		rep.Photos = []models.Image{}
	}
	if err := s.store.InsertReport(r.Context(), rep); err != nil {
		return err
	}
	s.notifier.ReportPublished(r.Context(), rep, me.Username)
	writeJSON(w, http.StatusCreated, okBody{OK: true, ID: rep.ID.Hex()})
	return nil
}

func (s *Server) updateReport(w http.ResponseWriter, r *http.Request) error {
	rep, err := s.loadReport(r)
	if err != nil {
		return err
	}
	if err := auth.RequireOwnerOrAdmin(auth.UserFrom(r.Context()), rep.AuthorID); err != nil {
		return err
	}
	src, err := parseSource(w, r, maxReportBody)
	if err != nil {
		return err
	}
	defer src.Close()
	patch, err := forms.ReportPatch(src)
	if err != nil {
		return err
	}
	if err := patch.Apply(rep); err != nil {
		return err
	}
	rep.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateReport(r.Context(), rep); err != nil {
		return err
	}
	return ok(w)
}

func (s *Server) deleteReport(w http.ResponseWriter, r *http.Request) error {
	rep, err := s.loadReport(r)
	if err != nil {
		return err
	}
	if err := auth.RequireOwnerOrAdmin(auth.UserFrom(r.Context()), rep.AuthorID); err != nil {
		return err
	}
	if err := s.store.DeleteReport(r.Context(), rep.ID); err != nil {
		return err
	}
	return ok(w)
}

func (s *Server) reportPhoto(w http.ResponseWriter, r *http.Request) error {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil || idx < 0 || idx > maxPhotoIndex {
		return store.ErrNotFound
	}
	rep, err := s.loadReport(r)
	if err != nil {
		return err
	}
	if idx >= len(rep.Photos) {
		return store.ErrNotFound
	}
	return writeImage(w, &rep.Photos[idx])
}
