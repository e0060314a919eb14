package server

import (
	"errors"
	"net/http"

	"github.com/DanielBronsky/cnpf-feeder/internal/auth"
	"github.com/DanielBronsky/cnpf-feeder/internal/forms"
	"github.com/DanielBronsky/cnpf-feeder/internal/models"
	"github.com/DanielBronsky/cnpf-feeder/internal/store"
	"github.com/DanielBronsky/cnpf-feeder/internal/util"
)

const (
	maxJSONBody   = 1 << 20
	maxAvatarBody = forms.MaxAvatarSize + 64<<10
	maxReportBody = forms.MaxPhotos*forms.MaxPhotoSize + 1<<20
)

func limitBody(w http.ResponseWriter, r *http.Request, n int64) {
	r.Body = http.MaxBytesReader(w, r.Body, n)
}

// parseSource reads a form or JSON body capped at limit bytes.
func parseSource(w http.ResponseWriter, r *http.Request, limit int64) (*forms.Source, error) {
	limitBody(w, r, limit)
	return forms.ParseSource(r)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) error {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Warn("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "ts": util.NowISO()})
		return nil
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ts": util.NowISO()})
	return nil
}

func (s *Server) startSession(w http.ResponseWriter, u *models.User) error {
	token, err := s.codec.Issue(u.ID, u.Email)
	if err != nil {
		return err
	}
	auth.SetSessionCookie(w, token, s.cfg.Production)
	return nil
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) error {
	src, err := parseSource(w, r, maxAvatarBody)
	if err != nil {
		return err
	}
	defer src.Close()
	req, err := forms.Register(src)
	if err != nil {
		return err
	}

	ctx := r.Context()
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return err
	}
	// the first account ever created administers the site
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return err
	}
	u := &models.User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		IsAdmin:      count == 0,
		Avatar:       req.Avatar,
		HasAvatar:    req.Avatar != nil,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.InsertUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return conflict("Email or username already used")
		}
		return err
	}
	s.log.Info("user registered", "user_id", u.ID.Hex(), "admin", u.IsAdmin)

	if err := s.startSession(w, u); err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"ok": true,
		"user": newMeView(&auth.CurrentUser{
			ID: u.ID, Email: u.Email, Username: u.DisplayName(), IsAdmin: u.IsAdmin, HasAvatar: u.HasAvatar,
		}),
	})
	return nil
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) error {
	src, err := parseSource(w, r, maxJSONBody)
	if err != nil {
		return err
	}
	defer src.Close()
	req, err := forms.Login(src)
	if err != nil {
		return err
	}

	badCredentials := &httpError{status: http.StatusUnauthorized, msg: "Invalid login or password"}
	u, err := s.store.UserByLogin(r.Context(), req.Login)
	if errors.Is(err, store.ErrNotFound) {
		return badCredentials
	}
	if err != nil {
		return err
	}
	match, err := auth.CheckPassword(u.PasswordHash, req.Password)
	if err != nil {
		return err
	}
	if !match {
		return badCredentials
	}
	if err := s.startSession(w, u); err != nil {
		return err
	}
	return ok(w)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) error {
	auth.ClearSessionCookie(w, s.cfg.Production)
	return ok(w)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]any{"user": newMeView(auth.UserFrom(r.Context()))})
	return nil
}
