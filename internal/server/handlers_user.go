package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/DanielBronsky/cnpf-feeder/internal/auth"
	"github.com/DanielBronsky/cnpf-feeder/internal/forms"
	"github.com/DanielBronsky/cnpf-feeder/internal/models"
	"github.com/DanielBronsky/cnpf-feeder/internal/store"
)

func pathID(r *http.Request, name string) (primitive.ObjectID, error) {
	return store.ParseID(chi.URLParam(r, name))
}

// writeImage streams stored bytes. Images can change after first load, so
// nothing is cached.
func writeImage(w http.ResponseWriter, img *models.Image) error {
	ct := img.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(img.Data)
	return err
}

func (s *Server) avatar(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	u, err := s.store.UserByID(r.Context(), id)
	if err != nil {
		return err
	}
	if !u.HasAvatar || u.Avatar == nil || len(u.Avatar.Data) == 0 {
		return store.ErrNotFound
	}
	return writeImage(w, u.Avatar)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) error {
	me := auth.UserFrom(r.Context())
	src, err := parseSource(w, r, maxAvatarBody)
	if err != nil {
		return err
	}
	defer src.Close()
	req, err := forms.Profile(src)
	if err != nil {
		return err
	}

	ctx := r.Context()
	taken, err := s.store.UsernameTaken(ctx, req.Username, me.ID)
	if err != nil {
		return err
	}
	if taken {
		return conflict("Username already taken")
	}
	patch := models.UserPatch{
		Username:     &req.Username,
		Avatar:       req.Avatar,
		RemoveAvatar: req.RemoveAvatar && req.Avatar == nil,
	}
	if err := s.store.UpdateUser(ctx, me.ID, patch); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return conflict("Username already taken")
		}
		return err
	}
	return ok(w)
}

func (s *Server) updatePassword(w http.ResponseWriter, r *http.Request) error {
	me := auth.UserFrom(r.Context())
	src, err := parseSource(w, r, maxJSONBody)
	if err != nil {
		return err
	}
	defer src.Close()
	req, err := forms.Password(src)
	if err != nil {
		return err
	}

	ctx := r.Context()
	u, err := s.store.UserByID(ctx, me.ID)
	if err != nil {
		return err
	}
	match, err := auth.CheckPassword(u.PasswordHash, req.Current)
	if err != nil {
		return err
	}
	if !match {
		return &forms.Error{Message: "Current password is wrong", Fields: map[string]string{"currentPassword": "is wrong"}}
	}
	hash, err := auth.HashPassword(req.New)
	if err != nil {
		return err
	}
	if err := s.store.UpdateUser(ctx, me.ID, models.UserPatch{PasswordHash: &hash}); err != nil {
		return err
	}
	return ok(w)
}
