package server

import (
	"net/http"

	"github.com/DanielBronsky/cnpf-feeder/internal/auth"
	"github.com/DanielBronsky/cnpf-feeder/internal/forms"
	"github.com/DanielBronsky/cnpf-feeder/internal/models"
)

func (s *Server) adminUsers(w http.ResponseWriter, r *http.Request) error {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		return err
	}
	out := make([]userView, 0, len(users))
	for i := range users {
		out = append(out, newUserView(&users[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
	return nil
}

func (s *Server) loadUser(r *http.Request) (*models.User, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return s.store.UserProfile(r.Context(), id)
}

func (s *Server) adminUser(w http.ResponseWriter, r *http.Request) error {
	u, err := s.loadUser(r)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": newUserView(u)})
	return nil
}

func (s *Server) adminUpdateUser(w http.ResponseWriter, r *http.Request) error {
	u, err := s.loadUser(r)
	if err != nil {
		return err
	}
	limitBody(w, r, maxJSONBody)
	patch, err := forms.AdminUser(r.Body)
	if err != nil {
		return err
	}

	ctx := r.Context()
	if !patch.IsAdmin {
		admins, err := s.store.CountAdmins(ctx)
		if err != nil {
			return err
		}
		if err := auth.ProtectLastAdmin(u.IsAdmin, admins); err != nil {
			return err
		}
	}
	if err := s.store.UpdateUser(ctx, u.ID, models.UserPatch{IsAdmin: &patch.IsAdmin}); err != nil {
		return err
	}
	s.log.Info("admin flag changed", "user_id", u.ID.Hex(), "admin", patch.IsAdmin,
		"by", auth.UserFrom(ctx).ID.Hex())
	return ok(w)
}

func (s *Server) adminDeleteUser(w http.ResponseWriter, r *http.Request) error {
	u, err := s.loadUser(r)
	if err != nil {
		return err
	}
	ctx := r.Context()
	me := auth.UserFrom(ctx)
	if u.ID == me.ID {
		return conflict("You cannot delete your own account")
	}
	admins, err := s.store.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if err := auth.ProtectLastAdmin(u.IsAdmin, admins); err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, u.ID); err != nil {
		return err
	}
	s.log.Info("user deleted", "user_id", u.ID.Hex(), "by", me.ID.Hex())
	return ok(w)
}
