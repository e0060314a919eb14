package auth

import (
	"context"
	"log/slog"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/DanielBronsky/cnpf-feeder/internal/models"
)

// CurrentUser is the session view of a signed-in user.
type CurrentUser struct {
	ID        primitive.ObjectID
	Email     string
	Username  string
	IsAdmin   bool
	HasAvatar bool
}

// UserLookup loads a user without the password hash.
type UserLookup interface {
	UserProfile(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// Resolver maps a request cookie to the current user.
type Resolver struct {
	codec *Codec
	users UserLookup
	log   *slog.Logger
}

func NewResolver(codec *Codec, users UserLookup, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{codec: codec, users: users, log: log}
}

// Resolve returns nil when there is no valid session. It never fails.
func (r *Resolver) Resolve(ctx context.Context, token string) *CurrentUser {
	if token == "" {
		return nil
	}
	p, err := r.codec.Verify(token)
	if err != nil {
		return nil
	}
	u, err := r.users.UserProfile(ctx, p.UserID)
	if err != nil {
		// deleted users land here too
		r.log.Debug("session user not loaded", "user_id", p.UserID.Hex(), "err", err)
		return nil
	}
	return &CurrentUser{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.DisplayName(),
		IsAdmin:   u.IsAdmin,
		HasAvatar: u.HasAvatar,
	}
}

// ResolveRequest reads the session cookie from req.
func (r *Resolver) ResolveRequest(req *http.Request) *CurrentUser {
	c, err := req.Cookie(CookieName)
	if err != nil {
		return nil
	}
	return r.Resolve(req.Context(), c.Value)
}

type ctxKey struct{}

func WithUser(ctx context.Context, u *CurrentUser) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the user stored by WithUser, or nil.
func UserFrom(ctx context.Context) *CurrentUser {
	u, _ := ctx.Value(ctxKey{}).(*CurrentUser)
	return u
}
