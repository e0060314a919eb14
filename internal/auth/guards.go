package auth

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrUnauthenticated = errors.New("auth: not signed in")
	ErrForbidden       = errors.New("auth: forbidden")
	ErrLastAdmin       = errors.New("auth: at least one admin must remain")
)

func RequireAuth(u *CurrentUser) error {
	if u == nil {
		return ErrUnauthenticated
	}
	return nil
}

func RequireAdmin(u *CurrentUser) error {
	if err := RequireAuth(u); err != nil {
		return err
	}
	if !u.IsAdmin {
		return ErrForbidden
	}
	return nil
}

// RequireOwnerOrAdmin passes for the owner of a resource and for any admin.
func RequireOwnerOrAdmin(u *CurrentUser, owner primitive.ObjectID) error {
	if err := RequireAuth(u); err != nil {
		return err
	}
	if u.IsAdmin || u.ID == owner {
		return nil
	}
	return ErrForbidden
}

// CanEdit is RequireOwnerOrAdmin as a boolean, for response shaping.
func CanEdit(u *CurrentUser, owner primitive.ObjectID) bool {
	return RequireOwnerOrAdmin(u, owner) == nil
}

// ProtectLastAdmin rejects removing admin rights from targetIsAdmin's account
// when it holds the only admin role. admins is the current admin count.
func ProtectLastAdmin(targetIsAdmin bool, admins int64) error {
	if targetIsAdmin && admins <= 1 {
		return ErrLastAdmin
	}
	return nil
}
