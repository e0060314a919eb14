package forms

import (
	"encoding/json"
	"io"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/DanielBronsky/cnpf-feeder/internal/models"
)

const (
	MaxAvatarSize  = 512 << 10
	minPasswordLen = 8
	maxPasswordLen = 72
	maxEmailLen    = 254
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,24}$`)

type RegisterRequest struct {
	Email    string
	Username string
	Password string
	Avatar   *models.Image
}

type LoginRequest struct {
	Login    string
	Password string
}

type ProfileRequest struct {
	Username     string
	Avatar       *models.Image
	RemoveAvatar bool
}

type PasswordRequest struct {
	Current string
	New     string
}

type AdminUserPatch struct {
	IsAdmin bool
}

func runes(s string) int { return utf8.RuneCountInString(s) }

func (c *checker) email(raw string) string {
	email := strings.ToLower(strings.TrimSpace(raw))
	if !c.check(email != "" && len(email) <= maxEmailLen, "email", "must be a valid email") {
		return ""
	}
	addr, err := mail.ParseAddress(email)
	if !c.check(err == nil && addr.Address == email, "email", "must be a valid email") {
		return ""
	}
	return email
}

func (c *checker) username(raw string) string {
	name := strings.TrimSpace(raw)
	c.check(usernameRe.MatchString(name), "username", "must be 3-24 characters of letters, digits or _")
	return strings.ToLower(name)
}

func (c *checker) newPassword(field, password, confirm, confirmField string) {
	n := runes(password)
	c.check(n >= minPasswordLen && len(password) <= maxPasswordLen, field, "must be 8-72 characters")
	c.check(password == confirm, confirmField, "passwords do not match")
}

func (c *checker) avatar(src *Source) *models.Image {
	files := src.Files("avatar")
	if len(files) == 0 {
		return nil
	}
	img, reason := readImage(files[0], MaxAvatarSize)
	if !c.check(reason == "", "avatar", reason) {
		return nil
	}
	return &img
}

// Register validates a sign-up form. Email and username are lower-cased.
func Register(src *Source) (RegisterRequest, error) {
	var c checker
	req := RegisterRequest{
		Email:    c.email(src.Get("email")),
		Username: c.username(src.Get("username")),
		Password: src.Get("password"),
	}
	c.newPassword("password", req.Password, src.Get("passwordConfirm"), "passwordConfirm")
	req.Avatar = c.avatar(src)
	return req, c.err()
}

// Login accepts either the email or the username as login.
func Login(src *Source) (LoginRequest, error) {
	var c checker
	req := LoginRequest{
		Login:    strings.ToLower(strings.TrimSpace(src.Get("login"))),
		Password: src.Get("password"),
	}
	c.check(len(req.Login) >= 3 && len(req.Login) <= maxEmailLen, "login", "must be 3-254 characters")
	c.check(req.Password != "" && len(req.Password) <= maxPasswordLen, "password", "is required")
	return req, c.err()
}

func Profile(src *Source) (ProfileRequest, error) {
	var c checker
	req := ProfileRequest{
		Username:     c.username(src.Get("username")),
		RemoveAvatar: src.Flag("removeAvatar"),
	}
	req.Avatar = c.avatar(src)
	return req, c.err()
}

func Password(src *Source) (PasswordRequest, error) {
	var c checker
	req := PasswordRequest{
		Current: src.Get("currentPassword"),
		New:     src.Get("newPassword"),
	}
	c.check(req.Current != "", "currentPassword", "is required")
	c.newPassword("newPassword", req.New, src.Get("newPasswordConfirm"), "newPasswordConfirm")
	if !c.failed("newPassword") && req.Current != "" {
		c.check(req.New != req.Current, "newPassword", "must differ from the current password")
	}
	return req, c.err()
}

// AdminUser decodes {"isAdmin": bool}. The field is required.
func AdminUser(body io.Reader) (AdminUserPatch, error) {
	var in struct {
		IsAdmin *bool `json:"isAdmin"`
	}
	if err := json.NewDecoder(body).Decode(&in); err != nil {
		return AdminUserPatch{}, bodyError(err, "Invalid JSON body")
	}
	if in.IsAdmin == nil {
		return AdminUserPatch{}, &Error{Message: "Invalid input", Fields: map[string]string{"isAdmin": "is required"}}
	}
	return AdminUserPatch{IsAdmin: *in.IsAdmin}, nil
}
