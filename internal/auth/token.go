// Package auth issues and verifies session tokens, hashes passwords and
// resolves the current user of a request.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TokenTTL is the lifetime of a session token and of the session cookie.
const TokenTTL = 30 * 24 * time.Hour

var (
	ErrNoSecret     = errors.New("auth: signing secret is not configured")
	ErrInvalidToken = errors.New("auth: invalid or expired token")
)

// Claims is the signed session payload.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Payload is what a verified token carries.
type Payload struct {
	UserID primitive.ObjectID
	Email  string
}

// Codec signs session tokens with HS256.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec fails when secret is empty; callers treat that as a startup error.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Codec{secret: []byte(secret), now: time.Now}, nil
}

// WithClock returns a copy of the codec that reads time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

func (c *Codec) Issue(userID primitive.ObjectID, email string) (string, error) {
	iat := c.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.Hex(),
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.Add(TokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify checks signature and expiry. Every failure is ErrInvalidToken.
func (c *Codec) Verify(token string) (Payload, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Payload{}, ErrInvalidToken
	}
	id, err := primitive.ObjectIDFromHex(claims.Subject)
	if err != nil {
		return Payload{}, ErrInvalidToken
	}
	return Payload{UserID: id, Email: claims.Email}, nil
}
