// Package store defines the document-store contract shared by the storage backends.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/DanielBronsky/cnpf-feeder/internal/models"
)

var (
	// ErrNotFound is returned when no document matches the identifier or filter.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("store: duplicate key")
	// ErrInvalidID is returned by ParseID for malformed identifiers.
	ErrInvalidID = errors.New("store: invalid id")
)

// ParseID validates a hex ObjectID before it is used in a query.
func ParseID(s string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return id, nil
}

// Store is the set of document operations used by the HTTP handlers.
// Implementations must be safe for concurrent use.
type Store interface {
	Users
	Reports
	Competitions
	Registrations

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type Users interface {
	CountUsers(ctx context.Context) (int64, error)
	CountAdmins(ctx context.Context) (int64, error)
	// InsertUser assigns u.ID. Returns ErrDuplicate when the email or username is taken.
	InsertUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	// UserProfile loads a user without the password hash and avatar bytes.
	UserProfile(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	// UserByLogin matches login against both email and username.
	UserByLogin(ctx context.Context, login string) (*models.User, error)
	// UsersByIDs returns profiles keyed by id; unknown ids are skipped.
	UsersByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error)
	// ListUsers returns profiles, newest first.
	ListUsers(ctx context.Context) ([]models.User, error)
	UsernameTaken(ctx context.Context, username string, except primitive.ObjectID) (bool, error)
	UpdateUser(ctx context.Context, id primitive.ObjectID, p models.UserPatch) error
	DeleteUser(ctx context.Context, id primitive.ObjectID) error
}

type Reports interface {
	// InsertReport assigns r.ID.
	InsertReport(ctx context.Context, r *models.Report) error
	ReportByID(ctx context.Context, id primitive.ObjectID) (*models.Report, error)
	// ListReports returns up to limit reports, newest first.
	ListReports(ctx context.Context, limit int) ([]models.Report, error)
	// UpdateReport overwrites title, text, photos and updatedAt.
	UpdateReport(ctx context.Context, r *models.Report) error
	DeleteReport(ctx context.Context, id primitive.ObjectID) error
	// SearchReports matches any of the words in title or text, case-insensitively.
	SearchReports(ctx context.Context, words []string, limit int) ([]models.Report, error)
}

type Competitions interface {
	// InsertCompetition assigns c.ID.
	InsertCompetition(ctx context.Context, c *models.Competition) error
	CompetitionByID(ctx context.Context, id primitive.ObjectID) (*models.Competition, error)
	// ListCompetitions returns all competitions, newest first.
	ListCompetitions(ctx context.Context) ([]models.Competition, error)
	// UpdateCompetition overwrites every mutable field of c.
	UpdateCompetition(ctx context.Context, c *models.Competition) error
	DeleteCompetition(ctx context.Context, id primitive.ObjectID) error
	// SearchCompetitions matches any of the words in title or location, case-insensitively.
	SearchCompetitions(ctx context.Context, words []string, limit int) ([]models.Competition, error)
}

type Registrations interface {
	// InsertRegistration assigns r.ID. Returns ErrDuplicate when the user is already registered.
	InsertRegistration(ctx context.Context, r *models.Registration) error
	RegistrationByID(ctx context.Context, id primitive.ObjectID) (*models.Registration, error)
	// ListRegistrations returns the registrations of one competition, oldest first.
	ListRegistrations(ctx context.Context, competitionID primitive.ObjectID) ([]models.Registration, error)
	CountTeamRegistrations(ctx context.Context, competitionID primitive.ObjectID) (int64, error)
	UpdateRegistration(ctx context.Context, r *models.Registration) error
	DeleteRegistration(ctx context.Context, id primitive.ObjectID) error
	DeleteRegistrationsFor(ctx context.Context, competitionID primitive.ObjectID) error
}
