package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RegistrationIndividual = "individual"
	RegistrationTeam       = "team"
)

// Image is a binary payload stored inline on its owning document.
type Image struct {
	ContentType string `bson:"contentType"`
	Data        []byte `bson:"data"`
}

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Email        string             `bson:"email"`
	Username     string             `bson:"username"`
	PasswordHash string             `bson:"passwordHash,omitempty"`
	IsAdmin      bool               `bson:"isAdmin"`
	HasAvatar    bool               `bson:"hasAvatar"`
	Avatar       *Image             `bson:"avatar,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt"`
}

// DisplayName is the username, or the email for records created without one.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// UserPatch lists the user fields an update may touch. Nil fields are left as stored.
type UserPatch struct {
	Username     *string
	PasswordHash *string
	IsAdmin      *bool
	Avatar       *Image
	RemoveAvatar bool
}

type Report struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	AuthorID  primitive.ObjectID `bson:"authorId"`
	Title     string             `bson:"title"`
	Text      string             `bson:"text"`
	Photos    []Image            `bson:"photos"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type Tour struct {
	Date time.Time `bson:"date"`
	Time string    `bson:"time"`
}

type Competition struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Title            string             `bson:"title"`
	StartDate        time.Time          `bson:"startDate"`
	EndDate          time.Time          `bson:"endDate"`
	Location         string             `bson:"location"`
	Tours            []Tour             `bson:"tours"`
	OpeningDate      *time.Time         `bson:"openingDate"`
	OpeningTime      string             `bson:"openingTime,omitempty"`
	IndividualFormat bool               `bson:"individualFormat"`
	TeamFormat       bool               `bson:"teamFormat"`
	Fee              *float64           `bson:"fee"`
	TeamLimit        *int               `bson:"teamLimit"`
	Regulations      string             `bson:"regulations,omitempty"`
	CreatedBy        primitive.ObjectID `bson:"createdBy"`
	CreatedAt        time.Time          `bson:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt"`
}

// RegistrationOpensAt combines the opening date with the optional HH:MM opening time.
// The zero time means registration has no opening restriction.
func (c *Competition) RegistrationOpensAt() time.Time {
	if c.OpeningDate == nil {
		return time.Time{}
	}
	at := *c.OpeningDate
	if t, err := time.Parse("15:04", c.OpeningTime); err == nil {
		at = time.Date(at.Year(), at.Month(), at.Day(), t.Hour(), t.Minute(), 0, 0, at.Location())
	}
	return at
}

// Supports reports whether the competition accepts registrations of the given type.
func (c *Competition) Supports(regType string) bool {
	switch regType {
	case RegistrationIndividual:
		return c.IndividualFormat
	case RegistrationTeam:
		return c.TeamFormat
	default:
		return false
	}
}

type Person struct {
	FirstName string `bson:"firstName"`
	LastName  string `bson:"lastName"`
}

func (p Person) FullName() string {
	return p.FirstName + " " + p.LastName
}

type Registration struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	CompetitionID primitive.ObjectID `bson:"competitionId"`
	UserID        primitive.ObjectID `bson:"userId"`
	Type          string             `bson:"type"`
	TeamName      string             `bson:"teamName,omitempty"`
	Participants  []Person           `bson:"participants"`
	Coach         *Person            `bson:"coach,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
}
