package server

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/DanielBronsky/cnpf-feeder/internal/auth"
	"github.com/DanielBronsky/cnpf-feeder/internal/models"
	"github.com/DanielBronsky/cnpf-feeder/internal/util"
)

// Response views. Password hashes and binary payloads never appear here.

func avatarURL(id primitive.ObjectID, has bool) *string {
	if !has || id.IsZero() {
		return nil
	}
	u := "/user/avatar/" + id.Hex()
	return &u
}

func isoPtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := util.ISO(*t)
	return &s
}

type meView struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Username  string  `json:"username"`
	IsAdmin   bool    `json:"isAdmin"`
	HasAvatar bool    `json:"hasAvatar"`
	AvatarURL *string `json:"avatarUrl"`
}

func newMeView(u *auth.CurrentUser) *meView {
	if u == nil {
		return nil
	}
	return &meView{
		ID:        u.ID.Hex(),
		Email:     u.Email,
		Username:  u.Username,
		IsAdmin:   u.IsAdmin,
		HasAvatar: u.HasAvatar,
		AvatarURL: avatarURL(u.ID, u.HasAvatar),
	}
}

type userView struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Username  string  `json:"username"`
	IsAdmin   bool    `json:"isAdmin"`
	HasAvatar bool    `json:"hasAvatar"`
	AvatarURL *string `json:"avatarUrl"`
	CreatedAt string  `json:"createdAt,omitempty"`
}

func newUserView(u *models.User) userView {
	return userView{
		ID:        u.ID.Hex(),
		Email:     u.Email,
		Username:  u.DisplayName(),
		IsAdmin:   u.IsAdmin,
		HasAvatar: u.HasAvatar,
		AvatarURL: avatarURL(u.ID, u.HasAvatar),
		CreatedAt: util.ISO(u.CreatedAt),
	}
}

type authorView struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	HasAvatar bool    `json:"hasAvatar"`
	AvatarURL *string `json:"avatarUrl"`
}

func newAuthorView(id primitive.ObjectID, u *models.User) authorView {
	v := authorView{ID: id.Hex(), Username: "unknown"}
	if u != nil {
		v.Username = u.DisplayName()
		v.HasAvatar = u.HasAvatar
		v.AvatarURL = avatarURL(id, u.HasAvatar)
	}
	return v
}

type photoView struct {
	URL string `json:"url"`
}

type reportView struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Text        string      `json:"text"`
	CreatedAt   string      `json:"createdAt,omitempty"`
	UpdatedAt   string      `json:"updatedAt,omitempty"`
	AuthorID    string      `json:"authorId"`
	Author      authorView  `json:"author"`
	Photos      []photoView `json:"photos"`
	PhotosCount int         `json:"photosCount"`
	CanEdit     bool        `json:"canEdit"`
}

func newReportView(r *models.Report, author *models.User, me *auth.CurrentUser) reportView {
	id := r.ID.Hex()
	photos := make([]photoView, len(r.Photos))
	for i := range r.Photos {
		photos[i] = photoView{URL: fmt.Sprintf("/reports/%s/photos/%d", id, i)}
	}
	return reportView{
		ID:          id,
		Title:       r.Title,
		Text:        r.Text,
		CreatedAt:   util.ISO(r.CreatedAt),
		UpdatedAt:   util.ISO(r.UpdatedAt),
		AuthorID:    r.AuthorID.Hex(),
		Author:      newAuthorView(r.AuthorID, author),
		Photos:      photos,
		PhotosCount: len(r.Photos),
		CanEdit:     auth.CanEdit(me, r.AuthorID),
	}
}

type tourView struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type competitionView struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	StartDate           string     `json:"startDate"`
	EndDate             string     `json:"endDate"`
	Location            string     `json:"location"`
	Tours               []tourView `json:"tours"`
	OpeningDate         *string    `json:"openingDate"`
	OpeningTime         *string    `json:"openingTime"`
	RegistrationOpensAt *string    `json:"registrationOpensAt"`
	RegistrationOpen    bool       `json:"registrationOpen"`
	IndividualFormat    bool       `json:"individualFormat"`
	TeamFormat          bool       `json:"teamFormat"`
	Fee                 *float64   `json:"fee"`
	TeamLimit           *int       `json:"teamLimit"`
	Regulations         *string    `json:"regulations"`
	CreatedAt           string     `json:"createdAt,omitempty"`
	UpdatedAt           string     `json:"updatedAt,omitempty"`
}

func newCompetitionView(c *models.Competition, now time.Time) competitionView {
	tours := make([]tourView, len(c.Tours))
	for i, t := range c.Tours {
		tours[i] = tourView{Date: util.ISO(t.Date), Time: t.Time}
	}
	v := competitionView{
		ID:               c.ID.Hex(),
		Title:            c.Title,
		StartDate:        util.ISO(c.StartDate),
		EndDate:          util.ISO(c.EndDate),
		Location:         c.Location,
		Tours:            tours,
		OpeningDate:      isoPtr(c.OpeningDate),
		IndividualFormat: c.IndividualFormat,
		TeamFormat:       c.TeamFormat,
		Fee:              c.Fee,
		TeamLimit:        c.TeamLimit,
		CreatedAt:        util.ISO(c.CreatedAt),
		UpdatedAt:        util.ISO(c.UpdatedAt),
	}
	if c.OpeningTime != "" {
		v.OpeningTime = &c.OpeningTime
	}
	if c.Regulations != "" {
		v.Regulations = &c.Regulations
	}
	opens := c.RegistrationOpensAt()
	v.RegistrationOpensAt = isoPtr(&opens)
	v.RegistrationOpen = opens.IsZero() || !now.Before(opens)
	return v
}

type personView struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type registrationView struct {
	ID            string       `json:"id"`
	CompetitionID string       `json:"competitionId"`
	UserID        string       `json:"userId"`
	Username      string       `json:"username"`
	Type          string       `json:"type"`
	TeamName      *string      `json:"teamName"`
	Participants  []personView `json:"participants"`
	Coach         *personView  `json:"coach"`
	CreatedAt     string       `json:"createdAt,omitempty"`
	UpdatedAt     string       `json:"updatedAt,omitempty"`
	CanEdit       bool         `json:"canEdit"`
}

func newRegistrationView(r *models.Registration, owner *models.User, me *auth.CurrentUser) registrationView {
	v := registrationView{
		ID:            r.ID.Hex(),
		CompetitionID: r.CompetitionID.Hex(),
		UserID:        r.UserID.Hex(),
		Username:      "unknown",
		Type:          r.Type,
		Participants:  make([]personView, len(r.Participants)),
		CreatedAt:     util.ISO(r.CreatedAt),
		UpdatedAt:     util.ISO(r.UpdatedAt),
		CanEdit:       auth.CanEdit(me, r.UserID),
	}
	if owner != nil {
		v.Username = owner.DisplayName()
	}
	if r.TeamName != "" {
		v.TeamName = &r.TeamName
	}
	for i, p := range r.Participants {
		v.Participants[i] = personView(p)
	}
	if r.Coach != nil {
		c := personView(*r.Coach)
		v.Coach = &c
	}
	return v
}
