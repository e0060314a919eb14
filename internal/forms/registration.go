package forms

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/DanielBronsky/cnpf-feeder/internal/models"
)

const (
	teamSize        = 3
	maxTeamNameLen  = 100
	maxPersonStrLen = 60
)

type PersonInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type registrationInput struct {
	Type         *string        `json:"type"`
	TeamName     *string        `json:"teamName"`
	Participants *[]PersonInput `json:"participants"`
	Coach        *PersonInput   `json:"coach"`
}

type RegistrationRequest struct {
	Type         string
	TeamName     string
	Participants []models.Person
	Coach        *models.Person
}

func (r RegistrationRequest) Apply(reg *models.Registration) {
	reg.Type = r.Type
	reg.TeamName = r.TeamName
	reg.Participants = r.Participants
	reg.Coach = r.Coach
}

func decodeRegistration(body io.Reader) (registrationInput, error) {
	var in registrationInput
	if err := json.NewDecoder(body).Decode(&in); err != nil {
		return in, bodyError(err, "Invalid JSON body")
	}
	return in, nil
}

// Registration validates a new registration against the formats comp offers.
func Registration(body io.Reader, comp *models.Competition) (RegistrationRequest, error) {
	in, err := decodeRegistration(body)
	if err != nil {
		return RegistrationRequest{}, err
	}
	return in.validate(comp)
}

// RegistrationPatch overlays the supplied fields on existing and validates the result.
func RegistrationPatch(body io.Reader, existing *models.Registration, comp *models.Competition) (RegistrationRequest, error) {
	patch, err := decodeRegistration(body)
	if err != nil {
		return RegistrationRequest{}, err
	}
	merged := registrationInput{
		Type:     &existing.Type,
		TeamName: &existing.TeamName,
	}
	people := make([]PersonInput, 0, len(existing.Participants))
	for _, p := range existing.Participants {
		people = append(people, PersonInput(p))
	}
	merged.Participants = &people
	if existing.Coach != nil {
		coach := PersonInput(*existing.Coach)
		merged.Coach = &coach
	}

	if patch.Type != nil {
		merged.Type = patch.Type
	}
	if patch.TeamName != nil {
		merged.TeamName = patch.TeamName
	}
	if patch.Participants != nil {
		merged.Participants = patch.Participants
	}
	if patch.Coach != nil {
		merged.Coach = patch.Coach
	}
	return merged.validate(comp)
}

func (c *checker) person(field string, in PersonInput) models.Person {
	p := models.Person{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
	}
	first, last := runes(p.FirstName), runes(p.LastName)
	c.check(first >= 1 && first <= maxPersonStrLen && last >= 1 && last <= maxPersonStrLen,
		field, "first and last name must be 1-60 characters")
	return p
}

func (in registrationInput) validate(comp *models.Competition) (RegistrationRequest, error) {
	var c checker
	var req RegistrationRequest

	req.Type = strings.TrimSpace(deref(in.Type))
	switch req.Type {
	case models.RegistrationIndividual, models.RegistrationTeam:
		c.check(comp.Supports(req.Type), "type", "is not offered by this competition")
	default:
		c.fail("type", "must be individual or team")
	}

	var people []PersonInput
	if in.Participants != nil {
		people = *in.Participants
	}
	want := 1
	if req.Type == models.RegistrationTeam {
		want = teamSize
	}
	if c.check(len(people) == want, "participants", participantsReason(want)) {
		for _, p := range people {
			req.Participants = append(req.Participants, c.person("participants", p))
		}
	}

	if req.Type == models.RegistrationTeam {
		req.TeamName = strings.TrimSpace(deref(in.TeamName))
		n := runes(req.TeamName)
		c.check(n >= 1 && n <= maxTeamNameLen, "teamName", "must be 1-100 characters")
		if in.Coach != nil && (strings.TrimSpace(in.Coach.FirstName) != "" || strings.TrimSpace(in.Coach.LastName) != "") {
			coach := c.person("coach", *in.Coach)
			req.Coach = &coach
		}
	}
	return req, c.err()
}

func participantsReason(want int) string {
	if want == 1 {
		return "exactly one participant is required"
	}
	return "exactly three participants are required"
}
