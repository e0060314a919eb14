package forms

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/DanielBronsky/cnpf-feeder/internal/models"
)

const (
	dateLayout        = "2006-01-02"
	maxRegulationsLen = 10000
)

var clockRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

type TourInput struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// looseString accepts a JSON string or number.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	*s = looseString(bytes.TrimSpace(b))
	return nil
}

// competitionInput mirrors the JSON body. Nil means the field was not sent.
type competitionInput struct {
	Title            *string      `json:"title"`
	StartDate        *string      `json:"startDate"`
	EndDate          *string      `json:"endDate"`
	Location         *string      `json:"location"`
	Tours            *[]TourInput `json:"tours"`
	OpeningDate      *string      `json:"openingDate"`
	OpeningTime      *string      `json:"openingTime"`
	IndividualFormat *bool        `json:"individualFormat"`
	TeamFormat       *bool        `json:"teamFormat"`
	Fee              *looseString `json:"fee"`
	TeamLimit        *looseString `json:"teamLimit"`
	Regulations      *string      `json:"regulations"`
}

type CompetitionRequest struct {
	Title            string
	StartDate        time.Time
	EndDate          time.Time
	Location         string
	Tours            []models.Tour
	OpeningDate      *time.Time
	OpeningTime      string
	IndividualFormat bool
	TeamFormat       bool
	Fee              *float64
	TeamLimit        *int
	Regulations      string
}

// Apply copies the validated fields onto c.
func (r CompetitionRequest) Apply(c *models.Competition) {
	c.Title = r.Title
	c.StartDate = r.StartDate
	c.EndDate = r.EndDate
	c.Location = r.Location
	c.Tours = r.Tours
	c.OpeningDate = r.OpeningDate
	c.OpeningTime = r.OpeningTime
	c.IndividualFormat = r.IndividualFormat
	c.TeamFormat = r.TeamFormat
	c.Fee = r.Fee
	c.TeamLimit = r.TeamLimit
	c.Regulations = r.Regulations
}

func decodeCompetition(body io.Reader) (competitionInput, error) {
	var in competitionInput
	if err := json.NewDecoder(body).Decode(&in); err != nil {
		return in, bodyError(err, "Invalid JSON body")
	}
	return in, nil
}

// Competition validates a full competition body.
func Competition(body io.Reader) (CompetitionRequest, error) {
	in, err := decodeCompetition(body)
	if err != nil {
		return CompetitionRequest{}, err
	}
	return in.validate()
}

// CompetitionPatch overlays the supplied fields on existing and validates the result.
func CompetitionPatch(body io.Reader, existing *models.Competition) (CompetitionRequest, error) {
	patch, err := decodeCompetition(body)
	if err != nil {
		return CompetitionRequest{}, err
	}
	merged := inputFrom(existing)
	merged.overlay(patch)
	return merged.validate()
}

func inputFrom(c *models.Competition) competitionInput {
	str := func(s string) *string { return &s }
	in := competitionInput{
		Title:            str(c.Title),
		StartDate:        str(c.StartDate.Format(time.RFC3339)),
		EndDate:          str(c.EndDate.Format(time.RFC3339)),
		Location:         str(c.Location),
		OpeningTime:      str(c.OpeningTime),
		IndividualFormat: &c.IndividualFormat,
		TeamFormat:       &c.TeamFormat,
		Regulations:      str(c.Regulations),
	}
	tours := make([]TourInput, 0, len(c.Tours))
	for _, t := range c.Tours {
		tours = append(tours, TourInput{Date: t.Date.Format(time.RFC3339), Time: t.Time})
	}
	in.Tours = &tours
	if c.OpeningDate != nil {
		in.OpeningDate = str(c.OpeningDate.Format(time.RFC3339))
	}
	if c.Fee != nil {
		fee := looseString(strconv.FormatFloat(*c.Fee, 'f', -1, 64))
		in.Fee = &fee
	}
	if c.TeamLimit != nil {
		limit := looseString(strconv.Itoa(*c.TeamLimit))
		in.TeamLimit = &limit
	}
	return in
}

func (in *competitionInput) overlay(p competitionInput) {
	if p.Title != nil {
		in.Title = p.Title
	}
	if p.StartDate != nil {
		in.StartDate = p.StartDate
	}
	if p.EndDate != nil {
		in.EndDate = p.EndDate
	}
	if p.Location != nil {
		in.Location = p.Location
	}
	if p.Tours != nil {
		in.Tours = p.Tours
	}
	if p.OpeningDate != nil {
		in.OpeningDate = p.OpeningDate
	}
	if p.OpeningTime != nil {
		in.OpeningTime = p.OpeningTime
	}
	if p.IndividualFormat != nil {
		in.IndividualFormat = p.IndividualFormat
	}
	if p.TeamFormat != nil {
		in.TeamFormat = p.TeamFormat
	}
	if p.Fee != nil {
		in.Fee = p.Fee
	}
	if p.TeamLimit != nil {
		in.TeamLimit = p.TeamLimit
	}
	if p.Regulations != nil {
		in.Regulations = p.Regulations
	}
}

// ParseDate accepts YYYY-MM-DD or RFC 3339 and returns UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (in competitionInput) validate() (CompetitionRequest, error) {
	var c checker
	var req CompetitionRequest

	req.Title = strings.TrimSpace(deref(in.Title))
	n := runes(req.Title)
	c.check(n >= 3 && n <= 200, "title", "must be 3-200 characters")

	req.Location = strings.TrimSpace(deref(in.Location))
	n = runes(req.Location)
	c.check(n >= 1 && n <= 200, "location", "must be 1-200 characters")

	var ok bool
	req.StartDate, ok = ParseDate(deref(in.StartDate))
	c.check(ok, "startDate", "must be a date")
	req.EndDate, ok = ParseDate(deref(in.EndDate))
	if c.check(ok, "endDate", "must be a date") && !c.failed("startDate") {
		c.check(!req.EndDate.Before(req.StartDate), "endDate", "must not be before the start date")
	}

	if in.Tours == nil || len(*in.Tours) == 0 {
		c.fail("tours", "at least one tour is required")
	} else {
		for _, t := range *in.Tours {
			d, ok := ParseDate(t.Date)
			tm := strings.TrimSpace(t.Time)
			if !ok || !clockRe.MatchString(tm) {
				c.fail("tours", "every tour needs a date and an HH:MM time")
				break
			}
			req.Tours = append(req.Tours, models.Tour{Date: d, Time: tm})
		}
	}

	if raw := strings.TrimSpace(deref(in.OpeningDate)); raw != "" {
		d, ok := ParseDate(raw)
		if c.check(ok, "openingDate", "must be a date") {
			req.OpeningDate = &d
		}
	}
	if raw := strings.TrimSpace(deref(in.OpeningTime)); raw != "" {
		if c.check(clockRe.MatchString(raw), "openingTime", "must be HH:MM") {
			c.check(req.OpeningDate != nil || c.failed("openingDate"), "openingTime", "requires an opening date")
			req.OpeningTime = raw
		}
	}

	req.IndividualFormat = in.IndividualFormat != nil && *in.IndividualFormat
	req.TeamFormat = in.TeamFormat != nil && *in.TeamFormat
	c.check(req.IndividualFormat || req.TeamFormat, "format", "choose at least one competition format")

	if in.Fee != nil {
		if raw := strings.TrimSpace(string(*in.Fee)); raw != "" {
			fee, err := strconv.ParseFloat(raw, 64)
			finite := !math.IsInf(fee, 0) && !math.IsNaN(fee)
			if c.check(err == nil && finite && fee >= 0, "fee", "must be a non-negative number") {
				req.Fee = &fee
			}
		}
	}
	if in.TeamLimit != nil {
		if raw := strings.TrimSpace(string(*in.TeamLimit)); raw != "" {
			limit, err := strconv.Atoi(raw)
			if c.check(err == nil && limit >= 1, "teamLimit", "must be a positive whole number") {
				req.TeamLimit = &limit
			}
		}
	}

	req.Regulations = strings.TrimSpace(deref(in.Regulations))
	c.check(runes(req.Regulations) <= maxRegulationsLen, "regulations", "must be at most 10000 characters")

	return req, c.err()
}
