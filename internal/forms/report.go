package forms

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/DanielBronsky/cnpf-feeder/internal/models"
)

const (
	MaxPhotos    = 10
	MaxPhotoSize = 2 << 20

	DefaultReportLimit = 20
	MaxReportLimit     = 30
)

type ReportRequest struct {
	Title  string
	Text   string
	Photos []models.Image
}

// ReportPatchRequest holds only what the client supplied.
type ReportPatchRequest struct {
	Title           *string
	Text            *string
	RemovePhotos    map[int]bool
	RemoveAllPhotos bool
	NewPhotos       []models.Image
}

func (c *checker) title(raw string) string {
	title := strings.TrimSpace(raw)
	n := runes(title)
	c.check(n >= 3 && n <= 120, "title", "must be 3-120 characters")
	return title
}

func (c *checker) text(raw string) string {
	text := strings.TrimSpace(raw)
	n := runes(text)
	c.check(n >= 1 && n <= 5000, "text", "must be 1-5000 characters")
	return text
}

func (c *checker) photos(src *Source) []models.Image {
	files := src.Files("photos")
	if !c.check(len(files) <= MaxPhotos, "photos", fmt.Sprintf("at most %d photos", MaxPhotos)) {
		return nil
	}
	photos := make([]models.Image, 0, len(files))
	for i, fh := range files {
		img, reason := readImage(fh, MaxPhotoSize)
		if reason != "" {
			c.fail("photos", fmt.Sprintf("photo %d %s", i+1, reason))
			return nil
		}
		photos = append(photos, img)
	}
	return photos
}

func Report(src *Source) (ReportRequest, error) {
	var c checker
	req := ReportRequest{
		Title:  c.title(src.Get("title")),
		Text:   c.text(src.Get("text")),
		Photos: c.photos(src),
	}
	return req, c.err()
}

func ReportPatch(src *Source) (ReportPatchRequest, error) {
	var c checker
	var req ReportPatchRequest
	if src.Has("title") {
		t := c.title(src.Get("title"))
		req.Title = &t
	}
	if src.Has("text") {
		t := c.text(src.Get("text"))
		req.Text = &t
	}
	req.RemoveAllPhotos = src.Flag("removeAllPhotos")
	for _, raw := range src.All("removePhoto") {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n >= 0 {
			if req.RemovePhotos == nil {
				req.RemovePhotos = map[int]bool{}
			}
			req.RemovePhotos[n] = true
		}
	}
	req.NewPhotos = c.photos(src)
	return req, c.err()
}

// TouchesPhotos reports whether the patch changes the photo list at all.
func (p ReportPatchRequest) TouchesPhotos() bool {
	return p.RemoveAllPhotos || len(p.RemovePhotos) > 0 || len(p.NewPhotos) > 0
}

// Apply merges the patch onto r. The merged photo list may not exceed MaxPhotos.
// RemoveAllPhotos empties the list and wins over removals and new uploads.
func (p ReportPatchRequest) Apply(r *models.Report) error {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Text != nil {
		r.Text = *p.Text
	}
	if !p.TouchesPhotos() {
		return nil
	}
	if p.RemoveAllPhotos {
		r.Photos = []models.Image{}
		return nil
	}
	kept := []models.Image{}
	for i, ph := range r.Photos {
		if !p.RemovePhotos[i] {
			kept = append(kept, ph)
		}
	}
	merged := append(kept, p.NewPhotos...)
	if len(merged) > MaxPhotos {
		return &Error{Message: "Invalid input", Fields: map[string]string{"photos": fmt.Sprintf("at most %d photos", MaxPhotos)}}
	}
	r.Photos = merged
	return nil
}

// ReportLimit parses the list size, clamped to 1..30 with a default of 20.
func ReportLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n == 0 {
		return DefaultReportLimit
	}
	if n < 1 {
		return 1
	}
	if n > MaxReportLimit {
		return MaxReportLimit
	}
	return n
}
