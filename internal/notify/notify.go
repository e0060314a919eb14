// Package notify tells the organisers' Telegram chats about new content.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/DanielBronsky/cnpf-feeder/internal/models"
)

// previewLen caps the report excerpt in a notification, in runes.
const previewLen = 200

// Notifier is called after a write succeeds. Implementations must not block the request.
type Notifier interface {
	ReportPublished(ctx context.Context, r *models.Report, author string)
	RegistrationCreated(ctx context.Context, c *models.Competition, reg *models.Registration, by string)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) ReportPublished(context.Context, *models.Report, string) {}

func (Nop) RegistrationCreated(context.Context, *models.Competition, *models.Registration, string) {}

func reportText(r *models.Report, author string) string {
	text := fmt.Sprintf("🎣 New report by %s: %s", author, r.Title)
	if n := len(r.Photos); n > 0 {
		text += fmt.Sprintf(" (%d photo(s))", n)
	}
	if p := preview(r.Text); p != "" {
		text += "\n" + p
	}
	return text
}

// preview renders report text for a chat message. Reports pasted from rich
// editors carry markup, which chats would show literally, so tags are reduced
// to their text. The stored report is never changed.
func preview(s string) string {
	if strings.ContainsRune(s, '<') {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	s = strings.Join(strings.Fields(s), " ")
	if rs := []rune(s); len(rs) > previewLen {
		s = string(rs[:previewLen-1]) + "…"
	}
	return s
}

func registrationText(c *models.Competition, reg *models.Registration, by string) string {
	switch reg.Type {
	case models.RegistrationTeam:
		return fmt.Sprintf("📝 %s registered team %q for %s", by, reg.TeamName, c.Title)
	default:
		name := by
		if len(reg.Participants) > 0 {
			name = reg.Participants[0].FullName()
		}
		return fmt.Sprintf("📝 %s registered for %s", name, c.Title)
	}
}
