package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielBronsky/cnpf-feeder/internal/logger"
	"github.com/DanielBronsky/cnpf-feeder/internal/models"
)

type sent struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
	fail int64
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	if msg.ChatID == f.fail {
		return tgbotapi.Message{}, errors.New("chat not found")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{chatID: msg.ChatID, text: msg.Text})
	return tgbotapi.Message{}, nil
}

func newTestTelegram(chatIDs ...int64) (*Telegram, *fakeSender) {
	f := &fakeSender{}
	return &Telegram{send: f, chatIDs: chatIDs, log: logger.Discard()}, f
}

func TestBroadcastReachesEveryChat(t *testing.T) {
	tg, f := newTestTelegram(1, 2, 3)
	f.fail = 2

	tg.ReportPublished(context.Background(), &models.Report{Title: "Pike", Photos: make([]models.Image, 2)}, "ion")
	tg.Close()

	require.Len(t, f.msgs, 2)
	assert.Equal(t, int64(1), f.msgs[0].chatID)
	assert.Equal(t, int64(3), f.msgs[1].chatID)
	assert.Equal(t, "🎣 New report by ion: Pike (2 photo(s))", f.msgs[0].text)
}

func TestReportTextPreview(t *testing.T) {
	r := &models.Report{Title: "Perch", Text: "<p>Good   <b>bite</b></p>\n<p>at dawn</p>"}
	assert.Equal(t, "🎣 New report by ana: Perch\nGood bite at dawn", reportText(r, "ana"))

	assert.Equal(t, "5 > 3 & more", preview("5 > 3 & more"))
	long := preview(strings.Repeat("a", 500))
	assert.Equal(t, previewLen, utf8.RuneCountInString(long))
	assert.True(t, strings.HasSuffix(long, "…"))
}

func TestRegistrationText(t *testing.T) {
	c := &models.Competition{Title: "Spring Cup"}
	team := &models.Registration{Type: models.RegistrationTeam, TeamName: "Pikes"}
	assert.Equal(t, `📝 ion registered team "Pikes" for Spring Cup`, registrationText(c, team, "ion"))

	solo := &models.Registration{Type: models.RegistrationIndividual, Participants: []models.Person{{FirstName: "Ana", LastName: "Rusu"}}}
	assert.Equal(t, "📝 Ana Rusu registered for Spring Cup", registrationText(c, solo, "ana"))
}

func TestHandleMessage(t *testing.T) {
	tg, f := newTestTelegram()
	echo := func(_ context.Context, text string) (string, error) { return "answer: " + text, nil }

	msg := &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 7}, Text: "pike reports"}
	require.NoError(t, tg.handleMessage(context.Background(), msg, echo))

	start := &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 7},
		Text:     "/start",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}
	require.NoError(t, tg.handleMessage(context.Background(), start, echo))

	require.Len(t, f.msgs, 2)
	assert.Equal(t, "answer: pike reports", f.msgs[0].text)
	assert.Contains(t, f.msgs[1].text, "Ask me")

	failing := func(context.Context, string) (string, error) { return "", errors.New("store down") }
	assert.Error(t, tg.handleMessage(context.Background(), msg, failing))
}
