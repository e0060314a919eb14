package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/DanielBronsky/cnpf-feeder/internal/models"
)

// floodDelay spaces consecutive messages to stay under Telegram's rate limit.
const floodDelay = 35 * time.Millisecond

// Responder answers a free-text message from a chat.
type Responder func(ctx context.Context, text string) (string, error)

// sender is the part of tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	bot     *tgbotapi.BotAPI
	send    sender
	chatIDs []int64
	log     *slog.Logger

	wg sync.WaitGroup
}

func NewTelegram(token string, chatIDs []int64, log *slog.Logger) (*Telegram, error) {
	b, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	b.Debug = false
	return &Telegram{bot: b, send: b, chatIDs: chatIDs, log: log}, nil
}

func (t *Telegram) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := t.send.Send(msg)
	return err
}

// broadcast sends text to every configured chat in the background.
func (t *Telegram) broadcast(text string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for i, id := range t.chatIDs {
			if i > 0 {
				time.Sleep(floodDelay)
			}
			if err := t.SendText(id, text); err != nil {
				t.log.Warn("telegram send failed", "chat_id", id, "err", err)
			}
		}
	}()
}

func (t *Telegram) ReportPublished(_ context.Context, r *models.Report, author string) {
	t.broadcast(reportText(r, author))
}

func (t *Telegram) RegistrationCreated(_ context.Context, c *models.Competition, reg *models.Registration, by string) {
	t.broadcast(registrationText(c, reg, by))
}

// Close waits for pending broadcasts.
func (t *Telegram) Close() {
	t.wg.Wait()
}

// Run polls for updates and answers text messages with respond until ctx is done.
func (t *Telegram) Run(ctx context.Context, respond Responder) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)
	defer t.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			if upd.Message == nil {
				continue
			}
			if err := t.handleMessage(ctx, upd.Message, respond); err != nil {
				t.log.Warn("telegram handle message", "chat_id", upd.Message.Chat.ID, "err", err)
			}
		}
	}
}

func (t *Telegram) handleMessage(ctx context.Context, m *tgbotapi.Message, respond Responder) error {
	chatID := m.Chat.ID
	txt := strings.TrimSpace(m.Text)
	switch {
	case txt == "":
		return nil
	case m.IsCommand() && (m.Command() == "start" || m.Command() == "help"):
		return t.SendText(chatID, "Ask me about fishing reports or competitions, e.g. \"pike reports\".")
	case m.IsCommand():
		txt = strings.TrimSpace(m.Command() + " " + m.CommandArguments())
	}
	answer, err := respond(ctx, txt)
	if err != nil {
		_ = t.SendText(chatID, "Something went wrong, try again later.")
		return err
	}
	return t.SendText(chatID, answer)
}
