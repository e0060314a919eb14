package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverMongo = "mongo"
	DriverBolt  = "bolt"
)

type Config struct {
	AuthSecret string
	Production bool

	HTTPAddr        string
	ShutdownTimeout time.Duration

	StorageDriver string
	MongoURI      string
	MongoDatabase string
	BoltPath      string

	LogLevel  string
	LogFormat string

	TelegramToken   string
	TelegramChatIDs []int64

	SpreadsheetID            string
	GoogleServiceAccountJSON string
	SheetsSyncCron           string
}

// SheetsEnabled reports whether the Google Sheets export is configured.
func (c Config) SheetsEnabled() bool {
	return c.SpreadsheetID != "" && c.GoogleServiceAccountJSON != ""
}

// TelegramEnabled reports whether new-content notifications can be sent.
func (c Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && len(c.TelegramChatIDs) > 0
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func FromEnv() (Config, error) {
	var c Config
	c.AuthSecret = strings.TrimSpace(os.Getenv("AUTH_SECRET"))
	c.Production = strings.EqualFold(env("APP_ENV", "development"), "production")

	c.HTTPAddr = env("HTTP_ADDR", ":8080")

	c.StorageDriver = strings.ToLower(env("STORAGE_DRIVER", DriverMongo))
	c.MongoURI = strings.TrimSpace(os.Getenv("MONGODB_URI"))
	c.MongoDatabase = env("MONGODB_DATABASE", "cnpf")
	c.BoltPath = env("BOLT_PATH", "data/cnpf.db")

	c.LogLevel = strings.ToLower(env("LOG_LEVEL", "info"))
	c.LogFormat = strings.ToLower(env("LOG_FORMAT", "text"))

	c.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	c.TelegramChatIDs = parseChatIDs(os.Getenv("TELEGRAM_CHAT_IDS"))

	c.SpreadsheetID = strings.TrimSpace(os.Getenv("GOOGLE_SHEETS_SPREADSHEET_ID"))
	c.GoogleServiceAccountJSON = strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	c.SheetsSyncCron = env("SHEETS_SYNC_CRON", "*/30 * * * *")

	timeout, err := time.ParseDuration(env("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return c, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}
	c.ShutdownTimeout = timeout

	if c.AuthSecret == "" {
		return c, fmt.Errorf("AUTH_SECRET is empty")
	}
	switch c.StorageDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			return c, fmt.Errorf("MONGODB_URI is empty")
		}
	case DriverBolt:
	default:
		return c, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", DriverMongo, DriverBolt, c.StorageDriver)
	}
	return c, nil
}

// parseChatIDs reads a comma-separated list of Telegram chat ids, skipping junk.
func parseChatIDs(raw string) []int64 {
	var ids []int64
	seen := map[int64]bool{}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || seen[v] {
			continue
		}
		seen[v] = true
		ids = append(ids, v)
	}
	return ids
}
