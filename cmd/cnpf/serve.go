package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/DanielBronsky/cnpf-feeder/internal/auth"
	"github.com/DanielBronsky/cnpf-feeder/internal/chat"
	"github.com/DanielBronsky/cnpf-feeder/internal/config"
	"github.com/DanielBronsky/cnpf-feeder/internal/logger"
	"github.com/DanielBronsky/cnpf-feeder/internal/models"
	"github.com/DanielBronsky/cnpf-feeder/internal/notify"
	"github.com/DanielBronsky/cnpf-feeder/internal/roster"
	"github.com/DanielBronsky/cnpf-feeder/internal/scheduler"
	"github.com/DanielBronsky/cnpf-feeder/internal/server"
	"github.com/DanielBronsky/cnpf-feeder/internal/sheets"
	"github.com/DanielBronsky/cnpf-feeder/internal/store"
	"github.com/DanielBronsky/cnpf-feeder/internal/store/boltstore"
	"github.com/DanielBronsky/cnpf-feeder/internal/store/mongostore"
)

// sheetsSyncTimeout bounds one scheduled export of every competition.
const sheetsSyncTimeout = 5 * time.Minute

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverBolt:
		return boltstore.Open(cfg.BoltPath)
	default:
		return mongostore.OpenWithTimeout(ctx, cfg.MongoURI, cfg.MongoDatabase)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	log := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	codec, err := auth.NewCodec(cfg.AuthSecret)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if cerr := st.Close(closeCtx); cerr != nil {
			log.Warn("store close", "err", cerr)
		}
	}()
	log.Info("store ready", "driver", cfg.StorageDriver)

	var notifier notify.Notifier = notify.Nop{}
	var bot *notify.Telegram
	if cfg.TelegramEnabled() {
		bot, err = notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatIDs, log)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		notifier = bot
		assistant := chat.New(st)
		go func() {
			err := bot.Run(ctx, func(ctx context.Context, text string) (string, error) {
				reply, err := assistant.Answer(ctx, text)
				if err != nil {
					return "", err
				}
				return reply.Text(), nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("telegram bot stopped", "err", err)
			}
		}()
	}

	var exporter roster.Exporter
	sched := scheduler.New(log, sheetsSyncTimeout)
	if cfg.SheetsEnabled() {
		sheetsClient, err := sheets.New(ctx, cfg.GoogleServiceAccountJSON, cfg.SpreadsheetID)
		if err != nil {
			return fmt.Errorf("sheets: %w", err)
		}
		exporter = sheetsClient
		log.Info("sheets export enabled", "spreadsheet", sheetsClient.SpreadsheetID(), "cron", cfg.SheetsSyncCron)
		err = sched.Add("sheets-sync", cfg.SheetsSyncCron, func(ctx context.Context) error {
			n, err := roster.ExportAll(ctx, st, sheetsClient)
			log.Info("sheets sync", "competitions", n)
			return err
		})
		if err != nil {
			return err
		}
	}
	sched.Start()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	httpSrv := server.New(server.Deps{
		Config:   cfg,
		Store:    st,
		Codec:    codec,
		Notifier: notifier,
		Exporter: exporter,
		Logger:   log,
		Registry: reg,
	})

	errc := make(chan error, 1)
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errc:
		log.Error("http server", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		log.Warn("http shutdown", "err", serr)
	}
	sched.Stop()
	if bot != nil {
		bot.Close()
	}
	log.Info("bye")
	return err
}

func grantAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant-admin <email-or-username>",
		Short: "Give a user admin rights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			defer st.Close(context.Background())

			u, err := grantAdmin(ctx, st, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now an admin\n", u.DisplayName(), u.ID.Hex())
			return nil
		},
	}
}

func grantAdmin(ctx context.Context, users store.Users, login string) (*models.User, error) {
	u, err := users.UserByLogin(ctx, strings.ToLower(strings.TrimSpace(login)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("no user %q", login)
		}
		return nil, err
	}
	admin := true
	if err := users.UpdateUser(ctx, u.ID, models.UserPatch{IsAdmin: &admin}); err != nil {
		return nil, err
	}
	return u, nil
}
