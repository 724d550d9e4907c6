package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/medconn/medconnect/dialog"
	"github.com/medconn/medconnect/identity"
	"github.com/medconn/medconnect/ingest"
	"github.com/medconn/medconnect/internal/logutil"
	"github.com/medconn/medconnect/internal/telegram"
	"github.com/medconn/medconnect/records"
	"github.com/medconn/medconnect/sheetstore"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram intake bot against the shared workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(flagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"))
			if token == "" {
				return fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or MEDBOT_TELEGRAM_BOT_TOKEN)")
			}

			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			pollTimeout := flagOrViperDuration(cmd, "poll-timeout", "telegram.poll_timeout")
			if pollTimeout <= 0 {
				pollTimeout = 30 * time.Second
			}

			storePath := expandHomePath(flagOrViperString(cmd, "store-path", "store.path"))
			store, err := sheetstore.Open(storePath, logger)
			if err != nil {
				return fmt.Errorf("open record store: %w", err)
			}
			defer func() { _ = store.Close() }()

			db, err := records.Open(records.Options{Store: store, Logger: logger})
			if err != nil {
				return err
			}

			resolver, err := identity.NewResolver(db.Users, logger)
			if err != nil {
				return err
			}

			bot, err := telegram.NewClient(telegram.ClientOptions{
				HTTPClient: &http.Client{Timeout: pollTimeout + 30*time.Second},
				BaseURL:    flagOrViperString(cmd, "telegram-base-url", "telegram.base_url"),
				Token:      token,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			filesDir := expandHomePath(flagOrViperString(cmd, "files-dir", "files.dir"))
			pipeline, err := ingest.New(ingest.Options{
				Fetcher:  bot,
				Dir:      filesDir,
				MaxBytes: flagOrViperInt64(cmd, "files-max-bytes", "files.max_bytes"),
				Logger:   logger,
			})
			if err != nil {
				return fmt.Errorf("attachment pipeline: %w", err)
			}

			keywords := dialog.DefaultKeywords()
			if path := strings.TrimSpace(flagOrViperString(cmd, "keywords", "keywords.path")); path != "" {
				keywords, err = dialog.LoadKeywords(expandHomePath(path))
				if err != nil {
					return fmt.Errorf("load keywords: %w", err)
				}
			}

			engine, err := dialog.NewEngine(dialog.Options{
				Messenger: bot,
				Resolver:  resolver,
				DB:        db,
				Ingestor:  pipeline,
				Router:    dialog.NewRouter(keywords),
				Logger:    logger,
			})
			if err != nil {
				return err
			}

			ctx := context.Background()

			me, err := bot.GetMe(ctx)
			if err != nil {
				return fmt.Errorf("telegram getMe: %w", err)
			}

			logger.Info("medbot_start",
				"bot_username", me.Username,
				"store_path", storePath,
				"files_dir", filesDir,
				"poll_timeout", pollTimeout.String(),
			)

			prober := telegram.Prober{Logger: logger}

			var offset int64
			consecutiveErrors := 0
			for {
				updates, nextOffset, err := bot.GetUpdates(ctx, offset, pollTimeout)
				if err != nil {
					consecutiveErrors++
					logger.Warn("telegram_get_updates_error",
						"error", err.Error(), "consecutive", consecutiveErrors)
					if consecutiveErrors >= 3 && !prober.Reachable(ctx) {
						logger.Warn("network_unreachable_waiting")
						prober.WaitForConnection(ctx, 5*time.Minute)
						consecutiveErrors = 0
						continue
					}
					wait := time.Duration(consecutiveErrors*2) * time.Second
					if wait > 30*time.Second {
						wait = 30 * time.Second
					}
					time.Sleep(wait)
					continue
				}
				consecutiveErrors = 0
				offset = nextOffset

				for _, u := range updates {
					engine.HandleUpdate(ctx, u)
				}
			}
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().String("telegram-base-url", "", "Telegram Bot API base URL (override for tests).")
	cmd.Flags().Duration("poll-timeout", 30*time.Second, "getUpdates long-poll timeout.")
	cmd.Flags().String("store-path", "", "Path to the shared .xlsx workbook.")
	cmd.Flags().String("files-dir", "", "Directory for downloaded exam attachments.")
	cmd.Flags().Int64("files-max-bytes", 0, "Per-attachment size cap in bytes.")
	cmd.Flags().String("keywords", "", "Optional yaml file overriding the keyword sets.")

	return cmd
}
