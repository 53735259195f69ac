package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/telegram-cin-bot/config"
	"github.com/raine/telegram-cin-bot/internal/bot"
	"github.com/raine/telegram-cin-bot/internal/capture"
	"github.com/raine/telegram-cin-bot/internal/cin"
	"github.com/raine/telegram-cin-bot/internal/llm"
	"github.com/raine/telegram-cin-bot/internal/pipeline"
	"github.com/raine/telegram-cin-bot/internal/retention"
	"github.com/raine/telegram-cin-bot/internal/server"
	"github.com/raine/telegram-cin-bot/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const logFileName = "telegram-cin-bot.log"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Try to load existing .env file
	config.LoadEnvFile()

	if missing := config.CheckRequired(); len(missing) > 0 {
		bot.FatalWithWait("missing required config: %s", strings.Join(missing, ", "))
	}

	// JOURNAL_STREAM is set by systemd when running as a service.
	// Skip file logging under systemd (journald handles it).
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			bot.FatalWithWait("failed to open log file: %v", err)
		}
		defer logFile.Close()

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
		fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
		log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))

		log.Info().Str("logFile", logFileName).Msg("logging to file")
	}

	cfg, err := config.Load()
	if err != nil {
		bot.FatalWithWait("%v", err)
	}

	tg, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		bot.FatalWithWait("failed to initialize telegram bot: %v", err)
	}
	tg.Debug = false
	log.Info().Str("username", tg.Self.UserName).Msg("authorized on account")

	// Register bot commands for Telegram's command menu
	bot.RegisterCommands(tg)

	encryptionKey, err := storage.DeriveKey(cfg.TokenKey)
	if err != nil {
		bot.FatalWithWait("failed to derive encryption key: %v", err)
	}

	sessionStore, err := storage.NewSQLiteStore(cfg.DBPath, encryptionKey)
	if err != nil {
		bot.FatalWithWait("failed to initialize session store: %v", err)
	}
	defer sessionStore.Close()
	log.Info().Str("dbPath", cfg.DBPath).Msg("session store initialized")

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var extractor pipeline.Extractor
	switch cfg.Extractor {
	case config.ExtractorGemini:
		gemini, err := llm.NewGeminiExtractor(ctx, cfg.GeminiAPIKey)
		if err != nil {
			bot.FatalWithWait("failed to initialize gemini extractor: %v", err)
		}
		extractor = gemini
		log.Info().Msg("using gemini extractor")
	default:
		extractor = cin.NewUploadClient(cin.ClientOpts{BaseURL: cfg.UploadURL})
		log.Info().Str("url", cfg.UploadURL).Msg("using remote extractor")
	}

	services := bot.Services{
		Auth:            cin.NewAuthClient(cin.ClientOpts{BaseURL: cfg.AuthURL}),
		Extractor:       extractor,
		DefaultViewport: capture.Viewport{Width: cfg.PreviewWidth, Height: cfg.PreviewHeight},
	}

	g, ctx := errgroup.WithContext(ctx)

	// Run bot update loop
	g.Go(func() error {
		return runBot(ctx, tg, sessionStore, cfg.AdminID, services)
	})

	adminServer := server.New(cfg.AdminAddr, sessionStore)
	g.Go(func() error {
		return adminServer.Run(ctx)
	})

	retentionService := retention.NewService(sessionStore, cfg.Retention)
	g.Go(func() error {
		retentionService.Run(ctx)
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

func runBot(ctx context.Context, tg *tgbotapi.BotAPI, sessionStore storage.SessionStore, adminID int64, services bot.Services) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := tg.GetUpdatesChan(updateConfig)

	b := bot.NewBot(tg, sessionStore, adminID, services)
	defer b.Shutdown()

	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping bot update loop")
			tg.StopReceivingUpdates()
			log.Info().Msg("waiting for active handlers to finish")
			wg.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				log.Warn().Msg("updates channel closed")
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func(u tgbotapi.Update) {
				defer wg.Done()
				b.HandleUpdate(ctx, u)
			}(update)
		}
	}
}
