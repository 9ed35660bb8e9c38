// Command bot runs the Telegram approval bot and the publish scheduler.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"review_bot/internal/bot"
	"review_bot/internal/config"
	"review_bot/internal/logging"
	"review_bot/internal/publish"
	"review_bot/internal/queue"
	"review_bot/internal/scheduler"
	"review_bot/internal/storage"
)

const announceEvery = time.Minute

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err == nil {
		err = cfg.RequireBot()
	}
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel)

	dataPath := cfg.PostsFile
	if cfg.PostStore == storage.BackendSQLite {
		dataPath = cfg.DatabasePath
	}
	if dir := filepath.Dir(dataPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.Open(cfg.PostStore, cfg.PostsFile, cfg.DatabasePath)
	if err != nil {
		log.Error("open post store", "backend", cfg.PostStore, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	q := queue.New(store, log)

	b, err := bot.New(cfg.TelegramBotToken, q, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot", "store", cfg.PostStore, "chat_id", cfg.TelegramChatID)

	go b.WatchPending(ctx, announceEvery)

	if cfg.PublishEndpoint != "" {
		sched := scheduler.New(q, publish.NewRelay(cfg.PublishEndpoint, cfg.PublishToken, log), log)
		sched.SetTickInterval(cfg.PublishInterval)
		sched.SetNotifier(b)
		go sched.Run(ctx)
	} else {
		log.Warn("PUBLISH_ENDPOINT not set, approved posts will not be published")
	}

	b.Run(ctx)

	log.Info("bot stopped")
}
