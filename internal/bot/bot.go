// Package bot is the Telegram operator bot used to review and approve
// queued posts.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"review_bot/internal/config"
	"review_bot/internal/model"
	"review_bot/internal/queue"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the Telegram bot that handles operator commands and announces
// posts waiting for approval.
type Bot struct {
	api   telegramAPI
	queue *queue.Queue
	cfg   *config.Config
	log   *slog.Logger

	mu        sync.Mutex
	announced map[string]bool
}

// New creates a Bot with the given Telegram token, post queue, and config.
func New(token string, q *queue.Queue, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newBot(api, q, cfg, log), nil
}

func newBot(api telegramAPI, q *queue.Queue, cfg *config.Config, log *slog.Logger) *Bot {
	return &Bot{
		api:       api,
		queue:     q,
		cfg:       cfg,
		log:       log,
		announced: make(map[string]bool),
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.From == nil || !b.cfg.IsUserAllowed(cb.From.ID) {
			b.answer(cb.ID, "Access denied.")
			return
		}
		b.handleCallback(ctx, cb)
		return
	}
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}
	if msg.From == nil || !b.cfg.IsUserAllowed(msg.From.ID) {
		b.reply(msg.Chat.ID, "Access denied.")
		return
	}
	b.handleCommand(ctx, msg)
}

// WatchPending announces new pending posts every interval until ctx is
// cancelled.
func (b *Bot) WatchPending(ctx context.Context, every time.Duration) {
	b.AnnouncePending(ctx)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.AnnouncePending(ctx)
		}
	}
}

// AnnouncePending sends every pending post not announced yet to the
// operator chat, with its card image and an Approve button. It returns the
// number of posts announced.
func (b *Bot) AnnouncePending(ctx context.Context) int {
	if b.cfg.TelegramChatID == 0 {
		return 0
	}
	pending, err := b.queue.List(ctx, model.StatusPending)
	if err != nil {
		b.log.Error("list pending posts", "error", err)
		return 0
	}

	n := 0
	for _, p := range pending {
		b.mu.Lock()
		seen := b.announced[p.UID]
		b.announced[p.UID] = true
		b.mu.Unlock()
		if seen {
			continue
		}
		b.announce(b.cfg.TelegramChatID, p)
		n++
	}
	if n > 0 {
		b.log.Info("announced pending posts", "count", n)
	}
	return n
}

func (b *Bot) announce(chatID int64, p model.Post) {
	keyboard := approveKeyboard(p.UID)
	text := FormatAnnouncement(p)

	if len(p.Media) > 0 {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(p.Media[0]))
		photo.Caption = truncateCaption(text)
		photo.ReplyMarkup = keyboard
		_, err := b.api.Send(photo)
		if err == nil {
			return
		}
		b.log.Warn("send card photo, falling back to text", "uid", p.UID, "media", p.Media[0], "error", err)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send announcement", "uid", p.UID, "chat_id", chatID, "error", err)
	}
}

// Notify sends text to the operator chat, if one is configured.
func (b *Bot) Notify(text string) {
	if b.cfg.TelegramChatID == 0 {
		return
	}
	b.SendMessage(b.cfg.TelegramChatID, text)
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "pending":
		b.handleList(ctx, chatID, model.StatusPending)
	case "approved":
		b.handleList(ctx, chatID, model.StatusApproved)
	case cmdInfo:
		b.handleInfo(ctx, chatID, args)
	case cmdApprove:
		b.handleApprove(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

func approveKeyboard(uid string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Approve", cmdApprove+":"+uid),
			tgbotapi.NewInlineKeyboardButtonData("Details", cmdInfo+":"+uid),
		),
	)
}
