package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cmdApprove = "approve"
	cmdInfo    = "info"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	b.answer(cb.ID, "")
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	action, uid, ok := strings.Cut(cb.Data, ":")
	if !ok || uid == "" {
		return
	}

	b.log.Info("callback",
		"action", action,
		"uid", uid,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cmdApprove:
		b.handleApprove(ctx, chatID, uid)
	case cmdInfo:
		b.handleInfo(ctx, chatID, uid)
	}
}
