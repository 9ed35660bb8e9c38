package bot

import (
	"context"
	"errors"
	"fmt"

	"review_bot/internal/model"
	"review_bot/internal/queue"
	"review_bot/internal/storage"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Review Bot!

Captured Google Maps reviews are queued here for approval before they are published.

Quick start:
1. /pending — see posts waiting for approval
2. /info <uid> — look at one post
3. /approve <uid> — approve it for publishing

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Queue:
/pending — posts waiting for approval
/approved — approved posts not yet published
/info <uid> — post details

Approval:
/approve <uid> — publish on the next run
/approve <uid> <time> — publish at or after time (RFC 3339, e.g. 2025-07-14T18:00:00Z)`)
}

func (b *Bot) handleList(ctx context.Context, chatID int64, status model.Status) {
	posts, err := b.queue.List(ctx, status)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatPostList(status, posts))
}

func (b *Bot) handleInfo(ctx context.Context, chatID int64, args string) {
	uid, err := ParseUIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /info <uid>")
		return
	}

	post, err := b.queue.Get(ctx, uid)
	if err != nil {
		b.replyError(chatID, uid, err)
		return
	}
	b.reply(chatID, FormatPostInfo(post))
}

func (b *Bot) handleApprove(ctx context.Context, chatID int64, args string) {
	uid, at, err := ParseApproveArgs(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("%v\nUsage: /approve <uid> [time]", err))
		return
	}

	post, err := b.queue.Approve(ctx, uid, at)
	if err != nil {
		b.replyError(chatID, uid, err)
		return
	}

	b.log.Info("post approved", "uid", uid, "chat_id", chatID, "scheduled", at != nil)
	if post.ScheduledAt != nil {
		b.reply(chatID, fmt.Sprintf("Post %s approved, scheduled for %s.", uid, post.ScheduledAt.Format(timeLayout)))
		return
	}
	b.reply(chatID, fmt.Sprintf("Post %s approved, it will be published on the next run.", uid))
}

func (b *Bot) replyError(chatID int64, uid string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.reply(chatID, fmt.Sprintf("Post %s not found.", uid))
	case errors.Is(err, queue.ErrInvalidTransition):
		b.reply(chatID, fmt.Sprintf("Post %s cannot be approved: only pending posts can.", uid))
	default:
		b.log.Error("post command", "uid", uid, "error", err)
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
	}
}
