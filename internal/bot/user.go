package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"subgate/internal/common/errors"
	"subgate/internal/gate"
	"subgate/internal/models"
	"subgate/internal/telegram"
)

func (b *Bot) handleStart(ctx context.Context, user *models.User, chatID int64, args string) {
	code := strings.TrimSpace(args)
	if code == "" {
		b.reply(ctx, chatID,
			"Hi! Open a post link to unlock gated content, or send /help for commands.")
		return
	}
	b.runGate(ctx, user.UserID, chatID, code)
}

// runGate evaluates access and presents whichever outcome came back.
func (b *Bot) runGate(ctx context.Context, userID, chatID int64, code string) {
	outcome, err := b.protocol.Evaluate(ctx, userID, code)
	if err != nil {
		b.presentGateError(ctx, chatID, err)
		return
	}
	b.presentOutcome(ctx, chatID, outcome)
}

func (b *Bot) presentGateError(ctx context.Context, chatID int64, err error) {
	switch errors.CodeOf(err) {
	case errors.ErrCodeContentNotFound:
		b.reply(ctx, chatID, "This post does not exist. The link may be broken.")
	case errors.ErrCodeContentInactive:
		b.reply(ctx, chatID, "This post has been deactivated by its publisher.")
	case errors.ErrCodeOracleTransient:
		b.reply(ctx, chatID, "Could not verify your subscriptions right now. Please try again in a moment.")
	default:
		b.logger.Error("gate evaluation failed", map[string]interface{}{"error": err.Error()})
		b.reply(ctx, chatID, "Something went wrong. Please try again.")
	}
}

func (b *Bot) presentOutcome(ctx context.Context, chatID int64, outcome *gate.Outcome) {
	if outcome.Granted {
		b.deliverPost(ctx, chatID, outcome.Post)
		return
	}

	if outcome.MissingGlobal {
		_, err := b.api.SendMessage(ctx, telegram.SendMessageParams{
			ChatID:      chatID,
			Text:        fmt.Sprintf("To use this bot, first join %s.", b.cfg.Gate.GlobalChannel),
			ReplyMarkup: globalBlockedKeyboard(outcome.Post.UniqueCode, b.cfg.Gate.GlobalChannel),
		})
		if err != nil {
			b.logger.Error("send failed", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	var sb strings.Builder
	if len(outcome.Missing) > 0 {
		sb.WriteString("To unlock this post, subscribe to:\n")
		for _, channel := range outcome.Missing {
			sb.WriteString("  • " + channel + "\n")
		}
		sb.WriteString("\nThen press the button under each channel, or check everything at once.")
	}
	if len(outcome.Faulted) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Sorry, I currently cannot verify subscriptions for:\n")
		for _, channel := range outcome.Faulted {
			sb.WriteString("  • " + channel + "\n")
		}
		sb.WriteString("\nThe channel owner has been notified. Please try again later.")
	}

	_, err := b.api.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:      chatID,
		Text:        sb.String(),
		ReplyMarkup: blockedKeyboard(outcome.Post.UniqueCode, outcome.Missing),
	})
	if err != nil {
		b.logger.Error("send failed", map[string]interface{}{"error": err.Error()})
	}
}

func (b *Bot) deliverPost(ctx context.Context, chatID int64, post *models.Post) {
	keyboard := grantedKeyboard(post)
	var err error
	switch post.ContentType {
	case models.ContentPhoto:
		_, err = b.api.SendPhoto(ctx, telegram.SendPhotoParams{
			ChatID:      chatID,
			Photo:       post.ContentFileID,
			Caption:     post.ContentText,
			ReplyMarkup: keyboard,
		})
	case models.ContentVideo:
		_, err = b.api.SendVideo(ctx, telegram.SendVideoParams{
			ChatID:      chatID,
			Video:       post.ContentFileID,
			Caption:     post.ContentText,
			ReplyMarkup: keyboard,
		})
	default:
		_, err = b.api.SendMessage(ctx, telegram.SendMessageParams{
			ChatID:      chatID,
			Text:        post.ContentText,
			ReplyMarkup: keyboard,
		})
	}
	if err != nil {
		b.logger.Error("content delivery failed", map[string]interface{}{
			"post_id": post.ID,
			"chat_id": chatID,
			"error":   err.Error(),
		})
	}
}

func (b *Bot) handleResumeCallback(ctx context.Context, query *telegram.CallbackQuery, chatID int64, token *gate.ResumeToken) {
	b.answerCallback(ctx, query.ID, "Checking...")

	outcome, err := b.resume.Run(ctx, query.From.ID, token)
	if err != nil {
		b.presentGateError(ctx, chatID, err)
		return
	}

	if outcome.Granted {
		// Drop the stale prompt so the unlocked content stands alone.
		if err := b.api.DeleteMessage(ctx, chatID, query.Message.MessageID); err != nil {
			b.logger.Warn("prompt cleanup failed", map[string]interface{}{"error": err.Error()})
		}
	}
	b.presentOutcome(ctx, chatID, outcome)
}

func (b *Bot) handleSubscribeUpdatesCallback(ctx context.Context, query *telegram.CallbackQuery, chatID int64) {
	postID, err := strconv.ParseInt(strings.TrimPrefix(query.Data, "sub_updates_"), 10, 64)
	if err != nil {
		b.answerCallback(ctx, query.ID, "")
		return
	}
	// The button toggles: pressing it again cancels the follow.
	subscribed, err := b.store.IsSubscribedToUpdates(ctx, postID, query.From.ID)
	if err != nil {
		b.logger.Error("subscription lookup failed", map[string]interface{}{"error": err.Error()})
		b.answerCallback(ctx, query.ID, "Could not update your subscription, try again.")
		return
	}
	if subscribed {
		if err := b.store.UnsubscribeFromUpdates(ctx, postID, query.From.ID); err != nil {
			b.logger.Error("update unsubscription failed", map[string]interface{}{"error": err.Error()})
			b.answerCallback(ctx, query.ID, "Could not update your subscription, try again.")
			return
		}
		b.answerCallback(ctx, query.ID, "You will no longer be notified about this post.")
		return
	}
	if err := b.store.SubscribeToUpdates(ctx, postID, query.From.ID); err != nil {
		b.logger.Error("update subscription failed", map[string]interface{}{"error": err.Error()})
		b.answerCallback(ctx, query.ID, "Could not subscribe, try again.")
		return
	}
	b.answerCallback(ctx, query.ID, "You will be notified about updates to this post.")
}

func (b *Bot) handleProfile(ctx context.Context, user *models.User, chatID int64) {
	text := fmt.Sprintf(
		"Your profile:\n  ID: %d\n  Role: %s\n  Credits: %d",
		user.UserID, user.Role, user.Credits)
	b.reply(ctx, chatID, text)
}

func (b *Bot) handleHelp(ctx context.Context, user *models.User, chatID int64) {
	var sb strings.Builder
	sb.WriteString("I deliver posts that are locked behind channel subscriptions.\n\n")
	sb.WriteString("Open a post link and I will tell you which channels to join.\n\n")
	sb.WriteString("/profile — your role and balance\n/tariffs — credit bundles\n")
	if user.IsPublisher() {
		sb.WriteString("\nPublisher commands:\n/new_post — create a gated post\n/my_posts — manage your posts\n/check_channel — verify a channel works as a gate\n/import_posts — create posts in bulk from JSON\n")
	}
	if b.isAdmin(user) {
		sb.WriteString("\nAdmin commands:\n/stats\n/grant_credits <user_id|@username> <amount>\n/set_role <user_id|@username> <user|publisher|admin>\n/block_post <post_id>\n/unblock_post <post_id>\n/users\n/find_user <user_id|@username>\n/audit_channels\n")
	}
	b.reply(ctx, chatID, sb.String())
}

func (b *Bot) handleTariffs(ctx context.Context, chatID int64) {
	var sb strings.Builder
	sb.WriteString("Credit bundles (one credit gates one channel on one post):\n\n")
	for _, tariff := range b.cfg.Tariffs {
		sb.WriteString(fmt.Sprintf("  %s — %d credits for %d₽\n", tariff.Name, tariff.Credits, tariff.Price))
	}
	sb.WriteString("\nContact the administrator to top up.")
	b.reply(ctx, chatID, sb.String())
}
