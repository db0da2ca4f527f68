package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"subgate/internal/models"
)

func (b *Bot) requireAdmin(ctx context.Context, user *models.User, chatID int64) bool {
	if b.isAdmin(user) {
		return true
	}
	b.reply(ctx, chatID, "This command is for administrators.")
	return false
}

// resolveUserRef accepts either a numeric user ID or an @username.
func (b *Bot) resolveUserRef(ctx context.Context, ref string) (*models.User, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return b.store.GetUser(ctx, id)
	}
	return b.store.FindUserByUsername(ctx, ref)
}

func (b *Bot) handleStats(ctx context.Context, user *models.User, chatID int64) {
	if !b.requireAdmin(ctx, user, chatID) {
		return
	}
	stats, err := b.store.Stats(ctx)
	if err != nil {
		b.logger.Error("stats failed", map[string]interface{}{"error": err.Error()})
		b.reply(ctx, chatID, "Could not load stats.")
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf(
		"Platform stats:\n  Users: %d (publishers: %d)\n  Posts: %d (active: %d)\n  Views: %d\n  Payments: %d\n  Credits in circulation: %d",
		stats.TotalUsers, stats.PublisherCount, stats.TotalPosts, stats.ActivePosts,
		stats.TotalViews, stats.TotalPayments, stats.CreditsInPlay))
}

func (b *Bot) handleGrantCredits(ctx context.Context, user *models.User, chatID int64, args string) {
	if !b.requireAdmin(ctx, user, chatID) {
		return
	}
	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.reply(ctx, chatID, "Usage: /grant_credits <user_id|@username> <amount>")
		return
	}

	target, err := b.resolveUserRef(ctx, fields[0])
	if err != nil {
		b.reply(ctx, chatID, "User not found.")
		return
	}
	amount, err := strconv.Atoi(fields[1])
	if err != nil || amount <= 0 {
		b.reply(ctx, chatID, "Amount must be a positive number.")
		return
	}

	balance, err := b.store.AddCredits(ctx, target.UserID, amount)
	if err != nil {
		b.logger.Error("grant credits failed", map[string]interface{}{"error": err.Error()})
		b.reply(ctx, chatID, "Could not grant credits.")
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("Granted %d credits to %d. New balance: %d.", amount, target.UserID, balance))
	b.reply(ctx, target.UserID, fmt.Sprintf("You received %d credits. Your balance is now %d.", amount, balance))
}

func (b *Bot) handleSetRole(ctx context.Context, user *models.User, chatID int64, args string) {
	if !b.requireAdmin(ctx, user, chatID) {
		return
	}
	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.reply(ctx, chatID, "Usage: /set_role <user_id|@username> <user|publisher|admin>")
		return
	}

	role := models.Role(fields[1])
	if role != models.RoleUser && role != models.RolePublisher && role != models.RoleAdmin {
		b.reply(ctx, chatID, "Role must be user, publisher or admin.")
		return
	}

	target, err := b.resolveUserRef(ctx, fields[0])
	if err != nil {
		b.reply(ctx, chatID, "User not found.")
		return
	}
	if err := b.store.SetUserRole(ctx, target.UserID, role); err != nil {
		b.logger.Error("set role failed", map[string]interface{}{"error": err.Error()})
		b.reply(ctx, chatID, "Could not change the role.")
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("User %d is now a %s.", target.UserID, role))
}

func (b *Bot) handleSetPostActive(ctx context.Context, user *models.User, chatID int64, args string, active bool) {
	if !b.requireAdmin(ctx, user, chatID) {
		return
	}
	postID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		b.reply(ctx, chatID, "Usage: /block_post <post_id> (see /users or the publisher's /my_posts for IDs)")
		return
	}
	if err := b.store.SetPostActive(ctx, postID, active); err != nil {
		b.reply(ctx, chatID, "Post not found.")
		return
	}
	verb := "blocked"
	if active {
		verb = "unblocked"
	}
	b.reply(ctx, chatID, fmt.Sprintf("Post %d %s.", postID, verb))
}

func (b *Bot) handleUsers(ctx context.Context, user *models.User, chatID int64) {
	if !b.requireAdmin(ctx, user, chatID) {
		return
	}
	users, err := b.store.ListUsers(ctx, 50, 0)
	if err != nil {
		b.logger.Error("list users failed", map[string]interface{}{"error": err.Error()})
		b.reply(ctx, chatID, "Could not load users.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Latest users:\n")
	for _, u := range users {
		sb.WriteString(fmt.Sprintf("  %d @%s — %s, %d credits\n", u.UserID, u.Username, u.Role, u.Credits))
	}
	b.reply(ctx, chatID, sb.String())
}

// handleAuditChannels revalidates every channel that gates an active
// post. Catches channels where the bot lost its admin seat or posting
// rights after the post was created.
func (b *Bot) handleAuditChannels(ctx context.Context, user *models.User, chatID int64) {
	if !b.requireAdmin(ctx, user, chatID) {
		return
	}
	channels, err := b.store.ListActiveChannels(ctx)
	if err != nil {
		b.logger.Error("channel audit failed", map[string]interface{}{"error": err.Error()})
		b.reply(ctx, chatID, "Could not load the channel list.")
		return
	}
	if len(channels) == 0 {
		b.reply(ctx, chatID, "No active posts, nothing to audit.")
		return
	}

	var broken []string
	for _, channel := range channels {
		if _, _, err := b.validator.ValidateChannel(ctx, channel); err != nil {
			broken = append(broken, fmt.Sprintf("  %s: %s", channel, channelProblemText(err)))
		}
	}
	if len(broken) == 0 {
		b.reply(ctx, chatID, fmt.Sprintf("All %d gating channels are healthy.", len(channels)))
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf(
		"Audited %d channels, %d need attention:\n%s",
		len(channels), len(broken), strings.Join(broken, "\n")))
}

func (b *Bot) handleFindUser(ctx context.Context, user *models.User, chatID int64, args string) {
	if !b.requireAdmin(ctx, user, chatID) {
		return
	}
	if args == "" {
		b.reply(ctx, chatID, "Usage: /find_user <user_id|@username>")
		return
	}

	target, err := b.resolveUserRef(ctx, strings.TrimSpace(args))
	if err != nil {
		b.reply(ctx, chatID, "User not found.")
		return
	}

	posts, err := b.store.ListPostsByPublisher(ctx, target.UserID)
	if err != nil {
		b.logger.Error("list posts failed", map[string]interface{}{"error": err.Error()})
		posts = nil
	}
	b.reply(ctx, chatID, fmt.Sprintf(
		"User %d (@%s)\n  Name: %s\n  Role: %s\n  Credits: %d\n  Posts: %d\n  Joined: %s",
		target.UserID, target.Username, target.FullName, target.Role,
		target.Credits, len(posts), target.CreatedAt.Format("2006-01-02")))
}
