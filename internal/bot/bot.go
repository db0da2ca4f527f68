package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"subgate/internal/common/config"
	"subgate/internal/common/logger"
	"subgate/internal/common/metrics"
	"subgate/internal/gate"
	"subgate/internal/membership"
	"subgate/internal/models"
	"subgate/internal/session"
	"subgate/internal/store"
	"subgate/internal/telegram"
)

// Bot wires the Bot API transport to the gate, the store and the
// dialog manager, and routes every incoming update.
type Bot struct {
	api       telegram.API
	store     *store.Store
	sessions  *session.Manager
	protocol  *gate.Protocol
	resume    *gate.Resume
	validator *membership.Validator
	cfg       *config.Config
	logger    logger.Logger
	botName   string
}

func New(
	api telegram.API,
	st *store.Store,
	sessions *session.Manager,
	protocol *gate.Protocol,
	resume *gate.Resume,
	validator *membership.Validator,
	cfg *config.Config,
	log logger.Logger,
) *Bot {
	return &Bot{
		api:       api,
		store:     st,
		sessions:  sessions,
		protocol:  protocol,
		resume:    resume,
		validator: validator,
		cfg:       cfg,
		logger:    log,
	}
}

var botCommands = []telegram.BotCommand{
	{Command: "start", Description: "Open a post or show the menu"},
	{Command: "help", Description: "How the bot works"},
	{Command: "profile", Description: "Your role and credit balance"},
	{Command: "tariffs", Description: "Credit bundles"},
	{Command: "new_post", Description: "Create a gated post (publishers)"},
	{Command: "my_posts", Description: "Your posts (publishers)"},
	{Command: "check_channel", Description: "Verify a channel is usable as a gate"},
	{Command: "skip", Description: "Skip the channel step for a free post"},
	{Command: "cancel", Description: "Abort the current dialog"},
}

// Run starts long polling and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("identify bot: %w", err)
	}
	b.botName = me.Username
	b.logger.Info("bot identified", map[string]interface{}{"username": me.Username, "id": me.ID})

	if err := b.api.DeleteWebhook(ctx); err != nil {
		b.logger.Warn("delete webhook failed", map[string]interface{}{"error": err.Error()})
	}
	if err := b.api.SetMyCommands(ctx, botCommands); err != nil {
		b.logger.Warn("set commands failed", map[string]interface{}{"error": err.Error()})
	}

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := b.api.GetUpdates(ctx, offset, b.cfg.Telegram.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error("poll failed", map[string]interface{}{"error": err.Error()})
			time.Sleep(3 * time.Second)
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update telegram.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("update handler panicked", map[string]interface{}{
				"update_id": update.UpdateID,
				"panic":     fmt.Sprintf("%v", r),
			})
		}
	}()

	switch {
	case update.Message != nil && update.Message.From != nil:
		metrics.UpdatesProcessed.WithLabelValues("message").Inc()
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		metrics.UpdatesProcessed.WithLabelValues("callback").Inc()
		b.handleCallback(ctx, update.CallbackQuery)
	default:
		metrics.UpdatesProcessed.WithLabelValues("ignored").Inc()
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) {
	user, err := b.store.GetOrCreateUser(ctx, msg.From.ID, msg.From.Username, fullName(msg.From))
	if err != nil {
		b.logger.Error("user upsert failed", map[string]interface{}{
			"user_id": msg.From.ID,
			"error":   err.Error(),
		})
		return
	}

	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, user, msg, text)
		return
	}

	// Non-command messages only matter inside a dialog.
	dialog, err := b.sessions.Get(ctx, user.UserID)
	if err != nil {
		b.logger.Error("dialog load failed", map[string]interface{}{"user_id": user.UserID, "error": err.Error()})
		return
	}
	if dialog.State == session.StateIdle {
		b.reply(ctx, msg.Chat.ID, "Send /help to see what I can do.")
		return
	}
	b.continuePostDialog(ctx, user, msg, dialog)
}

func (b *Bot) handleCommand(ctx context.Context, user *models.User, msg *telegram.Message, text string) {
	command, args := splitCommand(text)
	switch command {
	case "/start":
		b.handleStart(ctx, user, msg.Chat.ID, args)
	case "/help":
		b.handleHelp(ctx, user, msg.Chat.ID)
	case "/profile":
		b.handleProfile(ctx, user, msg.Chat.ID)
	case "/tariffs":
		b.handleTariffs(ctx, msg.Chat.ID)
	case "/new_post":
		b.handleNewPost(ctx, user, msg.Chat.ID)
	case "/my_posts":
		b.handleMyPosts(ctx, user, msg.Chat.ID)
	case "/check_channel":
		b.handleCheckChannel(ctx, user, msg.Chat.ID, args)
	case "/import_posts":
		b.handleImportPosts(ctx, user, msg.Chat.ID, args)
	case "/skip":
		b.handleSkipChannels(ctx, user, msg.Chat.ID)
	case "/cancel":
		b.handleCancel(ctx, user, msg.Chat.ID)
	case "/stats":
		b.handleStats(ctx, user, msg.Chat.ID)
	case "/grant_credits":
		b.handleGrantCredits(ctx, user, msg.Chat.ID, args)
	case "/set_role":
		b.handleSetRole(ctx, user, msg.Chat.ID, args)
	case "/block_post":
		b.handleSetPostActive(ctx, user, msg.Chat.ID, args, false)
	case "/unblock_post":
		b.handleSetPostActive(ctx, user, msg.Chat.ID, args, true)
	case "/users":
		b.handleUsers(ctx, user, msg.Chat.ID)
	case "/find_user":
		b.handleFindUser(ctx, user, msg.Chat.ID, args)
	case "/audit_channels":
		b.handleAuditChannels(ctx, user, msg.Chat.ID)
	default:
		b.reply(ctx, msg.Chat.ID, "Unknown command. Send /help.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *telegram.CallbackQuery) {
	if query.Message == nil {
		return
	}
	chatID := query.Message.Chat.ID

	if token, ok := gate.ParseResumePayload(query.Data); ok {
		b.handleResumeCallback(ctx, query, chatID, token)
		return
	}

	switch {
	case strings.HasPrefix(query.Data, "toggle_post_"):
		b.handleTogglePostCallback(ctx, query, chatID)
	case strings.HasPrefix(query.Data, "edit_post_"):
		b.handleEditPostCallback(ctx, query, chatID)
	case strings.HasPrefix(query.Data, "sub_updates_"):
		b.handleSubscribeUpdatesCallback(ctx, query, chatID)
	default:
		b.answerCallback(ctx, query.ID, "")
	}
}

func (b *Bot) isAdmin(user *models.User) bool {
	if user.IsAdmin() {
		return true
	}
	for _, id := range b.cfg.Telegram.AdminIDs {
		if id == user.UserID {
			return true
		}
	}
	return false
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.api.SendMessage(ctx, telegram.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		b.logger.Error("send failed", map[string]interface{}{"chat_id": chatID, "error": err.Error()})
	}
}

func (b *Bot) answerCallback(ctx context.Context, callbackID, text string) {
	err := b.api.AnswerCallbackQuery(ctx, telegram.AnswerCallbackParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		b.logger.Warn("answer callback failed", map[string]interface{}{"error": err.Error()})
	}
}

func fullName(user *telegram.User) string {
	if user.LastName == "" {
		return user.FirstName
	}
	return user.FirstName + " " + user.LastName
}

func splitCommand(text string) (string, string) {
	parts := strings.SplitN(text, " ", 2)
	command := parts[0]
	// Commands in groups arrive as /cmd@botname.
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	if len(parts) == 2 {
		return command, strings.TrimSpace(parts[1])
	}
	return command, ""
}
