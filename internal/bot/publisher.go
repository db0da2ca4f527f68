package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"subgate/internal/common/errors"
	"subgate/internal/common/validation"
	"subgate/internal/models"
	"subgate/internal/session"
	"subgate/internal/telegram"
)

func (b *Bot) handleNewPost(ctx context.Context, user *models.User, chatID int64) {
	if !user.IsPublisher() {
		b.reply(ctx, chatID, "Only publishers can create posts. Ask an administrator for the publisher role.")
		return
	}
	if err := b.sessions.Transition(ctx, user.UserID, session.StatePostName, nil); err != nil {
		b.logger.Error("dialog start failed", map[string]interface{}{"error": err.Error()})
		return
	}
	b.reply(ctx, chatID, "Let's create a post. First, send me a short name for it (only you will see it).")
}

// continuePostDialog advances the post-creation conversation one step.
func (b *Bot) continuePostDialog(ctx context.Context, user *models.User, msg *telegram.Message, dialog *session.Dialog) {
	chatID := msg.Chat.ID
	switch dialog.State {
	case session.StatePostName:
		name := strings.TrimSpace(msg.Text)
		if name == "" {
			b.reply(ctx, chatID, "The name cannot be empty. Try again or /cancel.")
			return
		}
		if err := b.sessions.Transition(ctx, user.UserID, session.StatePostChannels, map[string]string{
			"post_name": name,
		}); err != nil {
			b.logger.Error("dialog transition failed", map[string]interface{}{"error": err.Error()})
			return
		}
		b.reply(ctx, chatID,
			"Now send the gate channels, separated by spaces (for example: @news @updates).\nI must be an administrator in each one. One credit per channel.\nSend /skip for a post without gate channels (free).")

	case session.StatePostChannels:
		inputs := strings.Fields(msg.Text)
		if len(inputs) == 0 {
			b.reply(ctx, chatID, "Send at least one channel, /skip for none, or /cancel.")
			return
		}
		if len(inputs) > user.Credits {
			b.reply(ctx, chatID, fmt.Sprintf(
				"That's %d channels but you only have %d credits. Send fewer channels or top up.",
				len(inputs), user.Credits))
			return
		}

		channels, err := b.validator.VerifyChannels(ctx, inputs)
		if err != nil {
			b.reply(ctx, chatID, channelProblemText(err))
			return
		}

		if err := b.sessions.Transition(ctx, user.UserID, session.StatePostContent, map[string]string{
			"channels": strings.Join(channels, " "),
		}); err != nil {
			b.logger.Error("dialog transition failed", map[string]interface{}{"error": err.Error()})
			return
		}
		b.reply(ctx, chatID, "Finally, send the content itself: a text message, a photo or a video (captions are kept).")

	case session.StatePostContent:
		post := postFromMessage(msg)
		if post == nil {
			b.reply(ctx, chatID, "Send text, a photo or a video, or /cancel.")
			return
		}
		post.PublisherID = user.UserID
		post.PostName = dialog.Data["post_name"]
		post.Channels = strings.Fields(dialog.Data["channels"])

		stored, err := b.store.CreatePost(ctx, post)
		if err != nil {
			if errors.IsCode(err, errors.ErrCodeInsufficientCredits) {
				b.reply(ctx, chatID, "Not enough credits anymore. Top up and try again.")
			} else {
				b.logger.Error("post creation failed", map[string]interface{}{"error": err.Error()})
				b.reply(ctx, chatID, "Could not save the post. Try again later.")
			}
			if err := b.sessions.Clear(ctx, user.UserID); err != nil {
				b.logger.Warn("dialog clear failed", map[string]interface{}{"error": err.Error()})
			}
			return
		}

		if err := b.sessions.Clear(ctx, user.UserID); err != nil {
			b.logger.Warn("dialog clear failed", map[string]interface{}{"error": err.Error()})
		}

		link := fmt.Sprintf(b.cfg.Gate.BotDeepLinkFmt, b.botName, stored.UniqueCode)
		if len(stored.Channels) == 0 {
			b.reply(ctx, chatID, fmt.Sprintf(
				"Done! Your post \"%s\" is live with no gate channels, so the link opens it directly. No credits were spent.\n\nShare this link:\n%s",
				stored.PostName, link))
		} else {
			b.reply(ctx, chatID, fmt.Sprintf(
				"Done! Your post \"%s\" is live.\n\nShare this link:\n%s\n\n%d credits were spent (%d channels).",
				stored.PostName, link, len(stored.Channels), len(stored.Channels)))
		}

	case session.StatePostEdit:
		replacement := postFromMessage(msg)
		if replacement == nil {
			b.reply(ctx, chatID, "Send text, a photo or a video, or /cancel.")
			return
		}
		postID, err := strconv.ParseInt(dialog.Data["edit_post_id"], 10, 64)
		if err != nil {
			b.reply(ctx, chatID, "I lost track of which post we were editing. Start over from /my_posts.")
			if err := b.sessions.Clear(ctx, user.UserID); err != nil {
				b.logger.Warn("dialog clear failed", map[string]interface{}{"error": err.Error()})
			}
			return
		}

		if err := b.store.UpdatePostContent(ctx, postID,
			replacement.ContentType, replacement.ContentText, replacement.ContentFileID); err != nil {
			b.logger.Error("post content update failed", map[string]interface{}{
				"error":   err.Error(),
				"post_id": postID,
			})
			b.reply(ctx, chatID, "Could not update the post. Try again later.")
			return
		}
		if err := b.sessions.Clear(ctx, user.UserID); err != nil {
			b.logger.Warn("dialog clear failed", map[string]interface{}{"error": err.Error()})
		}

		notified := b.notifyUpdateSubscribers(ctx, postID)
		b.reply(ctx, chatID, fmt.Sprintf(
			"Content replaced. %d followers were notified.", notified))

	default:
		b.reply(ctx, chatID, "I lost track of our conversation, sorry. Start over with /new_post.")
		if err := b.sessions.Clear(ctx, user.UserID); err != nil {
			b.logger.Warn("dialog clear failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// notifyUpdateSubscribers tells everyone following a post that its
// content changed, returning how many were reached. Delivery is
// best-effort: a blocked bot or a closed chat must not stop the rest.
func (b *Bot) notifyUpdateSubscribers(ctx context.Context, postID int64) int {
	post, err := b.store.GetPost(ctx, postID)
	if err != nil {
		b.logger.Error("post load failed", map[string]interface{}{"error": err.Error(), "post_id": postID})
		return 0
	}
	subscribers, err := b.store.ListUpdateSubscribers(ctx, postID)
	if err != nil {
		b.logger.Error("subscriber listing failed", map[string]interface{}{"error": err.Error(), "post_id": postID})
		return 0
	}

	link := fmt.Sprintf(b.cfg.Gate.BotDeepLinkFmt, b.botName, post.UniqueCode)
	notified := 0
	for _, userID := range subscribers {
		_, err := b.api.SendMessage(ctx, telegram.SendMessageParams{
			ChatID: userID,
			Text:   fmt.Sprintf("A post you follow was updated: \"%s\".\nOpen it again: %s", post.PostName, link),
		})
		if err != nil {
			b.logger.Warn("update notification failed", map[string]interface{}{
				"error":   err.Error(),
				"user_id": userID,
			})
			continue
		}
		notified++
	}
	return notified
}

// handleEditPostCallback starts the content-replacement dialog from a
// post's "Replace content" button.
func (b *Bot) handleEditPostCallback(ctx context.Context, query *telegram.CallbackQuery, chatID int64) {
	postID, err := strconv.ParseInt(strings.TrimPrefix(query.Data, "edit_post_"), 10, 64)
	if err != nil {
		b.answerCallback(ctx, query.ID, "")
		return
	}

	post, err := b.store.GetPost(ctx, postID)
	if err != nil {
		b.answerCallback(ctx, query.ID, "Post not found.")
		return
	}
	user, err := b.store.GetUser(ctx, query.From.ID)
	if err != nil || (post.PublisherID != user.UserID && !b.isAdmin(user)) {
		b.answerCallback(ctx, query.ID, "This is not your post.")
		return
	}

	if err := b.sessions.Transition(ctx, user.UserID, session.StatePostEdit, map[string]string{
		"edit_post_id": strconv.FormatInt(postID, 10),
	}); err != nil {
		b.logger.Error("dialog start failed", map[string]interface{}{"error": err.Error()})
		b.answerCallback(ctx, query.ID, "Could not start editing.")
		return
	}

	b.answerCallback(ctx, query.ID, "")
	b.reply(ctx, chatID, fmt.Sprintf(
		"Send the new content for \"%s\": a text message, a photo or a video. Everyone following the post will be told it changed.",
		post.PostName))
}

// handleSkipChannels jumps past the channel step of the post dialog,
// producing a post with no gate channels. Only meaningful while the
// dialog is waiting for channels.
func (b *Bot) handleSkipChannels(ctx context.Context, user *models.User, chatID int64) {
	dialog, err := b.sessions.Get(ctx, user.UserID)
	if err != nil {
		b.logger.Error("dialog load failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if dialog.State != session.StatePostChannels {
		b.reply(ctx, chatID, "Nothing to skip right now.")
		return
	}
	if err := b.sessions.Transition(ctx, user.UserID, session.StatePostContent, map[string]string{
		"channels": "",
	}); err != nil {
		b.logger.Error("dialog transition failed", map[string]interface{}{"error": err.Error()})
		return
	}
	b.reply(ctx, chatID, "No gate channels then; the post will open for anyone with the link. Now send the content itself: a text message, a photo or a video.")
}

// postFromMessage extracts the gated content from the final dialog
// message. Photos arrive as a size ladder; the last entry is the
// largest rendition.
func postFromMessage(msg *telegram.Message) *models.Post {
	switch {
	case len(msg.Photo) > 0:
		return &models.Post{
			ContentType:   models.ContentPhoto,
			ContentFileID: msg.Photo[len(msg.Photo)-1].FileID,
			ContentText:   msg.Caption,
		}
	case msg.Video != nil:
		return &models.Post{
			ContentType:   models.ContentVideo,
			ContentFileID: msg.Video.FileID,
			ContentText:   msg.Caption,
		}
	case strings.TrimSpace(msg.Text) != "":
		return &models.Post{
			ContentType: models.ContentText,
			ContentText: msg.Text,
		}
	default:
		return nil
	}
}

func channelProblemText(err error) string {
	switch errors.CodeOf(err) {
	case errors.ErrCodeChannelNotFound:
		return "One of those channels does not exist or I cannot see it. Check the names and try again."
	case errors.ErrCodeNotAdministrator:
		return "I am not an administrator in one of those channels. Add me as admin first."
	case errors.ErrCodeNoPostingRights:
		return "I am an admin in one of those channels but without posting rights. Grant them and try again."
	case errors.ErrCodeInvalidContent:
		return "One of those channel names is malformed. Use the @username form."
	default:
		return "Could not verify those channels right now. Try again in a moment."
	}
}

func (b *Bot) handleMyPosts(ctx context.Context, user *models.User, chatID int64) {
	if !user.IsPublisher() {
		b.reply(ctx, chatID, "Only publishers have posts.")
		return
	}
	posts, err := b.store.ListPostsByPublisher(ctx, user.UserID)
	if err != nil {
		b.logger.Error("list posts failed", map[string]interface{}{"error": err.Error()})
		b.reply(ctx, chatID, "Could not load your posts.")
		return
	}
	if len(posts) == 0 {
		b.reply(ctx, chatID, "You have no posts yet. Create one with /new_post.")
		return
	}

	for i := range posts {
		post := &posts[i]
		_, err := b.api.SendMessage(ctx, telegram.SendMessageParams{
			ChatID:      chatID,
			Text:        b.postListingText(post),
			ReplyMarkup: myPostKeyboard(post),
		})
		if err != nil {
			b.logger.Error("send failed", map[string]interface{}{"error": err.Error()})
			return
		}
	}
}

func (b *Bot) postListingText(post *models.Post) string {
	state := "active"
	if !post.IsActive {
		state = "inactive"
	}
	link := fmt.Sprintf(b.cfg.Gate.BotDeepLinkFmt, b.botName, post.UniqueCode)
	return fmt.Sprintf(
		"\"%s\" (%s)\nViews: %d\nFollowers: %d\nChannels: %s\nLink: %s",
		post.PostName, state, post.Views, post.Subscribers, strings.Join(post.Channels, " "), link)
}

func (b *Bot) handleTogglePostCallback(ctx context.Context, query *telegram.CallbackQuery, chatID int64) {
	postID, err := strconv.ParseInt(strings.TrimPrefix(query.Data, "toggle_post_"), 10, 64)
	if err != nil {
		b.answerCallback(ctx, query.ID, "")
		return
	}

	post, err := b.store.GetPost(ctx, postID)
	if err != nil {
		b.answerCallback(ctx, query.ID, "Post not found.")
		return
	}

	user, err := b.store.GetUser(ctx, query.From.ID)
	if err != nil || (post.PublisherID != user.UserID && !b.isAdmin(user)) {
		b.answerCallback(ctx, query.ID, "This is not your post.")
		return
	}

	if err := b.store.SetPostActive(ctx, postID, !post.IsActive); err != nil {
		b.logger.Error("toggle post failed", map[string]interface{}{"error": err.Error()})
		b.answerCallback(ctx, query.ID, "Could not update the post.")
		return
	}
	post.IsActive = !post.IsActive

	// Redraw the listing card under the button so it reflects the new
	// state without the publisher re-running /my_posts.
	if query.Message != nil {
		if subs, err := b.store.ListUpdateSubscribers(ctx, postID); err == nil {
			post.Subscribers = int64(len(subs))
		}
		_, err := b.api.EditMessageText(ctx, telegram.EditMessageTextParams{
			ChatID:      query.Message.Chat.ID,
			MessageID:   query.Message.MessageID,
			Text:        b.postListingText(post),
			ReplyMarkup: myPostKeyboard(post),
		})
		if err != nil {
			b.logger.Warn("listing refresh failed", map[string]interface{}{"error": err.Error()})
		}
	}

	state := "deactivated"
	if post.IsActive {
		state = "activated"
	}
	b.answerCallback(ctx, query.ID, "Post "+state+".")
}

func (b *Bot) handleCheckChannel(ctx context.Context, user *models.User, chatID int64, args string) {
	if !user.IsPublisher() {
		b.reply(ctx, chatID, "Only publishers can use this.")
		return
	}
	if args == "" {
		b.reply(ctx, chatID, "Usage: /check_channel @username")
		return
	}

	channel, warning, err := b.validator.ValidateChannel(ctx, args)
	if err != nil {
		b.reply(ctx, chatID, channelProblemText(err))
		return
	}
	text := fmt.Sprintf("%s is ready: it exists and I have the rights I need there.", channel)
	if warning != "" {
		text += "\n\nWarning: " + warning
	}
	b.reply(ctx, chatID, text)
}

// handleImportPosts creates posts in bulk from a JSON document sent
// right after the command. Channels are validated the same way the
// dialog validates them, and each post debits credits as usual.
func (b *Bot) handleImportPosts(ctx context.Context, user *models.User, chatID int64, args string) {
	if !user.IsPublisher() {
		b.reply(ctx, chatID, "Only publishers can import posts.")
		return
	}
	if strings.TrimSpace(args) == "" {
		b.reply(ctx, chatID,
			`Usage: /import_posts [{"post_name": "...", "content_type": "text", "content": "...", "channels": ["@news"]}]`)
		return
	}

	descriptors, err := validation.ParseDescriptors([]byte(args))
	if err != nil {
		b.reply(ctx, chatID, "Import rejected: "+errors.DetailsOf(err))
		return
	}

	var sb strings.Builder
	created := 0
	for _, desc := range descriptors {
		channels, err := b.validator.VerifyChannels(ctx, desc.Channels)
		if err != nil {
			sb.WriteString(fmt.Sprintf("\"%s\": %s\n", desc.PostName, channelProblemText(err)))
			continue
		}

		post := &models.Post{
			PublisherID: user.UserID,
			PostName:    desc.PostName,
			ContentType: models.ContentKind(desc.ContentType),
			Channels:    channels,
		}
		if post.ContentType == models.ContentText {
			post.ContentText = desc.Content
		} else {
			post.ContentFileID = desc.Content
			post.ContentText = desc.Caption
		}

		stored, err := b.store.CreatePost(ctx, post)
		if err != nil {
			if errors.IsCode(err, errors.ErrCodeInsufficientCredits) {
				sb.WriteString(fmt.Sprintf("\"%s\": not enough credits, stopping\n", desc.PostName))
				break
			}
			b.logger.Error("import post failed", map[string]interface{}{"error": err.Error()})
			sb.WriteString(fmt.Sprintf("\"%s\": could not save\n", desc.PostName))
			continue
		}
		created++
		sb.WriteString(fmt.Sprintf("\"%s\": %s\n", stored.PostName,
			fmt.Sprintf(b.cfg.Gate.BotDeepLinkFmt, b.botName, stored.UniqueCode)))
	}

	b.reply(ctx, chatID, fmt.Sprintf("Imported %d of %d posts.\n\n%s", created, len(descriptors), sb.String()))
}

func (b *Bot) handleCancel(ctx context.Context, user *models.User, chatID int64) {
	if err := b.sessions.Clear(ctx, user.UserID); err != nil {
		b.logger.Warn("dialog clear failed", map[string]interface{}{"error": err.Error()})
	}
	b.reply(ctx, chatID, "Cancelled.")
}
