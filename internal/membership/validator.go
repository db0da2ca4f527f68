package membership

import (
	"context"
	"strings"

	"subgate/internal/common/errors"
	"subgate/internal/common/logger"
	"subgate/internal/telegram"
)

// ChannelAPI covers the Bot API calls channel validation needs.
type ChannelAPI interface {
	GetChat(ctx context.Context, chatID string) (*telegram.Chat, error)
	GetChatMember(ctx context.Context, chatID string, userID int64) (*telegram.ChatMember, error)
}

// Validator confirms a channel can actually serve as a gate: it exists,
// and the bot holds administrator rights broad enough to read the
// member list. Publishers run this when attaching channels to a post.
type Validator struct {
	api    ChannelAPI
	logger logger.Logger
	botID  int64
}

func NewValidator(api ChannelAPI, log logger.Logger, botID int64) *Validator {
	return &Validator{
		api:    api,
		logger: log,
		botID:  botID,
	}
}

// NormalizeChannel turns user input into the canonical @username form.
// Accepts "@name", "name", and https://t.me/name links.
func NormalizeChannel(input string) (string, error) {
	channel := strings.TrimSpace(input)
	channel = strings.TrimPrefix(channel, "https://t.me/")
	channel = strings.TrimPrefix(channel, "t.me/")
	channel = strings.TrimPrefix(channel, "@")
	if channel == "" || strings.ContainsAny(channel, " /?") {
		return "", errors.NewInvalidContentError("channel username is malformed")
	}
	return "@" + channel, nil
}

// ValidateChannel checks that the channel exists and that the bot is an
// administrator there with posting rights. It returns the canonical
// channel username on success, plus a non-fatal warning when the bot's
// admin rights look too narrow to read the member list.
func (v *Validator) ValidateChannel(ctx context.Context, input string) (string, string, error) {
	channel, err := NormalizeChannel(input)
	if err != nil {
		return "", "", err
	}

	chat, err := v.api.GetChat(ctx, channel)
	if err != nil {
		v.logger.Warn("channel lookup failed", map[string]interface{}{
			"channel": channel,
			"error":   truncateErr(err),
		})
		return "", "", errors.NewChannelNotFoundError(channel, err)
	}
	if chat.Type != "channel" && chat.Type != "supergroup" {
		return "", "", errors.NewInvalidContentError("target is not a channel")
	}

	member, err := v.api.GetChatMember(ctx, channel, v.botID)
	if err != nil {
		return "", "", errors.NewChannelNotFoundError(channel, err)
	}

	switch status := StatusFromChatMember(member).(type) {
	case Creator:
		return channel, "", nil
	case Administrator:
		if !status.CanPostMessages {
			return "", "", errors.NewNoPostingRightsError(channel)
		}
		// Without the restrict-members right the bot often cannot see
		// who is in the channel, so membership checks may come back
		// empty-handed. Worth flagging, not worth rejecting.
		if !status.CanRestrictMembers {
			return channel, "I cannot see the member list there, so subscription checks may not work. Grant me the \"restrict members\" admin right.", nil
		}
		return channel, "", nil
	default:
		return "", "", errors.NewNotAdministratorError(channel)
	}
}

// VerifyChannels validates every channel in the list and returns the
// canonical forms in the same order. The first failure aborts.
func (v *Validator) VerifyChannels(ctx context.Context, inputs []string) ([]string, error) {
	channels := make([]string, 0, len(inputs))
	for _, input := range inputs {
		channel, _, err := v.ValidateChannel(ctx, input)
		if err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	}
	return channels, nil
}
