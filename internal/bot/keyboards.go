package bot

import (
	"fmt"
	"strings"

	"subgate/internal/gate"
	"subgate/internal/models"
	"subgate/internal/telegram"
)

func channelURL(channel string) string {
	return "https://t.me/" + strings.TrimPrefix(channel, "@")
}

// blockedKeyboard offers one join link plus a recheck button per
// missing channel, and a recheck-everything button at the bottom.
func blockedKeyboard(code string, missing []string) *telegram.InlineKeyboardMarkup {
	var rows [][]telegram.InlineKeyboardButton
	for _, channel := range missing {
		row := []telegram.InlineKeyboardButton{
			{Text: "Join " + channel, URL: channelURL(channel)},
		}
		if payload, err := gate.SingleResumePayload(code, channel); err == nil {
			row = append(row, telegram.InlineKeyboardButton{
				Text:         "I subscribed",
				CallbackData: payload,
			})
		}
		rows = append(rows, row)
	}
	rows = append(rows, []telegram.InlineKeyboardButton{
		{Text: "Check everything", CallbackData: gate.AggregateResumePayload(code)},
	})
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// globalBlockedKeyboard is the prompt for the platform-wide channel.
func globalBlockedKeyboard(code, globalChannel string) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{{Text: "Join " + globalChannel, URL: channelURL(globalChannel)}},
			{{Text: "I subscribed", CallbackData: gate.AggregateResumePayload(code)}},
		},
	}
}

func grantedKeyboard(post *models.Post) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{{Text: "Notify me about updates", CallbackData: fmt.Sprintf("sub_updates_%d", post.ID)}},
		},
	}
}

func myPostKeyboard(post *models.Post) *telegram.InlineKeyboardMarkup {
	label := "Deactivate"
	if !post.IsActive {
		label = "Activate"
	}
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{{Text: label, CallbackData: fmt.Sprintf("toggle_post_%d", post.ID)}},
			{{Text: "Replace content", CallbackData: fmt.Sprintf("edit_post_%d", post.ID)}},
		},
	}
}
