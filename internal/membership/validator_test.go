package membership

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subgate/internal/common/errors"
	"subgate/internal/common/logger"
	"subgate/internal/telegram"
)

type fakeChannelAPI struct {
	chat      *telegram.Chat
	chatErr   error
	member    *telegram.ChatMember
	memberErr error
}

func (f *fakeChannelAPI) GetChat(ctx context.Context, chatID string) (*telegram.Chat, error) {
	return f.chat, f.chatErr
}

func (f *fakeChannelAPI) GetChatMember(ctx context.Context, chatID string, userID int64) (*telegram.ChatMember, error) {
	return f.member, f.memberErr
}

func TestNormalizeChannel(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"@news", "@news", false},
		{"news", "@news", false},
		{"https://t.me/news", "@news", false},
		{"t.me/news", "@news", false},
		{"  @news  ", "@news", false},
		{"", "", true},
		{"@", "", true},
		{"two words", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeChannel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateChannel(t *testing.T) {
	log := logger.NewTestLogger(t)
	channelChat := &telegram.Chat{ID: -100, Type: "channel", Username: "news"}

	tests := []struct {
		name        string
		api         *fakeChannelAPI
		wantErr     bool
		wantCode    errors.ErrorCode
		wantWarning bool
	}{
		{
			name: "bot is administrator with full rights",
			api: &fakeChannelAPI{
				chat:   channelChat,
				member: &telegram.ChatMember{Status: "administrator", CanPostMessages: true, CanRestrictMembers: true},
			},
		},
		{
			name: "admin without member visibility gets a warning",
			api: &fakeChannelAPI{
				chat:   channelChat,
				member: &telegram.ChatMember{Status: "administrator", CanPostMessages: true},
			},
			wantWarning: true,
		},
		{
			name: "bot is creator",
			api: &fakeChannelAPI{
				chat:   channelChat,
				member: &telegram.ChatMember{Status: "creator"},
			},
		},
		{
			name:     "channel does not exist",
			api:      &fakeChannelAPI{chatErr: fmt.Errorf("api error 400: Bad Request: chat not found")},
			wantErr:  true,
			wantCode: errors.ErrCodeChannelNotFound,
		},
		{
			name:     "target is a private chat",
			api:      &fakeChannelAPI{chat: &telegram.Chat{ID: 5, Type: "private"}},
			wantErr:  true,
			wantCode: errors.ErrCodeInvalidContent,
		},
		{
			name: "bot is plain member",
			api: &fakeChannelAPI{
				chat:   channelChat,
				member: &telegram.ChatMember{Status: "member"},
			},
			wantErr:  true,
			wantCode: errors.ErrCodeNotAdministrator,
		},
		{
			name: "admin without posting rights",
			api: &fakeChannelAPI{
				chat:   channelChat,
				member: &telegram.ChatMember{Status: "administrator", CanPostMessages: false},
			},
			wantErr:  true,
			wantCode: errors.ErrCodeNoPostingRights,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := NewValidator(tt.api, log, 999)
			channel, warning, err := validator.ValidateChannel(context.Background(), "news")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, tt.wantCode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "@news", channel)
			if tt.wantWarning {
				assert.Contains(t, warning, "member list")
			} else {
				assert.Empty(t, warning)
			}
		})
	}
}

func TestVerifyChannelsStopsOnFirstFailure(t *testing.T) {
	log := logger.NewTestLogger(t)
	api := &fakeChannelAPI{chatErr: fmt.Errorf("api error 400: Bad Request: chat not found")}
	validator := NewValidator(api, log, 999)

	_, err := validator.VerifyChannels(context.Background(), []string{"@a", "@b"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeChannelNotFound))
}
