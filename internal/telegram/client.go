package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"subgate/internal/common/errors"
	httpclient "subgate/internal/common/http"
)

// API is the subset of the Bot API the rest of the system depends on.
// Handlers and the membership oracle take this interface so tests can
// substitute a fake transport.
type API interface {
	GetMe(ctx context.Context) (*User, error)
	GetChat(ctx context.Context, chatID string) (*Chat, error)
	GetChatMember(ctx context.Context, chatID string, userID int64) (*ChatMember, error)
	SendMessage(ctx context.Context, params SendMessageParams) (*Message, error)
	SendPhoto(ctx context.Context, params SendPhotoParams) (*Message, error)
	SendVideo(ctx context.Context, params SendVideoParams) (*Message, error)
	EditMessageText(ctx context.Context, params EditMessageTextParams) (*Message, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	AnswerCallbackQuery(ctx context.Context, params AnswerCallbackParams) error
	SetMyCommands(ctx context.Context, commands []BotCommand) error
	DeleteWebhook(ctx context.Context) error
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error)
}

// Client talks to the Telegram Bot API over HTTPS.
type Client struct {
	baseURL    string
	token      string
	httpClient *httpclient.Client
}

// NewClient creates a Bot API client. baseURL is normally
// https://api.telegram.org and is overridable for tests. The timeout
// must exceed the long-poll hold passed to GetUpdates.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: httpclient.NewClient(timeout),
	}
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// call POSTs a JSON body to a Bot API method and decodes the result
// envelope. A non-ok envelope comes back as a TelegramAPIError carrying
// the API's error code and description.
func (c *Client) call(ctx context.Context, method string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.NewTelegramAPIError(method, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), reader)
	if err != nil {
		return errors.NewTelegramAPIError(method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewTelegramAPIError(method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewTelegramAPIError(method, err)
	}

	var envelope APIResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return errors.NewTelegramAPIError(method, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err))
	}
	if !envelope.OK {
		return errors.NewTelegramAPIError(method, fmt.Errorf("api error %d: %s", envelope.ErrorCode, envelope.Description))
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return errors.NewTelegramAPIError(method, fmt.Errorf("decode result: %w", err))
		}
	}
	return nil
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.call(ctx, "getMe", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	var chat Chat
	params := map[string]string{"chat_id": chatID}
	if err := c.call(ctx, "getChat", params, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (c *Client) GetChatMember(ctx context.Context, chatID string, userID int64) (*ChatMember, error) {
	var member ChatMember
	params := map[string]interface{}{
		"chat_id": chatID,
		"user_id": userID,
	}
	if err := c.call(ctx, "getChatMember", params, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (*Message, error) {
	var msg Message
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) SendPhoto(ctx context.Context, params SendPhotoParams) (*Message, error) {
	var msg Message
	if err := c.call(ctx, "sendPhoto", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) SendVideo(ctx context.Context, params SendVideoParams) (*Message, error) {
	var msg Message
	if err := c.call(ctx, "sendVideo", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) EditMessageText(ctx context.Context, params EditMessageTextParams) (*Message, error) {
	var msg Message
	if err := c.call(ctx, "editMessageText", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	params := map[string]int64{
		"chat_id":    chatID,
		"message_id": messageID,
	}
	return c.call(ctx, "deleteMessage", params, nil)
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, params AnswerCallbackParams) error {
	return c.call(ctx, "answerCallbackQuery", params, nil)
}

func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	params := map[string]interface{}{"commands": commands}
	return c.call(ctx, "setMyCommands", params, nil)
}

func (c *Client) DeleteWebhook(ctx context.Context) error {
	params := map[string]bool{"drop_pending_updates": false}
	return c.call(ctx, "deleteWebhook", params, nil)
}

// GetUpdates long-polls for new updates. timeout is the server-side
// hold in seconds; the HTTP client timeout must exceed it.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("timeout", strconv.Itoa(timeout))
	q.Set("allowed_updates", `["message","callback_query"]`)

	endpoint := c.methodURL("getUpdates") + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewTelegramAPIError("getUpdates", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewTelegramAPIError("getUpdates", err)
	}
	defer resp.Body.Close()

	var envelope APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, errors.NewTelegramAPIError("getUpdates", err)
	}
	if !envelope.OK {
		return nil, errors.NewTelegramAPIError("getUpdates", fmt.Errorf("api error %d: %s", envelope.ErrorCode, envelope.Description))
	}

	var updates []Update
	if err := json.Unmarshal(envelope.Result, &updates); err != nil {
		return nil, errors.NewTelegramAPIError("getUpdates", err)
	}
	return updates, nil
}
