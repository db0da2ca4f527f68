package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"subgate/internal/common/logger"
)

// State names the step a multi-message dialog is on. Empty means no
// dialog in progress.
type State string

const (
	StateIdle State = ""

	StatePostName     State = "post:name"
	StatePostChannels State = "post:channels"
	StatePostContent  State = "post:content"
	StatePostEdit     State = "post:edit"
)

// Dialog is the serialized per-user conversation state. Data carries
// the answers collected so far, keyed by step.
type Dialog struct {
	State State             `json:"state"`
	Data  map[string]string `json:"data,omitempty"`
}

// Manager keeps dialog state in Redis so a bot restart does not strand
// users mid-conversation. Entries expire after ttl of inactivity.
type Manager struct {
	client *redis.Client
	logger logger.Logger
	ttl    time.Duration
}

func NewManager(client *redis.Client, log logger.Logger, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{client: client, logger: log, ttl: ttl}
}

func dialogKey(userID int64) string {
	return fmt.Sprintf("fsm:%d", userID)
}

// Get returns the user's dialog, or an idle one if none is stored.
func (m *Manager) Get(ctx context.Context, userID int64) (*Dialog, error) {
	raw, err := m.client.Get(ctx, dialogKey(userID)).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return &Dialog{State: StateIdle, Data: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("load dialog for %d: %w", userID, err)
	}

	var dialog Dialog
	if err := json.Unmarshal([]byte(raw), &dialog); err != nil {
		// Corrupt state is unrecoverable; start the user over.
		m.logger.Warn("dropping corrupt dialog state", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return &Dialog{State: StateIdle, Data: map[string]string{}}, nil
	}
	if dialog.Data == nil {
		dialog.Data = map[string]string{}
	}
	return &dialog, nil
}

// Set stores the dialog and refreshes its expiry.
func (m *Manager) Set(ctx context.Context, userID int64, dialog *Dialog) error {
	raw, err := json.Marshal(dialog)
	if err != nil {
		return fmt.Errorf("encode dialog for %d: %w", userID, err)
	}
	if err := m.client.Set(ctx, dialogKey(userID), raw, m.ttl).Err(); err != nil {
		return fmt.Errorf("store dialog for %d: %w", userID, err)
	}
	return nil
}

// Transition moves the dialog to state, merging extra into its data.
func (m *Manager) Transition(ctx context.Context, userID int64, state State, extra map[string]string) error {
	dialog, err := m.Get(ctx, userID)
	if err != nil {
		return err
	}
	dialog.State = state
	for k, v := range extra {
		dialog.Data[k] = v
	}
	return m.Set(ctx, userID, dialog)
}

// Clear drops the user's dialog entirely.
func (m *Manager) Clear(ctx context.Context, userID int64) error {
	if err := m.client.Del(ctx, dialogKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear dialog for %d: %w", userID, err)
	}
	return nil
}
