package bot

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subgate/internal/common/config"
	"subgate/internal/common/logger"
	"subgate/internal/gate"
	"subgate/internal/membership"
	"subgate/internal/models"
	"subgate/internal/session"
	"subgate/internal/store"
	"subgate/internal/telegram"
)

// fakeAPI records outgoing Bot API traffic and serves canned answers.
type fakeAPI struct {
	me        telegram.User
	chats     map[string]*telegram.Chat
	members   map[string]*telegram.ChatMember
	memberErr map[string]error

	sent      []telegram.SendMessageParams
	photos    []telegram.SendPhotoParams
	videos    []telegram.SendVideoParams
	edits     []telegram.EditMessageTextParams
	answers   []telegram.AnswerCallbackParams
	deleted   []int64
	commands  []telegram.BotCommand
	noWebhook bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		me:        telegram.User{ID: 999, IsBot: true, Username: "gatebot"},
		chats:     map[string]*telegram.Chat{},
		members:   map[string]*telegram.ChatMember{},
		memberErr: map[string]error{},
	}
}

func (f *fakeAPI) GetMe(ctx context.Context) (*telegram.User, error) { return &f.me, nil }

func (f *fakeAPI) GetChat(ctx context.Context, chatID string) (*telegram.Chat, error) {
	if chat, ok := f.chats[chatID]; ok {
		return chat, nil
	}
	return nil, assert.AnError
}

func (f *fakeAPI) GetChatMember(ctx context.Context, chatID string, userID int64) (*telegram.ChatMember, error) {
	if err, ok := f.memberErr[chatID]; ok {
		return nil, err
	}
	if member, ok := f.members[chatID]; ok {
		return member, nil
	}
	return &telegram.ChatMember{Status: "left"}, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error) {
	f.sent = append(f.sent, params)
	return &telegram.Message{MessageID: int64(len(f.sent))}, nil
}

func (f *fakeAPI) SendPhoto(ctx context.Context, params telegram.SendPhotoParams) (*telegram.Message, error) {
	f.photos = append(f.photos, params)
	return &telegram.Message{}, nil
}

func (f *fakeAPI) SendVideo(ctx context.Context, params telegram.SendVideoParams) (*telegram.Message, error) {
	f.videos = append(f.videos, params)
	return &telegram.Message{}, nil
}

func (f *fakeAPI) EditMessageText(ctx context.Context, params telegram.EditMessageTextParams) (*telegram.Message, error) {
	f.edits = append(f.edits, params)
	return &telegram.Message{}, nil
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeAPI) AnswerCallbackQuery(ctx context.Context, params telegram.AnswerCallbackParams) error {
	f.answers = append(f.answers, params)
	return nil
}

func (f *fakeAPI) SetMyCommands(ctx context.Context, commands []telegram.BotCommand) error {
	f.commands = commands
	return nil
}

func (f *fakeAPI) DeleteWebhook(ctx context.Context) error {
	f.noWebhook = true
	return nil
}

func (f *fakeAPI) GetUpdates(ctx context.Context, offset int64, timeout int) ([]telegram.Update, error) {
	return nil, nil
}

func (f *fakeAPI) lastText(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1].Text
}

type botFixture struct {
	bot  *Bot
	api  *fakeAPI
	mock sqlmock.Sqlmock
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	log := logger.NewTestLogger(t)

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.New(db, log)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	sessions := session.NewManager(rdb, log, time.Hour)

	api := newFakeAPI()
	oracle := membership.NewOracle(api, log, time.Second)
	validator := membership.NewValidator(api, log, api.me.ID)
	protocol := gate.NewProtocol(st, oracle, nil, nil, nil, log, "@global")
	resume := gate.NewResume(protocol, 0)

	cfg := &config.Config{}
	cfg.Telegram.PollTimeout = 1
	cfg.Telegram.AdminIDs = []int64{1000}
	cfg.Gate.GlobalChannel = "@global"
	cfg.Gate.BotDeepLinkFmt = "https://t.me/%s?start=%s"
	cfg.Tariffs = []config.TariffConfig{{Name: "basic", Price: 100, Credits: 10}}

	b := New(api, st, sessions, protocol, resume, validator, cfg, log)
	b.botName = api.me.Username
	return &botFixture{bot: b, api: api, mock: mock}
}

func testUser(role models.Role, credits int) *models.User {
	return &models.User{UserID: 42, Username: "alice", Role: role, Credits: credits}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in, cmd, args string
	}{
		{"/start", "/start", ""},
		{"/start abc123", "/start", "abc123"},
		{"/stats@gatebot", "/stats", ""},
		{"/grant_credits @bob 10", "/grant_credits", "@bob 10"},
	}
	for _, tt := range tests {
		cmd, args := splitCommand(tt.in)
		assert.Equal(t, tt.cmd, cmd)
		assert.Equal(t, tt.args, args)
	}
}

func TestHandleStartWithoutCode(t *testing.T) {
	fx := newBotFixture(t)
	fx.bot.handleStart(context.Background(), testUser(models.RoleUser, 0), 42, "")
	assert.Contains(t, fx.api.lastText(t), "/help")
}

func TestPresentOutcomeBlocked(t *testing.T) {
	fx := newBotFixture(t)
	post := &models.Post{ID: 1, UniqueCode: "abc123def0", Channels: []string{"@a", "@b"}, IsActive: true}

	fx.bot.presentOutcome(context.Background(), 42, &gate.Outcome{
		Post:    post,
		Missing: []string{"@a", "@b"},
	})

	require.Len(t, fx.api.sent, 1)
	msg := fx.api.sent[0]
	assert.Contains(t, msg.Text, "@a")
	assert.Contains(t, msg.Text, "@b")
	require.NotNil(t, msg.ReplyMarkup)
	// One row per missing channel plus the check-everything row.
	require.Len(t, msg.ReplyMarkup.InlineKeyboard, 3)
	assert.Equal(t, "https://t.me/a", msg.ReplyMarkup.InlineKeyboard[0][0].URL)
	assert.Equal(t, "check_sub_abc123def0_a", msg.ReplyMarkup.InlineKeyboard[0][1].CallbackData)
	assert.Equal(t, "check_all_abc123def0", msg.ReplyMarkup.InlineKeyboard[2][0].CallbackData)
}

func TestPresentOutcomeGlobalBlocked(t *testing.T) {
	fx := newBotFixture(t)
	post := &models.Post{ID: 1, UniqueCode: "abc123def0", IsActive: true}

	fx.bot.presentOutcome(context.Background(), 42, &gate.Outcome{Post: post, MissingGlobal: true})

	require.Len(t, fx.api.sent, 1)
	assert.Contains(t, fx.api.sent[0].Text, "@global")
	assert.Equal(t, "check_all_abc123def0",
		fx.api.sent[0].ReplyMarkup.InlineKeyboard[1][0].CallbackData)
}

func TestPresentOutcomeGrantedDeliversContent(t *testing.T) {
	fx := newBotFixture(t)

	t.Run("text", func(t *testing.T) {
		fx.bot.presentOutcome(context.Background(), 42, &gate.Outcome{
			Post:    &models.Post{ID: 1, ContentType: models.ContentText, ContentText: "secret"},
			Granted: true,
		})
		assert.Equal(t, "secret", fx.api.lastText(t))
	})

	t.Run("photo", func(t *testing.T) {
		fx.bot.presentOutcome(context.Background(), 42, &gate.Outcome{
			Post:    &models.Post{ID: 2, ContentType: models.ContentPhoto, ContentFileID: "file-1", ContentText: "cap"},
			Granted: true,
		})
		require.Len(t, fx.api.photos, 1)
		assert.Equal(t, "file-1", fx.api.photos[0].Photo)
		assert.Equal(t, "cap", fx.api.photos[0].Caption)
	})

	t.Run("video", func(t *testing.T) {
		fx.bot.presentOutcome(context.Background(), 42, &gate.Outcome{
			Post:    &models.Post{ID: 3, ContentType: models.ContentVideo, ContentFileID: "file-2"},
			Granted: true,
		})
		require.Len(t, fx.api.videos, 1)
		assert.Equal(t, "file-2", fx.api.videos[0].Video)
	})
}

func TestPresentGateError(t *testing.T) {
	fx := newBotFixture(t)
	fx.mock.ExpectQuery(`SELECT .+ FROM posts WHERE unique_code`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	fx.bot.runGate(context.Background(), 42, 42, "missing")
	assert.Contains(t, fx.api.lastText(t), "does not exist")
}

func TestAdminCommandsRejectNonAdmins(t *testing.T) {
	fx := newBotFixture(t)
	user := testUser(models.RolePublisher, 10)

	fx.bot.handleStats(context.Background(), user, 42)
	assert.Contains(t, fx.api.lastText(t), "administrators")
}

func TestAdminIDFromConfigCounts(t *testing.T) {
	fx := newBotFixture(t)
	user := &models.User{UserID: 1000, Role: models.RoleUser}
	assert.True(t, fx.bot.isAdmin(user))
}

func TestNewPostRequiresPublisher(t *testing.T) {
	fx := newBotFixture(t)

	fx.bot.handleNewPost(context.Background(), testUser(models.RoleUser, 5), 42)
	assert.Contains(t, fx.api.lastText(t), "publisher")

	// Zero credits is fine: /skip can still produce a free post.
	fx.bot.handleNewPost(context.Background(), testUser(models.RolePublisher, 0), 42)
	assert.Contains(t, fx.api.lastText(t), "name")
}

func TestPostCreationDialog(t *testing.T) {
	fx := newBotFixture(t)
	ctx := context.Background()
	user := testUser(models.RolePublisher, 10)
	chat := telegram.Chat{ID: 42}
	from := &telegram.User{ID: 42, Username: "alice", FirstName: "Alice"}

	fx.api.chats["@news"] = &telegram.Chat{ID: -100, Type: "channel"}
	fx.api.members["@news"] = &telegram.ChatMember{Status: "administrator", CanPostMessages: true}

	fx.bot.handleNewPost(ctx, user, chat.ID)
	assert.Contains(t, fx.api.lastText(t), "name")

	dialog, err := fx.bot.sessions.Get(ctx, user.UserID)
	require.NoError(t, err)
	fx.bot.continuePostDialog(ctx, user, &telegram.Message{Chat: chat, From: from, Text: "launch"}, dialog)
	assert.Contains(t, fx.api.lastText(t), "channels")

	dialog, err = fx.bot.sessions.Get(ctx, user.UserID)
	require.NoError(t, err)
	fx.bot.continuePostDialog(ctx, user, &telegram.Message{Chat: chat, From: from, Text: "@news"}, dialog)
	assert.Contains(t, fx.api.lastText(t), "content")

	fx.mock.ExpectBegin()
	fx.mock.ExpectQuery(`SELECT credits FROM users WHERE user_id .+ FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(10))
	fx.mock.ExpectExec(`UPDATE users SET credits = credits -`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	fx.mock.ExpectQuery(`INSERT INTO posts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "views", "is_active", "created_at"}).
			AddRow(int64(5), int64(0), true, time.Now()))
	fx.mock.ExpectCommit()

	dialog, err = fx.bot.sessions.Get(ctx, user.UserID)
	require.NoError(t, err)
	fx.bot.continuePostDialog(ctx, user, &telegram.Message{Chat: chat, From: from, Text: "the secret"}, dialog)

	last := fx.api.lastText(t)
	assert.Contains(t, last, "https://t.me/gatebot?start=")
	assert.Contains(t, last, "1 credits were spent")
	require.NoError(t, fx.mock.ExpectationsWereMet())

	dialog, err = fx.bot.sessions.Get(ctx, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, session.StateIdle, dialog.State)
}

func TestDialogRejectsTooManyChannels(t *testing.T) {
	fx := newBotFixture(t)
	ctx := context.Background()
	user := testUser(models.RolePublisher, 1)
	from := &telegram.User{ID: 42, FirstName: "Alice"}

	require.NoError(t, fx.bot.sessions.Transition(ctx, user.UserID, session.StatePostChannels, map[string]string{
		"post_name": "launch",
	}))
	dialog, err := fx.bot.sessions.Get(ctx, user.UserID)
	require.NoError(t, err)

	fx.bot.continuePostDialog(ctx, user,
		&telegram.Message{Chat: telegram.Chat{ID: 42}, From: from, Text: "@a @b @c"}, dialog)
	assert.Contains(t, fx.api.lastText(t), "only have 1 credits")
}

func TestSkipChannelsCreatesFreePost(t *testing.T) {
	fx := newBotFixture(t)
	ctx := context.Background()
	user := testUser(models.RolePublisher, 0)
	chat := telegram.Chat{ID: 42}
	from := &telegram.User{ID: 42, FirstName: "Alice"}

	require.NoError(t, fx.bot.sessions.Transition(ctx, user.UserID, session.StatePostChannels, map[string]string{
		"post_name": "open post",
	}))

	fx.bot.handleSkipChannels(ctx, user, chat.ID)
	assert.Contains(t, fx.api.lastText(t), "anyone with the link")

	dialog, err := fx.bot.sessions.Get(ctx, user.UserID)
	require.NoError(t, err)
	require.Equal(t, session.StatePostContent, dialog.State)

	// No credit lock and no debit: a channel-less post is free.
	fx.mock.ExpectBegin()
	fx.mock.ExpectQuery(`INSERT INTO posts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "views", "is_active", "created_at"}).
			AddRow(int64(6), int64(0), true, time.Now()))
	fx.mock.ExpectCommit()

	fx.bot.continuePostDialog(ctx, user, &telegram.Message{Chat: chat, From: from, Text: "hello all"}, dialog)

	last := fx.api.lastText(t)
	assert.Contains(t, last, "no gate channels")
	assert.Contains(t, last, "No credits were spent")
	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestSkipOutsideChannelStep(t *testing.T) {
	fx := newBotFixture(t)
	ctx := context.Background()
	user := testUser(models.RoleUser, 0)

	fx.bot.handleSkipChannels(ctx, user, 42)
	assert.Contains(t, fx.api.lastText(t), "Nothing to skip")
}

func TestPostFromMessage(t *testing.T) {
	photoMsg := &telegram.Message{Caption: "cap"}
	photoMsg.Photo = []struct {
		FileID string `json:"file_id"`
	}{{FileID: "small"}, {FileID: "big"}}

	post := postFromMessage(photoMsg)
	require.NotNil(t, post)
	assert.Equal(t, models.ContentPhoto, post.ContentType)
	assert.Equal(t, "big", post.ContentFileID, "largest rendition wins")

	post = postFromMessage(&telegram.Message{Text: "hello"})
	require.NotNil(t, post)
	assert.Equal(t, models.ContentText, post.ContentType)

	assert.Nil(t, postFromMessage(&telegram.Message{}))
}

func TestResumeCallbackGrantsAndCleansUp(t *testing.T) {
	fx := newBotFixture(t)
	ctx := context.Background()

	fx.api.members["@global"] = &telegram.ChatMember{Status: "member"}
	fx.api.members["@a"] = &telegram.ChatMember{Status: "member"}

	post := models.Post{
		ID: 1, PublisherID: 7, PostName: "launch", ContentType: models.ContentText,
		ContentText: "secret", Channels: []string{"@a"}, UniqueCode: "abc123def0",
		IsActive: true, CreatedAt: time.Now(),
	}
	channelsJSON := []byte(`["@a"]`)
	fx.mock.ExpectQuery(`SELECT .+ FROM posts WHERE unique_code`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "publisher_id", "post_name", "content_type", "content_text",
			"content_file_id", "channels", "unique_code", "views", "is_active", "created_at",
		}).AddRow(post.ID, post.PublisherID, post.PostName, post.ContentType, post.ContentText,
			post.ContentFileID, channelsJSON, post.UniqueCode, post.Views, post.IsActive, post.CreatedAt))
	fx.mock.ExpectExec(`UPDATE posts SET views = views \+ 1`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	query := &telegram.CallbackQuery{
		ID:      "cb1",
		From:    telegram.User{ID: 42},
		Message: &telegram.Message{MessageID: 10, Chat: telegram.Chat{ID: 42}},
		Data:    "check_sub_abc123def0_a",
	}
	fx.bot.handleCallback(ctx, query)

	require.NotEmpty(t, fx.api.answers)
	assert.Equal(t, []int64{10}, fx.api.deleted, "the blocked prompt is removed after a grant")
	assert.Equal(t, "secret", fx.api.lastText(t))
	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestAuditChannels(t *testing.T) {
	fx := newBotFixture(t)
	ctx := context.Background()
	admin := testUser(models.RoleAdmin, 0)

	fx.api.chats["@alpha"] = &telegram.Chat{ID: -100, Type: "channel"}
	fx.api.members["@alpha"] = &telegram.ChatMember{Status: "administrator", CanPostMessages: true}
	fx.api.chats["@beta"] = &telegram.Chat{ID: -101, Type: "channel"}
	fx.api.members["@beta"] = &telegram.ChatMember{Status: "member"}

	fx.mock.ExpectQuery(`SELECT DISTINCT jsonb_array_elements_text`).
		WillReturnRows(sqlmock.NewRows([]string{"channel"}).
			AddRow("@alpha").
			AddRow("@beta"))

	fx.bot.handleAuditChannels(ctx, admin, 42)
	text := fx.api.lastText(t)
	assert.Contains(t, text, "1 need attention")
	assert.Contains(t, text, "@beta")
	assert.NotContains(t, text, "@alpha:")

	fx.mock.ExpectQuery(`SELECT DISTINCT jsonb_array_elements_text`).
		WillReturnRows(sqlmock.NewRows([]string{"channel"}))
	fx.bot.handleAuditChannels(ctx, admin, 42)
	assert.Contains(t, fx.api.lastText(t), "nothing to audit")
}

func publisherRow(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"user_id", "username", "full_name", "role", "credits", "created_at"}).
		AddRow(int64(42), "alice", "Alice", string(models.RolePublisher), 5, now)
}

func postRow(now time.Time, active bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "publisher_id", "post_name", "content_type", "content_text",
		"content_file_id", "channels", "unique_code", "views", "is_active", "created_at",
	}).AddRow(int64(7), int64(42), "launch", "text", "secret", "",
		[]byte(`["@a"]`), "abc123def0", int64(3), active, now)
}

func TestTogglePostCallbackRefreshesListing(t *testing.T) {
	fx := newBotFixture(t)
	ctx := context.Background()
	now := time.Now()

	fx.mock.ExpectQuery(`SELECT .+ FROM posts WHERE id`).
		WithArgs(int64(7)).
		WillReturnRows(postRow(now, true))
	fx.mock.ExpectQuery(`SELECT user_id, username, full_name, role, credits, created_at`).
		WithArgs(int64(42)).
		WillReturnRows(publisherRow(now))
	fx.mock.ExpectExec(`UPDATE posts SET is_active`).
		WithArgs(false, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	fx.mock.ExpectQuery(`SELECT user_id FROM post_updates_subscriptions`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(1)).AddRow(int64(2)))

	query := &telegram.CallbackQuery{
		ID:      "cb1",
		From:    telegram.User{ID: 42},
		Message: &telegram.Message{MessageID: 55, Chat: telegram.Chat{ID: 42}},
		Data:    "toggle_post_7",
	}
	fx.bot.handleTogglePostCallback(ctx, query, 42)

	require.Len(t, fx.api.edits, 1)
	edit := fx.api.edits[0]
	assert.Equal(t, int64(55), edit.MessageID)
	assert.Contains(t, edit.Text, "inactive")
	assert.Contains(t, edit.Text, "Followers: 2")
	require.NotEmpty(t, fx.api.answers)
	assert.Equal(t, "Post deactivated.", fx.api.answers[len(fx.api.answers)-1].Text)
	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestSubscribeUpdatesCallbackToggles(t *testing.T) {
	fx := newBotFixture(t)
	ctx := context.Background()
	query := &telegram.CallbackQuery{ID: "cb1", From: telegram.User{ID: 42}, Data: "sub_updates_7"}

	fx.mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(7), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	fx.mock.ExpectExec(`INSERT INTO post_updates_subscriptions`).
		WithArgs(int64(7), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	fx.bot.handleSubscribeUpdatesCallback(ctx, query, 42)
	require.NotEmpty(t, fx.api.answers)
	assert.Contains(t, fx.api.answers[len(fx.api.answers)-1].Text, "will be notified")

	fx.mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(7), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	fx.mock.ExpectExec(`DELETE FROM post_updates_subscriptions`).
		WithArgs(int64(7), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	fx.bot.handleSubscribeUpdatesCallback(ctx, query, 42)
	assert.Contains(t, fx.api.answers[len(fx.api.answers)-1].Text, "no longer")
	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestEditPostCallbackStartsDialog(t *testing.T) {
	fx := newBotFixture(t)
	ctx := context.Background()
	now := time.Now()

	fx.mock.ExpectQuery(`SELECT .+ FROM posts WHERE id`).
		WithArgs(int64(7)).
		WillReturnRows(postRow(now, true))
	fx.mock.ExpectQuery(`SELECT user_id, username, full_name, role, credits, created_at`).
		WithArgs(int64(42)).
		WillReturnRows(publisherRow(now))

	query := &telegram.CallbackQuery{
		ID:      "cb1",
		From:    telegram.User{ID: 42},
		Message: &telegram.Message{MessageID: 55, Chat: telegram.Chat{ID: 42}},
		Data:    "edit_post_7",
	}
	fx.bot.handleEditPostCallback(ctx, query, 42)

	assert.Contains(t, fx.api.lastText(t), "new content")
	dialog, err := fx.bot.sessions.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, session.StatePostEdit, dialog.State)
	assert.Equal(t, "7", dialog.Data["edit_post_id"])
	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestEditPostDialogNotifiesFollowers(t *testing.T) {
	fx := newBotFixture(t)
	ctx := context.Background()
	now := time.Now()
	user := testUser(models.RolePublisher, 5)
	chat := telegram.Chat{ID: 42}
	from := &telegram.User{ID: 42, FirstName: "Alice"}

	require.NoError(t, fx.bot.sessions.Transition(ctx, user.UserID, session.StatePostEdit, map[string]string{
		"edit_post_id": "7",
	}))
	dialog, err := fx.bot.sessions.Get(ctx, user.UserID)
	require.NoError(t, err)

	fx.mock.ExpectExec(`UPDATE posts SET content_type`).
		WithArgs("text", "fresh take", "", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	fx.mock.ExpectQuery(`SELECT .+ FROM posts WHERE id`).
		WithArgs(int64(7)).
		WillReturnRows(postRow(now, true))
	fx.mock.ExpectQuery(`SELECT user_id FROM post_updates_subscriptions`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(101)).AddRow(int64(102)))

	fx.bot.continuePostDialog(ctx, user, &telegram.Message{Chat: chat, From: from, Text: "fresh take"}, dialog)

	require.Len(t, fx.api.sent, 3, "two follower notifications plus the confirmation")
	assert.Equal(t, int64(101), fx.api.sent[0].ChatID)
	assert.Contains(t, fx.api.sent[0].Text, "https://t.me/gatebot?start=abc123def0")
	assert.Contains(t, fx.api.lastText(t), "2 followers were notified")

	dialog, err = fx.bot.sessions.Get(ctx, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, session.StateIdle, dialog.State)
	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestCheckChannelWarnsAboutMemberVisibility(t *testing.T) {
	fx := newBotFixture(t)
	ctx := context.Background()
	user := testUser(models.RolePublisher, 5)

	fx.api.chats["@news"] = &telegram.Chat{ID: -100, Type: "channel"}
	fx.api.members["@news"] = &telegram.ChatMember{Status: "administrator", CanPostMessages: true}

	fx.bot.handleCheckChannel(ctx, user, 42, "@news")
	text := fx.api.lastText(t)
	assert.Contains(t, text, "@news is ready")
	assert.Contains(t, text, "member list")

	fx.api.members["@news"].CanRestrictMembers = true
	fx.bot.handleCheckChannel(ctx, user, 42, "@news")
	assert.NotContains(t, fx.api.lastText(t), "member list")
}
