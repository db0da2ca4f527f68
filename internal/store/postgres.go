package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/google/uuid"

	"subgate/internal/common/errors"
	"subgate/internal/common/logger"
	"subgate/internal/common/metrics"
	"subgate/internal/models"
)

// Store persists users, posts, payments and update subscriptions in
// PostgreSQL. All credit movement goes through here so a post is never
// created without its debit landing in the same transaction.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func New(db *sql.DB, log logger.Logger) *Store {
	return &Store{db: db, logger: log}
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id BIGINT PRIMARY KEY,
	username TEXT NOT NULL DEFAULT '',
	full_name TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'user',
	credits INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS posts (
	id BIGSERIAL PRIMARY KEY,
	publisher_id BIGINT NOT NULL REFERENCES users(user_id),
	post_name TEXT NOT NULL,
	content_type TEXT NOT NULL,
	content_text TEXT NOT NULL DEFAULT '',
	content_file_id TEXT NOT NULL DEFAULT '',
	channels JSONB NOT NULL,
	unique_code TEXT NOT NULL UNIQUE,
	views BIGINT NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS payments (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(user_id),
	tariff TEXT NOT NULL,
	amount INTEGER NOT NULL,
	credits INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS subscriptions (
	user_id BIGINT NOT NULL,
	channel TEXT NOT NULL,
	subscribed BOOLEAN NOT NULL,
	checked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, channel)
);

CREATE TABLE IF NOT EXISTS post_updates_subscriptions (
	id BIGSERIAL PRIMARY KEY,
	post_id BIGINT NOT NULL REFERENCES posts(id),
	user_id BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (post_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_posts_publisher ON posts(publisher_id);
CREATE INDEX IF NOT EXISTS idx_posts_code ON posts(unique_code);
`

// EnsureSchema creates the tables on startup. Statements are idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.NewQueryExecutionFailedError("ensure schema", err)
	}
	return nil
}

// NewContentToken mints the short opaque token that identifies a post
// in deep links and callback payloads. Ten characters keeps the whole
// callback payload within the platform's 64 byte limit even with the
// longest channel username appended.
func NewContentToken() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:10]
}

func (s *Store) GetOrCreateUser(ctx context.Context, userID int64, username, fullName string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (user_id, username, full_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET username = $2, full_name = $3
		RETURNING user_id, username, full_name, role, credits, created_at`,
		userID, username, fullName).Scan(
		&user.UserID, &user.Username, &user.FullName, &user.Role, &user.Credits, &user.CreatedAt,
	)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("get or create user", err)
	}
	return &user, nil
}

func (s *Store) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, username, full_name, role, credits, created_at
		FROM users WHERE user_id = $1`, userID).Scan(
		&user.UserID, &user.Username, &user.FullName, &user.Role, &user.Credits, &user.CreatedAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewUserNotFoundError(userID)
		}
		return nil, errors.NewQueryExecutionFailedError("get user", err)
	}
	return &user, nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimPrefix(username, "@")
	var user models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, username, full_name, role, credits, created_at
		FROM users WHERE LOWER(username) = LOWER($1)`, username).Scan(
		&user.UserID, &user.Username, &user.FullName, &user.Role, &user.Credits, &user.CreatedAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewUserNotFoundError(0)
		}
		return nil, errors.NewQueryExecutionFailedError("find user by username", err)
	}
	return &user, nil
}

func (s *Store) SetUserRole(ctx context.Context, userID int64, role models.Role) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role = $1 WHERE user_id = $2`, role, userID)
	if err != nil {
		return errors.NewQueryExecutionFailedError("set user role", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewUserNotFoundError(userID)
	}
	return nil
}

// AddCredits grants credits, for example after a payment. delta must be
// positive; debits happen inside CreatePost.
func (s *Store) AddCredits(ctx context.Context, userID int64, delta int) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET credits = credits + $1 WHERE user_id = $2
		RETURNING credits`, delta, userID).Scan(&balance)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return 0, errors.NewUserNotFoundError(userID)
		}
		return 0, errors.NewQueryExecutionFailedError("add credits", err)
	}
	return balance, nil
}

// CreatePost debits one credit per gate channel and inserts the post in
// a single transaction. The caller gets the stored post back with its
// token filled in. INSUFFICIENT_CREDITS is decided inside the
// transaction so two concurrent creations cannot both spend the same
// balance. A post with no gate channels is legal and costs nothing;
// such content is open to anyone holding the link (behind the global
// channel, if one is configured).
func (s *Store) CreatePost(ctx context.Context, post *models.Post) (*models.Post, error) {
	cost := len(post.Channels)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("begin create post", err)
	}
	defer tx.Rollback()

	if cost > 0 {
		var credits int
		err = tx.QueryRowContext(ctx, `
			SELECT credits FROM users WHERE user_id = $1 FOR UPDATE`,
			post.PublisherID).Scan(&credits)
		if err != nil {
			if stderrors.Is(err, sql.ErrNoRows) {
				return nil, errors.NewUserNotFoundError(post.PublisherID)
			}
			return nil, errors.NewQueryExecutionFailedError("lock publisher", err)
		}
		if credits < cost {
			return nil, errors.NewInsufficientCreditsError(cost, credits)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET credits = credits - $1 WHERE user_id = $2`,
			cost, post.PublisherID); err != nil {
			return nil, errors.NewQueryExecutionFailedError("debit credits", err)
		}
	}

	// A nil slice would land as JSON null and break array expansion in
	// channel queries; store an empty array instead.
	channelList := post.Channels
	if channelList == nil {
		channelList = []string{}
	}
	channels, err := json.Marshal(channelList)
	if err != nil {
		return nil, errors.NewInvalidContentError("channels are not encodable")
	}

	stored := *post
	stored.UniqueCode = NewContentToken()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO posts (publisher_id, post_name, content_type, content_text, content_file_id, channels, unique_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, views, is_active, created_at`,
		stored.PublisherID, stored.PostName, stored.ContentType, stored.ContentText,
		stored.ContentFileID, channels, stored.UniqueCode).Scan(
		&stored.ID, &stored.Views, &stored.IsActive, &stored.CreatedAt,
	)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("insert post", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("commit create post", err)
	}

	metrics.PostsCreated.Inc()
	metrics.CreditsDebited.Add(float64(cost))
	s.logger.Info("post created", map[string]interface{}{
		"post_id":      stored.ID,
		"publisher_id": stored.PublisherID,
		"code":         stored.UniqueCode,
		"channels":     len(stored.Channels),
		"cost":         cost,
	})
	return &stored, nil
}

func (s *Store) scanPost(row *sql.Row) (*models.Post, error) {
	var post models.Post
	var channels []byte
	err := row.Scan(
		&post.ID, &post.PublisherID, &post.PostName, &post.ContentType,
		&post.ContentText, &post.ContentFileID, &channels, &post.UniqueCode,
		&post.Views, &post.IsActive, &post.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(channels, &post.Channels); err != nil {
		return nil, err
	}
	return &post, nil
}

const postColumns = `id, publisher_id, post_name, content_type, content_text, content_file_id, channels, unique_code, views, is_active, created_at`

// GetPostByCode resolves a content token. A token nobody ever minted
// and a deleted post look the same to the caller.
func (s *Store) GetPostByCode(ctx context.Context, code string) (*models.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE unique_code = $1`, code)
	post, err := s.scanPost(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewContentNotFoundError(code)
		}
		return nil, errors.NewQueryExecutionFailedError("get post by code", err)
	}
	return post, nil
}

func (s *Store) GetPost(ctx context.Context, postID int64) (*models.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1`, postID)
	post, err := s.scanPost(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewContentNotFoundError("")
		}
		return nil, errors.NewQueryExecutionFailedError("get post", err)
	}
	return post, nil
}

// ListPostsByPublisher returns the publisher's posts, newest first,
// each carrying its update-subscriber count.
func (s *Store) ListPostsByPublisher(ctx context.Context, publisherID int64) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, publisher_id, post_name, content_type, content_text, content_file_id,
			channels, unique_code, views, is_active, created_at,
			(SELECT COUNT(*) FROM post_updates_subscriptions s WHERE s.post_id = posts.id)
		FROM posts
		WHERE publisher_id = $1 ORDER BY created_at DESC`, publisherID)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("list posts", err)
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var post models.Post
		var channels []byte
		if err := rows.Scan(
			&post.ID, &post.PublisherID, &post.PostName, &post.ContentType,
			&post.ContentText, &post.ContentFileID, &channels, &post.UniqueCode,
			&post.Views, &post.IsActive, &post.CreatedAt, &post.Subscribers,
		); err != nil {
			return nil, errors.NewQueryExecutionFailedError("scan post", err)
		}
		if err := json.Unmarshal(channels, &post.Channels); err != nil {
			return nil, errors.NewQueryExecutionFailedError("decode channels", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("list posts", err)
	}
	return posts, nil
}

// UpdatePostContent replaces a post's content in place. The token and
// the gate channels stay as they are, so existing links keep working.
func (s *Store) UpdatePostContent(ctx context.Context, postID int64, contentType models.ContentKind, text, fileID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET content_type = $1, content_text = $2, content_file_id = $3
		WHERE id = $4`, contentType, text, fileID, postID)
	if err != nil {
		return errors.NewQueryExecutionFailedError("update post content", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewContentNotFoundError("")
	}
	return nil
}

// SetPostActive toggles delivery for a post. Inactive posts still
// resolve by token but the gate refuses them.
func (s *Store) SetPostActive(ctx context.Context, postID int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET is_active = $1 WHERE id = $2`, active, postID)
	if err != nil {
		return errors.NewQueryExecutionFailedError("set post active", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewContentNotFoundError("")
	}
	return nil
}

// IncrementViews bumps the view counter. Callers treat this as best
// effort: a failure here never blocks content delivery.
func (s *Store) IncrementViews(ctx context.Context, postID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE posts SET views = views + 1 WHERE id = $1`, postID); err != nil {
		return errors.NewQueryExecutionFailedError("increment views", err)
	}
	return nil
}

// RecordPayment stores the purchase and grants its credits atomically.
func (s *Store) RecordPayment(ctx context.Context, userID int64, tariff models.Tariff) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("begin payment", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO payments (user_id, tariff, amount, credits)
		VALUES ($1, $2, $3, $4)`,
		userID, tariff.Name, tariff.Price, tariff.Credits); err != nil {
		return 0, errors.NewQueryExecutionFailedError("insert payment", err)
	}

	var balance int
	err = tx.QueryRowContext(ctx, `
		UPDATE users SET credits = credits + $1 WHERE user_id = $2
		RETURNING credits`, tariff.Credits, userID).Scan(&balance)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return 0, errors.NewUserNotFoundError(userID)
		}
		return 0, errors.NewQueryExecutionFailedError("grant credits", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.NewQueryExecutionFailedError("commit payment", err)
	}
	return balance, nil
}

// RecordMembershipObservation keeps the latest known verdict per user
// and channel. Write-only from the gate's perspective; it exists for
// offline analysis, nothing reads it on the access path.
func (s *Store) RecordMembershipObservation(ctx context.Context, userID int64, channel string, subscribed bool) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, channel, subscribed, checked_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, channel) DO UPDATE SET subscribed = $3, checked_at = NOW()`,
		userID, channel, subscribed); err != nil {
		return errors.NewQueryExecutionFailedError("record membership observation", err)
	}
	return nil
}

// ListActiveChannels returns every distinct channel gating at least one
// active post. Used by the admin channel audit.
func (s *Store) ListActiveChannels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT jsonb_array_elements_text(channels)
		FROM posts WHERE is_active ORDER BY 1`)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("list active channels", err)
	}
	defer rows.Close()

	var channels []string
	for rows.Next() {
		var channel string
		if err := rows.Scan(&channel); err != nil {
			return nil, errors.NewQueryExecutionFailedError("scan channel", err)
		}
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}

func (s *Store) SubscribeToUpdates(ctx context.Context, postID, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO post_updates_subscriptions (post_id, user_id)
		VALUES ($1, $2) ON CONFLICT (post_id, user_id) DO NOTHING`,
		postID, userID); err != nil {
		return errors.NewQueryExecutionFailedError("subscribe to updates", err)
	}
	return nil
}

func (s *Store) UnsubscribeFromUpdates(ctx context.Context, postID, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM post_updates_subscriptions
		WHERE post_id = $1 AND user_id = $2`,
		postID, userID); err != nil {
		return errors.NewQueryExecutionFailedError("unsubscribe from updates", err)
	}
	return nil
}

func (s *Store) IsSubscribedToUpdates(ctx context.Context, postID, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM post_updates_subscriptions
			WHERE post_id = $1 AND user_id = $2)`,
		postID, userID).Scan(&exists)
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("check update subscription", err)
	}
	return exists, nil
}

func (s *Store) ListUpdateSubscribers(ctx context.Context, postID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM post_updates_subscriptions WHERE post_id = $1`, postID)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("list update subscribers", err)
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewQueryExecutionFailedError("scan subscriber", err)
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, username, full_name, role, credits, created_at
		FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("list users", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(
			&user.UserID, &user.Username, &user.FullName,
			&user.Role, &user.Credits, &user.CreatedAt,
		); err != nil {
			return nil, errors.NewQueryExecutionFailedError("scan user", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (*models.Stats, error) {
	var stats models.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM posts),
			(SELECT COUNT(*) FROM posts WHERE is_active),
			(SELECT COALESCE(SUM(views), 0) FROM posts),
			(SELECT COUNT(*) FROM payments),
			(SELECT COALESCE(SUM(credits), 0) FROM users),
			(SELECT COUNT(*) FROM users WHERE role IN ('publisher', 'admin'))`).Scan(
		&stats.TotalUsers, &stats.TotalPosts, &stats.ActivePosts, &stats.TotalViews,
		&stats.TotalPayments, &stats.CreditsInPlay, &stats.PublisherCount,
	)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("stats", err)
	}
	return &stats, nil
}
