package models

import "time"

// Role controls which bot commands a user may invoke.
type Role string

const (
	RoleUser      Role = "user"
	RolePublisher Role = "publisher"
	RoleAdmin     Role = "admin"
)

// ContentKind identifies the media type attached to a post.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentPhoto ContentKind = "photo"
	ContentVideo ContentKind = "video"
)

type User struct {
	UserID    int64     `json:"user_id" db:"user_id"`
	Username  string    `json:"username" db:"username"`
	FullName  string    `json:"full_name" db:"full_name"`
	Role      Role      `json:"role" db:"role"`
	Credits   int       `json:"credits" db:"credits"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (u *User) IsPublisher() bool {
	return u.Role == RolePublisher || u.Role == RoleAdmin
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Post is a gated content item. Channels holds the channel usernames a
// viewer must be subscribed to before the content is delivered.
type Post struct {
	ID            int64       `json:"id" db:"id"`
	PublisherID   int64       `json:"publisher_id" db:"publisher_id"`
	PostName      string      `json:"post_name" db:"post_name"`
	ContentType   ContentKind `json:"content_type" db:"content_type"`
	ContentText   string      `json:"content_text" db:"content_text"`
	ContentFileID string      `json:"content_file_id" db:"content_file_id"`
	Channels      []string    `json:"channels" db:"channels"`
	UniqueCode    string      `json:"unique_code" db:"unique_code"`
	Views         int64       `json:"views" db:"views"`
	IsActive      bool        `json:"is_active" db:"is_active"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`

	// Subscribers is the update-subscription count, filled only by the
	// publisher listing query.
	Subscribers int64 `json:"subscribers,omitempty" db:"-"`
}

// Tariff is a purchasable credit bundle.
type Tariff struct {
	Name    string `json:"name"`
	Price   int    `json:"price"`
	Credits int    `json:"credits"`
}

type Payment struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Tariff    string    `json:"tariff" db:"tariff"`
	Amount    int       `json:"amount" db:"amount"`
	Credits   int       `json:"credits" db:"credits"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UpdateSubscription marks a user as wanting a notification when a
// publisher edits one of their posts.
type UpdateSubscription struct {
	ID        int64     `json:"id" db:"id"`
	PostID    int64     `json:"post_id" db:"post_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Stats is the aggregate snapshot shown to admins.
type Stats struct {
	TotalUsers     int64 `json:"total_users"`
	TotalPosts     int64 `json:"total_posts"`
	ActivePosts    int64 `json:"active_posts"`
	TotalViews     int64 `json:"total_views"`
	TotalPayments  int64 `json:"total_payments"`
	CreditsInPlay  int64 `json:"credits_in_play"`
	PublisherCount int64 `json:"publisher_count"`
}
