package membership

import (
	"time"

	"subgate/internal/telegram"
)

// Status is the decoded membership state of a user in a channel. It is
// a closed set: every variant answers Subscribed, so callers never
// branch on raw API strings.
type Status interface {
	Subscribed() bool
	Kind() string
}

type Creator struct{}

func (Creator) Subscribed() bool { return true }
func (Creator) Kind() string     { return "creator" }

type Administrator struct {
	CanPostMessages    bool
	CanRestrictMembers bool
}

func (Administrator) Subscribed() bool { return true }
func (Administrator) Kind() string     { return "administrator" }

type Member struct{}

func (Member) Subscribed() bool { return true }
func (Member) Kind() string     { return "member" }

// Restricted users count as subscribed only while they remain members.
type Restricted struct {
	IsMember bool
}

func (r Restricted) Subscribed() bool { return r.IsMember }
func (Restricted) Kind() string       { return "restricted" }

type Left struct{}

func (Left) Subscribed() bool { return false }
func (Left) Kind() string     { return "left" }

type Kicked struct{}

func (Kicked) Subscribed() bool { return false }
func (Kicked) Kind() string     { return "kicked" }

// Unknown covers API statuses this code predates. It never grants.
type Unknown struct {
	Raw string
}

func (Unknown) Subscribed() bool { return false }
func (Unknown) Kind() string     { return "unknown" }

// StatusFromChatMember maps a raw getChatMember record onto the closed
// status set.
func StatusFromChatMember(member *telegram.ChatMember) Status {
	switch member.Status {
	case "creator":
		return Creator{}
	case "administrator":
		return Administrator{
			CanPostMessages:    member.CanPostMessages,
			CanRestrictMembers: member.CanRestrictMembers,
		}
	case "member":
		return Member{}
	case "restricted":
		return Restricted{IsMember: member.IsMember}
	case "left":
		return Left{}
	case "kicked":
		return Kicked{}
	default:
		return Unknown{Raw: member.Status}
	}
}

// Verdict is one oracle answer, kept for observability and caching.
type Verdict struct {
	UserID     int64     `json:"user_id"`
	Channel    string    `json:"channel"`
	Status     string    `json:"status"`
	Subscribed bool      `json:"subscribed"`
	CheckedAt  time.Time `json:"checked_at"`
}
