package membership

import (
	"context"
	"strings"
	"time"

	"subgate/internal/common/errors"
	"subgate/internal/common/logger"
	"subgate/internal/common/metrics"
	"subgate/internal/telegram"
)

// MemberAPI is the one Bot API call the oracle needs.
type MemberAPI interface {
	GetChatMember(ctx context.Context, chatID string, userID int64) (*telegram.ChatMember, error)
}

// Oracle answers "is this user subscribed to this channel" by asking
// the Bot API and normalizing both the answer and the failure modes.
type Oracle struct {
	api     MemberAPI
	logger  logger.Logger
	timeout time.Duration
}

func NewOracle(api MemberAPI, log logger.Logger, timeout time.Duration) *Oracle {
	return &Oracle{
		api:     api,
		logger:  log,
		timeout: timeout,
	}
}

// QueryMembership resolves the user's status in channel. A channel the
// user never joined surfaces as a "not found" API error, not as a
// member record, so that case maps onto Left rather than a failure.
// Errors the caller can act on keep their own codes: INSUFFICIENT_RIGHTS
// when the bot cannot read the member list, ORACLE_TRANSIENT_FAILURE for
// timeouts and everything unclassified.
func (o *Oracle) QueryMembership(ctx context.Context, channel string, userID int64) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	member, err := o.api.GetChatMember(ctx, channel, userID)
	metrics.OracleLatency.WithLabelValues("getChatMember").Observe(time.Since(start).Seconds())

	if err != nil {
		msg := strings.ToLower(errors.DetailsOf(err))
		if strings.Contains(msg, "user not found") || strings.Contains(msg, "participant_id_invalid") {
			// The user has no member record at all; the platform
			// answers this with an error instead of a "left" status.
			metrics.MembershipChecks.WithLabelValues("not_subscribed").Inc()
			o.logger.Debug("no member record for user", map[string]interface{}{
				"channel": channel,
				"user_id": userID,
			})
			return Left{}, nil
		}
		return nil, o.classify(channel, userID, err)
	}

	status := StatusFromChatMember(member)
	result := "not_subscribed"
	if status.Subscribed() {
		result = "subscribed"
	}
	metrics.MembershipChecks.WithLabelValues(result).Inc()

	o.logger.Debug("membership resolved", map[string]interface{}{
		"channel":    channel,
		"user_id":    userID,
		"status":     status.Kind(),
		"subscribed": status.Subscribed(),
	})
	return status, nil
}

// classify maps an API failure onto the gate's error taxonomy. The
// transport wraps failures as StandardError with the Bot API description
// in Details, so matching goes through DetailsOf rather than Error().
func (o *Oracle) classify(channel string, userID int64, err error) error {
	msg := strings.ToLower(errors.DetailsOf(err))
	if strings.Contains(msg, context.DeadlineExceeded.Error()) {
		metrics.MembershipChecks.WithLabelValues("transient").Inc()
		return errors.NewOracleTransientError(channel, err)
	}

	switch {
	case strings.Contains(msg, "chat not found"):
		metrics.MembershipChecks.WithLabelValues("channel_missing").Inc()
		return errors.NewChannelNotFoundError(channel, err)
	case strings.Contains(msg, "not enough rights"), strings.Contains(msg, "member list is inaccessible"):
		metrics.MembershipChecks.WithLabelValues("rights").Inc()
		return errors.NewInsufficientRightsError(channel)
	default:
		metrics.MembershipChecks.WithLabelValues("transient").Inc()
		o.logger.Warn("membership query failed", map[string]interface{}{
			"channel": channel,
			"user_id": userID,
			"error":   truncateErr(err),
		})
		return errors.NewOracleTransientError(channel, err)
	}
}

func truncateErr(err error) string {
	msg := err.Error()
	if len(msg) > 100 {
		return msg[:100]
	}
	return msg
}
