package gate

import (
	"fmt"
	"strings"

	"subgate/internal/common/errors"
)

// Callback payloads ride inside the platform's callback_data field,
// which is capped at 64 bytes. Two shapes exist:
//
//	check_sub_<token>_<channel>   recheck one channel
//	check_all_<token>             recheck everything for the post
//
// The channel travels without its @ prefix to save bytes.
const (
	singlePrefix    = "check_sub_"
	aggregatePrefix = "check_all_"
	maxPayloadBytes = 64
)

// ResumeToken is a decoded callback payload: which post to re-evaluate
// and, for single-channel rechecks, which channel triggered it.
type ResumeToken struct {
	Code    string
	Channel string
	All     bool
}

// SingleResumePayload encodes a one-channel recheck. It fails rather
// than emit a payload the platform would truncate.
func SingleResumePayload(code, channel string) (string, error) {
	payload := singlePrefix + code + "_" + strings.TrimPrefix(channel, "@")
	if len(payload) > maxPayloadBytes {
		return "", errors.NewInvalidContentError(
			fmt.Sprintf("callback payload exceeds %d bytes for channel %s", maxPayloadBytes, channel))
	}
	return payload, nil
}

// AggregateResumePayload encodes a recheck of every gate channel.
func AggregateResumePayload(code string) string {
	return aggregatePrefix + code
}

// ParseResumePayload decodes a callback payload. Unrecognized payloads
// return ok=false so the dispatcher can route them elsewhere.
func ParseResumePayload(data string) (*ResumeToken, bool) {
	switch {
	case strings.HasPrefix(data, aggregatePrefix):
		code := strings.TrimPrefix(data, aggregatePrefix)
		if code == "" {
			return nil, false
		}
		return &ResumeToken{Code: code, All: true}, true
	case strings.HasPrefix(data, singlePrefix):
		rest := strings.TrimPrefix(data, singlePrefix)
		idx := strings.Index(rest, "_")
		if idx <= 0 || idx == len(rest)-1 {
			return nil, false
		}
		return &ResumeToken{
			Code:    rest[:idx],
			Channel: "@" + rest[idx+1:],
		}, true
	default:
		return nil, false
	}
}
