package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"

	"subgate/internal/common/logger"
	"subgate/internal/membership"
)

// ObservationStore persists the latest verdict per user and channel.
type ObservationStore interface {
	RecordMembershipObservation(ctx context.Context, userID int64, channel string, subscribed bool) error
}

// Sink records membership verdicts for observability. It is strictly
// write-only from the gate's perspective: the access decision always
// comes from a fresh oracle query, never from anything stored here.
// Every write is best effort: the gate never waits on the sink and
// never fails because of it.
type Sink struct {
	redis    *redis.Client
	es       *elasticsearch.Client
	esIndex  string
	store    ObservationStore
	cacheTTL time.Duration
	logger   logger.Logger
}

// New builds a sink. es and store may be nil when the verdict index or
// the durable observation table is disabled.
func New(rdb *redis.Client, es *elasticsearch.Client, esIndex string, store ObservationStore, cacheTTL time.Duration, log logger.Logger) *Sink {
	return &Sink{
		redis:    rdb,
		es:       es,
		esIndex:  esIndex,
		store:    store,
		cacheTTL: cacheTTL,
		logger:   log,
	}
}

func verdictKey(userID int64, channel string) string {
	return fmt.Sprintf("verdict:%d:%s", userID, channel)
}

// RecordVerdict writes the verdict to Redis with a TTL for operators
// poking at recent activity, to the durable observation table, and,
// when configured, to the Elasticsearch index.
func (s *Sink) RecordVerdict(ctx context.Context, verdict membership.Verdict) {
	raw, err := json.Marshal(verdict)
	if err != nil {
		s.logger.Warn("verdict not encodable", map[string]interface{}{"error": err.Error()})
		return
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, verdictKey(verdict.UserID, verdict.Channel), raw, s.cacheTTL).Err(); err != nil {
			s.logger.Warn("verdict cache write failed", map[string]interface{}{
				"user_id": verdict.UserID,
				"channel": verdict.Channel,
				"error":   err.Error(),
			})
		}
	}

	if s.store != nil {
		if err := s.store.RecordMembershipObservation(ctx, verdict.UserID, verdict.Channel, verdict.Subscribed); err != nil {
			s.logger.Warn("verdict store write failed", map[string]interface{}{
				"user_id": verdict.UserID,
				"channel": verdict.Channel,
				"error":   err.Error(),
			})
		}
	}

	if s.es != nil && s.esIndex != "" {
		res, err := s.es.Index(s.esIndex, bytes.NewReader(raw),
			s.es.Index.WithContext(ctx))
		if err != nil {
			s.logger.Warn("verdict index write failed", map[string]interface{}{"error": err.Error()})
			return
		}
		defer res.Body.Close()
		if res.IsError() {
			s.logger.Warn("verdict index rejected", map[string]interface{}{"status": res.Status()})
		}
	}
}

