package observe

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subgate/internal/common/logger"
	"subgate/internal/membership"
)

func newTestSink(t *testing.T) (*Sink, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, nil, "", nil, 5*time.Minute, logger.NewTestLogger(t)), mr
}

func TestSinkWritesVerdict(t *testing.T) {
	sink, mr := newTestSink(t)
	ctx := context.Background()

	verdict := membership.Verdict{
		UserID:     42,
		Channel:    "@news",
		Status:     "member",
		Subscribed: true,
		CheckedAt:  time.Now().UTC().Truncate(time.Second),
	}
	sink.RecordVerdict(ctx, verdict)

	raw, err := mr.Get("verdict:42:@news")
	require.NoError(t, err)

	var got membership.Verdict
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, verdict.Status, got.Status)
	assert.True(t, got.Subscribed)
}

func TestSinkVerdictsExpire(t *testing.T) {
	sink, mr := newTestSink(t)
	ctx := context.Background()

	sink.RecordVerdict(ctx, membership.Verdict{UserID: 42, Channel: "@news", Subscribed: true})
	require.True(t, mr.Exists("verdict:42:@news"))

	mr.FastForward(10 * time.Minute)
	assert.False(t, mr.Exists("verdict:42:@news"))
}

func TestSinkRedisFailuresAreNonFatal(t *testing.T) {
	client, mock := redismock.NewClientMock()
	t.Cleanup(func() { client.Close() })
	sink := New(client, nil, "", nil, 5*time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	verdict := membership.Verdict{UserID: 42, Channel: "@news", Status: "member", Subscribed: true}
	raw, err := json.Marshal(verdict)
	require.NoError(t, err)

	mock.ExpectSet("verdict:42:@news", raw, 5*time.Minute).SetErr(fmt.Errorf("connection refused"))
	sink.RecordVerdict(ctx, verdict)

	require.NoError(t, mock.ExpectationsWereMet())
}

type fakeObservationStore struct {
	calls []string
	err   error
}

func (f *fakeObservationStore) RecordMembershipObservation(_ context.Context, userID int64, channel string, subscribed bool) error {
	f.calls = append(f.calls, fmt.Sprintf("%d:%s:%v", userID, channel, subscribed))
	return f.err
}

func TestSinkPersistsObservations(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	obs := &fakeObservationStore{}
	sink := New(client, nil, "", obs, 5*time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	sink.RecordVerdict(ctx, membership.Verdict{UserID: 42, Channel: "@news", Subscribed: true})
	sink.RecordVerdict(ctx, membership.Verdict{UserID: 42, Channel: "@extra", Subscribed: false})

	assert.Equal(t, []string{"42:@news:true", "42:@extra:false"}, obs.calls)
}

func TestSinkObservationStoreFailureIsNonFatal(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	obs := &fakeObservationStore{err: fmt.Errorf("relation does not exist")}
	sink := New(client, nil, "", obs, 5*time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	sink.RecordVerdict(ctx, membership.Verdict{UserID: 7, Channel: "@news", Subscribed: true})

	raw, err := mr.Get("verdict:7:@news")
	require.NoError(t, err)
	assert.Contains(t, raw, `"subscribed":true`)
}
