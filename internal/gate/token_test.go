package gate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResumePayloadRoundTrip(t *testing.T) {
	t.Run("single channel", func(t *testing.T) {
		payload, err := SingleResumePayload("abc123def0", "@some_channel")
		require.NoError(t, err)
		assert.Equal(t, "check_sub_abc123def0_some_channel", payload)
		assert.LessOrEqual(t, len(payload), 64)

		token, ok := ParseResumePayload(payload)
		require.True(t, ok)
		assert.Equal(t, "abc123def0", token.Code)
		assert.Equal(t, "@some_channel", token.Channel)
		assert.False(t, token.All)
	})

	t.Run("aggregate", func(t *testing.T) {
		payload := AggregateResumePayload("abc123def0")
		assert.Equal(t, "check_all_abc123def0", payload)

		token, ok := ParseResumePayload(payload)
		require.True(t, ok)
		assert.Equal(t, "abc123def0", token.Code)
		assert.True(t, token.All)
	})
}

func TestSingleResumePayloadLimit(t *testing.T) {
	_, err := SingleResumePayload("abc123def0", "@"+strings.Repeat("x", 60))
	require.Error(t, err)

	// The longest username the platform allows still fits.
	payload, err := SingleResumePayload("abc123def0", "@"+strings.Repeat("x", 32))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(payload), 64)
}

func TestParseResumePayloadRejectsGarbage(t *testing.T) {
	for _, data := range []string{
		"",
		"check_all_",
		"check_sub_abc123def0",
		"check_sub_abc123def0_",
		"check_sub__channel",
		"noise",
		"tariff_basic",
	} {
		_, ok := ParseResumePayload(data)
		assert.False(t, ok, "payload %q should not parse", data)
	}
}
