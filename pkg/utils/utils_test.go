package utils

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tb "gopkg.in/telebot.v4"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" INFO ", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"-8", slog.Level(-8)},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLogLevel("verbose")
	assert.ErrorIs(t, err, ErrInvalidLogLevel)
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "1h 30m 0s", FormatRemaining(5400000*time.Millisecond))
	assert.Equal(t, "0h 0m 59s", FormatRemaining(59*time.Second+900*time.Millisecond))
	assert.Equal(t, "25h 0m 1s", FormatRemaining(25*time.Hour+time.Second))
	assert.Equal(t, "expired", FormatRemaining(0))
	assert.Equal(t, "expired", FormatRemaining(-time.Minute))
}

func TestParseIDList(t *testing.T) {
	ids, err := ParseIDList("42")
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, ids)

	ids, err = ParseIDList(" 1, -100200 ,,3")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, -100200, 3}, ids)

	_, err = ParseIDList("1,abc")
	assert.Error(t, err)
}

func TestIsAdminRole(t *testing.T) {
	assert.True(t, IsAdminRole(tb.Creator))
	assert.True(t, IsAdminRole(tb.Administrator))
	assert.False(t, IsAdminRole(tb.Member))
	assert.False(t, IsAdminRole(tb.Left))
}

func TestPresentationLink(t *testing.T) {
	assert.Equal(t, "[\u2060](https://t.me/ana)", PresentationLink(&tb.User{ID: 42, Username: "ana"}))
	assert.Equal(t, "[\u2060](https://t.me/42)", PresentationLink(&tb.User{ID: 42}))
}
