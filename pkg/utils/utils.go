package utils

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tb "gopkg.in/telebot.v4"
)

var ErrInvalidLogLevel = errors.New("provided level string is not one of debug/info/warn/error neither a valid int")

func ParseLogLevel(level string) (slog.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		levelInt, err := strconv.Atoi(level)
		if err != nil {
			var zeroLevel slog.Level

			return zeroLevel, ErrInvalidLogLevel
		}

		return slog.Level(levelInt), nil
	}
}

func ErrorAttr(err error) slog.Attr {
	return slog.String("err", err.Error())
}

type ErrorHandler struct {
	logger *slog.Logger
}

func NewErrorHandler(logger *slog.Logger) ErrorHandler {
	return ErrorHandler{logger: logger}
}

func (h *ErrorHandler) HandleError(err error, c tb.Context) {
	if err == nil {
		return
	}

	logger := h.logger
	if c != nil {
		if chat := c.Chat(); chat != nil {
			logger = logger.With(slog.Int64("chat_id", chat.ID))
		}
	}

	logger.Error("error from bot", ErrorAttr(err))
}

func IsAdminRole(role tb.MemberStatus) bool {
	return role == tb.Creator || role == tb.Administrator
}

// ParseIDList parses "1, 2,3" into ids, keeping the input order.
func ParseIDList(raw string) ([]int64, error) {
	var ids []int64

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// FormatRemaining renders d as "1h 30m 0s", truncated to whole seconds.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}

	d = d.Truncate(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second

	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// PresentationLink points at the user's profile; the word joiner keeps the link text invisible.
func PresentationLink(user *tb.User) string {
	target := user.Username
	if target == "" {
		target = strconv.FormatInt(user.ID, 10)
	}

	return fmt.Sprintf("[\u2060](https://t.me/%s)", target)
}
