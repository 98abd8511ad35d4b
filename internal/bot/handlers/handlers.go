package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/uaru-shit/joingate/internal/domain"
	"github.com/uaru-shit/joingate/pkg/utils"
	tb "gopkg.in/telebot.v4"
)

const (
	MsgDenied      = "⛔ This command is reserved for administrators."
	MsgNoOpenPolls = "No open polls currently"
	MsgCloseUsage  = "Usage: /close <poll id>"
)

type Handler func(domain.Context) error

// RequireAdmin runs next only for administrators. Denials are cached in the chat session;
// a group admin is looked up again every time so a demotion takes effect at once.
func RequireAdmin(next Handler) Handler {
	return func(ctx domain.Context) error {
		sender, chat := ctx.Sender(), ctx.Chat()
		if sender == nil || chat == nil {
			ctx.Log().Warn("privileged command without sender or chat")
			return nil
		}

		if !isAdmin(ctx, sender, chat) {
			ctx.Log().Info("privileged command denied", slog.Int64("user_id", sender.ID))
			return ctx.Reply(MsgDenied)
		}

		return next(ctx)
	}
}

func isAdmin(ctx domain.Context, sender *tb.User, chat *tb.Chat) bool {
	session := ctx.Session()
	if session.AdminChecked && session.UserID == sender.ID &&
		(!session.IsAdmin || chat.Type == tb.ChatPrivate) {
		return session.IsAdmin
	}

	ok := ctx.Admins().IsAdmin(sender, chat)

	session.UserID = sender.ID
	session.IsAdmin = ok
	session.AdminChecked = true
	ctx.SaveSession(session)

	return ok
}

func HandleJoinRequest(ctx domain.Context) error {
	req := ctx.ChatJoinRequest()
	if req == nil || req.Chat == nil || req.Sender == nil {
		ctx.Log().Warn("join request without chat or sender")
		return nil
	}

	op, cancel := ctx.OpContext()
	defer cancel()

	poll, err := ctx.Polls().Create(op, req.Sender, req.Chat, ctx.Config().PollExpiration)
	if err != nil {
		return fmt.Errorf("failed to create admission poll: %w", err)
	}

	ctx.Log().Info("admission poll created",
		slog.String("poll_id", poll.PollID),
		slog.Int64("user_id", req.Sender.ID))

	return nil
}

func HandleTest(ctx domain.Context) error {
	sender, chat := ctx.Sender(), ctx.Chat()
	if sender == nil || chat == nil {
		ctx.Log().Warn("test command without sender or chat")
		return nil
	}

	op, cancel := ctx.OpContext()
	defer cancel()

	if _, err := ctx.Polls().Reconcile(op); err != nil {
		return fmt.Errorf("failed to reconcile polls: %w", err)
	}

	ttl := ctx.Config().TestPollExpiration

	poll, err := ctx.Polls().Create(op, sender, chat, ttl)
	if err != nil {
		return fmt.Errorf("failed to create test poll: %w", err)
	}

	notice := fmt.Sprintf("Test poll %s created in chat %d for %s, expires in %s",
		poll.PollID, chat.ID, displayHandle(poll), utils.FormatRemaining(ttl))

	adminChat := tb.ChatID(ctx.Config().PrimaryAdmin())
	if _, err := ctx.Messenger().Send(adminChat, notice); err != nil {
		ctx.Log().Error("failed to notify admin chat", utils.ErrorAttr(err))
	}

	return nil
}

func HandleCheck(ctx domain.Context) error {
	op, cancel := ctx.OpContext()
	defer cancel()

	removed, err := ctx.Polls().Reconcile(op)
	if err != nil {
		return fmt.Errorf("failed to reconcile polls: %w", err)
	}

	return ctx.Reply(CheckReply(len(removed)))
}

func CheckReply(count int) string {
	word := "polls"
	if count == 1 {
		word = "poll"
	}

	return fmt.Sprintf("Removed %d %s from open polls", count, word)
}

func HandleOpenPolls(ctx domain.Context) error {
	op, cancel := ctx.OpContext()
	defer cancel()

	polls, err := ctx.Polls().ListOpen(op)
	if err != nil {
		return fmt.Errorf("failed to list open polls: %w", err)
	}

	return ctx.Reply(FormatOpenPolls(polls, time.Now()))
}

func FormatOpenPolls(polls []*domain.PollRecord, now time.Time) string {
	if len(polls) == 0 {
		return MsgNoOpenPolls
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "Open polls (%d):", len(polls))

	for _, poll := range polls {
		fmt.Fprintf(&sb, "\n• %s %s (%d) ", poll.PollID, displayHandle(poll), poll.UserID)

		if remaining := poll.ExpirationTime.Sub(now); remaining > 0 {
			sb.WriteString("expires in " + utils.FormatRemaining(remaining))
		} else {
			sb.WriteString("expired")
		}

		if poll.Status != "" && poll.Status != domain.PollStatusOpen {
			fmt.Fprintf(&sb, " [%s]", poll.Status)
		}
	}

	return sb.String()
}

func HandleInit(ctx domain.Context) error {
	op, cancel := ctx.OpContext()
	defer cancel()

	if err := ctx.Polls().EnsureIndexes(op); err != nil {
		ctx.Log().Error("error creating TTL index", utils.ErrorAttr(err))
		return ctx.Reply("Error creating TTL index: " + err.Error())
	}

	return ctx.Reply("TTL index created on open polls")
}

func HandleClose(ctx domain.Context) error {
	args := ctx.Args()
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return ctx.Reply(MsgCloseUsage)
	}

	pollID := strings.TrimSpace(args[0])

	op, cancel := ctx.OpContext()
	defer cancel()

	err := ctx.Polls().CloseNow(op, pollID)

	switch {
	case err == nil:
		return ctx.Reply(fmt.Sprintf("Poll %s closed", pollID))
	case errors.Is(err, domain.ErrPollNotFound):
		return ctx.Reply(fmt.Sprintf("Poll %s is not open", pollID))
	case errors.Is(err, domain.ErrPollClosed):
		return ctx.Reply(fmt.Sprintf("Poll %s is already closed", pollID))
	case errors.Is(err, domain.ErrPollBusy):
		return ctx.Reply(fmt.Sprintf("Poll %s is being closed right now", pollID))
	default:
		ctx.Log().Error("failed to close poll", slog.String("poll_id", pollID), utils.ErrorAttr(err))
		return ctx.Reply(fmt.Sprintf("Could not close poll %s right now", pollID))
	}
}

func HandleLol(ctx domain.Context) error {
	sender := ctx.Sender()
	if sender == nil {
		return nil
	}

	return ctx.Reply(fmt.Sprintf("%d send for %d", ctx.Config().PrimaryAdmin(), sender.ID))
}

func displayHandle(poll *domain.PollRecord) string {
	if poll.Handle != "" {
		return "@" + poll.Handle
	}

	return "id " + strconv.FormatInt(poll.UserID, 10)
}
