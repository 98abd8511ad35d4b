package domain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/uaru-shit/joingate/internal/config"
	"go.mongodb.org/mongo-driver/bson/primitive"
	tb "gopkg.in/telebot.v4"
)

var (
	ErrPollNotFound  = errors.New("poll not found in open polls")
	ErrDuplicatePoll = errors.New("poll already present in open polls")
	ErrPollClosed    = errors.New("poll already closed")
	ErrPollBusy      = errors.New("poll expiration already in progress")
)

type Context interface {
	tb.Context

	Log() *slog.Logger
	// OpContext returns a context bounded by the store operation timeout.
	OpContext() (context.Context, context.CancelFunc)
	Config() *config.Config
	Messenger() Messenger
	Polls() PollLifecycle
	Admins() AdminChecker
	Session() SessionState
	SaveSession(SessionState)
}

// Messenger is the part of the Bot API the gatekeeper talks to. *tb.Bot satisfies it.
type Messenger interface {
	Send(to tb.Recipient, what interface{}, opts ...interface{}) (*tb.Message, error)
	StopPoll(msg tb.Editable, opts ...interface{}) (*tb.Poll, error)
	ChatMemberOf(chat, user tb.Recipient) (*tb.ChatMember, error)
}

type PollLifecycle interface {
	Create(ctx context.Context, requester *tb.User, chat *tb.Chat, ttl time.Duration) (*PollRecord, error)
	Reconcile(ctx context.Context) ([]string, error)
	CloseNow(ctx context.Context, pollID string) error
	ListOpen(ctx context.Context) ([]*PollRecord, error)
	EnsureIndexes(ctx context.Context) error
}

type AdminChecker interface {
	IsAdmin(user *tb.User, chat *tb.Chat) bool
}

type PollStatus string

const (
	PollStatusOpen     PollStatus = "open"
	PollStatusRetrying PollStatus = "retrying"
	PollStatusClosed   PollStatus = "closed"
	PollStatusFailed   PollStatus = "failed"
)

// admission poll posted for a join request
type PollRecord struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	ChatID         int64              `bson:"chatId"`
	UserID         int64              `bson:"userId"`
	Handle         string             `bson:"handle"`
	PollID         string             `bson:"pollId"`
	MessageID      int                `bson:"messageId"`
	Timestamp      time.Time          `bson:"timestamp"`
	ExpirationTime time.Time          `bson:"expirationTime"`
	Status         PollStatus         `bson:"status"`
	ExpireAttempts int                `bson:"expireAttempts"`
	Results        *PollResults       `bson:"results,omitempty"`
}

type PollResults struct {
	TotalVoters int            `bson:"totalVoters"`
	Options     []OptionResult `bson:"options"`
	ClosedAt    time.Time      `bson:"closedAt"`
}

type OptionResult struct {
	Text       string `bson:"text"`
	VoterCount int    `bson:"voterCount"`
}

func (p *PollRecord) Clone() *PollRecord {
	c := *p
	c.Results = p.Results.Clone()

	return &c
}

func (r *PollResults) Clone() *PollResults {
	if r == nil {
		return nil
	}

	c := *r
	c.Options = append([]OptionResult(nil), r.Options...)

	return &c
}

// Archived returns the copy that goes to closed polls.
func (p *PollRecord) Archived(results *PollResults) *PollRecord {
	c := p.Clone()
	c.ID = primitive.NilObjectID
	c.Status = PollStatusClosed
	c.Results = results

	return c
}

type PollStore interface {
	InsertOpen(ctx context.Context, poll *PollRecord) error
	InsertClosed(ctx context.Context, poll *PollRecord) error
	ListOpen(ctx context.Context) ([]*PollRecord, error)
	FindOpen(ctx context.Context, pollID string) (*PollRecord, error)
	ClosedPollIDs(ctx context.Context) ([]string, error)
	FindOpenByPollIDs(ctx context.Context, pollIDs []string) ([]*PollRecord, error)
	DeleteOpenByPollIDs(ctx context.Context, pollIDs []string) (int64, error)
	// MarkOpenStatus leaves the stored results alone when results is nil.
	MarkOpenStatus(ctx context.Context, pollID string, status PollStatus, attempts int, results *PollResults) error
	EnsureIndexes(ctx context.Context) error
	Close(ctx context.Context) error
}

// per-chat cache, never the source of truth for polls
type SessionState struct {
	Key          string
	ChatID       int64
	UserID       int64
	IsAdmin      bool
	AdminChecked bool
	UpdatedAt    time.Time
}
