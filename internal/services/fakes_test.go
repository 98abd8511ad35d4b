package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/uaru-shit/joingate/internal/domain"
	"github.com/uaru-shit/joingate/internal/storage"
	tb "gopkg.in/telebot.v4"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stopCall struct {
	ChatID    int64
	MessageID string
}

var errPollAlreadyClosed = errors.New("telegram: poll has already been closed (400)")

// fakeMessenger records Bot API calls and answers polls with predictable ids.
// Like the Bot API it refuses to stop the same poll message twice.
type fakeMessenger struct {
	mu sync.Mutex

	nextMessageID int
	sentPolls     []*tb.Poll
	sentTexts     []string
	stopCalls     []stopCall
	stopped       map[stopCall]bool

	stopErr    error
	stopResult *tb.Poll
	members    map[int64]*tb.ChatMember
	memberErr  error

	// when set, StopPoll signals stopStarted and waits on stopGate
	stopGate    chan struct{}
	stopStarted chan struct{}
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		nextMessageID: 500,
		stopped:       make(map[stopCall]bool),
		members:       make(map[int64]*tb.ChatMember),
	}
}

func (f *fakeMessenger) Send(to tb.Recipient, what interface{}, _ ...interface{}) (*tb.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	chatID, err := strconv.ParseInt(to.Recipient(), 10, 64)
	if err != nil {
		return nil, err
	}

	f.nextMessageID++
	msg := &tb.Message{ID: f.nextMessageID, Chat: &tb.Chat{ID: chatID}}

	switch v := what.(type) {
	case *tb.Poll:
		f.sentPolls = append(f.sentPolls, v)
		msg.Poll = &tb.Poll{ID: "poll-" + strconv.Itoa(f.nextMessageID), Question: v.Question, Options: v.Options}
	case string:
		f.sentTexts = append(f.sentTexts, v)
		msg.Text = v
	default:
		return nil, errors.New("unsupported payload")
	}

	return msg, nil
}

func (f *fakeMessenger) StopPoll(msg tb.Editable, _ ...interface{}) (*tb.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	messageID, chatID := msg.MessageSig()
	call := stopCall{ChatID: chatID, MessageID: messageID}
	f.stopCalls = append(f.stopCalls, call)

	if gate := f.stopGate; gate != nil {
		f.mu.Unlock()
		f.stopStarted <- struct{}{}
		<-gate
		f.mu.Lock()
	}

	if f.stopErr != nil {
		return nil, f.stopErr
	}

	if f.stopped[call] {
		return nil, errPollAlreadyClosed
	}
	f.stopped[call] = true

	if f.stopResult != nil {
		return f.stopResult, nil
	}

	return &tb.Poll{
		VoterCount: 3,
		Options: []tb.PollOption{
			{Text: "yes", VoterCount: 2},
			{Text: "no", VoterCount: 1},
			{Text: "abstain", VoterCount: 0},
		},
	}, nil
}

func (f *fakeMessenger) ChatMemberOf(_, user tb.Recipient) (*tb.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.memberErr != nil {
		return nil, f.memberErr
	}

	id, _ := strconv.ParseInt(user.Recipient(), 10, 64)
	if member, ok := f.members[id]; ok {
		return member, nil
	}

	return &tb.ChatMember{Role: tb.Member}, nil
}

func (f *fakeMessenger) setStopErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopErr = err
}

// blockStops makes the next StopPoll calls wait until the returned release is called.
func (f *fakeMessenger) blockStops() (started <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	gate := make(chan struct{})
	f.stopGate = gate
	f.stopStarted = make(chan struct{}, 1)

	var once sync.Once

	return f.stopStarted, func() {
		once.Do(func() {
			f.mu.Lock()
			f.stopGate = nil
			f.mu.Unlock()

			close(gate)
		})
	}
}

func (f *fakeMessenger) stops() []stopCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]stopCall(nil), f.stopCalls...)
}

func (f *fakeMessenger) polls() []*tb.Poll {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*tb.Poll(nil), f.sentPolls...)
}

func (f *fakeMessenger) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.sentTexts...)
}

// flakyStore fails the next archive writes on demand.
type flakyStore struct {
	*storage.MemoryStore

	mu                   sync.Mutex
	insertClosedFailures int
}

func (s *flakyStore) failArchives(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertClosedFailures = n
}

func (s *flakyStore) InsertClosed(ctx context.Context, poll *domain.PollRecord) error {
	s.mu.Lock()
	if s.insertClosedFailures > 0 {
		s.insertClosedFailures--
		s.mu.Unlock()

		return errors.New("connection reset by peer")
	}
	s.mu.Unlock()

	return s.MemoryStore.InsertClosed(ctx, poll)
}
