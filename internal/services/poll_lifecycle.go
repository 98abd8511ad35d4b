package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/uaru-shit/joingate/internal/domain"
	"github.com/uaru-shit/joingate/pkg/utils"
	tb "gopkg.in/telebot.v4"
)

var AdmissionOptions = []string{
	"✅ Yes, no problem!",
	"🚫 No, I'd rather not",
	"❔ Don't know them / abstain",
}

func AdmissionQuestion(user *tb.User) string {
	return fmt.Sprintf("🆕 New request → %s wants to join us! Do you want to admit them?", user.FirstName)
}

type LifecycleOptions struct {
	MaxAttempts int
	RetryDelay  time.Duration
	OpTimeout   time.Duration
	Now         func() time.Time
}

// PollLifecycleService owns a poll from posting to archival.
type PollLifecycleService struct {
	bot       domain.Messenger
	logger    *slog.Logger
	store     domain.PollStore
	scheduler *ExpirationScheduler

	maxAttempts int
	retryDelay  time.Duration
	opTimeout   time.Duration
	now         func() time.Time
}

func NewPollLifecycleService(bot domain.Messenger, logger *slog.Logger, store domain.PollStore, scheduler *ExpirationScheduler, opts LifecycleOptions) *PollLifecycleService {
	s := &PollLifecycleService{
		bot:         bot,
		logger:      logger,
		store:       store,
		scheduler:   scheduler,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		opTimeout:   opts.OpTimeout,
		now:         opts.Now,
	}

	if s.maxAttempts < 1 {
		s.maxAttempts = 1
	}

	if s.retryDelay <= 0 {
		s.retryDelay = time.Minute
	}

	if s.opTimeout <= 0 {
		s.opTimeout = 15 * time.Second
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

func (s *PollLifecycleService) Create(ctx context.Context, requester *tb.User, chat *tb.Chat, ttl time.Duration) (*domain.PollRecord, error) {
	options := make([]tb.PollOption, 0, len(AdmissionOptions))
	for _, text := range AdmissionOptions {
		options = append(options, tb.PollOption{Text: text})
	}

	msg, err := s.bot.Send(chat, &tb.Poll{
		Type:      tb.PollRegular,
		Question:  AdmissionQuestion(requester),
		Anonymous: true,
		Options:   options,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send poll: %w", err)
	}

	if msg == nil || msg.Poll == nil {
		return nil, errors.New("poll message came back without a poll")
	}

	now := s.now()
	poll := &domain.PollRecord{
		ChatID:         chat.ID,
		UserID:         requester.ID,
		Handle:         requester.Username,
		PollID:         msg.Poll.ID,
		MessageID:      msg.ID,
		Timestamp:      now,
		ExpirationTime: now.Add(ttl),
		Status:         domain.PollStatusOpen,
	}

	if err := s.store.InsertOpen(ctx, poll); err != nil {
		return nil, fmt.Errorf("failed to save poll: %w", err)
	}

	log := s.logger.With(slog.String("poll_id", poll.PollID), slog.Int64("chat_id", chat.ID))
	log.Info("poll added to open polls",
		slog.Int64("user_id", poll.UserID),
		slog.Time("expires_at", poll.ExpirationTime))

	if _, err := s.bot.Send(chat, utils.PresentationLink(requester), tb.ModeMarkdown); err != nil {
		log.Error("failed to send presentation link", utils.ErrorAttr(err))
	}

	s.schedule(poll.Clone())

	return poll, nil
}

// Expire stops the poll and archives it with its results.
// A record that already carries results was stopped by an earlier attempt and only gets archived.
func (s *PollLifecycleService) Expire(ctx context.Context, poll *domain.PollRecord) error {
	log := s.logger.With(slog.String("poll_id", poll.PollID), slog.Int64("chat_id", poll.ChatID))

	if poll.Results == nil {
		stopped, err := s.bot.StopPoll(&tb.StoredMessage{
			MessageID: strconv.Itoa(poll.MessageID),
			ChatID:    poll.ChatID,
		})
		if err != nil {
			err = fmt.Errorf("failed to stop poll: %w", err)
			s.handleExpireFailure(ctx, poll, err)

			return err
		}

		poll.Results = s.resultsOf(stopped)
		log.Info("poll stopped", slog.Int("total_voters", poll.Results.TotalVoters))
	}

	if err := s.store.InsertClosed(ctx, poll.Archived(poll.Results)); err != nil {
		err = fmt.Errorf("failed to archive poll: %w", err)
		s.handleExpireFailure(ctx, poll, err)

		return err
	}

	poll.Status = domain.PollStatusClosed
	if err := s.store.MarkOpenStatus(ctx, poll.PollID, domain.PollStatusClosed, poll.ExpireAttempts, nil); err != nil {
		// the TTL index or a reconciliation may already have removed it
		log.Debug("cannot mark open poll closed", utils.ErrorAttr(err))
	}

	log.Info("poll added to closed polls with results")

	return nil
}

// handleExpireFailure keeps the open record and schedules another attempt until the budget runs out.
// Results already fetched are saved on the open record so no later attempt stops the poll twice.
func (s *PollLifecycleService) handleExpireFailure(ctx context.Context, poll *domain.PollRecord, cause error) {
	poll.ExpireAttempts++

	log := s.logger.With(
		slog.String("poll_id", poll.PollID),
		slog.Int("attempt", poll.ExpireAttempts),
		utils.ErrorAttr(cause))

	status := domain.PollStatusRetrying
	if poll.ExpireAttempts >= s.maxAttempts {
		status = domain.PollStatusFailed
	}

	poll.Status = status
	if err := s.store.MarkOpenStatus(ctx, poll.PollID, status, poll.ExpireAttempts, poll.Results); err != nil {
		log.Warn("cannot record expiration attempt", slog.String("store_err", err.Error()))
	}

	if status == domain.PollStatusFailed {
		log.Error("giving up on poll expiration")
		return
	}

	delay := s.retryDelay * time.Duration(poll.ExpireAttempts)
	log.Warn("poll expiration failed, retrying", slog.String("delay", delay.String()))

	if !s.scheduler.Schedule(poll.PollID, delay, s.expireTask(poll)) {
		log.Warn("scheduler stopped, retry left to the next start")
	}
}

func (s *PollLifecycleService) resultsOf(poll *tb.Poll) *domain.PollResults {
	results := &domain.PollResults{
		TotalVoters: poll.VoterCount,
		Options:     make([]domain.OptionResult, 0, len(poll.Options)),
		ClosedAt:    s.now(),
	}

	for _, option := range poll.Options {
		results.Options = append(results.Options, domain.OptionResult{
			Text:       option.Text,
			VoterCount: option.VoterCount,
		})
	}

	return results
}

// Reconcile drops every open poll whose id already appears in closed polls.
func (s *PollLifecycleService) Reconcile(ctx context.Context) ([]string, error) {
	closedIDs, err := s.store.ClosedPollIDs(ctx)
	if err != nil {
		return nil, err
	}

	removed := []string{}
	if len(closedIDs) == 0 {
		s.logger.Info("no closed polls found in open polls")
		return removed, nil
	}

	stale, err := s.store.FindOpenByPollIDs(ctx, closedIDs)
	if err != nil {
		return nil, err
	}

	for _, poll := range stale {
		removed = append(removed, poll.PollID)
	}

	if len(removed) == 0 {
		s.logger.Info("no closed polls found in open polls")
		return removed, nil
	}

	if _, err := s.store.DeleteOpenByPollIDs(ctx, removed); err != nil {
		return nil, err
	}

	for _, id := range removed {
		s.scheduler.Cancel(id)
		s.logger.Info("removed poll from open polls", slog.String("poll_id", id))
	}

	return removed, nil
}

// CloseNow expires an open poll ahead of schedule.
func (s *PollLifecycleService) CloseNow(ctx context.Context, pollID string) error {
	poll, err := s.store.FindOpen(ctx, pollID)
	if err != nil {
		return err
	}

	if poll.Status == domain.PollStatusClosed {
		return fmt.Errorf("%w: %s", domain.ErrPollClosed, pollID)
	}

	if !s.scheduler.Acquire(pollID) {
		return fmt.Errorf("%w: %s", domain.ErrPollBusy, pollID)
	}
	defer s.scheduler.Release(pollID)

	// a scheduled attempt may have finished between the read and Acquire
	current, err := s.store.FindOpen(ctx, pollID)
	if err != nil {
		if poll.Status != domain.PollStatusFailed {
			s.schedule(poll)
		}

		return err
	}

	if current.Status == domain.PollStatusClosed {
		return fmt.Errorf("%w: %s", domain.ErrPollClosed, pollID)
	}

	return s.Expire(ctx, current)
}

func (s *PollLifecycleService) ListOpen(ctx context.Context) ([]*domain.PollRecord, error) {
	return s.store.ListOpen(ctx)
}

func (s *PollLifecycleService) EnsureIndexes(ctx context.Context) error {
	return s.store.EnsureIndexes(ctx)
}

// Restore reschedules the open polls left over from a previous run.
func (s *PollLifecycleService) Restore(ctx context.Context) {
	polls, err := s.store.ListOpen(ctx)
	if err != nil {
		s.logger.Error("failed to load open polls", utils.ErrorAttr(err))
		return
	}

	restored := 0
	for _, poll := range polls {
		if poll.Status == domain.PollStatusClosed || poll.Status == domain.PollStatusFailed {
			continue
		}

		s.schedule(poll)
		restored++
	}

	s.logger.Info("restoring open polls", slog.Int("count", restored))
}

func (s *PollLifecycleService) schedule(poll *domain.PollRecord) {
	delay := poll.ExpirationTime.Sub(s.now())
	s.scheduler.Schedule(poll.PollID, delay, s.expireTask(poll))
}

func (s *PollLifecycleService) expireTask(poll *domain.PollRecord) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
		defer cancel()

		// failures are already logged and rescheduled
		_ = s.Expire(ctx, poll)
	}
}
