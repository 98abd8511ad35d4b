package bot

import (
	"context"
	"log/slog"

	"github.com/uaru-shit/joingate/internal/bot/handlers"
	"github.com/uaru-shit/joingate/internal/config"
	"github.com/uaru-shit/joingate/internal/domain"
	"github.com/uaru-shit/joingate/internal/services"
	tb "gopkg.in/telebot.v4"
)

const sessionKey = "session"

type Bot struct {
	bot       *tb.Bot
	logger    *slog.Logger
	cfg       *config.Config
	scheduler *services.ExpirationScheduler
	lifecycle *services.PollLifecycleService
	admins    *services.AdminService
	sessions  *services.SessionService
}

func New(logger *slog.Logger, bot *tb.Bot, cfg *config.Config, store domain.PollStore) *Bot {
	scheduler := services.NewExpirationScheduler(logger)
	lifecycle := services.NewPollLifecycleService(bot, logger, store, scheduler, services.LifecycleOptions{
		MaxAttempts: cfg.ExpireMaxAttempts,
		RetryDelay:  cfg.ExpireRetryDelay,
		OpTimeout:   cfg.OpTimeout,
	})

	b := &Bot{
		bot:       bot,
		logger:    logger,
		cfg:       cfg,
		scheduler: scheduler,
		lifecycle: lifecycle,
		admins:    services.NewAdminService(bot, logger, cfg.AdminIDs),
		sessions:  services.NewSessionService(cfg.SessionTTL),
	}

	b.setupHandlers()

	return b
}

func (b *Bot) setupHandlers() {
	b.bot.Use(b.sessionMiddleware)

	b.handle("/lol", handlers.HandleLol)

	b.handle("/test", handlers.RequireAdmin(handlers.HandleTest))
	b.handle("/check", handlers.RequireAdmin(handlers.HandleCheck))
	b.handle("/openpolls", handlers.RequireAdmin(handlers.HandleOpenPolls))
	b.handle("/init", handlers.RequireAdmin(handlers.HandleInit))
	b.handle("/close", handlers.RequireAdmin(handlers.HandleClose))

	b.handle(tb.OnChatJoinRequest, handlers.HandleJoinRequest)
}

// sessionMiddleware puts the cached chat session into the update context.
func (b *Bot) sessionMiddleware(next tb.HandlerFunc) tb.HandlerFunc {
	return func(tbCtx tb.Context) error {
		tbCtx.Set(sessionKey, b.sessions.Load(tbCtx.Chat(), tbCtx.Sender()))
		return next(tbCtx)
	}
}

// Start reschedules leftover polls and blocks in the long poller until Stop.
func (b *Bot) Start(ctx context.Context) {
	b.lifecycle.Restore(ctx)

	b.logger.Info("bot started", slog.String("username", b.bot.Me.Username))
	b.bot.Start()
}

// Stop ends polling and waits for running expirations.
func (b *Bot) Stop() {
	b.bot.Stop()
	b.scheduler.Stop()
}

type botContext struct {
	tb.Context

	bot    *Bot
	logger *slog.Logger
}

func (ctx *botContext) Log() *slog.Logger {
	return ctx.logger
}

func (ctx *botContext) OpContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), ctx.bot.cfg.OpTimeout)
}

func (ctx *botContext) Config() *config.Config {
	return ctx.bot.cfg
}

func (ctx *botContext) Messenger() domain.Messenger {
	return ctx.bot.bot
}

func (ctx *botContext) Polls() domain.PollLifecycle {
	return ctx.bot.lifecycle
}

func (ctx *botContext) Admins() domain.AdminChecker {
	return ctx.bot.admins
}

func (ctx *botContext) Session() domain.SessionState {
	if state, ok := ctx.Get(sessionKey).(domain.SessionState); ok {
		return state
	}

	return ctx.bot.sessions.Load(ctx.Chat(), ctx.Sender())
}

func (ctx *botContext) SaveSession(state domain.SessionState) {
	ctx.Set(sessionKey, state)
	ctx.bot.sessions.Save(state)
}

func (b *Bot) handle(endpoint any, handler handlers.Handler) {
	b.bot.Handle(endpoint, b.wrap(handler))
}

// wrap adapts a handler to telebot, with the chat and sender on its logger.
func (b *Bot) wrap(handler handlers.Handler) tb.HandlerFunc {
	return func(tbCtx tb.Context) error {
		logger := b.logger
		if chat := tbCtx.Chat(); chat != nil {
			logger = logger.With(slog.Int64("chat_id", chat.ID))
		}

		if sender := tbCtx.Sender(); sender != nil {
			logger = logger.With(slog.Int64("user_id", sender.ID))
		}

		ctx := &botContext{
			Context: tbCtx,
			bot:     b,
			logger:  logger,
		}

		return handler(ctx)
	}
}
