// Gatekeeper bot: every join request becomes an anonymous admission poll for the chat members
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uaru-shit/joingate/internal/bot"
	"github.com/uaru-shit/joingate/internal/config"
	"github.com/uaru-shit/joingate/internal/storage"
	"github.com/uaru-shit/joingate/pkg/utils"
	tb "gopkg.in/telebot.v4"
)

func main() {
	var levelVar slog.LevelVar

	cfg, cfgErr := config.Load()

	levelEnv, isSet := os.LookupEnv("GATEKEEPER_LOG_LEVEL")

	level := slog.LevelInfo

	if isSet {
		levelParsed, err := utils.ParseLogLevel(levelEnv)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log level environment variable set, but cannot parse it: %v\n", err)
			os.Exit(1)
		}

		level = levelParsed
	}

	levelVar.Set(level)

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: &levelVar,
	}))

	if cfgErr != nil {
		log.Error("invalid configuration", utils.ErrorAttr(cfgErr))
		os.Exit(1)
	}

	eHandler := utils.NewErrorHandler(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.OpTimeout)
	store, err := storage.Connect(connectCtx, cfg.MongoURI, cfg.MongoDB)
	cancel()

	if err != nil {
		log.Error("failed to connect to the poll store", utils.ErrorAttr(err))
		os.Exit(1)
	}

	closeStore := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := store.Close(closeCtx); err != nil {
			log.Error("failed to close the poll store", utils.ErrorAttr(err))
		}
	}

	tbBot, err := tb.NewBot(tb.Settings{
		Token: cfg.Token,
		Poller: &tb.LongPoller{
			Timeout:        cfg.PollerTimeout,
			AllowedUpdates: []string{"message", "chat_join_request"},
		},
		Synchronous: true,
		OnError:     eHandler.HandleError,
	})
	if err != nil {
		log.Error("failed to initialize bot", utils.ErrorAttr(err))
		closeStore()
		os.Exit(1)
	}

	b := bot.New(log, tbBot, cfg, store)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		<-ctx.Done()
		log.Info("shutting down")
		b.Stop()
	}()

	b.Start(ctx)

	// running expirations still need the store
	<-stopped
	closeStore()
}
