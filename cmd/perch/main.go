package main

import (
	"context"
	"fmt"
	stdlog "log"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	sloggger "github.com/perchbot/perch/cmd/perch/log"
	"github.com/perchbot/perch/internal/bot"
	"github.com/perchbot/perch/internal/config"
	"github.com/perchbot/perch/internal/console"
	"github.com/perchbot/perch/internal/event"
	"github.com/perchbot/perch/internal/pather"
	"github.com/perchbot/perch/internal/remote/discord"
	ngrokremote "github.com/perchbot/perch/internal/remote/ngrok"
	"github.com/perchbot/perch/internal/remote/telegram"
	"golang.org/x/sync/errgroup"
)

// wrapWithRecover wraps a function with panic recovery logic
func wrapWithRecover(logger *slog.Logger, f func() error) func() error {
	return func() error {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(fmt.Sprintf("panic recovered: %v\nStacktrace: %s", r, debug.Stack()))
				sloggger.FlushLog()
			}
		}()
		return f()
	}
}

func main() {
	if err := config.Load(); err != nil {
		stdlog.Fatalf("Error loading configuration: %s", err.Error())
	}
	cfg := config.Get()

	relay := console.NewRelay(cfg.Web.BacklogSize)
	logger, err := sloggger.NewLogger(cfg.Debug.Log, cfg.LogSaveDirectory, relay)
	if err != nil {
		stdlog.Fatalf("Error starting logger: %s", err.Error())
	}
	defer sloggger.FlushAndClose()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	eventListener := event.NewListener(logger)

	statsHandler := bot.NewStatsHandler()
	eventListener.Register(statsHandler.Handle)

	manager := bot.NewManager(logger, eventListener, cfg, bot.DialFactory, pather.NewWalker())

	var srv *console.HttpServer
	if cfg.Web.Enabled {
		srv = console.New(logger, relay, manager, statsHandler)
		g.Go(wrapWithRecover(logger, func() error {
			defer cancel()
			return srv.Listen(cfg.Web.Port)
		}))

		if cfg.Ngrok.Enabled {
			if cfg.Ngrok.Authtoken == "" && os.Getenv("NGROK_AUTHTOKEN") == "" {
				logger.Warn("ngrok enabled but no authtoken set; skipping tunnel start")
			} else {
				opts := ngrokremote.Options{
					LocalAddr:     fmt.Sprintf("http://localhost:%d", cfg.Web.Port),
					Authtoken:     cfg.Ngrok.Authtoken,
					Region:        cfg.Ngrok.Region,
					Domain:        cfg.Ngrok.Domain,
					BasicAuthUser: cfg.Ngrok.BasicAuthUser,
					BasicAuthPass: cfg.Ngrok.BasicAuthPass,
				}
				tunnel, err := ngrokremote.Start(ctx, opts)
				if err != nil {
					logger.Error("ngrok tunnel failed to start", slog.Any("error", err))
				} else {
					logger.Info("ngrok tunnel established", slog.String("url", tunnel.URL()))
					if cfg.Ngrok.SendURL {
						event.Send(event.Tunnel(tunnel.URL()))
					}
					defer func() {
						if err := tunnel.Close(); err != nil {
							logger.Error("error stopping ngrok tunnel", slog.Any("error", err))
						}
					}()
				}
			}
		}
	}

	if cfg.Discord.Enabled {
		discordBot, err := discord.NewBot(
			cfg.Discord.Token,
			cfg.Discord.ChannelID,
			manager,
			statsHandler,
			cfg.Discord.UseWebhook,
			cfg.Discord.WebhookURL,
		)
		if err != nil {
			logger.Error("Discord could not be initialized", slog.Any("error", err))
		} else {
			eventListener.Register(discordBot.Handle)
			g.Go(wrapWithRecover(logger, func() error {
				return discordBot.Start(ctx)
			}))
		}
	}

	if cfg.Telegram.Enabled {
		telegramBot, err := telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.ChatID, manager, statsHandler, logger)
		if err != nil {
			logger.Error("Telegram could not be initialized", slog.Any("error", err))
		} else {
			eventListener.Register(telegramBot.Handle)
			g.Go(wrapWithRecover(logger, func() error {
				return telegramBot.Start(ctx)
			}))
		}
	}

	g.Go(wrapWithRecover(logger, func() error {
		return eventListener.Listen(ctx)
	}))

	g.Go(wrapWithRecover(logger, func() error {
		<-ctx.Done()
		logger.Info("Perch shutting down...")
		manager.Stop()
		if srv != nil {
			if err := srv.Stop(); err != nil {
				logger.Error("error stopping web console", slog.Any("error", err))
			}
		}
		return nil
	}))

	manager.Start()

	if err := g.Wait(); err != nil {
		logger.Error("Error running Perch", slog.Any("error", err))
	}

	sloggger.FlushAndClose()
}
