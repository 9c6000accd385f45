/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skyweb/bluesky"
	"skyweb/composer"
	"skyweb/config"
	"skyweb/db"
	"skyweb/feeds"
	"skyweb/firehose"
	"skyweb/models"
	"skyweb/notifications"
	"skyweb/preferences"
	"skyweb/server"
	"skyweb/settings"
	"skyweb/views"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the skyweb client",
		Description: `Starts the skyweb HTTP server.

Serves the web shell, the feed API and the event stream on the specified or
default port. When logged in, the unread notification count is polled and
posts from followed accounts are watched on Jetstream.`,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "hostname",
				Aliases: []string{"n"},
				Usage:   "The hostname to listen on",
				EnvVars: []string{"SKYWEB_HOSTNAME"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on, overrides the configured port",
				EnvVars: []string{"SKYWEB_PORT"},
			},
			databaseFlag(),
		}, accountFlags()...),
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if ctx.IsSet("hostname") {
				cfg.Server.Hostname = ctx.String("hostname")
			}
			if ctx.IsSet("port") {
				cfg.Server.Port = ctx.Int("port")
			}
			if path := ctx.String("database"); path != "" {
				cfg.Database.Path = path
			}

			creds, err := credentials(ctx)
			if err != nil {
				return err
			}
			client, err := newClient(ctx, cfg, creds)
			if err != nil {
				return err
			}

			if err := db.Migrate(cfg.Database.Path); err != nil {
				return err
			}
			store, err := db.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			appSettings, err := settings.New(ctx.Context, store, settings.ThemeFromConfig(cfg.Theme))
			if err != nil {
				return err
			}

			prefs := preferences.NewLive(preferences.FromConfig(cfg))
			client.SetPolicySource(prefs)
			identity := client.Identity()
			if identity != nil {
				loadRemotePreferences(ctx.Context, client, prefs, cfg)
			}

			hub := notifications.NewHub()
			feedService := feeds.NewService(client, prefs, client.Identity, feeds.InitializeFeeds(cfg))

			serverConfig := &server.ServerConfig{
				AllowOrigins: cfg.Server.AllowOrigins,
				Views: views.Deps{
					Feeds:       feedService,
					Network:     client,
					Settings:    appSettings,
					CurrentUser: client.Identity,
				},
				Hub: hub,
			}

			// Graceful shutdown
			signalCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(signalCtx)

			if identity != nil {
				serverConfig.Composer = composer.New(client, languageDetector(cfg), cfg.Composer.DefaultLanguages)

				poller := notifications.NewUnreadPoller(client, hub, cfg.Notifications.PollInterval.Duration)
				serverConfig.Unread = poller
				g.Go(func() error {
					return poller.Run(gctx)
				})

				if cfg.Jetstream.Enabled {
					watcher, err := followWatcher(ctx.Context, client, identity, hub, cfg)
					if err != nil {
						return err
					}
					defer watcher.Close()
					g.Go(func() error {
						return watcher.Run(gctx)
					})
				}
			}

			app := server.Server(serverConfig)

			g.Go(func() error {
				addr := fmt.Sprintf("%s:%d", cfg.Server.Hostname, cfg.Server.Port)
				log.WithFields(log.Fields{
					"address": addr,
				}).Info("Starting server")
				return app.Listen(addr)
			})

			g.Go(func() error {
				<-gctx.Done()
				log.Info("Gracefully shutting down...")
				hub.Shutdown()
				return app.ShutdownWithTimeout(60 * time.Second)
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("Done!")
			return nil
		},
	}
}

// loadRemotePreferences replaces the configured preferences with the
// account's. Failing to read them is not fatal.
func loadRemotePreferences(ctx context.Context, client *bluesky.Client, prefs *preferences.Live, cfg *config.Config) {
	remote, err := client.Preferences(ctx)
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Warn("Could not load account preferences, using configured preferences")
		return
	}
	prefs.Set(preferences.FromRemote(*remote, cfg))
}

func languageDetector(cfg *config.Config) composer.LanguageDetector {
	detector, err := composer.NewLinguaDetector(cfg.Composer.DetectLanguages)
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Warn("Language detection disabled")
		return nil
	}
	return detector
}

func followWatcher(ctx context.Context, client *bluesky.Client, identity *models.Identity, hub *notifications.Hub, cfg *config.Config) (*firehose.Watcher, error) {
	following, err := client.Follows(ctx, identity.Did)
	if err != nil {
		return nil, fmt.Errorf("could not load follows: %w", err)
	}

	return firehose.NewWatcher(firehose.WatcherConfig{
		Hosts:         cfg.Jetstream.Hosts,
		Compress:      cfg.Jetstream.Compress,
		UserAgent:     cfg.Bluesky.UserAgent,
		FlushInterval: cfg.Jetstream.FlushInterval.Duration,
	}, hub, following)
}
