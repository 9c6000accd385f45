/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "skyweb",
		Usage: "A Bluesky web client",
		Description: `A web client for Bluesky and the AT Protocol.

		Skyweb serves a small web shell backed by an HTTP API. Feeds are
		fetched from the AppView and filtered for display, pages are
		rendered by a client-side style router per connected browser and
		pushed to it over server-sent events.

		Flags can generally be set via environment variables, e.g.:

		--config => SKYWEB_CONFIG=config.toml
		--port => SKYWEB_PORT=3000
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.toml",
				Usage:   "Path to the TOML configuration file, the embedded defaults are used when missing",
				EnvVars: []string{"SKYWEB_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (trace, debug, info, warn, error)",
				EnvVars: []string{"SKYWEB_LOG_LEVEL"},
			},
		},
		Before: func(ctx *cli.Context) error {
			level, err := log.ParseLevel(ctx.String("log-level"))
			if err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			log.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			feedCmd(),
			filterCmd(),
			routeCmd(),
			themeCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}
