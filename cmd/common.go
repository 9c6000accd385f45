/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"skyweb/bluesky"
	"skyweb/config"

	"github.com/cqroot/prompt"
	"github.com/cqroot/prompt/input"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func accountFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "handle",
			Usage:   "Handle or email of the account to log in with, anonymous when empty",
			EnvVars: []string{"SKYWEB_HANDLE"},
		},
		&cli.StringFlag{
			Name:    "password",
			Usage:   "App password for the account, prompted for when missing",
			EnvVars: []string{"SKYWEB_PASSWORD"},
		},
		&cli.BoolFlag{
			Name:  "login",
			Usage: "Prompt for the handle and password",
		},
	}
}

// loadConfig reads --config. A missing file is only an error when the flag
// was given explicitly.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	path := ctx.String("config")

	cfg, err := config.LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && !ctx.IsSet("config") {
		log.WithFields(log.Fields{
			"path": path,
		}).Info("No configuration file found, using defaults")
		return config.DefaultConfig(), nil
	}
	return nil, err
}

// credentials returns nil when running anonymously
func credentials(ctx *cli.Context) (*bluesky.Credentials, error) {
	handle := ctx.String("handle")
	password := ctx.String("password")

	if handle == "" && !ctx.Bool("login") {
		return nil, nil
	}

	var err error
	if handle == "" {
		handle, err = prompt.New().Ask("Handle:").Input("myname.bsky.social")
		if err != nil {
			return nil, err
		}
	}
	if password == "" {
		password, err = prompt.New().Ask("Password:").Input("", input.WithEchoMode(input.EchoNone))
		if err != nil {
			return nil, err
		}
	}

	return &bluesky.Credentials{
		Identifier: handle,
		Password:   password,
	}, nil
}

// newClient logs in against the PDS, or reads from the public AppView when
// creds is nil
func newClient(ctx *cli.Context, cfg *config.Config, creds *bluesky.Credentials) (*bluesky.Client, error) {
	opts := bluesky.Options{
		RateLimit: cfg.Bluesky.RateLimit,
		UserAgent: cfg.Bluesky.UserAgent,
	}

	if creds == nil {
		return bluesky.Anonymous(cfg.Bluesky.PublicHost, opts), nil
	}

	client, err := bluesky.ClientFromCredentials(ctx.Context, cfg.Bluesky.Host, creds, opts)
	if err != nil {
		return nil, fmt.Errorf("could not create client with provided credentials: %w", err)
	}

	log.WithFields(log.Fields{
		"did":    client.Identity().Did,
		"handle": client.Identity().Handle,
	}).Info("Logged in to Bluesky")
	return client, nil
}
