/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"skyweb/feeds"
	"skyweb/models"
	"skyweb/preferences"

	"github.com/urfave/cli/v2"
)

func filterCmd() *cli.Command {
	return &cli.Command{
		Name:  "filter",
		Usage: "Filter a feed page read from stdin",
		Description: `Reads a feed page as JSON ({"feed": [...], "cursor": "..."}) from stdin
or --file, applies the display rules of the given feed kind and prints the
filtered page as JSON.

The following feed rules use the [following] section of the configuration
and need --viewer, without a viewer the page is printed unchanged.`,
		Flags: []cli.Flag{
			kindFlag(),
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Read the page from a file instead of stdin",
			},
			&cli.StringFlag{
				Name:  "viewer",
				Usage: "DID of the viewing account",
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			var input io.Reader = os.Stdin
			if path := ctx.String("file"); path != "" {
				file, err := os.Open(path)
				if err != nil {
					return err
				}
				defer file.Close()
				input = file
			}

			var viewer *models.Identity
			if did := ctx.String("viewer"); did != "" {
				viewer = &models.Identity{Did: did}
			}

			page, err := filterPage(input, feeds.Kind(ctx.String("kind")), viewer, preferences.FromConfig(cfg))
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(page)
		},
	}
}

func filterPage(r io.Reader, kind feeds.Kind, viewer *models.Identity, prefs feeds.Preferences) (*models.FeedPage, error) {
	var page models.FeedPage
	if err := json.NewDecoder(r).Decode(&page); err != nil {
		return nil, fmt.Errorf("error parsing feed page: %w", err)
	}

	switch kind {
	case feeds.KindFollowing:
		return feeds.FilterFollowingFeed(&page, viewer, prefs), nil
	case feeds.KindAlgorithmic:
		return feeds.FilterAlgorithmicFeed(&page), nil
	case feeds.KindAuthor:
		return feeds.FilterAuthorFeed(&page), nil
	}
	return nil, fmt.Errorf("unknown feed kind %q", kind)
}
