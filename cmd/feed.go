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

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func kindFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "kind",
		Value: string(feeds.KindFollowing),
		Usage: "Feed kind: following, algorithmic or author",
	}
}

func feedCmd() *cli.Command {
	return &cli.Command{
		Name:  "feed",
		Usage: "Print a filtered feed to the command line",
		Description: `Fetches a feed from Bluesky, filters it the way the web client does and
prints every remaining item as a JSON object on a single line. Use a tool
like jq to process the output.

The following feed requires logging in. Algorithmic feeds are looked up by
their configured id, author feeds by handle or DID.

Prints all other log messages to stderr.`,
		Flags: append([]cli.Flag{
			kindFlag(),
			&cli.StringFlag{
				Name:  "id",
				Usage: "Configured feed id for algorithmic feeds",
			},
			&cli.StringFlag{
				Name:  "actor",
				Usage: "Handle or DID for author feeds",
			},
			&cli.StringFlag{
				Name:  "filter",
				Usage: "Author feed filter",
				Value: feeds.AuthorFilters[0],
			},
			&cli.StringFlag{
				Name:  "cursor",
				Usage: "Cursor to start from",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Items requested per page",
				Value: feeds.DefaultLimit,
			},
			&cli.IntFlag{
				Name:  "pages",
				Usage: "Number of pages to fetch",
				Value: 1,
			},
		}, accountFlags()...),
		Action: func(ctx *cli.Context) error {
			log.SetOutput(os.Stderr)

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			creds, err := credentials(ctx)
			if err != nil {
				return err
			}
			client, err := newClient(ctx, cfg, creds)
			if err != nil {
				return err
			}

			prefs := preferences.NewLive(preferences.FromConfig(cfg))
			client.SetPolicySource(prefs)
			if client.Identity() != nil {
				loadRemotePreferences(ctx.Context, client, prefs, cfg)
			}
			service := feeds.NewService(client, prefs, client.Identity, feeds.InitializeFeeds(cfg))

			cursor := ctx.String("cursor")
			for i := 0; i < ctx.Int("pages"); i++ {
				var page *models.FeedPage
				switch feeds.Kind(ctx.String("kind")) {
				case feeds.KindFollowing:
					page, err = service.Following(ctx.Context, cursor, ctx.Int("limit"))
				case feeds.KindAlgorithmic:
					page, err = service.Algorithmic(ctx.Context, ctx.String("id"), cursor, ctx.Int("limit"))
				case feeds.KindAuthor:
					page, err = service.Author(ctx.Context, ctx.String("actor"), ctx.String("filter"), cursor, ctx.Int("limit"))
				default:
					return fmt.Errorf("unknown feed kind %q", ctx.String("kind"))
				}
				if err != nil {
					return err
				}

				if err := printItems(os.Stdout, page); err != nil {
					return err
				}
				if page.Cursor == nil {
					break
				}
				cursor = *page.Cursor
			}

			log.WithFields(log.Fields{
				"cursor": cursor,
			}).Info("Done fetching feed")
			return nil
		},
	}
}

// printItems writes one JSON object per line
func printItems(w io.Writer, page *models.FeedPage) error {
	for _, item := range page.Items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("error marshalling feed item: %w", err)
		}
		if _, err := fmt.Fprintln(w, string(data)); err != nil {
			return err
		}
	}
	return nil
}
