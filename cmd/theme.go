/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"os"

	"skyweb/db"
	"skyweb/settings"

	"github.com/urfave/cli/v2"
)

// openSettings migrates and opens the settings database. The returned close
// function must be called when done.
func openSettings(ctx *cli.Context) (*settings.Settings, func() error, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	path := cfg.Database.Path
	if override := ctx.String("database"); override != "" {
		path = override
	}

	if err := db.Migrate(path); err != nil {
		return nil, nil, err
	}
	store, err := db.Open(path)
	if err != nil {
		return nil, nil, err
	}

	s, err := settings.New(ctx.Context, store, settings.ThemeFromConfig(cfg.Theme))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return s, store.Close, nil
}

func printTheme(theme settings.Theme) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(theme)
}

func themeCmd() *cli.Command {
	return &cli.Command{
		Name:  "theme",
		Usage: "Show or change the theme",
		Subcommands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Print the current theme as JSON",
				Flags: []cli.Flag{databaseFlag()},
				Action: func(ctx *cli.Context) error {
					s, closeStore, err := openSettings(ctx)
					if err != nil {
						return err
					}
					defer closeStore()
					return printTheme(s.Theme())
				},
			},
			{
				Name:  "set",
				Usage: "Change the theme, unset flags keep their current value",
				Flags: []cli.Flag{
					databaseFlag(),
					&cli.StringFlag{
						Name:  "mode",
						Usage: "light, dark or system",
					},
					&cli.StringFlag{
						Name:  "accent",
						Usage: "Accent colour as #rrggbb",
					},
					&cli.Float64Flag{
						Name:  "font-scale",
						Usage: "Font scale between 0.5 and 2.0",
					},
				},
				Action: func(ctx *cli.Context) error {
					s, closeStore, err := openSettings(ctx)
					if err != nil {
						return err
					}
					defer closeStore()

					theme := s.Theme()
					if ctx.IsSet("mode") {
						theme.Mode = settings.Mode(ctx.String("mode"))
					}
					if ctx.IsSet("accent") {
						theme.Accent = ctx.String("accent")
					}
					if ctx.IsSet("font-scale") {
						theme.FontScale = ctx.Float64("font-scale")
					}

					if err := s.SetTheme(ctx.Context, theme); err != nil {
						return err
					}
					return printTheme(theme)
				},
			},
		},
	}
}
