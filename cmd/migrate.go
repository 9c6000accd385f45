/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"skyweb/db"

	"github.com/urfave/cli/v2"
)

func databaseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "database",
		Aliases: []string{"d"},
		Usage:   "SQLite database file, overrides the configured path",
		EnvVars: []string{"SKYWEB_DATABASE"},
	}
}

// databasePath prefers --database over the configuration file
func databasePath(ctx *cli.Context) (string, error) {
	if path := ctx.String("database"); path != "" {
		return path, nil
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return "", err
	}
	return cfg.Database.Path, nil
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run database migrations",
		Description: `Runs database migrations on the settings database. Will create the database if it does not exist.`,
		Flags:       []cli.Flag{databaseFlag()},
		Action: func(ctx *cli.Context) error {
			path, err := databasePath(ctx)
			if err != nil {
				return err
			}
			return db.Migrate(path)
		},
	}
}

func rollbackCmd() *cli.Command {
	return &cli.Command{
		Name:        "rollback",
		Usage:       "Rollback database migration",
		Description: `Rolls back the last database migration`,
		Flags:       []cli.Flag{databaseFlag()},
		Action: func(ctx *cli.Context) error {
			path, err := databasePath(ctx)
			if err != nil {
				return err
			}
			return db.Rollback(path)
		},
	}
}
