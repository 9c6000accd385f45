// Package db stores application settings in SQLite
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"skyweb/settings"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

const settingsTable = "settings"

// Store is a key/value store for settings
type Store struct {
	db *sql.DB
}

var _ settings.Storage = (*Store)(nil)

// Open connects to the database at path. Run Migrate first.
func Open(path string) (*Store, error) {
	db, err := connection(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("value").From(settingsTable).Where(sb.Equal("name", key))
	query, args := sb.Build()

	var value string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value string) error {
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.ReplaceInto(settingsTable).
		Cols("name", "value", "updated_at").
		Values(key, value, time.Now().Unix())
	query, args := ib.Build()

	log.WithFields(log.Fields{
		"sql":  query,
		"name": key,
	}).Debug("Writing setting")

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// Delete removes a setting, deleting a missing key is not an error
func (s *Store) Delete(ctx context.Context, key string) error {
	del := sqlbuilder.SQLite.NewDeleteBuilder()
	del.DeleteFrom(settingsTable).Where(del.Equal("name", key))
	query, args := del.Build()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// Keys lists the stored setting names in order
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("name").From(settingsTable).OrderBy("name")
	query, args := sb.Build()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
