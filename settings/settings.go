// Package settings holds the user facing application settings. A Settings
// value is created once at startup and passed to whatever needs it.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"skyweb/config"
	"skyweb/models"

	log "github.com/sirupsen/logrus"
)

const themeKey = "theme"

type Mode string

const (
	ModeLight  Mode = "light"
	ModeDark   Mode = "dark"
	ModeSystem Mode = "system"
)

const (
	MinFontScale = 0.5
	MaxFontScale = 2.0
)

var ErrInvalidTheme = errors.New("invalid theme")

var accentPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Storage persists settings as string values
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
}

type Theme struct {
	Mode      Mode    `json:"mode"`
	Accent    string  `json:"accent"`
	FontScale float64 `json:"fontScale"`
}

// ThemeChangedEvent is pushed to connected clients after a theme update
type ThemeChangedEvent struct {
	Theme Theme `json:"theme"`
}

func (ThemeChangedEvent) EventName() string { return "theme" }

var _ models.Event = ThemeChangedEvent{}

func (t Theme) Validate() error {
	switch t.Mode {
	case ModeLight, ModeDark, ModeSystem:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidTheme, t.Mode)
	}
	if !accentPattern.MatchString(t.Accent) {
		return fmt.Errorf("%w: accent must be a #rrggbb colour, got %q", ErrInvalidTheme, t.Accent)
	}
	if t.FontScale < MinFontScale || t.FontScale > MaxFontScale {
		return fmt.Errorf("%w: font scale %.2f outside %.1f-%.1f", ErrInvalidTheme, t.FontScale, MinFontScale, MaxFontScale)
	}
	return nil
}

// ThemeFromConfig returns the configured default theme
func ThemeFromConfig(cfg config.Theme) Theme {
	return Theme{
		Mode:      Mode(cfg.Mode),
		Accent:    cfg.Accent,
		FontScale: cfg.FontScale,
	}
}

type Settings struct {
	storage Storage

	mu    sync.RWMutex
	theme Theme
}

// New loads the stored settings, falling back to defaults for anything that
// is missing or no longer valid
func New(ctx context.Context, storage Storage, defaults Theme) (*Settings, error) {
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("default theme: %w", err)
	}

	s := &Settings{storage: storage, theme: defaults}

	raw, ok, err := storage.Get(ctx, themeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load theme: %w", err)
	}
	if !ok {
		return s, nil
	}

	var stored Theme
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		log.WithFields(log.Fields{"error": err}).Warn("Stored theme is unreadable, using defaults")
		return s, nil
	}
	if err := stored.Validate(); err != nil {
		log.WithFields(log.Fields{"error": err}).Warn("Stored theme is invalid, using defaults")
		return s, nil
	}

	s.theme = stored
	return s, nil
}

func (s *Settings) Theme() Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

// SetTheme validates and persists a theme. The in-memory theme only changes
// once storage succeeded.
func (s *Settings) SetTheme(ctx context.Context, theme Theme) error {
	if err := theme.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(theme)
	if err != nil {
		return fmt.Errorf("failed to encode theme: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Set(ctx, themeKey, string(data)); err != nil {
		return fmt.Errorf("failed to store theme: %w", err)
	}
	s.theme = theme

	log.WithFields(log.Fields{
		"mode":   theme.Mode,
		"accent": theme.Accent,
	}).Info("Theme updated")
	return nil
}

// MemoryStorage keeps settings in memory, used when no database is configured
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: map[string]string{}}
}

func (m *MemoryStorage) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *MemoryStorage) Set(ctx context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
