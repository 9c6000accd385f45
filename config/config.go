package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Duration lets TOML files use strings like "30s"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// Server holds HTTP server settings
type Server struct {
	Hostname     string   `toml:"hostname"`
	Port         int      `toml:"port"`
	AllowOrigins []string `toml:"allow_origins"`
}

// Bluesky holds the XRPC hosts
type Bluesky struct {
	// PDS used when logging in
	Host string `toml:"host"`
	// AppView used for anonymous reads
	PublicHost string `toml:"public_host"`
	// Requests per second towards the PDS/AppView
	RateLimit float64 `toml:"rate_limit"`
	UserAgent string  `toml:"user_agent"`
}

// Feed is a pinned feed generator
type Feed struct {
	ID          string `toml:"id"`
	DisplayName string `toml:"display_name"`
	Description string `toml:"description"`
	URI         string `toml:"uri"`
}

// Moderation holds local overrides on top of the account preferences
type Moderation struct {
	AdultContent bool              `toml:"adult_content"`
	Labels       map[string]string `toml:"labels"`
}

// Following holds the home timeline preferences used when the account has none
type Following struct {
	HideReposts    bool `toml:"hide_reposts"`
	HideReplies    bool `toml:"hide_replies"`
	HideQuotePosts bool `toml:"hide_quote_posts"`
}

// Jetstream holds the live update subscription settings
type Jetstream struct {
	Enabled       bool     `toml:"enabled"`
	Hosts         []string `toml:"hosts"`
	Compress      bool     `toml:"compress"`
	FlushInterval Duration `toml:"flush_interval"`
}

// Notifications holds the unread count poller settings
type Notifications struct {
	PollInterval Duration `toml:"poll_interval"`
}

// Composer holds post composer settings
type Composer struct {
	DefaultLanguages []string `toml:"default_languages"`
	// Languages considered by the detector, ISO 639-1
	DetectLanguages []string `toml:"detect_languages"`
}

// Theme holds the default theme for new installations
type Theme struct {
	Mode      string  `toml:"mode"`
	Accent    string  `toml:"accent"`
	FontScale float64 `toml:"font_scale"`
}

// Database holds the settings database location
type Database struct {
	Path string `toml:"path"`
}

// Config represents the top-level configuration
type Config struct {
	Server        Server        `toml:"server"`
	Bluesky       Bluesky       `toml:"bluesky"`
	Database      Database      `toml:"database"`
	Feeds         []Feed        `toml:"feeds"`
	Following     Following     `toml:"following"`
	Moderation    Moderation    `toml:"moderation"`
	Jetstream     Jetstream     `toml:"jetstream"`
	Notifications Notifications `toml:"notifications"`
	Composer      Composer      `toml:"composer"`
	Theme         Theme         `toml:"theme"`
}

// LoadConfig reads the TOML file at path on top of the embedded defaults
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

// DefaultConfig returns the configuration from the embedded example file
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// ExampleConfig returns the embedded example configuration file
func ExampleConfig() []byte {
	return exampleConf
}
