// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"review_bot/internal/auth"
	"review_bot/internal/storage"
)

// Config holds the application configuration.
type Config struct {
	GoogleEmail    string
	GooglePassword string
	MapsURL        string
	PlaceName      string
	SearchQuery    string
	ScreenshotsDir string

	PostStore    string
	PostsFile    string
	DatabasePath string
	LogLevel     string

	CardTemplatePath string
	BrowserBin       string
	Headless         bool
	LoginUncertain   auth.Outcome
	DebugShots       bool

	TelegramBotToken string
	TelegramChatID   int64
	AllowedUsers     []int64

	PublishEndpoint string
	PublishToken    string
	PublishInterval time.Duration
}

// LoadDotEnv reads variables from the given files (".env" when none are
// named) without overriding ones already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		GoogleEmail:      strings.TrimSpace(os.Getenv("GOOGLE_EMAIL")),
		GooglePassword:   os.Getenv("GOOGLE_PASSWORD"),
		MapsURL:          strings.TrimSpace(os.Getenv("GOOGLE_MAPS_URL")),
		PlaceName:        getenv("PLACE_NAME", "Your Business"),
		ScreenshotsDir:   getenv("SCREENSHOTS_DIR", "./screenshots"),
		PostStore:        strings.ToLower(getenv("POST_STORE", storage.BackendJSON)),
		PostsFile:        getenv("POSTS_FILE", "./data/posts.json"),
		DatabasePath:     getenv("DATABASE_PATH", "./data/posts.db"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		CardTemplatePath: os.Getenv("CARD_TEMPLATE_PATH"),
		BrowserBin:       os.Getenv("BROWSER_BIN"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		PublishEndpoint:  os.Getenv("PUBLISH_ENDPOINT"),
		PublishToken:     os.Getenv("PUBLISH_TOKEN"),
	}
	cfg.SearchQuery = getenv("PLACE_SEARCH_QUERY", cfg.PlaceName)

	switch cfg.PostStore {
	case storage.BackendJSON, storage.BackendSQLite:
	default:
		return nil, fmt.Errorf("invalid POST_STORE %q: use %s or %s", cfg.PostStore, storage.BackendJSON, storage.BackendSQLite)
	}

	var err error
	if cfg.Headless, err = parseBool("HEADLESS", true); err != nil {
		return nil, err
	}
	if cfg.DebugShots, err = parseBool("CAPTURE_DEBUG_SHOTS", false); err != nil {
		return nil, err
	}
	if cfg.LoginUncertain, err = auth.ParseOutcome(os.Getenv("LOGIN_UNCERTAIN_OUTCOME")); err != nil {
		return nil, fmt.Errorf("invalid LOGIN_UNCERTAIN_OUTCOME: %w", err)
	}

	if raw := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); raw != "" {
		cfg.TelegramChatID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", raw, err)
		}
	}

	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			cfg.AllowedUsers = append(cfg.AllowedUsers, uid)
		}
	}

	minutes := 15
	if raw := strings.TrimSpace(os.Getenv("PUBLISH_INTERVAL_MINUTES")); raw != "" {
		minutes, err = strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("invalid PUBLISH_INTERVAL_MINUTES %q: must be a positive integer", raw)
		}
	}
	cfg.PublishInterval = time.Duration(minutes) * time.Minute

	return cfg, nil
}

// Credentials returns the configured sign-in account.
func (c *Config) Credentials() auth.Credentials {
	return auth.Credentials{Email: c.GoogleEmail, Password: c.GooglePassword}
}

// RequireListing checks the settings a capture run cannot do without.
func (c *Config) RequireListing() error {
	if c.MapsURL == "" {
		return fmt.Errorf("GOOGLE_MAPS_URL is required: set it to the listing URL, e.g. https://www.google.com/maps/place/Your+Business")
	}
	return nil
}

// RequireBot checks the settings the approval bot cannot do without.
func (c *Config) RequireBot() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseBool(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
