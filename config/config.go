// Package config resolves folio settings. Precedence, highest first:
// environment variables, a .env file in the working directory, the YAML
// config file, then defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pevans/folio/feed"
)

// Config is the resolved configuration.
type Config struct {
	StorageType   string
	StorageDSN    string
	StorageDriver string

	Addr        string
	JWTSecret   string
	AdminEmails []string

	RemoteURL string
	Token     string

	LogLevel        string
	MutationTimeout time.Duration
	ApplyConfirmed  bool

	Collections []CollectionConfig
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		StorageType:     "sqlite",
		StorageDSN:      "folio.db",
		Addr:            "localhost:8080",
		LogLevel:        "info",
		MutationTimeout: feed.DefaultMutationTimeout,
		Collections:     DefaultCollections(),
	}
}

// DefaultCollections are the blog and projects feeds.
func DefaultCollections() []CollectionConfig {
	return []CollectionConfig{
		{
			Path:        "news",
			Title:       "Blog",
			PageSize:    5,
			Sortable:    true,
			ItemClass:   "news-item",
			ListClass:   "news-list",
			TitleClass:  "news-title",
			ImageClass:  "news-image",
			TextClass:   "news-body",
			SourceClass: "news-source",
			DataClass:   "news-data",
		},
		{
			Path:            "projects",
			Title:           "My Projects",
			PageSize:        8,
			ItemClass:       "project-item",
			ListClass:       "projects-list",
			TitleClass:      "project-title",
			ImageClass:      "project-image",
			TextClass:       "project-body",
			OpenedTextClass: "opened-post",
			SourceClass:     "project-source",
			DataClass:       "project-data",
		},
	}
}

// LoadOptions locates the config sources. Empty fields use the defaults.
type LoadOptions struct {
	ConfigPath string
	EnvFile    string
}

// Load resolves the configuration. A missing config file or .env file is
// not an error.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Defaults()

	var (
		fc  *FileConfig
		err error
	)
	if opts.ConfigPath != "" {
		fc, err = LoadConfigFileFrom(opts.ConfigPath)
	} else {
		fc, err = LoadConfigFile()
	}
	if err != nil {
		return nil, err
	}
	if fc != nil {
		if err := cfg.applyFile(fc); err != nil {
			return nil, err
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		// godotenv never overrides variables that are already set.
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyFile(fc *FileConfig) error {
	if fc.Storage.Type != "" {
		c.StorageType = fc.Storage.Type
	}
	if fc.Storage.DSN != "" {
		c.StorageDSN = fc.Storage.DSN
	}
	if fc.Storage.Driver != "" {
		c.StorageDriver = fc.Storage.Driver
	}
	if fc.Server.Addr != "" {
		c.Addr = fc.Server.Addr
	}
	if fc.Server.JWTSecret != "" {
		c.JWTSecret = fc.Server.JWTSecret
	}
	if len(fc.Server.AdminEmails) > 0 {
		c.AdminEmails = fc.Server.AdminEmails
	}
	if fc.Remote.URL != "" {
		c.RemoteURL = fc.Remote.URL
	}
	if fc.Remote.Token != "" {
		c.Token = fc.Remote.Token
	}
	if fc.Log.Level != "" {
		c.LogLevel = fc.Log.Level
	}
	if fc.Feed.MutationTimeout != "" {
		d, err := time.ParseDuration(fc.Feed.MutationTimeout)
		if err != nil {
			return fmt.Errorf("invalid feed.mutation_timeout: %w", err)
		}
		c.MutationTimeout = d
	}
	if fc.Feed.ApplyConfirmed {
		c.ApplyConfirmed = true
	}
	if len(fc.Collections) > 0 {
		c.Collections = fc.Collections
	}
	return nil
}

func (c *Config) applyEnv() error {
	if val := os.Getenv("FOLIO_STORAGE_TYPE"); val != "" {
		c.StorageType = val
	}
	if val := os.Getenv("FOLIO_STORAGE_DSN"); val != "" {
		c.StorageDSN = val
	}
	if val := os.Getenv("FOLIO_SQLITE_DRIVER"); val != "" {
		c.StorageDriver = val
	}
	if val := os.Getenv("FOLIO_ADDR"); val != "" {
		c.Addr = val
	}
	if val := os.Getenv("FOLIO_REMOTE_URL"); val != "" {
		c.RemoteURL = val
	}
	if val := os.Getenv("FOLIO_TOKEN"); val != "" {
		c.Token = val
	}
	if val := os.Getenv("FOLIO_JWT_SECRET"); val != "" {
		c.JWTSecret = val
	}
	if val := os.Getenv("FOLIO_ADMIN_EMAILS"); val != "" {
		c.AdminEmails = splitList(val)
	}
	if val := os.Getenv("FOLIO_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("FOLIO_MUTATION_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid FOLIO_MUTATION_TIMEOUT: %w", err)
		}
		c.MutationTimeout = d
	}
	if val := os.Getenv("FOLIO_APPLY_CONFIRMED"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid FOLIO_APPLY_CONFIRMED: %w", err)
		}
		c.ApplyConfirmed = b
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the resolved values.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case "", "sqlite3", "sqlite":
	default:
		return fmt.Errorf("unknown sqlite driver %q: must be sqlite3 or sqlite", c.StorageDriver)
	}
	if c.MutationTimeout <= 0 {
		return errors.New("mutation timeout must be positive")
	}
	seen := map[string]bool{}
	for _, coll := range c.Collections {
		if coll.Path == "" {
			return errors.New("collection path is required")
		}
		if seen[coll.Path] {
			return fmt.Errorf("duplicate collection %q", coll.Path)
		}
		seen[coll.Path] = true
		if coll.PageSize <= 0 {
			return fmt.Errorf("collection %q: page_size must be positive", coll.Path)
		}
	}
	return nil
}

// Collection returns the configured collection at path.
func (c *Config) Collection(path string) (CollectionConfig, bool) {
	for _, coll := range c.Collections {
		if coll.Path == path {
			return coll, true
		}
	}
	return CollectionConfig{}, false
}

// FeedCollections converts every configured collection.
func (c *Config) FeedCollections() []feed.Collection {
	out := make([]feed.Collection, 0, len(c.Collections))
	for _, coll := range c.Collections {
		out = append(out, coll.FeedCollection())
	}
	return out
}

// FeedCollection converts the config into a feed collection. A collection
// with an opened text class gets a Highlight for its text blocks.
func (cc CollectionConfig) FeedCollection() feed.Collection {
	styles := feed.Styles{
		Item:   cc.ItemClass,
		Image:  cc.ImageClass,
		Title:  cc.TitleClass,
		Data:   cc.DataClass,
		List:   cc.ListClass,
		Source: cc.SourceClass,
		Text:   feed.StaticClass(cc.TextClass),
	}
	if cc.OpenedTextClass != "" {
		styles.Text = &feed.Highlight{Base: cc.TextClass, Opened: cc.OpenedTextClass}
	}
	return feed.Collection{
		Path:     cc.Path,
		Title:    cc.Title,
		PageSize: cc.PageSize,
		Sortable: cc.Sortable,
		Styles:   styles,
	}
}
