package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// StorageConfig represents storage configuration from config file.
type StorageConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
	// Driver picks the sqlite driver: "sqlite3" (cgo) or "sqlite" (pure Go).
	Driver string `yaml:"driver,omitempty"`
}

// ServerConfig configures `folio serve`.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	JWTSecret   string   `yaml:"jwt_secret"`
	AdminEmails []string `yaml:"admin_emails"`
}

// RemoteConfig points the CLI at a running store service.
type RemoteConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// FeedConfig tunes the feed engine.
type FeedConfig struct {
	MutationTimeout string `yaml:"mutation_timeout"`
	ApplyConfirmed  bool   `yaml:"apply_confirmed"`
}

// CollectionConfig describes one collection and its class names.
type CollectionConfig struct {
	Path     string `yaml:"path"`
	Title    string `yaml:"title"`
	PageSize int    `yaml:"page_size"`
	Sortable bool   `yaml:"sortable"`

	ItemClass       string `yaml:"item_class,omitempty"`
	ListClass       string `yaml:"list_class,omitempty"`
	TitleClass      string `yaml:"title_class,omitempty"`
	ImageClass      string `yaml:"image_class,omitempty"`
	TextClass       string `yaml:"text_class,omitempty"`
	OpenedTextClass string `yaml:"opened_text_class,omitempty"`
	SourceClass     string `yaml:"source_class,omitempty"`
	DataClass       string `yaml:"data_class,omitempty"`
}

// FileConfig represents the structure of ~/.folio/config.yaml.
type FileConfig struct {
	Storage     StorageConfig      `yaml:"storage"`
	Server      ServerConfig       `yaml:"server"`
	Remote      RemoteConfig       `yaml:"remote"`
	Log         LogConfig          `yaml:"log"`
	Feed        FeedConfig         `yaml:"feed"`
	Collections []CollectionConfig `yaml:"collections"`
}

// ConfigFilePath returns the path of the user's config file.
func ConfigFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".folio", "config.yaml"), nil
}

// LoadConfigFile loads configuration from ~/.folio/config.yaml. Returns nil
// if the file doesn't exist (not an error). Returns error if the file exists
// but cannot be parsed.
func LoadConfigFile() (*FileConfig, error) {
	configPath, err := ConfigFilePath()
	if err != nil {
		return nil, err
	}
	return LoadConfigFileFrom(configPath)
}

// LoadConfigFileFrom loads configuration from configPath, with the same
// rules as LoadConfigFile.
func LoadConfigFileFrom(configPath string) (*FileConfig, error) {
	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil // File doesn't exist -- not an error
	}

	// Read file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// DefaultFileConfig is what `folio init` writes.
func DefaultFileConfig() FileConfig {
	d := Defaults()
	fc := FileConfig{
		Storage: StorageConfig{Type: d.StorageType, DSN: d.StorageDSN},
		Server:  ServerConfig{Addr: d.Addr},
		Log:     LogConfig{Level: d.LogLevel},
		Feed:    FeedConfig{MutationTimeout: d.MutationTimeout.String()},

		Collections: DefaultCollections(),
	}
	return fc
}

// WriteDefaultConfigFile writes the default config to ConfigFilePath. It
// reports false without writing when the file exists and force is not set.
func WriteDefaultConfigFile(force bool) (bool, error) {
	configPath, err := ConfigFilePath()
	if err != nil {
		return false, err
	}
	return writeConfigFile(configPath, DefaultFileConfig(), force)
}

func writeConfigFile(configPath string, cfg FileConfig, force bool) (bool, error) {
	if _, err := os.Stat(configPath); err == nil && !force {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return false, fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}
	return true, nil
}
