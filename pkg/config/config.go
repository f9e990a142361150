package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable read by LoadFromEnv
const EnvPrefix = "TUMBLRSYNC_"

// Config holds all configuration options for tumblrsync
type Config struct {
	// Tumblr application credentials and endpoint
	Tumblr TumblrConfig `yaml:"tumblr" json:"tumblr" envPrefix:"TUMBLR_"`

	// Request executor tuning
	Request RequestConfig `yaml:"request" json:"request" envPrefix:"REQUEST_"`

	// Backup destination and behaviour
	Backup BackupConfig `yaml:"backup" json:"backup" envPrefix:"BACKUP_"`

	// Where the OAuth credential is persisted
	Credentials CredentialsConfig `yaml:"credentials" json:"credentials" envPrefix:"CREDENTIALS_"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging" envPrefix:"LOG_"`
}

// TumblrConfig holds the registered application's OAuth settings
type TumblrConfig struct {
	ClientID     string `yaml:"client_id" json:"client_id" env:"CLIENT_ID" validate:"required"`
	ClientSecret string `yaml:"client_secret" json:"client_secret" env:"CLIENT_SECRET" validate:"required"`
	// Code is the one-time authorization code used on the very first run
	Code        string `yaml:"code" json:"code" env:"CODE"`
	RedirectURI string `yaml:"redirect_uri" json:"redirect_uri" env:"REDIRECT_URI" validate:"omitempty,url"`
	APIBase     string `yaml:"api_base" json:"api_base" env:"API_BASE" validate:"required,url"`
	UserAgent   string `yaml:"user_agent" json:"user_agent" env:"USER_AGENT" validate:"required"`
}

// RequestConfig holds request executor configuration
type RequestConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts" env:"MAX_ATTEMPTS" validate:"min=1"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT" validate:"gt=0"`
	MinInterval time.Duration `yaml:"min_interval" json:"min_interval" env:"MIN_INTERVAL" validate:"gte=0"`
	RetryDelay  time.Duration `yaml:"retry_delay" json:"retry_delay" env:"RETRY_DELAY" validate:"gte=0"`
}

// BackupConfig holds backup destination and incremental settings
type BackupConfig struct {
	Folder string `yaml:"folder" json:"folder" env:"FOLDER" validate:"required"`
	// EqualPostsLimit stops a blog after this many consecutive unchanged posts
	EqualPostsLimit int  `yaml:"equal_posts_limit" json:"equal_posts_limit" env:"EQUAL_POSTS_LIMIT" validate:"min=0"`
	Force           bool `yaml:"force" json:"force" env:"FORCE"`
	Resume          bool `yaml:"resume" json:"resume" env:"RESUME"`
	SkipMedia       bool `yaml:"skip_media" json:"skip_media" env:"SKIP_MEDIA"`
	// PostLimit caps posts fetched per blog; -1 fetches everything
	PostLimit int      `yaml:"post_limit" json:"post_limit" env:"POST_LIMIT" validate:"min=-1"`
	Blogs     []string `yaml:"blogs" json:"blogs" env:"BLOGS"`
	// Notify sends a desktop notification when a run ends
	Notify bool `yaml:"notify" json:"notify" env:"NOTIFY"`
}

// CredentialsConfig selects the credential store backend
type CredentialsConfig struct {
	Backend string `yaml:"backend" json:"backend" env:"BACKEND" validate:"oneof=file keyring encrypted"`
	// File defaults to <backup folder>/token.json
	File       string `yaml:"file" json:"file" env:"FILE"`
	Passphrase string `yaml:"-" json:"-" env:"PASSPHRASE,unset"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" env:"LEVEL" validate:"oneof=debug info warn warning error disabled"`
	File  string `yaml:"file" json:"file" env:"FILE"`
}

// legacyEnv carries the variable names used by earlier releases
type legacyEnv struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Code         string `env:"CODE"`
	RedirectURI  string `env:"REDIRECT_URI"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Tumblr: TumblrConfig{
			APIBase:   "https://api.tumblr.com",
			UserAgent: "TumblrSync/1.0.0",
		},
		Request: RequestConfig{
			MaxAttempts: 5,
			Timeout:     10 * time.Second,
			MinInterval: 2 * time.Second,
			RetryDelay:  5 * time.Second,
		},
		Backup: BackupConfig{
			Folder:          "./backup",
			EqualPostsLimit: 100,
			PostLimit:       -1,
		},
		Credentials: CredentialsConfig{
			Backend: "file",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// CredentialFile returns the path of the file-backed credential store
func (c *Config) CredentialFile() string {
	if c.Credentials.File != "" {
		return c.Credentials.File
	}
	return filepath.Join(c.Backup.Folder, "token.json")
}

// LoadFromEnv loads configuration from environment variables.
// Unprefixed CLIENT_ID, CLIENT_SECRET, CODE and REDIRECT_URI are honoured
// but lose to their TUMBLRSYNC_TUMBLR_ counterparts.
func (c *Config) LoadFromEnv() error {
	var legacy legacyEnv
	if err := env.Parse(&legacy); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	if legacy.ClientID != "" {
		c.Tumblr.ClientID = legacy.ClientID
	}
	if legacy.ClientSecret != "" {
		c.Tumblr.ClientSecret = legacy.ClientSecret
	}
	if legacy.Code != "" {
		c.Tumblr.Code = legacy.Code
	}
	if legacy.RedirectURI != "" {
		c.Tumblr.RedirectURI = legacy.RedirectURI
	}

	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// DefaultLocations lists the config files searched when none is given, in order
func DefaultLocations() []string {
	home := os.Getenv("HOME")
	return []string{
		"tumblrsync.yaml",
		".tumblrsync.yaml",
		".tumblrsync.yml",
		filepath.Join(home, ".config", "tumblrsync", "config.yaml"),
		filepath.Join(home, ".tumblrsync.yaml"),
	}
}

func findConfigFile() string {
	for _, loc := range DefaultLocations() {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q validation", fieldPath(fe.Namespace()), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	if c.Credentials.Backend == "encrypted" && c.Credentials.Passphrase == "" {
		errs = append(errs, fmt.Errorf("encrypted credential backend requires %sCREDENTIALS_PASSPHRASE", EnvPrefix))
	}
	if c.Tumblr.Code != "" && c.Tumblr.RedirectURI == "" {
		errs = append(errs, errors.New("redirect_uri is required when an authorization code is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// fieldPath turns "Config.Request.MaxAttempts" into "Request.MaxAttempts"
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if folder, ok := flags["folder"].(string); ok && folder != "" {
		c.Backup.Folder = folder
	}
	if force, ok := flags["force"].(bool); ok && force {
		c.Backup.Force = true
	}
	if resume, ok := flags["resume"].(bool); ok && resume {
		c.Backup.Resume = true
	}
	if skip, ok := flags["skip-media"].(bool); ok && skip {
		c.Backup.SkipMedia = true
	}
	if limit, ok := flags["limit"].(int); ok && limit != 0 {
		c.Backup.PostLimit = limit
	}
	if blogs, ok := flags["blogs"].([]string); ok && len(blogs) > 0 {
		c.Backup.Blogs = blogs
	}
	if n, ok := flags["notify"].(bool); ok && n {
		c.Backup.Notify = true
	}
	if backend, ok := flags["credential-backend"].(string); ok && backend != "" {
		c.Credentials.Backend = backend
	}
	if code, ok := flags["code"].(string); ok && code != "" {
		c.Tumblr.Code = code
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Missing .env files are fine
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".tumblrsync.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
