package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tumblrsync/pkg/config"
	"tumblrsync/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage tumblrsync configuration files.

Configuration is loaded from, highest priority first:
  - Command line flags
  - Environment variables (TUMBLRSYNC_*, plus CLIENT_ID, CLIENT_SECRET, CODE, REDIRECT_URI)
  - .env files
  - Configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is created as 'tumblrsync.yaml' in the current directory unless
another path is given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after all sources are merged.

The client secret and authorization code are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

const exampleConfig = `# tumblrsync configuration file
#
# Every option can also be set through an environment variable prefixed
# with TUMBLRSYNC_, e.g. TUMBLRSYNC_TUMBLR_CLIENT_ID or TUMBLRSYNC_BACKUP_FOLDER.

tumblr:
  # From https://www.tumblr.com/oauth/apps
  client_id: ""
  client_secret: ""

  # Must match a redirect URL registered for the application
  redirect_uri: "http://localhost:8080/callback"

  # One-time authorization code for the first run (see 'tumblrsync auth url')
  code: ""

  api_base: "https://api.tumblr.com"
  user_agent: "TumblrSync/1.0.0"

request:
  # Attempts per request before giving up
  max_attempts: 5
  timeout: 10s
  # Minimum gap between the start of two requests
  min_interval: 2s
  # Wait after a failed attempt
  retry_delay: 5s

backup:
  folder: "./backup"
  # A blog stops after this many consecutive unchanged posts
  equal_posts_limit: 100
  force: false
  resume: false
  skip_media: false
  # Maximum posts per blog, -1 for all
  post_limit: -1
  # Only back up these blogs; empty means all of them
  blogs: []
  notify: false

credentials:
  # file, keyring or encrypted
  backend: "file"
  # Defaults to <backup folder>/token.json
  file: ""

logging:
  # debug, info, warn, error
  level: "info"
  # Optional log file, in addition to the console
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = "tumblrsync.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		return fmt.Errorf("%s already exists", configPath)
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Add your client_id, client_secret and redirect_uri")
	fmt.Println("2. Run 'tumblrsync auth url' and authorize the application")
	fmt.Println("3. Run 'tumblrsync auth login' with the code you received")
	fmt.Println("4. Start the backup with 'tumblrsync backup'")
	return nil
}

// maskedConfig returns a copy that is safe to print
func maskedConfig(cfg *config.Config) config.Config {
	shown := *cfg
	shown.Tumblr.ClientSecret = mask(cfg.Tumblr.ClientSecret)
	shown.Tumblr.Code = mask(cfg.Tumblr.Code)
	return shown
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) > 8:
		return s[:4] + "..." + s[len(s)-4:]
	default:
		return "***"
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	shown := maskedConfig(cfg)
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))
	ui.PrintInfo("Credential location", cfg.CredentialFile())
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	source := configFile
	if source == "" {
		source = "(defaults and environment)"
		for _, loc := range config.DefaultLocations() {
			if _, err := os.Stat(loc); err == nil {
				source = loc
				break
			}
		}
	}
	ui.PrintInfo("Validating configuration", source)

	cfg, err := loadConfig(nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err)
		return err
	}

	var warnings []string
	if cfg.Tumblr.RedirectURI == "" {
		warnings = append(warnings, "redirect_uri is not set, 'auth url' and 'auth login' will not work")
	}
	if err := os.MkdirAll(cfg.Backup.Folder, 0755); err != nil {
		return fmt.Errorf("cannot create backup folder: %w", err)
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return fmt.Errorf("cannot create log directory: %w", err)
		}
	}

	for _, w := range warnings {
		ui.PrintWarning(w)
	}
	ui.PrintSuccess("Configuration is valid")
	return nil
}
