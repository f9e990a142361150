package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tumblrsync/pkg/auth"
	"tumblrsync/pkg/logger"
	"tumblrsync/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Tumblr OAuth credential",
	Long: `Manage the OAuth2 credential used to call the Tumblr API.

The credential is stored using the configured backend:
  - file: token.json in the backup folder (default)
  - keyring: the system keychain
  - encrypted: AES-GCM encrypted file, passphrase from TUMBLRSYNC_CREDENTIALS_PASSPHRASE

Never share the stored credential!`,
}

var authURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the URL that grants this tool access",
	Args:  cobra.NoArgs,
	RunE:  runAuthURL,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange an authorization code for a credential",
	Long: `Exchange an authorization code for a credential and store it.

Without --code the code is read from the terminal without echo.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored credential",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the stored credential now",
	Args:  cobra.NoArgs,
	RunE:  runAuthRefresh,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete the stored credential",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogout,
}

var loginCode string

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authURLCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRefreshCmd)
	authCmd.AddCommand(authLogoutCmd)

	authLoginCmd.Flags().StringVar(&loginCode, "code", "", "authorization code")
}

func loadApp() (*app, error) {
	cfg, err := loadConfig(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return newApp(cfg, logger.GetLogger())
}

func runAuthURL(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if a.cfg.Tumblr.RedirectURI == "" {
		return errors.New("redirect_uri must be configured before authorizing")
	}

	authURL := a.tokens.AuthCodeURL(uuid.NewString())
	auth.ShowAppRegistrationGuide(cmd.OutOrStdout(), authURL)
	fmt.Fprintln(cmd.OutOrStdout(), authURL)
	return nil
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	code := strings.TrimSpace(loginCode)
	if code == "" {
		code = a.cfg.Tumblr.Code
	}
	if code == "" {
		fmt.Print("Authorization code: ")
		code, err = readSecret()
		if err != nil {
			return fmt.Errorf("failed to read authorization code: %w", err)
		}
	}
	if code == "" {
		return errors.New("an authorization code is required")
	}

	cred, err := a.tokens.Login(cmd.Context(), code)
	if err != nil {
		return err
	}

	ui.PrintSuccess("Credential stored in " + a.store.Location())
	ui.PrintInfo("Expires", cred.ExpiresAt().Local().Format(time.RFC1123))
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	cred, err := a.store.Load()
	if errors.Is(err, auth.ErrCredentialNotFound) {
		ui.PrintWarning("No credential stored in " + a.store.Location())
		fmt.Println("\nRun 'tumblrsync auth url' to start the authorization.")
		return nil
	}
	if err != nil {
		return err
	}

	shown := auth.Sanitize(cred)
	ui.PrintInfo("Location", a.store.Location())
	ui.PrintInfo("Access token", shown.AccessToken)
	ui.PrintInfo("Refresh token", shown.RefreshToken)
	ui.PrintInfo("Scope", cred.Scope)
	ui.PrintInfo("Expires", cred.ExpiresAt().Local().Format(time.RFC1123))
	if cred.Stale(time.Now()) {
		ui.PrintWarning("The credential is stale and will be refreshed on the next request")
	}
	return nil
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	cred, err := a.tokens.Refresh(cmd.Context())
	if err != nil {
		return err
	}
	ui.PrintSuccess("Credential refreshed")
	ui.PrintInfo("Expires", cred.ExpiresAt().Local().Format(time.RFC1123))
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	fmt.Printf("Delete the credential in %s? (y/N): ", a.store.Location())
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
		return nil
	}

	if err := a.store.Delete(); err != nil {
		return err
	}
	ui.PrintSuccess("Credential deleted")
	return nil
}

// readSecret reads a line from stdin without echoing when it is a terminal
func readSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
