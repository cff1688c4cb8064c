package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"curbenergy/auth"
	"curbenergy/curb"
	"curbenergy/internal/config"
)

// passwordEnvKey lets scripts supply the password without a prompt.
const passwordEnvKey = "CURB_PASSWORD"

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "authenticate with username/password and store the refresh token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "account username (overrides auth.username)",
			},
		},
		Action: loginAction,
	}
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	username := cmd.String("username")
	if username == "" {
		username = cfg.Auth.Username
	}
	if username == "" {
		return fmt.Errorf("username required (--username flag or auth.username config)")
	}

	password, err := resolvePassword()
	if err != nil {
		return err
	}

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	manager, err := auth.NewTokenManager(curb.TokenURL(cfg.API.BaseURL), auth.Credentials{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		Username:     username,
		Password:     password,
	}, auth.WithTokenStore(store))
	if err != nil {
		return err
	}

	client := curb.New(manager, curb.WithBaseURL(cfg.API.BaseURL))
	defer client.Close()

	if err := client.Login(ctx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	slog.InfoContext(ctx, "login successful, refresh token stored", "storage", string(cfg.Auth.Storage))
	return nil
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "discard the stored refresh token",
		Action: logoutAction,
	}
}

func logoutAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	if err := store.Delete(ctx); err != nil {
		return fmt.Errorf("failed to discard refresh token: %w", err)
	}

	slog.InfoContext(ctx, "logged out")
	return nil
}

// resolvePassword takes the password from CURB_PASSWORD or prompts on the
// terminal. The prompt goes to stderr so stdout stays clean.
func resolvePassword() (string, error) {
	if password := os.Getenv(passwordEnvKey); password != "" {
		return password, nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no terminal for password prompt: set %s", passwordEnvKey)
	}

	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	password := strings.TrimSpace(string(raw))
	if password == "" {
		return "", fmt.Errorf("empty password")
	}
	return password, nil
}

// newClient builds an API client backed by the stored refresh token.
func newClient(ctx context.Context, cfg *config.Config) (*curb.Client, error) {
	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	refreshToken, err := store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("no stored refresh token (run `curbctl login` first): %w", err)
	}

	manager, err := auth.NewTokenManager(curb.TokenURL(cfg.API.BaseURL), auth.Credentials{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		RefreshToken: refreshToken,
	}, auth.WithTokenStore(store))
	if err != nil {
		return nil, err
	}

	return curb.New(manager, curb.WithBaseURL(cfg.API.BaseURL)), nil
}
