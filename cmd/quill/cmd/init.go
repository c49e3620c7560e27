package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jmcleod/quill/config"
	"github.com/jmcleod/quill/content"
	"github.com/jmcleod/quill/internal/util"
	"github.com/jmcleod/quill/session"
)

const (
	defaultAdminUsername    = "admin"
	generatedPasswordLength = 16
	defaultEnvFile          = ".env"
)

var (
	initUsername string
	initEmail    string
	initPassword string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate AUTH_SECRET and create or repair the admin account",
	Long: `Writes a random AUTH_SECRET to the env file when none is configured, then
makes sure the admin account exists, is active and has the admin role.
Without --password a random password is generated and printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path := envFile
		if path == "" {
			path = defaultEnvFile
		}
		return runInit(cmd.Context(), cmd.OutOrStdout(), cfg, path, initUsername, initEmail, initPassword)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initUsername, "username", defaultAdminUsername, "Admin username")
	initCmd.Flags().StringVar(&initEmail, "email", "", "Admin email address")
	initCmd.Flags().StringVar(&initPassword, "password", "", "Admin password (generated when empty)")
}

func runInit(ctx context.Context, out io.Writer, cfg *config.Config, envPath, username, email, password string) error {
	if cfg.Storage == config.StorageMemory {
		return fmt.Errorf("init needs persistent storage; QUILL_STORAGE is %q", cfg.Storage)
	}

	if cfg.AuthSecret == "" {
		secret, err := util.RandomSecret(secretBytes)
		if err != nil {
			return err
		}
		if err := config.WriteSecret(envPath, secret); err != nil {
			return err
		}
		cfg.AuthSecret = secret
		fmt.Fprintf(out, "Wrote AUTH_SECRET to %s\n", envPath)
	} else if err := session.ValidateSecret(cfg.AuthSecret, cfg.Production()); err != nil {
		return fmt.Errorf("invalid AUTH_SECRET: %w", err)
	}

	generated := password == ""
	if generated {
		var err error
		if password, err = util.RandomChars(generatedPasswordLength); err != nil {
			return err
		}
	}

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	user, created, err := content.NewStore(repo).EnsureAdmin(ctx, username, email, password)
	if err != nil {
		return fmt.Errorf("ensuring admin account: %w", err)
	}
	if created {
		fmt.Fprintf(out, "Created admin %q\n", user.Username)
	} else {
		fmt.Fprintf(out, "Updated admin %q\n", user.Username)
	}
	if generated {
		fmt.Fprintf(out, "Password: %s\n", password)
	}
	return nil
}
