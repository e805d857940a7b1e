package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-credentials/app/repository"
	"github.com/vibast-solutions/ms-go-credentials/app/service"
	"github.com/vibast-solutions/ms-go-credentials/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"
)

var resetTokensCmd = &cobra.Command{
	Use:   "reset-tokens",
	Short: "Manage password reset tokens",
}

var purgeOlderThan time.Duration

var resetTokensPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete reset tokens that expired or were consumed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		resets, db, err := newResetTokenManagerForCommands()
		if err != nil {
			return err
		}
		defer db.Close()

		if purgeOlderThan < 0 {
			return errors.New("--older-than must not be negative")
		}

		count, err := resets.PurgeExpired(context.Background(), time.Now().Add(-purgeOlderThan))
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "purged %d reset token(s)\n", count)
		return nil
	},
}

var resetTokensIssueCmd = &cobra.Command{
	Use:   "issue <email>",
	Short: "Issue a password reset token for a user and print the reset link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		db, err := openDB(cfg.DSN())
		if err != nil {
			return err
		}
		defer db.Close()

		return issueResetToken(cmd, cfg, db, args[0])
	},
}

func init() {
	resetTokensPurgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 0, "only purge tokens that expired or were consumed at least this long ago")
	resetTokensCmd.AddCommand(resetTokensPurgeCmd)
	resetTokensCmd.AddCommand(resetTokensIssueCmd)
	rootCmd.AddCommand(resetTokensCmd)
}

func issueResetToken(cmd *cobra.Command, cfg *config.Config, db repository.DBTX, email string) error {
	ctx := context.Background()
	user, err := repository.NewUserRepository(db).FindByCanonicalEmail(ctx, service.CanonicalizeEmail(email))
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("no user with email %q", email)
	}

	resets := service.NewResetTokenManager(repository.NewResetTokenRepository(db), cfg.Reset.TokenTTL)
	token, err := resets.Issue(ctx, user.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "user_id: %d\n", user.ID)
	fmt.Fprintf(out, "reset_url: %s\n", service.ResetURL(cfg.Reset.URLBase, token))
	fmt.Fprintf(out, "expires_at: %s\n", time.Now().Add(cfg.Reset.TokenTTL).Format(time.RFC3339))
	return nil
}

func newResetTokenManagerForCommands() (*service.ResetTokenManager, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	db, err := openDB(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	return service.NewResetTokenManager(repository.NewResetTokenRepository(db), cfg.Reset.TokenTTL), db, nil
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
