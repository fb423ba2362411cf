// Package ctl implements safepassctl, the operator tool for schema
// migrations, admin bootstrap and vault key generation.
package ctl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/safepass/internal/common"
	"github.com/dmitrijs2005/safepass/internal/cryptox"
	"github.com/dmitrijs2005/safepass/internal/logging"
	"github.com/dmitrijs2005/safepass/internal/server"
	"github.com/dmitrijs2005/safepass/internal/server/config"
	"github.com/dmitrijs2005/safepass/internal/server/models"
	"github.com/dmitrijs2005/safepass/internal/server/repositories/repomanager"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// adminCreator is the part of the identity service create-admin needs.
type adminCreator interface {
	Register(ctx context.Context, name, email, password string) (*models.PublicIdentity, string, error)
	PromoteToAdmin(ctx context.Context, email string) (*models.PublicIdentity, error)
}

// Seams for tests.
var (
	loadConfig     = config.LoadEnvConfig
	openDB         = repomanager.OpenPostgres
	newRepoManager = repomanager.NewPostgresRepositoryManager
	newIdentities  = func(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) (adminCreator, error) {
		svc, err := server.NewServices(db, m, cfg, logger)
		if err != nil {
			return nil, err
		}
		return svc.Identities, nil
	}
)

var (
	success = color.New(color.FgGreen).SprintFunc()
	warning = color.New(color.FgYellow).SprintFunc()
	hint    = color.New(color.FgCyan).SprintFunc()
)

// NewRootCmd builds the safepassctl command tree.
func NewRootCmd() *cobra.Command {
	var dsn string

	root := &cobra.Command{
		Use:           "safepassctl",
		Short:         "Operator tool for the SafePass server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN (env SAFEPASS_DATABASE_DSN)")

	// config is resolved per command so --dsn wins over the environment
	cfgFor := func() *config.Config {
		cfg := loadConfig()
		if dsn != "" {
			cfg.DatabaseDSN = dsn
		}
		return cfg
	}

	root.AddCommand(newMigrateCmd(cfgFor), newCreateAdminCmd(cfgFor), newGenKeyCmd())
	return root
}

func newMigrateCmd(cfgFor func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx, cfgFor().DatabaseDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := newRepoManager().RunMigrations(ctx, db); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), success("✓"), "migrations applied")
			return nil
		},
	}
}

func newCreateAdminCmd(cfgFor func() *config.Config) *cobra.Command {
	var email, name string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Register an identity and grant it the admin role",
		Long: `Registers a password identity and promotes it to admin. The password is
read from the terminal without echo. An already registered email is
promoted as is.

Example:
  safepassctl create-admin --email root@example.com --name Root`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cfg := cfgFor()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			db, err := openDB(ctx, cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			identities, err := newIdentities(db, newRepoManager(), cfg, logging.New("warn", "text"))
			if err != nil {
				return err
			}

			password, err := getNewPassword(out)
			if err != nil {
				return err
			}

			_, _, err = identities.Register(ctx, name, email, password)
			switch {
			case errors.Is(err, common.ErrorConflict):
				fmt.Fprintln(out, warning("!"), "identity already exists, promoting it")
			case err != nil:
				return err
			}

			user, err := identities.PromoteToAdmin(ctx, email)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, success("✓"), "admin ready:", user.Email, hint("("+user.ID+")"))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&name, "name", "", "admin display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newGenKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-key",
		Short: "Print a new base64 vault key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), cryptox.GenerateKey())
			fmt.Fprintln(cmd.ErrOrStderr(), hint("set it as SAFEPASS_VAULT_KEY; losing it makes every stored secret unreadable"))
			return nil
		},
	}
}
