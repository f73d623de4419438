package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mamiri/fsadmin/internal/config"
	"github.com/mamiri/fsadmin/internal/database"
	"github.com/mamiri/fsadmin/internal/identity"
	"github.com/mamiri/fsadmin/internal/inspector"
	"github.com/mamiri/fsadmin/internal/legacykey"
	"github.com/mamiri/fsadmin/internal/logging"
	"github.com/mamiri/fsadmin/internal/store"
	"github.com/mamiri/fsadmin/internal/tenantconfig"
	"github.com/spf13/cobra"
)

// opener connects to the store named by cfg. The returned func releases it.
type opener func(ctx context.Context, cfg *config.Config) (store.Store, func() error, error)

func openFirestore(ctx context.Context, cfg *config.Config) (store.Store, func() error, error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return db.Store, db.Close, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logging.Setup(os.Stderr, "fsadmin", cfg.Log.Level, cfg.Log.Format)

	if err := newRootCmd(cfg, os.Stdout, openFirestore).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config, out io.Writer, open opener) *cobra.Command {
	root := &cobra.Command{
		Use:          "fsadmin",
		Short:        "Firestore admin tasks: access checks, UID migration, tenant config",
		SilenceUsage: true,
	}
	root.SetOut(out)

	root.PersistentFlags().StringVar(&cfg.ProjectID, "project", cfg.ProjectID, "GCP project id (env GCP_PROJECT_ID)")
	root.PersistentFlags().StringVar(&cfg.DatabaseID, "database", cfg.DatabaseID, "Firestore database id (env FIRESTORE_DATABASE_ID)")
	root.PersistentFlags().StringVar(&cfg.CredentialsFile, "credentials", cfg.CredentialsFile, "service account key file (env GOOGLE_APPLICATION_CREDENTIALS)")

	// withStore opens the store for the duration of one command
	withStore := func(cmd *cobra.Command, fn func(ctx context.Context, s store.Store) error) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		s, closeFn, err := open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		defer closeFn()
		return fn(ctx, s)
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Report where a user record lives (read-only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Inspect.UserID == "" || cfg.Inspect.Email == "" {
				return fmt.Errorf("--uid and --email are required")
			}
			return withStore(cmd, func(ctx context.Context, s store.Store) error {
				report, err := inspector.New(s, slog.Default()).Inspect(ctx, cfg.Inspect.UserID, cfg.Inspect.Email)
				if err != nil {
					return err
				}
				report.Print(cmd.OutOrStdout())
				return nil
			})
		},
	}
	inspectCmd.Flags().StringVar(&cfg.Inspect.UserID, "uid", cfg.Inspect.UserID, "opaque user id (env INSPECT_USER_ID)")
	inspectCmd.Flags().StringVar(&cfg.Inspect.Email, "email", cfg.Inspect.Email, "user email (env INSPECT_EMAIL)")

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "List users still stored under legacy email keys (read-only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, s store.Store) error {
				report, err := inspector.New(s, slog.Default()).Audit(ctx)
				if err != nil {
					return err
				}
				report.Print(cmd.OutOrStdout())
				return nil
			})
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move a user record from its legacy email key to its UID",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Migrate.TargetUserID == "" || cfg.Migrate.Email == "" {
				return fmt.Errorf("--uid and --email are required")
			}
			mode, err := identity.ParseMode(cfg.Migrate.Mode)
			if err != nil {
				return err
			}
			return withStore(cmd, func(ctx context.Context, s store.Store) error {
				res, err := identity.New(s, slog.Default()).Migrate(ctx, cfg.Migrate.TargetUserID, cfg.Migrate.Email, identity.Options{
					Mode:   mode,
					DryRun: cfg.Migrate.DryRun,
				})
				if err != nil {
					return err
				}
				res.Print(cmd.OutOrStdout())
				return nil
			})
		},
	}
	migrateCmd.Flags().StringVar(&cfg.Migrate.TargetUserID, "uid", cfg.Migrate.TargetUserID, "target opaque user id (env MIGRATE_TARGET_USER_ID)")
	migrateCmd.Flags().StringVar(&cfg.Migrate.Email, "email", cfg.Migrate.Email, "email the legacy key was derived from (env MIGRATE_EMAIL)")
	migrateCmd.Flags().StringVar(&cfg.Migrate.Mode, "mode", cfg.Migrate.Mode, "transactional|sequential (env MIGRATE_MODE)")
	migrateCmd.Flags().BoolVar(&cfg.Migrate.DryRun, "dry-run", cfg.Migrate.DryRun, "read only, report what would change (env MIGRATE_DRY_RUN)")

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Enable the list-management modules for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, s store.Store) error {
				toggles := tenantconfig.DefaultListToggles()
				if err := tenantconfig.NewSeeder(s, slog.Default()).Seed(ctx, cfg.TenantID, toggles); err != nil {
					return err
				}
				tenantconfig.PrintSeeded(cmd.OutOrStdout(), cfg.TenantID, toggles)
				return nil
			})
		},
	}
	seedCmd.Flags().StringVar(&cfg.TenantID, "tenant", cfg.TenantID, "tenant id (env SEED_TENANT_ID)")

	showCmd := &cobra.Command{
		Use:   "show-config",
		Short: "Print a tenant's list configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, s store.Store) error {
				toggles, exists, err := tenantconfig.NewSeeder(s, slog.Default()).Show(ctx, cfg.TenantID)
				if err != nil {
					return err
				}
				tenantconfig.PrintCurrent(cmd.OutOrStdout(), cfg.TenantID, toggles, exists)
				return nil
			})
		},
	}
	showCmd.Flags().StringVar(&cfg.TenantID, "tenant", cfg.TenantID, "tenant id (env SEED_TENANT_ID)")

	keyCmd := &cobra.Command{
		Use:   "legacy-key",
		Short: "Convert between emails and legacy user document keys",
	}
	keyCmd.AddCommand(
		&cobra.Command{
			Use:   "encode <email>",
			Short: "Print every legacy key an email may be stored under",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				for _, c := range legacykey.Candidates(args[0]) {
					if c.Normalized {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t(normalized %s)\n", c.Key, c.Email)
						continue
					}
					fmt.Fprintln(cmd.OutOrStdout(), c.Key)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "decode <key>",
			Short: "Print the email a legacy key encodes",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				email, err := legacykey.Decode(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), email)
				return nil
			},
		},
	)

	root.AddCommand(inspectCmd, auditCmd, migrateCmd, seedCmd, showCmd, keyCmd)
	return root
}
