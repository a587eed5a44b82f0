// Command pharmacyctl runs operator tasks against the pharmacy database.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/medflow/pharmacy-backend/migrations"
	"github.com/medflow/pharmacy-backend/pkg/config"
	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

const serviceName = "pharmacy-service"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "pharmacyctl",
		Short:        "Operator tasks for the pharmacy batch inventory",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(scanExpiryCmd())
	rootCmd.AddCommand(classifyCmd())
	return rootCmd
}

// env bundles what the database-backed commands need
type env struct {
	cfg *config.Config
	log *logger.Logger
	db  *database.DB
}

func connect() (*env, error) {
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	log := logger.New("pharmacyctl", cfg.Server.Environment)
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, db: db}, nil
}

func withMigrator(fn func(*database.Migrator, *cobra.Command) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		e, err := connect()
		if err != nil {
			return err
		}
		defer e.db.Close()

		m, err := database.NewMigrator(e.db.DB.DB, migrations.FS)
		if err != nil {
			return err
		}
		defer m.Close()

		if err := fn(m, cmd); err != nil {
			return err
		}
		return printVersion(cmd, m)
	}
}

func printVersion(cmd *cobra.Command, m *database.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", version, dirty)
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: withMigrator(func(m *database.Migrator, _ *cobra.Command) error {
			return m.Up()
		}),
	})

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: withMigrator(func(m *database.Migrator, cmd *cobra.Command) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return m.Down(steps)
		}),
	}
	downCmd.Flags().Int("steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(downCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version after fixing a failed migration by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("version must be an integer: %w", err)
			}
			return withMigrator(func(m *database.Migrator, _ *cobra.Command) error {
				return m.Force(version)
			})(cmd, args)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: withMigrator(func(*database.Migrator, *cobra.Command) error {
			return nil
		}),
	})

	return cmd
}

func scanExpiryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan-expiry",
		Short: "Raise expiry alerts once, outside the service scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			defer e.db.Close()

			days, _ := cmd.Flags().GetInt("days")
			if days < 1 {
				days = e.cfg.Pharmacy.ExpiryWarningDays
			}
			warehouse, _ := cmd.Flags().GetString("warehouse")

			scanner := service.NewExpiryScanner(
				repository.NewBatchRepository(e.db),
				repository.NewAlertRepository(e.db),
				nil, nil, days,
				func() time.Time { return time.Now().UTC() },
				e.log,
			)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			var res service.ScanResult
			if warehouse != "" {
				res, err = scanner.ScanWarehouse(ctx, warehouse)
			} else {
				res, err = scanner.ScanAll(ctx)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "warehouses=%d scanned=%d alerts_created=%d\n",
				res.Warehouses, res.Scanned, res.Created)
			return nil
		},
	}
	cmd.Flags().String("warehouse", "", "Only scan this warehouse")
	cmd.Flags().Int("days", 0, "Warning window in days (defaults to MEDFLOW_PHARMACY_EXPIRY_WARNING_DAYS)")
	return cmd
}

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify an expiry date the way allocation and alerts do",
		RunE: func(cmd *cobra.Command, _ []string) error {
			expiry, err := parseDate(cmd, "expiry")
			if err != nil {
				return err
			}
			asOf := time.Now().UTC()
			if raw, _ := cmd.Flags().GetString("as-of"); raw != "" {
				if asOf, err = parseDate(cmd, "as-of"); err != nil {
					return err
				}
			}

			c := domain.Classify(expiry, asOf)
			fmt.Fprintf(cmd.OutOrStdout(), "status=%s days_remaining=%d allocatable=%t\n",
				c.Status, c.DaysRemaining, !domain.IsExpired(domain.Batch{ExpiryDate: expiry}, asOf))
			return nil
		},
	}
	cmd.Flags().String("expiry", "", "Expiry date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().String("as-of", "", "Reference time (defaults to now)")
	_ = cmd.MarkFlagRequired("expiry")
	return cmd
}

func parseDate(cmd *cobra.Command, flag string) (time.Time, error) {
	raw, _ := cmd.Flags().GetString(flag)
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be YYYY-MM-DD or RFC 3339: %w", flag, err)
	}
	return t, nil
}
