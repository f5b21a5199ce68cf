package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Domenick1991/teleconsult/config"
	"github.com/Domenick1991/teleconsult/internal/bootstrap"
	"github.com/Domenick1991/teleconsult/internal/database"
	"github.com/Domenick1991/teleconsult/internal/domain"
	"github.com/Domenick1991/teleconsult/internal/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "consultctl",
		Short:        "Operations tool for the consultation scheduler",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", envOr("CONFIG_PATH", "config.yaml"), "Path to the YAML config file")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(slotsCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(holdsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// connect loads the config named by --config and opens a pool.
func connect(cmd *cobra.Command) (*config.Config, *pgxpool.Pool, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	pool, err := database.NewPool(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			_, pool, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := database.NewMigrator(pool, dir).Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			_, pool, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := database.NewMigrator(pool, dir).Status(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED AT")
			for _, s := range statuses {
				applied := "pending"
				if s.AppliedAt != nil {
					applied = s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%03d\t%s\t%s\n", s.Version, s.Name, applied)
			}
			return w.Flush()
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print the bookable slots for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("date")
			date, err := domain.ParseDate(raw)
			if err != nil {
				return err
			}

			cfg, pool, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			services, err := bootstrap.NewServices(cfg, pool, nil, nil, zap.NewNop())
			if err != nil {
				return err
			}
			slots, err := services.Availability.ListAvailableSlots(cmd.Context(), date)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tZONE\tUTC\tPROVIDERS")
			for _, s := range slots {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Time, s.ZoneAbbrev, s.UTC.Format(time.RFC3339), strings.Join(s.ProviderIDs, ","))
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("date", time.Now().Format("2006-01-02"), "Date to list (YYYY-MM-DD)")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire lapsed pending bookings and purge expired reservations once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pool, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			zl, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer zl.Sync()

			services, err := bootstrap.NewServices(cfg, pool, nil, nil, zl)
			if err != nil {
				return err
			}

			expired, err := services.Bookings.ExpirePendingBookings(cmd.Context())
			if err != nil {
				return err
			}
			purged, err := services.Reservations.PurgeExpired(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Expired %d booking(s), purged %d reservation(s).\n", len(expired), purged)
			return nil
		},
	}
}

func holdsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "holds",
		Short: "Print the reservations still holding a slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pool, err := connect(cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			services, err := bootstrap.NewServices(cfg, pool, nil, nil, zap.NewNop())
			if err != nil {
				return err
			}
			holds, err := services.Reservations.ListActive(cmd.Context(), time.Now())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPROVIDER\tREQUESTER\tSTARTS\tEXPIRES")
			for _, r := range holds {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.ProviderID, r.RequesterID,
					r.StartsAt.Format(time.RFC3339), r.ExpiresAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}
