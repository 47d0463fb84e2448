package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/actor"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "schedctl",
		Short: "Operator tooling for the clinic scheduling engine",
	}
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(overdueCmd())
	rootCmd.AddCommand(statisticsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type session struct {
	cfg   config.Config
	log   zerolog.Logger
	pool  *pgxpool.Pool
	close func()
}

func connect(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "schedctl").Logger()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, log: logger, pool: pool, close: pool.Close}, nil
}

// service builds an engine without an event stream; CLI reads never emit.
func (r *session) service() *appointment.Service {
	return appointment.NewService(
		appointment.NewPgRepository(r.pool),
		actor.NewPgDirectory(r.pool),
		redisclient.NopPublisher{},
		r.cfg,
		r.log,
	)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			n, err := db.NewMigrator(rt.pool).Up(cmd.Context())
			if err != nil {
				return err
			}
			rt.log.Info().Int("applied", n).Msg("migrations complete")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			pending, err := db.NewMigrator(rt.pool).Pending(cmd.Context())
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, m := range pending {
				fmt.Fprintf(cmd.OutOrStdout(), "pending  %04d  %s\n", m.Version, m.Name)
			}
			return nil
		},
	})

	return cmd
}

func overdueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "List scheduled appointments whose day has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("as-of")
			var asOf time.Time
			if raw != "" {
				d, err := schedule.ParseDate(raw)
				if err != nil {
					return err
				}
				asOf = d
			}

			rt, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			appts, err := rt.service().Overdue(cmd.Context(), asOf)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, a := range appts {
				fmt.Fprintf(out, "%s  %s  %s  doctor=%s  patient=%s\n",
					a.ID, schedule.FormatDate(a.Date), a.TimeSlot, a.DoctorID, a.PatientID)
			}
			fmt.Fprintf(out, "%d overdue\n", len(appts))
			return nil
		},
	}
	cmd.Flags().String("as-of", "", "Reference date YYYY-MM-DD (default today)")
	return cmd
}

func statisticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statistics",
		Short: "Summarise appointment outcomes for a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			period, _ := cmd.Flags().GetString("period")

			rt, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			st, err := rt.service().Statistics(cmd.Context(), appointment.Period(period), time.Time{})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s .. %s\n", st.Period, schedule.FormatDate(st.From), schedule.FormatDate(st.To))
			for _, s := range appointment.AllStatuses {
				fmt.Fprintf(out, "  %-12s %d\n", s, st.ByStatus[s])
			}
			fmt.Fprintf(out, "  total        %d\n", st.Total)
			fmt.Fprintf(out, "  completion   %.1f%%\n", st.CompletionRate)
			fmt.Fprintf(out, "  no-show      %.1f%%\n", st.NoShowRate)
			return nil
		},
	}
	cmd.Flags().String("period", "month", "One of day, week, month, year")
	return cmd
}
