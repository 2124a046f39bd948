package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wellness/booking/internal/config"
	"github.com/wellness/booking/internal/domain/availability"
	"github.com/wellness/booking/internal/domain/booking"
	"github.com/wellness/booking/internal/domain/lifecycle"
	"github.com/wellness/booking/internal/platform/auth"
	"github.com/wellness/booking/internal/platform/bookingapi"
	"github.com/wellness/booking/internal/platform/db"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "booking-portal",
		Short: "Wellness booking portal backend",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(slotsCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the booking portal server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg))
		},
	}
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print bookable slots for a service",
		RunE: func(cmd *cobra.Command, args []string) error {
			serviceID, _ := cmd.Flags().GetString("service")
			specialistID, _ := cmd.Flags().GetString("specialist")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			duration, _ := cmd.Flags().GetInt("duration")
			token, _ := cmd.Flags().GetString("token")
			if serviceID == "" {
				return fmt.Errorf("--service is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := zerolog.Nop()
			window, err := cfg.Window()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			rng, err := parseRange(from, to, loc)
			if err != nil {
				return err
			}

			client := bookingapi.NewClient(cfg.BookingAPIURL, cfg.BookingAPITimeout, logger)
			catalog := bookingapi.NewCachedCatalog(client, cfg.CatalogCacheSize, cfg.CatalogCacheTTL, logger)
			resolver := availability.NewResolver(client, catalog, availability.Options{
				Window:   window,
				Step:     cfg.SlotStep(),
				Location: loc,
				Logger:   logger,
			})

			ctx := bookingapi.WithToken(context.Background(), token)
			res, err := resolver.Resolve(ctx, availability.Query{
				ServiceID:       serviceID,
				SpecialistID:    specialistID,
				Range:           rng,
				DurationMinutes: duration,
			})
			if err != nil {
				return fmt.Errorf("resolve slots: %w", err)
			}

			fmt.Printf("Slots for service %s (%s, window %s, step %s)\n", serviceID, loc, window, cfg.SlotStep())
			fmt.Printf("%-17s %-6s %s\n", "START", "END", "SPECIALIST")
			fmt.Println("----------------- ------ --------------------")
			for _, s := range res.Slots {
				who := s.SpecialistID
				if who == "" {
					who = "any"
				}
				fmt.Printf("%-17s %-6s %s\n", s.Start.In(loc).Format("2006-01-02 15:04"), s.End.In(loc).Format("15:04"), who)
			}
			fmt.Printf("%d slot(s)\n", res.Len())
			return nil
		},
	}
	cmd.Flags().String("service", "", "Service ID (required)")
	cmd.Flags().String("specialist", "", "Pin a specialist; empty means any")
	cmd.Flags().String("from", "", "First day, YYYY-MM-DD (default today)")
	cmd.Flags().String("to", "", "Last day, YYYY-MM-DD (default same as --from)")
	cmd.Flags().Int("duration", 0, "Override the service duration in minutes")
	cmd.Flags().String("token", "", "Bearer token forwarded to the booking API")
	return cmd
}

func parseRange(from, to string, loc *time.Location) (booking.DateRange, error) {
	start := time.Now().In(loc)
	if from != "" {
		d, err := time.ParseInLocation("2006-01-02", from, loc)
		if err != nil {
			return booking.DateRange{}, fmt.Errorf("invalid --from: %w", err)
		}
		start = d
	}
	end := start
	if to != "" {
		d, err := time.ParseInLocation("2006-01-02", to, loc)
		if err != nil {
			return booking.DateRange{}, fmt.Errorf("invalid --to: %w", err)
		}
		end = d
	}
	if end.Before(start) {
		return booking.DateRange{}, fmt.Errorf("--to is before --from")
	}
	return booking.DateRange{From: start, To: end}, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, db.Migrations).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, db.Migrations).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the status override audit log",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List admin overrides, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			appointmentID, _ := cmd.Flags().GetString("appointment")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required; without it overrides are only logged")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
			if err != nil {
				return err
			}
			defer pool.Close()

			entries, total, err := lifecycle.NewOverrideRepoPG(pool).List(ctx, appointmentID, limit, offset)
			if err != nil {
				return fmt.Errorf("list overrides: %w", err)
			}
			fmt.Printf("%-20s %-36s %-20s %-20s %-20s %s\n", "RECORDED AT", "APPOINTMENT", "ACTOR", "FROM", "TO", "NOTES")
			for _, e := range entries {
				fmt.Printf("%-20s %-36s %-20s %-20s %-20s %s\n",
					e.RecordedAt.Format("2006-01-02 15:04:05"), e.AppointmentID, e.ActorID,
					e.FromStatus, e.ToStatus, strings.ReplaceAll(e.Notes, "\n", " "))
			}
			fmt.Printf("showing %d of %d\n", len(entries), total)
			return nil
		},
	}
	listCmd.Flags().String("appointment", "", "Only overrides of this appointment")
	listCmd.Flags().Int("limit", 50, "Maximum entries to print")
	listCmd.Flags().Int("offset", 0, "Entries to skip")
	cmd.AddCommand(listCmd)
	return cmd
}

// tokenCmd signs a session token for local testing against a portal that
// shares AUTH_SIGNING_KEY. Production tokens come from the identity
// provider.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a session token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			user, _ := cmd.Flags().GetString("user")
			specialist, _ := cmd.Flags().GetString("specialist")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to sign tokens in production")
			}
			if cfg.AuthSigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is required")
			}
			sess := booking.Session{UserID: user, Role: booking.Role(role), SpecialistProfileID: specialist}
			if !sess.Role.Valid() || !sess.Authenticated() {
				return fmt.Errorf("--user and a signed-in --role (client, specialist, admin) are required")
			}

			tok, err := auth.SignSession(auth.JWTConfig{
				Issuer:     cfg.AuthIssuer,
				Audience:   cfg.AuthAudience,
				SigningKey: []byte(cfg.AuthSigningKey),
			}, sess, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().String("role", "client", "Session role")
	cmd.Flags().String("user", "", "User ID")
	cmd.Flags().String("specialist", "", "Specialist profile ID for specialist sessions")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}
