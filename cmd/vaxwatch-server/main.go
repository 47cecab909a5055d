package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vaxwatch/vaxwatch/internal/config"
	"github.com/vaxwatch/vaxwatch/internal/domain/snapshot"
	"github.com/vaxwatch/vaxwatch/internal/platform/auth"
	"github.com/vaxwatch/vaxwatch/internal/platform/db"
	"github.com/vaxwatch/vaxwatch/internal/platform/middleware"
	"github.com/vaxwatch/vaxwatch/internal/platform/notification"
	"github.com/vaxwatch/vaxwatch/internal/platform/objstore"
	"github.com/vaxwatch/vaxwatch/internal/platform/provider"
	"github.com/vaxwatch/vaxwatch/internal/platform/scheduler"
	"github.com/vaxwatch/vaxwatch/internal/platform/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vaxwatch-server",
		Short: "Appointment availability scraper and dashboard API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scraper and dashboard API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func scrapeCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one scrape cycle and print availability to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(from, to)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "window start (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&to, "to", "", "window end (YYYY-MM-DD, default start+horizon)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the snapshot database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("migrate requires DATABASE_URL")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool); err != nil {
				return err
			}
			fmt.Println("snapshot schema applied")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AdminTokenSecret == "" {
				return fmt.Errorf("token requires ADMIN_TOKEN_SECRET")
			}
			token, err := auth.IssueToken([]byte(cfg.AdminTokenSecret), subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newLogger(dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func newSource(cfg *config.Config, logger zerolog.Logger) provider.Source {
	if cfg.EmulateDir != "" {
		logger.Warn().Str("dir", cfg.EmulateDir).Msg("using file-backed provider source")
		return provider.NewFileSource(cfg.EmulateDir)
	}
	return provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderTimeout, logger)
}

// wiring bundles everything the serve and scrape commands share.
type wiring struct {
	svc      *snapshot.Service
	repo     snapshot.Repository
	notifier *notification.Notifier
	cleanup  func()
}

func buildService(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics *telemetry.Provider, withAlerts bool) (*wiring, error) {
	cleanup := func() {}

	var repo snapshot.Repository
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		repo = snapshot.NewPGRepo(pool)
		cleanup = pool.Close
	} else {
		logger.Warn().Msg("no DATABASE_URL configured, snapshots are kept in memory")
		repo = snapshot.NewMemoryRepo()
	}

	store, err := objstore.NewFileStore(cfg.ArtifactDir)
	if err != nil {
		cleanup()
		return nil, err
	}

	var notifier *notification.Notifier
	if withAlerts && cfg.AlertsEnabled {
		sender := &notification.SMTPSender{Addr: cfg.SMTPAddr, From: cfg.AlertFrom}
		notifier = notification.NewNotifier(sender, notification.NewTemplateEngine())
	}

	remap, err := cfg.ParsedStaffRemap()
	if err != nil {
		cleanup()
		return nil, err
	}

	svc := snapshot.NewService(newSource(cfg, logger), repo, store, notifier, metrics, snapshot.ServiceConfig{
		HorizonDays:    cfg.HorizonDays,
		CutoffGrace:    cfg.CutoffGrace,
		SlotLength:     cfg.SlotLength,
		PublicOnly:     cfg.PublicOnly,
		StaffRemap:     remap,
		AlertThreshold: cfg.AlertThreshold,
		AlertRecipient: cfg.AlertTo,
		ProviderName:   cfg.ProviderName,
		BookingURL:     cfg.BookingURL,
		DashboardURL:   cfg.DashboardURL,
	}, logger)

	return &wiring{svc: svc, repo: repo, notifier: notifier, cleanup: cleanup}, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.IsDev())
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	metrics := telemetry.NewProvider()

	w, err := buildService(ctx, cfg, logger, metrics, true)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build scrape service")
	}
	defer w.cleanup()

	// Periodic jobs
	sched := scheduler.New(logger)
	if err := sched.Add("scrape", cfg.ScrapeSchedule, func(ctx context.Context) error {
		_, err := w.svc.Run(ctx)
		return err
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to register scrape job")
	}
	if err := sched.Add("config-refresh", cfg.ConfigRefreshSchedule, w.svc.RefreshConfiguration); err != nil {
		logger.Fatal().Err(err).Msg("failed to register config-refresh job")
	}
	sched.Start()

	// HTTP surface
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", metrics.PrometheusHandler())

	adminGuard := auth.AdminMiddleware([]byte(cfg.AdminTokenSecret))
	if cfg.IsDev() && cfg.AdminTokenSecret == "" {
		logger.Warn().Msg("admin endpoints are unauthenticated (development mode)")
		adminGuard = auth.DevSkipMiddleware()
	}

	api := e.Group("/api/v1")
	admin := e.Group("/admin", adminGuard)

	snapHandler := snapshot.NewHandler(w.svc, w.repo)
	snapHandler.RegisterRoutes(api, admin)

	if w.notifier != nil {
		notification.NewHandler(w.notifier).RegisterRoutes(admin)
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sched.Stop(shutdownCtx)
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runScrape(fromFlag, toFlag string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.IsDev())
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	w, err := buildService(ctx, cfg, logger, nil, false)
	if err != nil {
		return err
	}
	defer w.cleanup()

	now := time.Now().UTC()
	from := now
	if fromFlag != "" {
		if from, err = time.Parse("2006-01-02", fromFlag); err != nil {
			return fmt.Errorf("bad --from: %w", err)
		}
	}
	to := from.AddDate(0, 0, cfg.HorizonDays)
	if toFlag != "" {
		if to, err = time.Parse("2006-01-02", toFlag); err != nil {
			return fmt.Errorf("bad --to: %w", err)
		}
	}

	snap, err := w.svc.RunWindow(ctx, from, to)
	if err != nil {
		return err
	}

	printSnapshot(snap)
	return nil
}

// printSnapshot writes per-location positive day availability to stdout.
func printSnapshot(snap *snapshot.Snapshot) {
	for _, loc := range snap.Locations {
		if len(loc.Availability) == 0 {
			continue
		}
		fmt.Printf("%s:\n", loc.LocationName)

		buckets := make([]snapshot.Bucket, len(loc.Availability))
		copy(buckets, loc.Availability)
		sort.Slice(buckets, func(i, j int) bool { return buckets[i].Timestamp.Before(buckets[j].Timestamp) })
		for _, b := range buckets {
			fmt.Printf("\t%s - %d available\n", b.Timestamp.Format("2006-01-02 15:04:05Z"), b.Count)
		}
	}
}
