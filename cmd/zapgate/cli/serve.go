package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zapgate/zapgate/internal/auth"
	"github.com/zapgate/zapgate/internal/cache"
	"github.com/zapgate/zapgate/internal/provider"
	"github.com/zapgate/zapgate/internal/ratelimit"
	"github.com/zapgate/zapgate/internal/reconciler"
	"github.com/zapgate/zapgate/internal/server"
	"github.com/zapgate/zapgate/internal/usage"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Long:  "Start the HTTP server that fronts the provider instances for all tenants.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP listen port (overrides config)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP listen host (overrides config)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	logger := newLogger(cfg)

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	logger.Info("store opened", "driver", cfg.Database.Driver)

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret = "zapgate-dev-secret-change-me"
		logger.Warn("auth.jwt_secret not set, using development default")
	}

	counter := cache.NewMemoryCounter(time.Minute)
	defer counter.Stop()

	resolver := auth.NewResolver(st)
	sessions := auth.NewSessions(st, jwtSecret, parseDuration(cfg.Auth.JWTExpiry, time.Hour))
	limiter := ratelimit.New(counter)
	tracker := usage.NewTracker(st, logger, 1024)

	client := provider.NewClient()
	pool := provider.NewPool(cfg.Provider.Accounts, st)
	if len(cfg.Provider.Accounts) == 0 {
		logger.Warn("no provider accounts configured, connection provisioning will fail")
	}

	rc := reconciler.New(st, client, pool, logger)

	srv := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: parseDuration(cfg.Server.ShutdownTimeout, 30*time.Second),
		CORSOrigins:     cfg.Server.CORSOrigins,
		PublicRateLimit: cfg.Server.PublicRateLimit,
		WebhookSecret:   cfg.Auth.WebhookSecret,
		AuditExcluded:   cfg.Audit.ExcludedPaths,
		Version:         appVersion,
	}, server.Deps{
		Store:      st,
		Resolver:   resolver,
		Sessions:   sessions,
		Limiter:    limiter,
		Tracker:    tracker,
		Client:     client,
		Pool:       pool,
		Reconciler: rc,
	}, logger)

	err = srv.ListenAndServe()

	// Drain pending work before the store closes.
	logger.Info("draining usage queue and reconciler jobs")
	tracker.Shutdown()
	rc.Wait()

	return err
}
