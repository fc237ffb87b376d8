package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inkstreamlabs/inkstream/backend/internal/auth"
	"github.com/inkstreamlabs/inkstream/backend/internal/config"
	"github.com/inkstreamlabs/inkstream/backend/internal/database"
	"github.com/inkstreamlabs/inkstream/backend/internal/docsync"
	"github.com/inkstreamlabs/inkstream/backend/internal/logging"
	"github.com/inkstreamlabs/inkstream/backend/internal/presence"
	"github.com/inkstreamlabs/inkstream/backend/internal/ratelimit"
	"github.com/inkstreamlabs/inkstream/backend/internal/server"
	"github.com/inkstreamlabs/inkstream/backend/internal/threads"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "inkstream-api",
		Short: "Inkstream document sync backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Bearer token TTL in minutes")
	cmd.PersistentFlags().String("signing-secret", "", "Bearer token signing secret (overrides env)")
	cmd.PersistentFlags().Int("ratelimit-limit", defaults.GetInt("ratelimit.limit"), "Maximum update appends per window per user")
	cmd.PersistentFlags().Int("ratelimit-window-seconds", defaults.GetInt("ratelimit.window_seconds"), "Rate limit window in seconds")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "ratelimit.limit", "ratelimit-limit")
	bindFlag(cmd, "ratelimit.window_seconds", "ratelimit-window-seconds")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.AuthSigningSecret),
		Issuer:        appConfig.AuthIssuer,
		Audience:      appConfig.AuthAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	syncService, err := docsync.NewService(docsync.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: docsync.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	threadService, err := threads.NewService(threads.ServiceConfig{
		Database:    db,
		SyncService: syncService,
		Clock:       time.Now,
		IDProvider:  docsync.NewUUIDProvider(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	limiter, err := ratelimit.NewLimiter(ratelimit.Config{
		Capacity: appConfig.RateLimitCapacity,
		Limit:    appConfig.RateLimitLimit,
		Window:   appConfig.RateLimitWindow,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:  tokenManager,
		SyncService:   syncService,
		ThreadService: threadService,
		PresenceHub:   presence.NewHub(),
		Limiter:       limiter,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
