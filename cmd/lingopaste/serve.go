package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"lingopaste/cfg"
	"lingopaste/pkg/secrets"
	"lingopaste/svc/api"
	"lingopaste/svc/cache"
	"lingopaste/svc/db"
	"lingopaste/svc/lim"
	"lingopaste/svc/provider"
	"lingopaste/svc/svc"
	"lingopaste/svc/util"
)

var (
	offline   bool
	pprofAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the paste API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&offline, "offline", false, "Use a canned provider instead of OpenAI (local development)")
	serveCmd.Flags().StringVar(&pprofAddr, "pprof", "", "Serve pprof on this address, e.g. :6060")
}
func serve() error {
	c, err := cfg.Load()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if offline && c.OpenAI.APIKey.Value() == "" {
		c.OpenAI.APIKey = cfg.NewSecret("offline")
	}
	if err := cfg.Validate(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().Msg("starting lingopaste API")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if c.OpenAI.SecretID != "" && c.OpenAI.APIKey.Value() == "" {
		src, err := secrets.NewSource(ctx)
		if err != nil {
			return errors.Wrap(err, "secret store")
		}
		if err := secrets.ResolveOpenAIKey(ctx, c, src); err != nil {
			return err
		}
	}

	sqlDB, err := db.NewSQLiteWithConfig(c.DatabasePath, c.DBMaxOpenConns, c.DBMaxIdleConns, c.DBQueryTimeout)
	if err != nil {
		return errors.Wrap(err, "initialize database")
	}
	defer sqlDB.Close()
	util.Info().Str("path", c.DatabasePath).Msg("database initialized")

	var rdb *db.Redis
	if c.RedisURL != "" {
		rdb, err = db.NewRedis(c.RedisURL, c)
		if err != nil {
			if c.Environment == "production" {
				return errors.New("redis required in production: " + util.RedactSecret(err.Error()))
			}
			util.Warn().Str("error", util.RedactSecret(err.Error())).Msg("redis unavailable (dev mode)")
		} else {
			util.Info().Msg("redis connected")
		}
	}
	if rdb != nil {
		defer rdb.Close()
	}

	lruCache, err := cache.NewLRU(c.LRUCacheSize, c.TranslationTTL)
	if err != nil {
		return errors.Wrap(err, "create LRU cache")
	}
	util.Info().Int("size", c.LRUCacheSize).Msg("LRU cache initialized")

	var prov provider.Provider
	if offline {
		prov = provider.NewMock("en")
		util.Warn().Msg("offline mode: translations are canned")
	} else {
		prov = provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:  c.OpenAI.APIKey.Value(),
			Model:   c.OpenAI.Model,
			BaseURL: c.OpenAI.BaseURL,
		})
		util.Info().Str("model", c.OpenAI.Model).Msg("openai provider initialized")
	}

	quota := lim.NewQuota(c.DailyPasteLimit, rdb, sqlDB)
	pasteSvc := svc.NewPaste(sqlDB, lruCache, rdb, prov, quota, c)

	limiter := lim.New(c.RateLimit.RPM, c.RateLimit.Burst, c.RateLimit.ConservativeLimit, rdb, c.TrustedProxies)
	defer limiter.Stop()
	util.Info().
		Int("rpm", c.RateLimit.RPM).
		Int("burst", c.RateLimit.Burst).
		Int("daily_paste_limit", c.DailyPasteLimit).
		Strs("trusted_proxies", c.TrustedProxies).
		Msg("rate limiter initialized")

	server := api.NewServer(c, pasteSvc, limiter, sqlDB, rdb)

	walCtx, stopWAL := context.WithCancel(ctx)
	walDone := make(chan struct{})
	go func() {
		defer close(walDone)
		db.StartWALMaintenance(walCtx, sqlDB.DB())
	}()
	util.Info().Msg("WAL maintenance worker started")

	if pprofAddr != "" {
		go func() {
			util.Info().Str("addr", pprofAddr).Msg("starting pprof server")
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				util.Warn().Err(err).Msg("pprof server failed")
			}
		}()
	}

	util.Info().Str("port", c.Port).Str("environment", c.Environment).Msg("server starting")
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			stopWAL()
			<-walDone
			pasteSvc.Shutdown()
			return errors.Wrap(err, "server failed")
		}
	}
	util.Info().Msg("shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		util.Error().Err(err).Msg("server shutdown error")
	}
	stopWAL()
	select {
	case <-walDone:
		util.Info().Msg("WAL maintenance stopped")
	case <-time.After(6 * time.Second):
		util.Warn().Msg("WAL maintenance did not stop gracefully")
	}
	pasteSvc.Shutdown()
	util.Info().Msg("shutdown complete")
	return nil
}
