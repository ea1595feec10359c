package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"leafreader/internal/app"
	"leafreader/internal/config"
	"leafreader/internal/ratelimit"
	"leafreader/internal/server"
	"leafreader/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	var authLimiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		authLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "leafreader:ratelimit",
			cfg.AuthRateLimit, config.Duration(cfg.AuthRateWindow))
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:          cfg.DatabaseURL,
		MinioEndpoint:        cfg.MinioEndpoint,
		MinioAccessKey:       cfg.MinioAccessKey,
		MinioSecretKey:       cfg.MinioSecretKey,
		MinioBucket:          cfg.MinioBucket,
		MinioUseSSL:          cfg.MinioUseSSL,
		JWTSecret:            cfg.JWTSecret,
		UserTokenTTL:         config.Duration(cfg.UserTokenTTL),
		AdminTokenTTL:        config.Duration(cfg.AdminTokenTTL),
		MaxUploadBytes:       cfg.MaxUploadBytes,
		HeartbeatMaxInterval: config.Duration(cfg.HeartbeatMaxInterval),
		ContentDefaultLength: int64(cfg.ContentDefaultLength),
		ContentMinLength:     int64(cfg.ContentMinLength),
		ContentMaxLength:     int64(cfg.ContentMaxLength),
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		AuthLimiter:    authLimiter,
		TrustedProxies: trustedProxies,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("reader server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
