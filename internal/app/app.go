// Package app holds the core reading-service logic behind the HTTP layer:
// book ingestion, content windows, heartbeat sync, and account management.
package app

import (
	"fmt"
	"time"

	"leafreader/pkg/auth"
	"leafreader/pkg/chapter"
	"leafreader/pkg/storage"
	"leafreader/pkg/store"
	"leafreader/pkg/textstore"
)

// Config holds runtime configuration for the core application.
type Config struct {
	Store   store.Store
	Objects storage.ObjectStore

	DatabaseURL    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	JWTSecret     string
	UserTokenTTL  time.Duration
	AdminTokenTTL time.Duration

	MaxUploadBytes       int64
	HeartbeatMaxInterval time.Duration
	ContentDefaultLength int64
	ContentMinLength     int64
	ContentMaxLength     int64
}

// App is the core application service wiring storage and domain logic.
type App struct {
	store   store.Store
	objects storage.ObjectStore
	texts   *textstore.Store
	rules   []chapter.Rule
	tokens  *auth.TokenManager

	maxUploadBytes       int64
	heartbeatMaxInterval time.Duration
	contentDefaultLength int64
	contentMinLength     int64
	contentMaxLength     int64

	now func() time.Time
}

// New constructs the application with database-backed metadata storage and
// object-backed text storage.
func New(cfg Config) (*App, error) {
	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
	}
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.UserTokenTTL, cfg.AdminTokenTTL)
	if err != nil {
		return nil, err
	}

	a := &App{
		store:                dataStore,
		objects:              objects,
		texts:                textstore.New(objects),
		rules:                chapter.DefaultRules(),
		tokens:               tokens,
		maxUploadBytes:       cfg.MaxUploadBytes,
		heartbeatMaxInterval: cfg.HeartbeatMaxInterval,
		contentDefaultLength: cfg.ContentDefaultLength,
		contentMinLength:     cfg.ContentMinLength,
		contentMaxLength:     cfg.ContentMaxLength,
		now:                  func() time.Time { return time.Now().UTC() },
	}
	if a.maxUploadBytes <= 0 {
		a.maxUploadBytes = 10 << 20
	}
	if a.heartbeatMaxInterval <= 0 {
		a.heartbeatMaxInterval = 30 * time.Second
	}
	if a.contentDefaultLength <= 0 {
		a.contentDefaultLength = 4000
	}
	if a.contentMinLength <= 0 {
		a.contentMinLength = 100
	}
	if a.contentMaxLength <= 0 {
		a.contentMaxLength = 10000
	}
	return a, nil
}

// Tokens exposes the token manager for the HTTP auth middleware.
func (a *App) Tokens() *auth.TokenManager {
	return a.tokens
}
