package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseURL"`
	LogLevel    string `yaml:"logLevel"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	JWTSecret     string `yaml:"jwtSecret"`
	UserTokenTTL  string `yaml:"userTokenTTL"`
	AdminTokenTTL string `yaml:"adminTokenTTL"`

	MaxUploadBytes       int64  `yaml:"maxUploadBytes"`
	HeartbeatMaxInterval string `yaml:"heartbeatMaxInterval"`
	ContentDefaultLength int    `yaml:"contentDefaultLength"`
	ContentMinLength     int    `yaml:"contentMinLength"`
	ContentMaxLength     int    `yaml:"contentMaxLength"`

	AuthRateLimit  int      `yaml:"authRateLimit"`
	AuthRateWindow string   `yaml:"authRateWindow"`
	TrustedProxies []string `yaml:"trustedProxies"`
}

// Load reads config from path (defaults to config.yaml) and applies
// environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("READER_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("READER_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("READER_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.UserTokenTTL == "" {
		cfg.UserTokenTTL = "720h"
	}
	if cfg.AdminTokenTTL == "" {
		cfg.AdminTokenTTL = "168h"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.HeartbeatMaxInterval == "" {
		cfg.HeartbeatMaxInterval = "30s"
	}
	if cfg.ContentDefaultLength <= 0 {
		cfg.ContentDefaultLength = 4000
	}
	if cfg.ContentMinLength <= 0 {
		cfg.ContentMinLength = 100
	}
	if cfg.ContentMaxLength <= 0 {
		cfg.ContentMaxLength = 10000
	}
	if cfg.AuthRateLimit <= 0 {
		cfg.AuthRateLimit = 20
	}
	if cfg.AuthRateWindow == "" {
		cfg.AuthRateWindow = "1m"
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml)")
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml)")
	}
	if cfg.MinioAccessKey == "" {
		return errors.New("config: minioAccessKey is required (set in config.yaml)")
	}
	if cfg.MinioSecretKey == "" {
		return errors.New("config: minioSecretKey is required (set in config.yaml)")
	}
	if cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required (set in config.yaml)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or READER_JWT_SECRET)")
	}
	for _, field := range []struct {
		name, value string
	}{
		{"userTokenTTL", cfg.UserTokenTTL},
		{"adminTokenTTL", cfg.AdminTokenTTL},
		{"heartbeatMaxInterval", cfg.HeartbeatMaxInterval},
		{"authRateWindow", cfg.AuthRateWindow},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("config: %s is not a valid duration: %w", field.name, err)
		}
	}
	if cfg.ContentMinLength > cfg.ContentMaxLength {
		return errors.New("config: contentMinLength must not exceed contentMaxLength")
	}
	return nil
}

// Duration parses a duration field that validateConfig already checked.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
