package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `port: "8080"
databaseURL: "postgres://localhost/leafreader"
logLevel: "info"
minioEndpoint: "localhost:9000"
minioAccessKey: "ak"
minioSecretKey: "sk"
minioBucket: "books"
jwtSecret: "secret"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Fatalf("unexpected default upload limit: %d", cfg.MaxUploadBytes)
	}
	if cfg.HeartbeatMaxInterval != "30s" {
		t.Fatalf("unexpected default heartbeat interval: %q", cfg.HeartbeatMaxInterval)
	}
	if cfg.ContentDefaultLength != 4000 || cfg.ContentMinLength != 100 || cfg.ContentMaxLength != 10000 {
		t.Fatalf("unexpected content window defaults: %+v", cfg)
	}
	if cfg.UserTokenTTL != "720h" || cfg.AdminTokenTTL != "168h" {
		t.Fatalf("unexpected token TTL defaults: %+v", cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://other/db")
	t.Setenv("READER_JWT_SECRET", "env-secret")
	t.Setenv("READER_MAX_UPLOAD_BYTES", "1048576")

	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://other/db" {
		t.Fatalf("DATABASE_URL override ignored: %q", cfg.DatabaseURL)
	}
	if cfg.JWTSecret != "env-secret" {
		t.Fatalf("READER_JWT_SECRET override ignored: %q", cfg.JWTSecret)
	}
	if cfg.MaxUploadBytes != 1<<20 {
		t.Fatalf("READER_MAX_UPLOAD_BYTES override ignored: %d", cfg.MaxUploadBytes)
	}
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	cases := []string{
		`databaseURL: "x"`,
		`port: "8080"`,
	}
	for _, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Fatalf("expected validation error for %q", content)
		}
	}
}

func TestLoadRejectsBadDurations(t *testing.T) {
	content := validYAML + "heartbeatMaxInterval: \"soon\"\n"
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Fatal("expected duration validation error")
	}
}

func TestLoadRejectsInvertedContentBounds(t *testing.T) {
	content := validYAML + "contentMinLength: 5000\ncontentMaxLength: 200\n"
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Fatal("expected content bounds validation error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
