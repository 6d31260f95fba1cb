package config

import (
	"os"
	"testing"
	"time"
)

// validEnv sets the two mandatory variables and returns a cleanup.
func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PRAGATI_TOKEN_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("PRAGATI_DB_DSN", "postgres://localhost/pragati")
}

func TestLoadConfigDefaults(t *testing.T) {
	validEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("default port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Token.AccessTTL != 15*time.Minute {
		t.Errorf("default access TTL = %v, want 15m", cfg.Token.AccessTTL)
	}
	if cfg.Token.RefreshTTL != 168*time.Hour {
		t.Errorf("default refresh TTL = %v, want 168h", cfg.Token.RefreshTTL)
	}
	if cfg.Token.Leeway != 30*time.Second {
		t.Errorf("default leeway = %v, want 30s", cfg.Token.Leeway)
	}
	if cfg.Session.Backend != "redis" {
		t.Errorf("default session backend = %q, want redis", cfg.Session.Backend)
	}
}

func TestLoadConfigRejectsShortSecret(t *testing.T) {
	t.Setenv("PRAGATI_TOKEN_SECRET", "too-short")
	t.Setenv("PRAGATI_DB_DSN", "postgres://localhost/pragati")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() accepted a short signing secret")
	}
}

func TestLoadConfigRejectsMissingDSN(t *testing.T) {
	t.Setenv("PRAGATI_TOKEN_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("PRAGATI_DB_DSN", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() accepted a missing database DSN")
	}
}

func TestValidateRejections(t *testing.T) {
	base := func(t *testing.T) *Config {
		validEnv(t)
		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig() failed: %v", err)
		}
		return cfg
	}

	t.Run("same ports", func(t *testing.T) {
		cfg := base(t)
		cfg.Server.HealthPort = cfg.Server.Port
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() accepted identical server and health ports")
		}
	})

	t.Run("access TTL not shorter than refresh", func(t *testing.T) {
		cfg := base(t)
		cfg.Token.AccessTTL = cfg.Token.RefreshTTL
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() accepted access TTL >= refresh TTL")
		}
	})

	t.Run("unknown session backend", func(t *testing.T) {
		cfg := base(t)
		cfg.Session.Backend = "etcd"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() accepted unknown session backend")
		}
	})

	t.Run("unknown database driver", func(t *testing.T) {
		cfg := base(t)
		cfg.Database.Driver = "oracle"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() accepted unknown database driver")
		}
	})

	t.Run("sso enabled without issuer", func(t *testing.T) {
		cfg := base(t)
		cfg.SSO.Enabled = true
		cfg.SSO.ClientID = "pragati-web"
		cfg.SSO.ClientSecret = "secret"
		cfg.SSO.RedirectURL = "https://pragati.example/api/auth/sso/callback"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() accepted SSO without an issuer URL")
		}
	})

	t.Run("s3 audit without bucket", func(t *testing.T) {
		cfg := base(t)
		cfg.Audit.S3Enabled = true
		cfg.Audit.S3Bucket = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() accepted S3 audit without a bucket")
		}
	})
}

func TestGetEnvHelpers(t *testing.T) {
	t.Run("getEnv", func(t *testing.T) {
		t.Setenv("TEST_VAR", "custom")
		if got := getEnv("TEST_VAR", "default"); got != "custom" {
			t.Errorf("getEnv() = %v, want custom", got)
		}
		if got := getEnv("TEST_VAR_NOT_SET", "default"); got != "default" {
			t.Errorf("getEnv() = %v, want default", got)
		}
	})

	t.Run("getEnvBool", func(t *testing.T) {
		t.Setenv("TEST_BOOL", "1")
		if !getEnvBool("TEST_BOOL", false) {
			t.Error("getEnvBool() = false for '1'")
		}
		os.Unsetenv("TEST_BOOL")
		if getEnvBool("TEST_BOOL", false) {
			t.Error("getEnvBool() default not honored")
		}
	})

	t.Run("getEnvDuration", func(t *testing.T) {
		t.Setenv("TEST_DUR", "90s")
		if got := getEnvDuration("TEST_DUR", time.Minute); got != 90*time.Second {
			t.Errorf("getEnvDuration() = %v, want 90s", got)
		}
		t.Setenv("TEST_DUR", "not-a-duration")
		if got := getEnvDuration("TEST_DUR", time.Minute); got != time.Minute {
			t.Errorf("getEnvDuration() = %v, want fallback 1m", got)
		}
	})

	t.Run("getEnvList", func(t *testing.T) {
		t.Setenv("TEST_LIST", "https://a.example, https://b.example")
		got := getEnvList("TEST_LIST", nil)
		if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
			t.Errorf("getEnvList() = %v", got)
		}
	})
}
