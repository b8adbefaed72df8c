package infra

import (
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ENGINE_WEBHOOK_URL", "http://engine.local/webhook/generate")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("DISPATCH_MODE", "")
	t.Setenv("IMAGE_LOCATOR", "")
	t.Setenv("PORT", "")
	t.Setenv("PUBLIC_BASE_URL", "")
	t.Setenv("IMAGE_SOURCE_HOST_ALLOWLIST", "")
	t.Setenv("EXTRACT_PRIORITY_KEYS", "")
	t.Setenv("EXTRACT_INLINE_THRESHOLD", "")
	t.Setenv("ENGINE_SYNC_TIMEOUT_SECONDS", "")
	t.Setenv("HTTP_WRITE_TIMEOUT_SECONDS", "")
}

func TestLoadConfigDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PublicBaseURL != "http://localhost:8080" {
		t.Fatalf("PublicBaseURL mismatch: got %q", cfg.PublicBaseURL)
	}
	if cfg.DispatchMode != DispatchModeSync {
		t.Fatalf("DispatchMode = %q, want %q", cfg.DispatchMode, DispatchModeSync)
	}
	if cfg.EngineSyncTimeout != 15*time.Second {
		t.Fatalf("EngineSyncTimeout = %s, want 15s", cfg.EngineSyncTimeout)
	}
	if got := strings.Join(cfg.ExtractPriorityKeys, ","); got != "image,base64,output_image_url,url,data" {
		t.Fatalf("ExtractPriorityKeys = %q", got)
	}
	if cfg.ExtractInlineThreshold != 1000 {
		t.Fatalf("ExtractInlineThreshold = %d, want 1000", cfg.ExtractInlineThreshold)
	}
	if len(cfg.ImageSourceAllowlist) != 1 || cfg.ImageSourceAllowlist[0] != "localhost" {
		t.Fatalf("ImageSourceAllowlist mismatch: %#v", cfg.ImageSourceAllowlist)
	}
}

func TestLoadConfigInheritsPortInPublicBaseURL(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "1919")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PublicBaseURL != "http://localhost:1919" {
		t.Fatalf("PublicBaseURL mismatch: got %q", cfg.PublicBaseURL)
	}
}

func TestLoadConfigMergesExplicitAllowlist(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PUBLIC_BASE_URL", "https://api.example.com/")
	t.Setenv("IMAGE_SOURCE_HOST_ALLOWLIST", "media.example.com, localhost ,Media.Example.com")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PublicBaseURL != "https://api.example.com" {
		t.Fatalf("PublicBaseURL should be trimmed, got %q", cfg.PublicBaseURL)
	}
	expected := []string{"api.example.com", "localhost", "media.example.com"}
	if len(cfg.ImageSourceAllowlist) != len(expected) {
		t.Fatalf("ImageSourceAllowlist mismatch: got %#v want %#v", cfg.ImageSourceAllowlist, expected)
	}
	for i, host := range expected {
		if cfg.ImageSourceAllowlist[i] != host {
			t.Fatalf("ImageSourceAllowlist[%d] = %q, want %q", i, cfg.ImageSourceAllowlist[i], host)
		}
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "missing database url", env: map[string]string{"DATABASE_URL": ""}, want: "DATABASE_URL"},
		{name: "memory store needs no database", env: map[string]string{"DATABASE_URL": "", "STORE_DRIVER": "memory"}},
		{name: "missing jwt secret", env: map[string]string{"JWT_SECRET": ""}, want: "JWT_SECRET"},
		{name: "missing engine url", env: map[string]string{"ENGINE_WEBHOOK_URL": ""}, want: "ENGINE_WEBHOOK_URL"},
		{name: "unknown dispatch mode", env: map[string]string{"DISPATCH_MODE": "later"}, want: "DISPATCH_MODE"},
		{name: "write timeout below sync wait", env: map[string]string{"HTTP_WRITE_TIMEOUT_SECONDS": "10"}, want: "HTTP_WRITE_TIMEOUT_SECONDS"},
		{name: "async ignores write timeout", env: map[string]string{"HTTP_WRITE_TIMEOUT_SECONDS": "10", "DISPATCH_MODE": "async"}},
		{name: "minio without credentials", env: map[string]string{"IMAGE_LOCATOR": "minio"}, want: "MINIO_ENDPOINT"},
		{name: "non positive threshold", env: map[string]string{"EXTRACT_INLINE_THRESHOLD": "0"}, want: "EXTRACT_INLINE_THRESHOLD"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("LoadConfig returned error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("LoadConfig error = %v, want mention of %s", err, tc.want)
			}
		})
	}
}
