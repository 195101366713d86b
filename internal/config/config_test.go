package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

const testKey = "6a09e667f3bcc908b2fb1366ea957d3e3adec17512775099da2f590b0667322a"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/agents")
	t.Setenv("ENCRYPTION_KEY", testKey)
}

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setRequiredEnv(t)

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.StripeAPIBaseURL != "https://api.stripe.com" {
		t.Fatalf("expected default Stripe base URL, got %q", cfg.StripeAPIBaseURL)
	}
	if cfg.RateLimitRequests != 100 || cfg.RateLimitWindowMin != 15 {
		t.Fatalf("expected default rate limit 100/15min, got %d/%d", cfg.RateLimitRequests, cfg.RateLimitWindowMin)
	}
	if cfg.IsTest() {
		t.Fatal("expected development environment not to read as test")
	}
}

func TestLoadConfig_PlatformPortOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setRequiredEnv(t)
	t.Setenv("PORT", "9999")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9999" {
		t.Fatalf("expected PORT to override the server port, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_RejectsMissingRequiredValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ENCRYPTION_KEY", "")

	_, err := LoadConfig(t.TempDir())
	if err == nil {
		t.Fatal("expected an error when required configuration is missing")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected the missing variable named, got %v", err)
	}
}

func TestConfig_IsTest(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{env: "test", want: true},
		{env: "TEST", want: true},
		{env: " test ", want: true},
		{env: "production", want: false},
		{env: "", want: false},
	}
	for _, tt := range tests {
		cfg := Config{Environment: tt.env}
		if got := cfg.IsTest(); got != tt.want {
			t.Fatalf("IsTest(%q) = %t, want %t", tt.env, got, tt.want)
		}
	}
}

func TestConfig_AllowedOrigins(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: "https://app.example.com, https://admin.example.com ,"}
	origins := cfg.AllowedOrigins()
	if len(origins) != 2 {
		t.Fatalf("expected 2 origins, got %v", origins)
	}
	if origins[0] != "https://app.example.com" || origins[1] != "https://admin.example.com" {
		t.Fatalf("unexpected origins: %v", origins)
	}

	if got := (Config{}).AllowedOrigins(); got != nil {
		t.Fatalf("expected nil for empty configuration, got %v", got)
	}
}
