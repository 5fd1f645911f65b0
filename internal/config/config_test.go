package config

import (
	"os"
	"testing"
)

func TestLoadWithAccessKey(t *testing.T) {
	_ = os.Setenv("CDNSYNC_ACCESS_KEY", "test-key-123")
	defer func() { _ = os.Unsetenv("CDNSYNC_ACCESS_KEY") }()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected config to load with access key, got error: %v", err)
	}

	if cfg.Upstream.AccessKey != "test-key-123" {
		t.Errorf("expected access key 'test-key-123', got '%s'", cfg.Upstream.AccessKey)
	}

	if cfg.Upstream.BaseURL != "https://ops.apexmedia.io" {
		t.Errorf("expected default base URL, got '%s'", cfg.Upstream.BaseURL)
	}

	if cfg.Engine.Workers != 4 {
		t.Errorf("expected 4 workers by default, got %d", cfg.Engine.Workers)
	}

	// CDN credential falls back to the upstream key.
	if cfg.CDN.AccessKey != "test-key-123" {
		t.Errorf("expected CDN access key fallback, got '%s'", cfg.CDN.AccessKey)
	}
}

func TestLoadWithoutAccessKey(t *testing.T) {
	_ = os.Unsetenv("CDNSYNC_ACCESS_KEY")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error when access key is missing")
	}
}

func TestLoadCDNKeyOverride(t *testing.T) {
	_ = os.Setenv("CDNSYNC_ACCESS_KEY", "upstream-key")
	_ = os.Setenv("CDNSYNC_CDN_ACCESS_KEY", "cdn-key")
	defer func() {
		_ = os.Unsetenv("CDNSYNC_ACCESS_KEY")
		_ = os.Unsetenv("CDNSYNC_CDN_ACCESS_KEY")
	}()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.CDN.AccessKey != "cdn-key" {
		t.Errorf("expected explicit CDN key to win, got '%s'", cfg.CDN.AccessKey)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := &Config{}
	cfg.Engine.RetryDelayMS = 250
	cfg.Engine.PostTimeoutSec = 10

	if cfg.Engine.RetryDelay().Milliseconds() != 250 {
		t.Errorf("unexpected retry delay: %v", cfg.Engine.RetryDelay())
	}
	if cfg.Engine.PostTimeout().Seconds() != 10 {
		t.Errorf("unexpected post timeout: %v", cfg.Engine.PostTimeout())
	}
}
