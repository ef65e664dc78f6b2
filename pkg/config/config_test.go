package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "PORT", "BASE_URL", "API_BASE", "QUIET_PERIOD", "REVERT_DELAY",
		"TOKEN_VALIDITY", "DOWNLOAD_MODE", "DOWNLOAD_DIR", "TRANSPORT_ROUTES",
		"GLOBAL_PROXY", "GLOBAL_PROXIES", "STORE_PATH", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.QuietPeriod != 500*time.Millisecond {
		t.Errorf("QuietPeriod = %v, want 500ms", cfg.QuietPeriod)
	}
	if cfg.TokenValidity != time.Hour {
		t.Errorf("TokenValidity = %v, want 1h", cfg.TokenValidity)
	}
	if cfg.RevertDelay != 2*time.Second {
		t.Errorf("RevertDelay = %v, want 2s", cfg.RevertDelay)
	}
	if cfg.APIBase != "https://api.redgifs.com/v2" {
		t.Errorf("APIBase = %q", cfg.APIBase)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "augment.toml")
	content := `
[server]
port = 9000

[credentials]
validity = "30m"
store_path = "/tmp/creds.db"

[scanner]
quiet_period = "250ms"

[downloads]
mode = "blob"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QUIET_PERIOD", "1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9000 || cfg.BaseURL != "http://localhost:9000" {
		t.Errorf("Port/BaseURL = %d %q", cfg.Port, cfg.BaseURL)
	}
	if cfg.TokenValidity != 30*time.Minute {
		t.Errorf("TokenValidity = %v", cfg.TokenValidity)
	}
	if cfg.StorePath != "/tmp/creds.db" {
		t.Errorf("StorePath = %q", cfg.StorePath)
	}
	if cfg.QuietPeriod != time.Second {
		t.Errorf("env should override file: QuietPeriod = %v", cfg.QuietPeriod)
	}
	if cfg.DownloadMode != DownloadModeBlob {
		t.Errorf("DownloadMode = %q", cfg.DownloadMode)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 7860 {
		t.Errorf("Port = %d", cfg.Port)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[scanner]\nquiet_period = \"soon\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "scanner.quiet_period") {
		t.Errorf("Load() error = %v, want quiet_period parse error", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.DownloadMode = "torrent"
	cfg.QuietPeriod = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"download mode", "quiet period"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestParseTransportRoutes(t *testing.T) {
	routes := parseTransportRoutes("{URL=api.redgifs.com, PROXY=socks5://p:1080}, {URL=media.redgifs.com, DIRECT=true, DISABLE_SSL=true}")
	if len(routes) != 2 {
		t.Fatalf("got %d routes, want 2", len(routes))
	}
	if routes[0].URLPattern != "api.redgifs.com" || routes[0].Proxy != "socks5://p:1080" {
		t.Errorf("route[0] = %+v", routes[0])
	}
	if !routes[1].Direct || !routes[1].DisableSSL {
		t.Errorf("route[1] = %+v", routes[1])
	}
	if parseTransportRoutes("  ") != nil {
		t.Error("blank input should yield nil")
	}
}

func TestSiteDomain(t *testing.T) {
	tests := []struct {
		site string
		want string
	}{
		{"https://www.redgifs.com", "redgifs.com"},
		{"https://RedGifs.com/", "redgifs.com"},
		{"http://localhost:8080", "localhost"},
		{"", ""},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.SiteURL = tt.site
		if got := cfg.SiteDomain(); got != tt.want {
			t.Errorf("SiteDomain(%q) = %q, want %q", tt.site, got, tt.want)
		}
	}
}
