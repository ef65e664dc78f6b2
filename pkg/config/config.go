// Package config handles application configuration from an optional TOML file
// and environment variables. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Download modes.
const (
	DownloadModeAuto   = "auto"
	DownloadModeNative = "native"
	DownloadModeBlob   = "blob"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port         int
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Authentication for this server's API
	APIPassword string

	// Proxy settings
	GlobalProxies    []string
	TransportRoutes  []TransportRoute
	FingerprintHosts []string // hosts reached with a browser-like TLS fingerprint

	// Remote site
	SiteURL string // origin of the augmented site, used for relative page URLs
	APIBase string // metadata/auth API root

	// Credential cache
	StorePath     string        // SQLite key-value store; empty keeps credentials in memory
	LockPath      string        // cross-process issuance lock; empty disables it
	TokenValidity time.Duration

	// Scanning and controls
	QuietPeriod time.Duration
	RevertDelay time.Duration
	MaxSessions int

	// Downloads
	DownloadDir  string
	DownloadMode string

	// Logging
	LogLevel  string
	LogFormat string

	// FlareSolverr settings (fallback for challenge-protected pages)
	FlareSolverrURL     string
	FlareSolverrTimeout time.Duration
}

// TransportRoute defines URL-specific proxy routing.
type TransportRoute struct {
	URLPattern string
	Proxy      string
	DisableSSL bool
	Direct     bool // If true, bypass global proxy and connect directly
}

// fileConfig mirrors Config for TOML decoding. Durations are strings ("500ms", "1h").
type fileConfig struct {
	Server struct {
		Port         int    `toml:"port"`
		BaseURL      string `toml:"base_url"`
		ReadTimeout  string `toml:"read_timeout"`
		WriteTimeout string `toml:"write_timeout"`
		IdleTimeout  string `toml:"idle_timeout"`
		APIPassword  string `toml:"api_password"`
	} `toml:"server"`
	Network struct {
		GlobalProxies    []string `toml:"global_proxies"`
		TransportRoutes  string   `toml:"transport_routes"`
		FingerprintHosts []string `toml:"fingerprint_hosts"`
	} `toml:"network"`
	Site struct {
		URL     string `toml:"url"`
		APIBase string `toml:"api_base"`
	} `toml:"site"`
	Credentials struct {
		StorePath string `toml:"store_path"`
		LockPath  string `toml:"lock_path"`
		Validity  string `toml:"validity"`
	} `toml:"credentials"`
	Scanner struct {
		QuietPeriod string `toml:"quiet_period"`
		RevertDelay string `toml:"revert_delay"`
		MaxSessions int    `toml:"max_sessions"`
	} `toml:"scanner"`
	Downloads struct {
		Dir  string `toml:"dir"`
		Mode string `toml:"mode"`
	} `toml:"downloads"`
	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"logging"`
	FlareSolverr struct {
		URL     string `toml:"url"`
		Timeout string `toml:"timeout"`
	} `toml:"flaresolverr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:                7860,
		BaseURL:             "http://localhost:7860",
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        120 * time.Second,
		IdleTimeout:         60 * time.Second,
		FingerprintHosts:    []string{"redgifs.com"},
		SiteURL:             "https://www.redgifs.com",
		APIBase:             "https://api.redgifs.com/v2",
		TokenValidity:       time.Hour,
		QuietPeriod:         500 * time.Millisecond,
		RevertDelay:         2 * time.Second,
		MaxSessions:         64,
		DownloadDir:         "downloads",
		DownloadMode:        DownloadModeAuto,
		LogLevel:            "info",
		LogFormat:           "auto",
		FlareSolverrTimeout: 60 * time.Second,
	}
}

// Load builds the configuration: defaults, then the TOML file at path (when it
// exists; CONFIG_FILE is used when path is empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	setInt(&c.Port, fc.Server.Port)
	if fc.Server.Port > 0 && fc.Server.BaseURL == "" {
		c.BaseURL = fmt.Sprintf("http://localhost:%d", fc.Server.Port)
	}
	setString(&c.BaseURL, fc.Server.BaseURL)
	setString(&c.APIPassword, fc.Server.APIPassword)
	setString(&c.SiteURL, fc.Site.URL)
	setString(&c.APIBase, fc.Site.APIBase)
	setString(&c.StorePath, fc.Credentials.StorePath)
	setString(&c.LockPath, fc.Credentials.LockPath)
	setInt(&c.MaxSessions, fc.Scanner.MaxSessions)
	setString(&c.DownloadDir, fc.Downloads.Dir)
	setString(&c.DownloadMode, fc.Downloads.Mode)
	setString(&c.LogLevel, fc.Logging.Level)
	setString(&c.LogFormat, fc.Logging.Format)
	setString(&c.FlareSolverrURL, fc.FlareSolverr.URL)

	if len(fc.Network.GlobalProxies) > 0 {
		c.GlobalProxies = fc.Network.GlobalProxies
	}
	if len(fc.Network.FingerprintHosts) > 0 {
		c.FingerprintHosts = fc.Network.FingerprintHosts
	}
	if fc.Network.TransportRoutes != "" {
		c.TransportRoutes = parseTransportRoutes(fc.Network.TransportRoutes)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"server.read_timeout", fc.Server.ReadTimeout, &c.ReadTimeout},
		{"server.write_timeout", fc.Server.WriteTimeout, &c.WriteTimeout},
		{"server.idle_timeout", fc.Server.IdleTimeout, &c.IdleTimeout},
		{"credentials.validity", fc.Credentials.Validity, &c.TokenValidity},
		{"scanner.quiet_period", fc.Scanner.QuietPeriod, &c.QuietPeriod},
		{"scanner.revert_delay", fc.Scanner.RevertDelay, &c.RevertDelay},
		{"flaresolverr.timeout", fc.FlareSolverr.Timeout, &c.FlareSolverrTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, ok := parseDuration(d.raw)
		if !ok {
			return fmt.Errorf("parse config: %s: invalid duration %q", d.key, d.raw)
		}
		*d.dst = parsed
	}
	return nil
}

func (c *Config) applyEnv() {
	port := getEnvInt("PORT", c.Port)
	if port != c.Port && os.Getenv("BASE_URL") == "" {
		c.BaseURL = fmt.Sprintf("http://localhost:%d", port)
	}
	c.Port = port
	c.BaseURL = getEnvString("BASE_URL", c.BaseURL)
	c.ReadTimeout = getEnvDuration("READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", c.WriteTimeout)
	c.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", c.IdleTimeout)
	c.APIPassword = getEnvString("API_PASSWORD", c.APIPassword)
	c.GlobalProxies = getEnvStringSlice("GLOBAL_PROXIES", c.GlobalProxies)
	c.FingerprintHosts = getEnvStringSlice("FINGERPRINT_HOSTS", c.FingerprintHosts)
	c.SiteURL = getEnvString("SITE_URL", c.SiteURL)
	c.APIBase = getEnvString("API_BASE", c.APIBase)
	c.StorePath = getEnvString("STORE_PATH", c.StorePath)
	c.LockPath = getEnvString("LOCK_PATH", c.LockPath)
	c.TokenValidity = getEnvDuration("TOKEN_VALIDITY", c.TokenValidity)
	c.QuietPeriod = getEnvDuration("QUIET_PERIOD", c.QuietPeriod)
	c.RevertDelay = getEnvDuration("REVERT_DELAY", c.RevertDelay)
	c.MaxSessions = getEnvInt("MAX_SESSIONS", c.MaxSessions)
	c.DownloadDir = getEnvString("DOWNLOAD_DIR", c.DownloadDir)
	c.DownloadMode = getEnvString("DOWNLOAD_MODE", c.DownloadMode)
	c.LogLevel = getEnvString("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvString("LOG_FORMAT", c.LogFormat)
	c.FlareSolverrURL = getEnvString("FLARESOLVERR_URL", c.FlareSolverrURL)
	c.FlareSolverrTimeout = getEnvDuration("FLARESOLVERR_TIMEOUT", c.FlareSolverrTimeout)

	if routes := parseTransportRoutes(os.Getenv("TRANSPORT_ROUTES")); len(routes) > 0 {
		c.TransportRoutes = routes
	}

	// Legacy single proxy support
	if globalProxy := os.Getenv("GLOBAL_PROXY"); globalProxy != "" && len(c.GlobalProxies) == 0 {
		c.GlobalProxies = []string{globalProxy}
	}
}

// Validate checks values that would otherwise fail later in confusing ways.
func (c *Config) Validate() error {
	var problems []string
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
	}
	if !strings.HasPrefix(c.APIBase, "http://") && !strings.HasPrefix(c.APIBase, "https://") {
		problems = append(problems, fmt.Sprintf("api base %q must be an http(s) URL", c.APIBase))
	}
	if c.TokenValidity <= 0 {
		problems = append(problems, "token validity must be positive")
	}
	if c.QuietPeriod <= 0 {
		problems = append(problems, "quiet period must be positive")
	}
	if c.RevertDelay < 0 {
		problems = append(problems, "revert delay must not be negative")
	}
	switch c.DownloadMode {
	case DownloadModeAuto, DownloadModeNative, DownloadModeBlob:
	default:
		problems = append(problems, fmt.Sprintf("download mode %q must be auto, native or blob", c.DownloadMode))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SiteDomain returns the registrable part of SiteURL's host ("redgifs.com" for
// "https://www.redgifs.com").
func (c *Config) SiteDomain() string {
	u, err := url.Parse(c.SiteURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// parseTransportRoutes parses the TRANSPORT_ROUTES value.
// Format: {URL=pattern, PROXY=url, DISABLE_SSL=true}, {URL=pattern2}
func parseTransportRoutes(s string) []TransportRoute {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	var routes []TransportRoute
	for _, part := range strings.Split(s, "}, {") {
		part = strings.Trim(part, "{} ")
		if part == "" {
			continue
		}

		route := TransportRoute{}
		for _, field := range strings.Split(part, ", ") {
			key, value, ok := strings.Cut(field, "=")
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)

			switch strings.ToUpper(strings.TrimSpace(key)) {
			case "URL":
				route.URLPattern = value
			case "PROXY":
				route.Proxy = value
			case "DISABLE_SSL":
				route.DisableSSL = strings.EqualFold(value, "true")
			case "DIRECT":
				route.Direct = strings.EqualFold(value, "true")
			}
		}
		if route.URLPattern != "" {
			routes = append(routes, route)
		}
	}

	return routes
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func parseDuration(val string) (time.Duration, bool) {
	// Bare integers are seconds
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d, true
	}
	return 0, false
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, ok := parseDuration(val); ok {
			return d
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultVal
}
