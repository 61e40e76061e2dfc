package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values (production)
const (
	DefaultDomain         = "watch.qzz.io"
	DefaultUser           = "Guest"
	DefaultDriftThreshold = 2.0
	DefaultResolveTimeout = 30 * time.Second
	DefaultListen         = ":8000"
)

// Config holds application configuration
type Config struct {
	// Domain is the room service host, optionally with a port
	Domain string `mapstructure:"domain"`

	// User is the identity announced to the room
	User string `mapstructure:"user"`

	DriftThreshold float64       `mapstructure:"drift_threshold"`
	ResolveGuard   bool          `mapstructure:"resolve_guard"`
	ResolveTimeout time.Duration `mapstructure:"resolve_timeout"`

	// Insecure selects ws:// and http:// instead of wss:// and https://
	Insecure bool `mapstructure:"insecure"`

	// CacheDir holds room snapshots. Empty disables them.
	CacheDir string `mapstructure:"cache_dir"`

	// Listen is the address the development room server binds to
	Listen string `mapstructure:"listen"`
}

// Options for loading config with CLI flag overrides. Zero values are not
// applied.
type Options struct {
	Domain         string
	User           string
	DriftThreshold float64
	Insecure       bool
	CacheDir       string
	Listen         string

	// ConfigFile overrides the config file location
	ConfigFile string
}

var envKeys = map[string]string{
	"domain":          "DOMAIN",
	"user":            "WATCHSYNC_USER",
	"drift_threshold": "DRIFT_THRESHOLD",
	"resolve_guard":   "RESOLVE_GUARD",
	"resolve_timeout": "RESOLVE_TIMEOUT",
	"insecure":        "WATCHSYNC_INSECURE",
	"cache_dir":       "WATCHSYNC_CACHE_DIR",
	"listen":          "WATCHSYNC_LISTEN",
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Config file (YAML)
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("domain", DefaultDomain)
	v.SetDefault("user", DefaultUser)
	v.SetDefault("drift_threshold", DefaultDriftThreshold)
	v.SetDefault("resolve_guard", true)
	v.SetDefault("resolve_timeout", DefaultResolveTimeout.String())
	v.SetDefault("insecure", false)
	v.SetDefault("cache_dir", defaultCacheDir())
	v.SetDefault("listen", DefaultListen)

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := readConfigFile(v, opts.ConfigFile); err != nil {
		return nil, err
	}

	if opts.Domain != "" {
		v.Set("domain", opts.Domain)
	}
	if opts.User != "" {
		v.Set("user", opts.User)
	}
	if opts.DriftThreshold != 0 {
		v.Set("drift_threshold", opts.DriftThreshold)
	}
	if opts.Insecure {
		v.Set("insecure", true)
	}
	if opts.CacheDir != "" {
		v.Set("cache_dir", opts.CacheDir)
	}
	if opts.Listen != "" {
		v.Set("listen", opts.Listen)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Domain = strings.TrimSuffix(strings.TrimSpace(cfg.Domain), "/")
	cfg.User = strings.TrimSpace(cfg.User)
	if cfg.Domain == "" {
		return nil, errors.New("domain must not be empty")
	}
	if cfg.User == "" {
		cfg.User = DefaultUser
	}
	if cfg.DriftThreshold <= 0 {
		return nil, fmt.Errorf("drift threshold must be positive, got %v", cfg.DriftThreshold)
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = DefaultResolveTimeout
	}
	if isLocal(cfg.Domain) {
		cfg.Insecure = true
	}

	return &cfg, nil
}

// readConfigFile loads the YAML config. An explicitly named file must exist;
// the default location is optional.
func readConfigFile(v *viper.Viper, path string) error {
	explicit := path != ""
	if !explicit {
		path = os.Getenv("WATCHSYNC_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(dir, "watchsync", "config.yaml")
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			slog.Debug("No config file, using defaults", "path", path)
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	slog.Debug("Loaded config", "path", path)
	return nil
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "watchsync")
}

// isLocal reports whether domain points at this machine.
func isLocal(domain string) bool {
	host := domain
	if h, _, err := net.SplitHostPort(domain); err == nil {
		host = h
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (c *Config) scheme(secure, plain string) string {
	if c.Insecure {
		return plain
	}
	return secure
}

// WebSocketURL returns the room endpoint, carrying the user identity.
func (c *Config) WebSocketURL(roomID string) string {
	return fmt.Sprintf("%s://%s/ws/%s?user=%s",
		c.scheme("wss", "ws"), c.Domain, url.PathEscape(roomID), url.QueryEscape(c.User))
}

// APIBaseURL returns the base URL of the HTTP API.
func (c *Config) APIBaseURL() string {
	return fmt.Sprintf("%s://%s", c.scheme("https", "http"), c.Domain)
}

// GetRoomLink returns the webapp URL for a room ID
func (c *Config) GetRoomLink(roomID string) string {
	return fmt.Sprintf("%s/room/%s", c.APIBaseURL(), url.PathEscape(roomID))
}

// SnapshotPath returns where the room's state is cached, or "" when caching
// is disabled.
func (c *Config) SnapshotPath(roomID string) string {
	if c.CacheDir == "" {
		return ""
	}
	return filepath.Join(c.CacheDir, "rooms", roomID+".msgpack")
}

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// ParseRoomID accepts a bare room ID or a room link and returns the ID.
func ParseRoomID(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	id := arg

	if strings.Contains(arg, "://") {
		u, err := url.Parse(arg)
		if err != nil {
			return "", fmt.Errorf("invalid room link: %w", err)
		}
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(segments) != 2 || (segments[0] != "room" && segments[0] != "r" && segments[0] != "ws") {
			return "", fmt.Errorf("not a room link: %s", arg)
		}
		id = segments[1]
	}

	if !roomIDPattern.MatchString(id) {
		return "", fmt.Errorf("invalid room id: %q", id)
	}
	return id, nil
}
