package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is everything the client binaries need at startup.
type Config struct {
	APIBaseURL string
	SocketURL  string
	Profile    string
	StorageDir string

	LogLevel string
	LogFile  string
	LogJSON  bool

	RateRPS   float64
	RateBurst int
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "TRUE"
}

func getFloatEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL: getEnv("VEX_API_BASE_URL", "http://localhost:8085"),
		SocketURL:  getEnv("VEX_SOCKET_URL", "ws://localhost:8085/ws"),
		Profile:    getEnv("VEX_PROFILE", "default"),
		StorageDir: getEnv("VEX_STORAGE_DIR", ""),
		LogLevel:   getEnv("VEX_LOG_LEVEL", "info"),
		LogFile:    getEnv("VEX_LOG_FILE", ""),
		LogJSON:    getBoolEnv("VEX_LOG_JSON", false),
		RateRPS:    getFloatEnv("VEX_RATE_RPS", 10),
		RateBurst:  getIntEnv("VEX_RATE_BURST", 20),
	}
	return cfg, nil
}

// RegisterFlags lets a binary override the loaded values on its command line.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.APIBaseURL, "api", c.APIBaseURL, "API base URL")
	fs.StringVar(&c.SocketURL, "socket", c.SocketURL, "websocket URL")
	fs.StringVar(&c.Profile, "profile", c.Profile, "profile name for storage isolation")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "log to this file instead of stderr")
}

// Validate checks the two base URLs.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" || c.SocketURL == "" {
		return errors.New("VEX_API_BASE_URL and VEX_SOCKET_URL must be set")
	}
	if _, err := url.ParseRequestURI(c.APIBaseURL); err != nil {
		return fmt.Errorf("invalid API base URL: %w", err)
	}
	u, err := url.ParseRequestURI(c.SocketURL)
	if err != nil {
		return fmt.Errorf("invalid socket URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("socket URL must use ws or wss, got %q", u.Scheme)
	}
	if c.RateRPS <= 0 || c.RateBurst <= 0 {
		return errors.New("VEX_RATE_RPS and VEX_RATE_BURST must be positive")
	}
	return nil
}

// ProfileDir is where per-profile client state lives.
func (c *Config) ProfileDir() (string, error) {
	base := c.StorageDir
	if base == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("locating config dir: %w", err)
		}
		base = filepath.Join(dir, "vexmarket")
	}
	return filepath.Join(base, c.Profile), nil
}
