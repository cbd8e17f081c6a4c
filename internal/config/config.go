// Package config loads runtime configuration from environment
// variables with explicit fallback defaults, grounded on CineVault's
// flat env()/envInt() loader style.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

type ServerConfig struct {
	Host string
	Port int
}

func (s ServerConfig) Address() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Host string
	Port int
}

func (r RedisConfig) Address() string { return fmt.Sprintf("%s:%d", r.Host, r.Port) }

type PathsConfig struct {
	Media    string
	Cache    string
	Preview  string
	DataDir  string
}

type FFmpegConfig struct {
	FFmpegPath  string
	FFprobePath string
	HWAccel     string
	MaxWorkers  int
}

// ScannerConfig tunes the library actor's throttling and folder-walk
// behavior. Loaded from the SCANNER_JSON env var when present.
type ScannerConfig struct {
	MaxOutstandingJobs int `json:"max_outstanding_jobs"`
	SkipDotfiles       bool `json:"skip_dotfiles"`
}

// RateLimitConfig bounds requests per client for the external API
// surface. Loaded from RATE_LIMITS_JSON when present.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Paths      PathsConfig
	FFmpeg     FFmpegConfig
	Scanner    ScannerConfig
	RateLimits RateLimitConfig
	TLS        TLSConfig
	CORS       CORSConfig

	JWTSecret        []byte
	EnforceHTTPS     bool
	TrustProxyHeaders bool
	HSTSMaxAge       time.Duration
	DemoMode         bool
}

// Load reads the process environment into a Config, falling back to
// sane defaults for local development. It mirrors CineVault's
// env()/envInt() helper pattern but groups related settings into
// sub-structs the way the rest of the pack's server config types do.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: env("SERVER_HOST", "0.0.0.0"),
			Port: envInt("PORT", 8080),
		},
		Database: DatabaseConfig{
			URL: env("DATABASE_URL", "postgres://streamvault:streamvault@db:5432/streamvault?sslmode=disable"),
		},
		Redis: RedisConfig{
			Host: env("REDIS_HOST", "redis"),
			Port: envInt("REDIS_PORT", 6379),
		},
		Paths: PathsConfig{
			Media:   env("MEDIA_DIR", "/data/media"),
			Cache:   env("CACHE_DIR", "/data/cache"),
			Preview: env("PREVIEW_DIR", "/data/preview"),
			DataDir: env("DATA_DIR", "/data"),
		},
		FFmpeg: FFmpegConfig{
			FFmpegPath:  env("FFMPEG_PATH", "ffmpeg"),
			FFprobePath: env("FFPROBE_PATH", "ffprobe"),
			HWAccel:     env("HW_ACCEL_TYPE", "cpu"),
			MaxWorkers:  envInt("MAX_TRANSCODES", 2),
		},
		Scanner: ScannerConfig{
			MaxOutstandingJobs: 64,
			SkipDotfiles:       true,
		},
		RateLimits: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		TLS: TLSConfig{
			Enabled:  envBool("TLS_ENABLED", false),
			CertFile: env("TLS_CERT_FILE", ""),
			KeyFile:  env("TLS_KEY_FILE", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(env("CORS_ALLOWED_ORIGINS", "*")),
		},
		JWTSecret:         []byte(env("JWT_SECRET", "change-me-in-production")),
		EnforceHTTPS:      envBool("ENFORCE_HTTPS", false),
		TrustProxyHeaders: envBool("TRUST_PROXY_HEADERS", false),
		HSTSMaxAge:        time.Duration(envInt("HSTS_MAX_AGE_SECONDS", 31536000)) * time.Second,
		DemoMode:          envBool("DEMO_MODE", false),
	}

	if raw := os.Getenv("SCANNER_JSON"); raw != "" {
		if err := decodeJSONEnv(raw, &cfg.Scanner); err != nil {
			return nil, fmt.Errorf("parse SCANNER_JSON: %w", err)
		}
	}
	if raw := os.Getenv("RATE_LIMITS_JSON"); raw != "" {
		if err := decodeJSONEnv(raw, &cfg.RateLimits); err != nil {
			return nil, fmt.Errorf("parse RATE_LIMITS_JSON: %w", err)
		}
	}

	return cfg, nil
}

// decodeJSONEnv unmarshals a JSON env var into a typed struct, then
// uses spf13/cast to coerce any field that arrived as a loosely-typed
// JSON number/string (environment-sourced JSON routinely mixes
// "10" and 10) rather than failing the whole config load.
func decodeJSONEnv(raw string, dst interface{}) error {
	var generic map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return err
	}
	switch v := dst.(type) {
	case *ScannerConfig:
		if n, ok := generic["max_outstanding_jobs"]; ok {
			i, err := cast.ToIntE(n)
			if err != nil {
				return fmt.Errorf("max_outstanding_jobs: %w", err)
			}
			v.MaxOutstandingJobs = i
		}
		if b, ok := generic["skip_dotfiles"]; ok {
			bv, err := cast.ToBoolE(b)
			if err != nil {
				return fmt.Errorf("skip_dotfiles: %w", err)
			}
			v.SkipDotfiles = bv
		}
	case *RateLimitConfig:
		if n, ok := generic["requests_per_second"]; ok {
			f, err := cast.ToFloat64E(n)
			if err != nil {
				return fmt.Errorf("requests_per_second: %w", err)
			}
			v.RequestsPerSecond = f
		}
		if n, ok := generic["burst"]; ok {
			i, err := cast.ToIntE(n)
			if err != nil {
				return fmt.Errorf("burst: %w", err)
			}
			v.Burst = i
		}
	}
	return nil
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
