// Package config loads conduitd's runtime configuration from environment
// variables (plus an optional .env file for local development).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// RepoRoot is the filesystem directory under which every repository
	// lives at <RepoRoot>/<user>/<repo>.
	RepoRoot string
	// PublicURL is the externally reachable base URL Git LFS clients use
	// to reach the HTTP batch API (embedded in the lfs-authenticate
	// response's "href" field).
	PublicURL string
	// HostKeyPath is where the server's Ed25519 host key is stored,
	// generated on first boot if missing.
	HostKeyPath string
	// ListenAddr is the SSH listener's bind address, e.g. ":2222".
	ListenAddr string

	Env      string
	LogLevel string

	// RedisAddr is host:port for the Asynq task queue.
	RedisAddr string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RepoRoot:    getEnv("CONDUIT_REPO_ROOT", "/var/lib/conduit/repos"),
		PublicURL:   getEnv("CONDUIT_PUBLIC_URL", "http://localhost:8080"),
		HostKeyPath: getEnv("CONDUIT_HOST_KEY_PATH", "/var/lib/conduit/host_key"),
		ListenAddr:  getEnv("CONDUIT_SSH_ADDR", ":2222"),
		Env:         getEnv("CONDUIT_ENV", "development"),
		LogLevel:    getEnv("CONDUIT_LOG_LEVEL", "info"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
	}

	if strings.TrimSpace(cfg.RepoRoot) == "" {
		return nil, fmt.Errorf("CONDUIT_REPO_ROOT must not be empty")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
