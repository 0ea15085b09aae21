// Package config loads the process-wide Config from the environment,
// following the same typed-struct-plus-constructor shape the rest of the
// stack uses for its own defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-sourced setting the composition root needs
// to wire up the KV facade, durable queue, task repository, coordinator and
// webhook router.
type Config struct {
	// Cloudflare Workers KV (primary L2 cache provider).
	CFKVAccountID   string
	CFKVNamespaceID string
	CFKVAPIToken    string

	// Upstash Redis REST (backup L2 cache provider).
	UpstashRedisRESTURL   string
	UpstashRedisRESTToken string

	// Cloudflare D1 (task repository backing store).
	CFD1AccountID  string
	CFD1DatabaseID string
	CFD1APIToken   string

	// Durable-queue publish target and signing secret.
	QueueWebhookBase string
	QueueSigningKey  string

	// Local filesystem.
	DownloadDir  string
	RemoteFolder string

	// HTTP surface.
	Port int

	// Access control.
	OwnerID    string
	AccessMode string

	// Tuning, with defaults matching spec.md §4/§5/§9.
	LeaderLockTTL       time.Duration
	TaskLockTTL         time.Duration
	HeartbeatInterval   time.Duration
	WriteCoalesceWindow time.Duration
	GroupWindow         time.Duration
	GroupMaxWait        time.Duration
	CircuitBreakerOpen  time.Duration
}

// Load builds a Config from the process environment, applying the defaults
// spec.md's design notes call out where a variable is unset.
func Load() (*Config, error) {
	cfg := &Config{
		CFKVAccountID:         os.Getenv("CF_KV_ACCOUNT_ID"),
		CFKVNamespaceID:       os.Getenv("CF_KV_NAMESPACE_ID"),
		CFKVAPIToken:          os.Getenv("CF_KV_API_TOKEN"),
		UpstashRedisRESTURL:   os.Getenv("UPSTASH_REDIS_REST_URL"),
		UpstashRedisRESTToken: os.Getenv("UPSTASH_REDIS_REST_TOKEN"),
		CFD1AccountID:         os.Getenv("CF_D1_ACCOUNT_ID"),
		CFD1DatabaseID:        os.Getenv("CF_D1_DATABASE_ID"),
		CFD1APIToken:          os.Getenv("CF_D1_API_TOKEN"),
		QueueWebhookBase:      os.Getenv("QUEUE_WEBHOOK_BASE"),
		QueueSigningKey:       os.Getenv("QUEUE_SIGNING_KEY"),
		DownloadDir:           envOrDefault("DOWNLOAD_DIR", "/var/lib/botcore/downloads"),
		RemoteFolder:          envOrDefault("REMOTE_FOLDER", "media"),
		OwnerID:               os.Getenv("OWNER_ID"),
		AccessMode:            envOrDefault("ACCESS_MODE", "owner_only"),

		LeaderLockTTL:       30 * time.Second,
		TaskLockTTL:         5 * time.Minute,
		HeartbeatInterval:   10 * time.Second,
		WriteCoalesceWindow: time.Second,
		GroupWindow:         2 * time.Second,
		GroupMaxWait:        5 * time.Second,
		CircuitBreakerOpen:  60 * time.Second,
	}

	port, err := intEnv("PORT", 8080)
	if err != nil {
		return nil, err
	}
	cfg.Port = port

	if cfg.CFKVAccountID == "" || cfg.CFKVAPIToken == "" {
		return nil, fmt.Errorf("config: CF_KV_ACCOUNT_ID and CF_KV_API_TOKEN are required")
	}
	if cfg.CFD1AccountID == "" || cfg.CFD1APIToken == "" {
		return nil, fmt.Errorf("config: CF_D1_ACCOUNT_ID and CF_D1_API_TOKEN are required")
	}
	if cfg.QueueWebhookBase == "" || cfg.QueueSigningKey == "" {
		return nil, fmt.Errorf("config: QUEUE_WEBHOOK_BASE and QUEUE_SIGNING_KEY are required")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s=%q: %w", key, v, err)
	}
	return n, nil
}
