// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Env         string
	ListenAddr  string
	MetricsAddr string

	// StorageUrl: when unset, the dispatcher operates in inline-only mode
	// (no cache, no queue, no login).
	StorageUrl          string
	TokenSigningSecret  string
	TrustedProxyIps     []string
	RateLimitStorageUrl string

	SyncThreshold           int
	WorkerPollSeconds       int
	WorkerCount             int
	CleanupEveryNLoops      int
	JobRetentionDays        int
	EvidenceRetentionMonths int // 0 = never purge
	MatchThreshold          int
	SuggestionThreshold     int
	MatcherDeadlineSeconds  int
	ValidityDays            int

	InternalApiKey      string
	InternalIpAllowlist []string

	RefreshAdvisoryLockKey int64

	SanctionsSnapshotPath string
	PEPSnapshotPath       string

	LogLevel  string
	LogFormat string

	JWTSigningSecret string
	JWTIssuer        string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		out, err := strconv.Atoi(v)
		if err == nil {
			return out
		}
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		out, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return out
		}
	}
	return def
}

func getenvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads configuration from the environment. It does not fail when
// StorageUrl is unset — that is the documented trigger for inline-only mode
// — but does fail when storage is configured without a signing secret of
// sufficient length.
func Load() (Config, error) {
	cfg := Config{
		Env:         getenv("APP_ENV", "development"),
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),
		MetricsAddr: getenv("METRICS_ADDR", ":9090"),

		StorageUrl:          os.Getenv("STORAGE_URL"),
		TokenSigningSecret:  os.Getenv("TOKEN_SIGNING_SECRET"),
		TrustedProxyIps:     getenvList("TRUSTED_PROXY_IPS"),
		RateLimitStorageUrl: os.Getenv("RATE_LIMIT_STORAGE_URL"),

		SyncThreshold:           getenvInt("SYNC_THRESHOLD", 5),
		WorkerPollSeconds:       getenvInt("WORKER_POLL_SECONDS", 5),
		WorkerCount:             getenvInt("WORKER_COUNT", 1),
		CleanupEveryNLoops:      getenvInt("CLEANUP_EVERY_N_LOOPS", 50),
		JobRetentionDays:        getenvInt("JOB_RETENTION_DAYS", 7),
		EvidenceRetentionMonths: getenvInt("EVIDENCE_RETENTION_MONTHS", 0),
		MatchThreshold:          getenvInt("MATCH_THRESHOLD", 75),
		SuggestionThreshold:     getenvInt("SUGGESTION_THRESHOLD", 60),
		MatcherDeadlineSeconds:  getenvInt("MATCHER_DEADLINE_SECONDS", 30),
		ValidityDays:            getenvInt("VALIDITY_DAYS", 365),

		InternalApiKey:      os.Getenv("INTERNAL_API_KEY"),
		InternalIpAllowlist: getenvList("INTERNAL_IP_ALLOWLIST"),

		RefreshAdvisoryLockKey: getenvInt64("REFRESH_ADVISORY_LOCK_KEY", 8824001),

		SanctionsSnapshotPath: getenv("SANCTIONS_SNAPSHOT_PATH", ""),
		PEPSnapshotPath:       getenv("PEP_SNAPSHOT_PATH", ""),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		JWTSigningSecret: getenv("JWT_SIGNING_SECRET", os.Getenv("TOKEN_SIGNING_SECRET")),
		JWTIssuer:        getenv("JWT_ISSUER", "screenguard"),
	}

	if cfg.StorageUrl != "" && len(cfg.TokenSigningSecret) < 32 {
		return cfg, fmt.Errorf("TOKEN_SIGNING_SECRET must be at least 32 characters when STORAGE_URL is set")
	}

	return cfg, nil
}

// InlineOnly reports whether the dispatcher must operate without a cache,
// queue, or login backend.
func (c Config) InlineOnly() bool { return c.StorageUrl == "" }

// InternalAPIEnabled reports whether the internal bulk API is usable: it
// requires an API key, an IP allowlist, or both; with neither it stays disabled.
func (c Config) InternalAPIEnabled() bool {
	return c.InternalApiKey != "" || len(c.InternalIpAllowlist) > 0
}
