package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DatabaseURL string // NEGO_DATABASE_URL (required)
	GRPCAddr    string // NEGO_GRPC_ADDR (default ":9090")
	HTTPAddr    string // NEGO_HTTP_ADDR (default ":8080")
	NATSURL     string // NEGO_NATS_URL (optional, empty = no events)
	AuthToken   string // NEGO_AUTH_TOKEN (optional, empty = auth disabled)
	TaskFile    string // NEGO_TASK_FILE (optional, empty = built-in task)

	// Session timing
	TurnTimeout       time.Duration // NEGO_TURN_TIMEOUT (default 5m)
	OnboardingTimeout time.Duration // NEGO_ONBOARDING_TIMEOUT (default 5m)
	ReleaseTimeout    time.Duration // NEGO_RELEASE_TIMEOUT (default 10s)
	PresenceDeadAfter time.Duration // NEGO_PRESENCE_DEAD_AFTER (default 2m)

	// Worker directory
	WorkersURL   string // NEGO_WORKERS_URL (empty = log-only directory)
	WorkersToken string // NEGO_WORKERS_TOKEN

	// Archive settings
	ArchiveInterval   time.Duration // NEGO_ARCHIVE_INTERVAL (default 10m; 0 = disabled)
	ArchiveS3Bucket   string        // NEGO_ARCHIVE_S3_BUCKET (enables S3 when set)
	ArchiveS3Endpoint string        // NEGO_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string        // NEGO_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Key      string        // NEGO_ARCHIVE_S3_KEY (default "nego/sessions.jsonl")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:       os.Getenv("NEGO_DATABASE_URL"),
		GRPCAddr:          envOrDefault("NEGO_GRPC_ADDR", ":9090"),
		HTTPAddr:          envOrDefault("NEGO_HTTP_ADDR", ":8080"),
		NATSURL:           os.Getenv("NEGO_NATS_URL"),
		AuthToken:         os.Getenv("NEGO_AUTH_TOKEN"),
		TaskFile:          os.Getenv("NEGO_TASK_FILE"),
		WorkersURL:        os.Getenv("NEGO_WORKERS_URL"),
		WorkersToken:      os.Getenv("NEGO_WORKERS_TOKEN"),
		ArchiveS3Bucket:   os.Getenv("NEGO_ARCHIVE_S3_BUCKET"),
		ArchiveS3Endpoint: os.Getenv("NEGO_ARCHIVE_S3_ENDPOINT"),
		ArchiveS3Region:   envOrDefault("NEGO_ARCHIVE_S3_REGION", "us-east-1"),
		ArchiveS3Key:      envOrDefault("NEGO_ARCHIVE_S3_KEY", "nego/sessions.jsonl"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("NEGO_DATABASE_URL is required")
	}

	for _, d := range []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"NEGO_TURN_TIMEOUT", "5m", &c.TurnTimeout},
		{"NEGO_ONBOARDING_TIMEOUT", "5m", &c.OnboardingTimeout},
		{"NEGO_RELEASE_TIMEOUT", "10s", &c.ReleaseTimeout},
		{"NEGO_PRESENCE_DEAD_AFTER", "2m", &c.PresenceDeadAfter},
		{"NEGO_ARCHIVE_INTERVAL", "10m", &c.ArchiveInterval},
	} {
		v, err := time.ParseDuration(envOrDefault(d.key, d.fallback))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("%s: must not be negative", d.key)
		}
		*d.dst = v
	}
	if c.TurnTimeout == 0 {
		return nil, fmt.Errorf("NEGO_TURN_TIMEOUT: must be positive")
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
