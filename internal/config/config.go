// Package config collects the environment knobs for the crates-pro
// binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration. Validation failures are fatal at
// startup only; nothing here is re-read at runtime.
type Config struct {
	// Kafka.
	KafkaBrokers  []string
	KafkaGroupID  string
	MainTopic     string
	AnalysisTopic string
	// ResetKafkaOffset rewinds the group to the log start before consuming.
	ResetKafkaOffset bool

	// Relational stores: the mirror and the cached-view database.
	DatabaseURL string

	// Graph store.
	BoltURL      string
	BoltUser     string
	BoltPassword string
	BoltDatabase string

	// Redis blob cache; empty disables the tier.
	RedisAddr     string
	RedisPassword string

	// MegaBaseURL is joined with relative mega_url event paths.
	MegaBaseURL string

	// Filesystem.
	RepoBaseDir string
	ExportDir   string

	// Upstream crawler token list, comma separated.
	GithubTokens []string

	// Feature flags.
	Import   bool
	Analysis bool
	Package  bool

	// Package task interval.
	PackageInterval time.Duration

	// HTTP API listen address.
	ListenAddr string
}

// Load reads the environment, seeding it from a .env file when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	c := &Config{
		KafkaBrokers:     splitList(getenv("KAFKA_BROKER", "localhost:9092")),
		KafkaGroupID:     getenv("KAFKA_GROUP_ID", "default_group"),
		MainTopic:        os.Getenv("KAFKA_TOPIC"),
		AnalysisTopic:    getenv("KAFKA_ANALYSIS_TOPIC", "ANALYSIS_RESULTS"),
		ResetKafkaOffset: boolFlag("SHOULD_RESET_KAFKA_OFFSET"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		BoltURL:          getenv("TUGRAPH_BOLT_URL", "bolt://localhost:7687"),
		BoltUser:         getenv("TUGRAPH_USER_NAME", "admin"),
		BoltPassword:     os.Getenv("TUGRAPH_USER_PASSWORD"),
		BoltDatabase:     getenv("TUGRAPH_CRATESPRO_DB", "cratespro"),
		RedisAddr:        os.Getenv("REDIS_HOST"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		MegaBaseURL:      getenv("MEGA_BASE_URL", "https://localhost/"),
		RepoBaseDir:      getenv("CRATES_DIR", "/mnt/crates/local_crates_file"),
		ExportDir:        getenv("TUGRAPH_IMPORT_FILES", "./tugraph_import_files_mq"),
		GithubTokens:     splitList(os.Getenv("GITHUB_TOKENS")),
		Import:           boolFlag("CRATES_PRO_IMPORT"),
		Analysis:         boolFlag("CRATES_PRO_ANALYSIS"),
		Package:          boolFlag("CRATES_PRO_PACKAGE"),
		PackageInterval:  time.Hour,
		ListenAddr:       getenv("LISTEN_ADDR", ":8080"),
	}
	if v := os.Getenv("PACKAGE_INTERVAL_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: PACKAGE_INTERVAL_SECONDS: %w", err)
		}
		c.PackageInterval = time.Duration(secs) * time.Second
	}

	if c.Import && c.MainTopic == "" {
		return nil, fmt.Errorf("config: KAFKA_TOPIC is required when import is enabled")
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	return c, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolFlag(key string) bool {
	return os.Getenv(key) == "1"
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
