// Package entityenv loads the per-entity process configuration shared by
// cmd/pps-server, cmd/pps-stdio, and cmd/ppsctl, following the teacher's
// main.go loadConfig/firstNonEmpty/intFromEnv idiom (godotenv + os.Getenv,
// not a struct-tag binding library).
package entityenv

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config bundles every PPS_* / spec-named environment variable (SPEC_FULL.md
// §6) a pattern-persistence process needs to open its layer stores and bind
// its transport surface.
type Config struct {
	EntityPath        string
	ClaudeHome        string
	PrimaryEntityName string

	LogLevel string

	CapturePath string // CLAUDE_HOME-relative sqlite file (L1+L4+L5)

	QdrantURL        string
	QdrantCollection string
	AnchorsDir       string

	GraphDSN string

	EmbeddingsHost       string
	EmbeddingsAPIKey     string
	EmbeddingsModel      string
	EmbeddingsDimensions int

	CompletionsHost   string
	CompletionsModel  string
	CompletionsAPIKey string

	HTTPPort int
}

// Load reads .env (if present) and the process environment into a Config,
// applying the teacher's defaulting style (first-non-empty, int-from-env).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		EntityPath:        strings.TrimSpace(os.Getenv("ENTITY_PATH")),
		ClaudeHome:        strings.TrimSpace(os.Getenv("CLAUDE_HOME")),
		PrimaryEntityName: strings.TrimSpace(os.Getenv("PRIMARY_ENTITY_NAME")),
		LogLevel:          firstNonEmpty(strings.TrimSpace(os.Getenv("PPS_LOG_LEVEL")), "info"),

		QdrantURL:        strings.TrimSpace(os.Getenv("PPS_QDRANT_URL")),
		QdrantCollection: firstNonEmpty(strings.TrimSpace(os.Getenv("PPS_QDRANT_COLLECTION")), "anchors"),

		GraphDSN: strings.TrimSpace(os.Getenv("PPS_GRAPH_DSN")),

		EmbeddingsHost:       strings.TrimSpace(os.Getenv("PPS_EMBEDDINGS_HOST")),
		EmbeddingsAPIKey:     strings.TrimSpace(os.Getenv("PPS_EMBEDDINGS_API_KEY")),
		EmbeddingsModel:      firstNonEmpty(strings.TrimSpace(os.Getenv("PPS_EMBEDDINGS_MODEL")), "text-embedding-3-small"),
		EmbeddingsDimensions: intFromEnv("PPS_EMBEDDINGS_DIMENSIONS", 1536),

		CompletionsHost:   strings.TrimSpace(os.Getenv("PPS_COMPLETIONS_HOST")),
		CompletionsModel:  strings.TrimSpace(os.Getenv("PPS_COMPLETIONS_MODEL")),
		CompletionsAPIKey: strings.TrimSpace(os.Getenv("PPS_COMPLETIONS_API_KEY")),

		HTTPPort: intFromEnv("PPS_HTTP_PORT", 8201),
	}

	if cfg.ClaudeHome == "" {
		return nil, fmt.Errorf("CLAUDE_HOME is required (set in .env or environment)")
	}
	if cfg.EntityPath == "" {
		return nil, fmt.Errorf("ENTITY_PATH is required (set in .env or environment)")
	}

	cfg.CapturePath = filepath.Join(cfg.ClaudeHome, "pattern-persistence.sqlite")
	cfg.AnchorsDir = filepath.Join(cfg.EntityPath, "anchors")
	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func intFromEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
