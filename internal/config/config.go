package config

import (
	"github.com/drivetrace/backend/internal/util"
	"github.com/drivetrace/backend/pkg/domain"
)

// Config is the process-wide configuration, built once at startup from the
// environment and passed explicitly to every component. It is never
// mutated after Load returns.
type Config struct {
	Debug bool

	DatabaseURL   string
	MigrationsDir string

	// Embedding provider. Dimension is a deployment-wide constant recorded
	// alongside the vector store schema; changing it invalidates every
	// stored embedding and requires a full re-embed.
	AIAdapter      string
	EmbedModel     string
	EmbedURL       string
	EmbedKey       string
	EmbedDimension int

	// Model-assisted extraction (optional; pattern extraction always runs).
	ExtractModel   string
	ExtractURL     string
	ExtractKey     string
	ExtractEnabled bool

	// Chunking window.
	ChunkMinTokens     int
	ChunkMaxTokens     int
	ChunkOverlapTokens int
	TokenEncoder       string

	// Concurrency and retries.
	ParallelDocuments  int
	EmbedConcurrency   int
	EmbedBatchSize     int
	ProviderMaxRetries int

	ConfidenceThreshold float64

	RabbitURL string
	S3Bucket  string
}

// Load builds a Config from the environment. It returns a ConfigError for
// settings that would corrupt stored data, such as a non-positive
// embedding dimension.
func Load() (*Config, error) {
	cfg := &Config{
		Debug: util.GetEnvBool("DEBUG", false),

		DatabaseURL:   util.GetEnv("DATABASE_URL"),
		MigrationsDir: util.GetEnvString("MIGRATIONS_DIR", "migrations"),

		AIAdapter:      util.GetEnvString("AI_ADAPTER", "openai"),
		EmbedModel:     util.GetEnvString("AI_EMBED_MODEL", "text-embedding-3-small"),
		EmbedURL:       util.GetEnv("AI_EMBED_URL"),
		EmbedKey:       util.GetEnv("AI_EMBED_KEY"),
		EmbedDimension: util.GetEnvInt("AI_EMBED_DIM", 1536),

		ExtractModel:   util.GetEnv("AI_EXTRACT_MODEL"),
		ExtractURL:     util.GetEnv("AI_EXTRACT_URL"),
		ExtractKey:     util.GetEnv("AI_EXTRACT_KEY"),
		ExtractEnabled: util.GetEnvBool("AI_EXTRACT_ENABLED", true),

		ChunkMinTokens:     util.GetEnvInt("CHUNK_MIN_TOKENS", 200),
		ChunkMaxTokens:     util.GetEnvInt("CHUNK_MAX_TOKENS", 500),
		ChunkOverlapTokens: util.GetEnvInt("CHUNK_OVERLAP_TOKENS", 50),
		TokenEncoder:       util.GetEnvString("TOKEN_ENCODER", "cl100k_base"),

		ParallelDocuments:  util.GetEnvInt("PARALLEL_DOCUMENTS", 4),
		EmbedConcurrency:   util.GetEnvInt("EMBED_CONCURRENCY", 4),
		EmbedBatchSize:     util.GetEnvInt("EMBED_BATCH_SIZE", 64),
		ProviderMaxRetries: util.GetEnvInt("PROVIDER_MAX_RETRIES", 3),

		ConfidenceThreshold: float64(util.GetEnvInt("CONFIDENCE_THRESHOLD_PCT", 50)) / 100,

		RabbitURL: util.GetEnv("RABBITMQ_URL"),
		S3Bucket:  util.GetEnv("AWS_BUCKET"),
	}

	if cfg.EmbedDimension <= 0 {
		return nil, domain.NewConfigError("embedding dimension must be positive, got %d", cfg.EmbedDimension)
	}
	if cfg.ChunkMaxTokens <= 0 || cfg.ChunkMinTokens <= 0 || cfg.ChunkMinTokens > cfg.ChunkMaxTokens {
		return nil, domain.NewConfigError(
			"invalid chunk window: min=%d max=%d", cfg.ChunkMinTokens, cfg.ChunkMaxTokens)
	}
	if cfg.ChunkOverlapTokens < 0 || cfg.ChunkOverlapTokens >= cfg.ChunkMaxTokens {
		return nil, domain.NewConfigError(
			"chunk overlap %d must be smaller than the max window %d",
			cfg.ChunkOverlapTokens, cfg.ChunkMaxTokens)
	}
	if cfg.AIAdapter != "openai" && cfg.AIAdapter != "ollama" {
		return nil, domain.NewConfigError("unknown AI adapter %q", cfg.AIAdapter)
	}
	if cfg.AIAdapter == "openai" && cfg.EmbedKey == "" {
		return nil, domain.NewConfigError("AI_EMBED_KEY is required for the openai adapter")
	}

	return cfg, nil
}
