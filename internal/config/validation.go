package config

import "fmt"

// Validate checks the configuration for values that would fail at runtime.
// It returns the first problem found, wrapped around a sentinel error so
// callers can branch with errors.Is.
func (c *Config) Validate() error {
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range 1-65535", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: dbname must not be empty", ErrInvalidPostgresDBName)
	}

	if c.Embedding.Dimension != DimensionMiniLM && c.Embedding.Dimension != DimensionLarge {
		return fmt.Errorf("%w: %d (supported: %d, %d)",
			ErrInvalidDimension, c.Embedding.Dimension, DimensionMiniLM, DimensionLarge)
	}
	if c.Embedding.BatchSize < 1 || c.Embedding.BatchSize > 256 {
		return fmt.Errorf("%w: %d out of range 1-256", ErrInvalidBatchSize, c.Embedding.BatchSize)
	}
	if c.Embedding.Timeout <= 0 {
		return fmt.Errorf("%w: embedding timeout must be positive", ErrInvalidTimeout)
	}

	if c.Generation.Timeout <= 0 {
		return fmt.Errorf("%w: generation timeout must be positive", ErrInvalidTimeout)
	}

	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 100 {
		return fmt.Errorf("%w: %d out of range 1-100", ErrInvalidTopK, c.Retrieval.TopK)
	}

	if c.Ingestion.ChunkSize < 50 || c.Ingestion.ChunkSize > 20000 {
		return fmt.Errorf("%w: %d out of range 50-20000", ErrInvalidChunkSize, c.Ingestion.ChunkSize)
	}
	if c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be non-negative and smaller than chunk size %d",
			ErrInvalidChunkSize, c.Ingestion.ChunkOverlap, c.Ingestion.ChunkSize)
	}

	return nil
}
