//go:build integration
// +build integration

package testutil

import (
	"context"
	"testing"
)

// Run with: go test -tags=integration ./internal/testutil -v
func TestSetupPostgres(t *testing.T) {
	tdb := SetupPostgres(t)

	ctx := context.Background()
	if err := tdb.Pool.Ping(ctx); err != nil {
		t.Fatalf("Pool.Ping() = %v", err)
	}

	var hasVector bool
	err := tdb.Pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&hasVector)
	if err != nil {
		t.Fatalf("query pg_extension: %v", err)
	}
	if !hasVector {
		t.Error("pgvector extension not installed")
	}

	for _, table := range []string{"agents", "documents", "document_chunks", "embeddings"} {
		var exists bool
		err := tdb.Pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)", table).Scan(&exists)
		if err != nil {
			t.Fatalf("query information_schema for %s: %v", table, err)
		}
		if !exists {
			t.Errorf("table %s missing after migrations", table)
		}
	}
}
