package pipeline

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"chronicle/server/modules/conversation/domain/entities"
)

type fakeFactExtractor struct {
	facts []string
}

func (f *fakeFactExtractor) ExtractFacts(ctx context.Context, transcript string) ([]string, error) {
	return f.facts, nil
}

type fakeEmbedder struct{ dim int }

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, e.dim)
	for i := range v {
		v[i] = float32(len(text)+i) / 100
	}
	return v, nil
}

// testPostgresDSN returns the integration test DSN, skipping the test
// when it isn't configured — there is no in-memory pgvector fake, so
// this exercises the real driver only when a database is available.
func testPostgresDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CHRONICLE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHRONICLE_TEST_POSTGRES_DSN not set — skipping pgvector integration test")
	}
	return dsn
}

func TestPgvectorMemoryProvider_Extract(t *testing.T) {
	ctx := context.Background()
	dsn := testPostgresDSN(t)

	pool, err := NewPgvectorMemoryPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	provider, err := NewPgvectorMemoryProvider(ctx, pool, &fakeFactExtractor{
		facts: []string{"likes hiking on weekends", "is planning a trip to Japan"},
	}, &fakeEmbedder{dim: 4}, 4)
	require.NoError(t, err)

	facts, err := provider.Extract(ctx, "user-1", "transcript text", []entities.Segment{})
	require.NoError(t, err)
	require.Len(t, facts, 2)
	require.Equal(t, "likes hiking on weekends", facts[0].Text)
}
