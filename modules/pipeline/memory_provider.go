package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	pgvector "github.com/pgvector/pgvector-go"

	"chronicle/server/modules/conversation/domain/entities"
)

// FactExtractor pulls atomic facts worth remembering out of a
// transcript. AnyLLMClient.ExtractFacts implements this.
type FactExtractor interface {
	ExtractFacts(ctx context.Context, transcript string) ([]string, error)
}

// Embedder turns text into a fixed-dimension vector for similarity
// search. No pack repo grounds a concrete any-llm-go embeddings call —
// none of the example repos show that surface — so this stays an
// injected interface rather than a guessed API against a real SDK;
// whichever embedding backend is configured at deploy time satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PgvectorMemoryProvider implements MemoryProvider (job M, §4.I): it
// extracts facts from a transcript via an LLM, embeds each one, and
// upserts them into a pgvector-indexed Postgres table, returning the
// upserted Facts so job M can report how many memories it produced.
//
// Grounded on the L2 semantic index shape in
// MrWong99-glyphoxa/pkg/memory/postgres/semantic_index.go: a single
// pgxpool.Pool with pgvector types registered via AfterConnect, chunks
// upserted with ON CONFLICT DO UPDATE, embeddings round-tripped through
// pgvector.NewVector.
type PgvectorMemoryProvider struct {
	pool      *pgxpool.Pool
	extractor FactExtractor
	embedder  Embedder
	name      string
}

// NewPgvectorMemoryProvider builds a provider against an existing pool
// (already configured with pgxvec.RegisterTypes on connect, per
// NewPgvectorMemoryPool) and ensures the facts table exists.
func NewPgvectorMemoryProvider(ctx context.Context, pool *pgxpool.Pool, extractor FactExtractor, embedder Embedder, embeddingDimensions int) (*PgvectorMemoryProvider, error) {
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS facts (
    id         TEXT         PRIMARY KEY,
    user_id    TEXT         NOT NULL,
    text       TEXT         NOT NULL,
    embedding  vector(%d),
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_facts_user_id ON facts (user_id);
CREATE INDEX IF NOT EXISTS idx_facts_embedding
    ON facts USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("pgvector memory provider: migrate: %w", err)
	}
	return &PgvectorMemoryProvider{pool: pool, extractor: extractor, embedder: embedder, name: "pgvector"}, nil
}

// NewPgvectorMemoryPool opens a connection pool at dsn with pgvector
// types registered on every connection, mirroring Store.NewStore's
// AfterConnect hook.
func NewPgvectorMemoryPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector memory pool: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgvector memory pool: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector memory pool: ping: %w", err)
	}
	return pool, nil
}

func (p *PgvectorMemoryProvider) Name() string { return p.name }

func (p *PgvectorMemoryProvider) Extract(ctx context.Context, userID, transcript string, segments []entities.Segment) ([]Fact, error) {
	raw, err := p.extractor.ExtractFacts(ctx, transcript)
	if err != nil {
		return nil, fmt.Errorf("extract facts: %w", err)
	}

	facts := make([]Fact, 0, len(raw))
	for _, text := range raw {
		embedding, err := p.embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed fact: %w", err)
		}

		fact := Fact{
			ID:        uuid.NewString(),
			Text:      text,
			CreatedAt: time.Now(),
		}
		if _, err := p.pool.Exec(ctx, `
			INSERT INTO facts (id, user_id, text, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
			    text      = EXCLUDED.text,
			    embedding = EXCLUDED.embedding`,
			fact.ID, userID, fact.Text, pgvector.NewVector(embedding), fact.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("upsert fact: %w", err)
		}
		facts = append(facts, fact)
	}
	return facts, nil
}
