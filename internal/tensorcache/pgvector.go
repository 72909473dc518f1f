package tensorcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/example/face-verify/internal/domain"
	"github.com/example/face-verify/internal/embedding"
)

// PgxPool is the subset of *pgxpool.Pool the store needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGVectorStore keeps entries in a Postgres table with a pgvector column.
type PGVectorStore struct {
	pool PgxPool
}

func NewPGVectorStore(pool PgxPool) *PGVectorStore {
	return &PGVectorStore{pool: pool}
}

// EnsureSchema creates the vector extension and the entries table.
func (s *PGVectorStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	query := `
		CREATE TABLE IF NOT EXISTS face_tensors (
			name TEXT PRIMARY KEY,
			embedding vector NOT NULL,
			dimension INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create face_tensors table: %w", err)
	}
	return nil
}

func (s *PGVectorStore) Put(ctx context.Context, name string, v embedding.Vector) error {
	query := `
		INSERT INTO face_tensors (name, embedding, dimension, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (name) DO UPDATE
		SET embedding = EXCLUDED.embedding, dimension = EXCLUDED.dimension, updated_at = NOW()
	`

	_, err := s.pool.Exec(ctx, query, name, pgvector.NewVector(v.Values()), v.Dim())
	if err != nil {
		return fmt.Errorf("upsert face tensor: %w", err)
	}
	return nil
}

func (s *PGVectorStore) Get(ctx context.Context, name string) (embedding.Vector, error) {
	query := `
		SELECT embedding, dimension
		FROM face_tensors
		WHERE name = $1
	`

	var (
		vec *pgvector.Vector
		dim int
	)
	err := s.pool.QueryRow(ctx, query, name).Scan(&vec, &dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return embedding.Vector{}, domain.ErrNotFound.WithMessage("cache entry %q", name)
	}
	if err != nil {
		return embedding.Vector{}, fmt.Errorf("get face tensor: %w", err)
	}

	if vec == nil || len(vec.Slice()) != dim {
		return embedding.Vector{}, domain.ErrCorruptArtifact.WithMessage("entry %q: stored dimension %d does not match vector", name, dim)
	}
	v := embedding.New(vec.Slice())
	if !v.Finite() {
		return embedding.Vector{}, domain.ErrCorruptArtifact.WithMessage("entry %q has non-finite values", name)
	}
	return v, nil
}
