package pgx

import (
	"context"
	"errors"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/drivetrace/backend/internal/util"
	"github.com/drivetrace/backend/pkg/domain"
	"github.com/drivetrace/backend/pkg/store"
)

// UpsertChunks replaces the chunk set of a document inside one
// transaction. Every embedding must match the provisioned dimension.
func (s *Store) UpsertChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	for i := range chunks {
		if len(chunks[i].Embedding) != s.dimension {
			return domain.NewConfigError(
				"embedding dimension mismatch: chunk has %d, store has %d",
				len(chunks[i].Embedding), s.dimension,
			)
		}
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	defer tx.Rollback(ctx)

	var docID int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM documents WHERE public_id = $1`, documentID).Scan(&docID)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return domain.ErrDocumentNotFound
	}
	if err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM chunks WHERE document_id = $1`, docID); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}

	for i := range chunks {
		chunk := &chunks[i]
		if chunk.PublicID == "" {
			chunk.PublicID = newID()
		}
		chunk.DocumentID = documentID
		_, err := tx.Exec(ctx, `
			INSERT INTO chunks (
				public_id, document_id, chunk_index, content, content_hash,
				start_char, end_char, token_count, embedding,
				has_dtc_codes, has_version_info, has_component_info
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			chunk.PublicID, docID, chunk.Index,
			util.SanitizePostgresText(chunk.Content), chunk.ContentHash,
			chunk.StartChar, chunk.EndChar, chunk.TokenCount,
			pgvector.NewVector(chunk.Embedding),
			chunk.HasDTCCodes, chunk.HasVersionInfo, chunk.HasComponentInfo,
		)
		if err != nil {
			return fmt.Errorf("upsert chunks: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ChunksByDocument returns a document's chunks in ordinal order.
func (s *Store) ChunksByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT c.public_id, c.chunk_index, c.content, c.content_hash,
		       c.start_char, c.end_char, c.token_count, c.embedding,
		       c.has_dtc_codes, c.has_version_info, c.has_component_info
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.public_id = $1
		ORDER BY c.chunk_index
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("chunks by document: %w", err)
	}
	defer rows.Close()

	var out []domain.Chunk
	for rows.Next() {
		var chunk domain.Chunk
		var embedding pgvector.Vector
		err := rows.Scan(
			&chunk.PublicID, &chunk.Index, &chunk.Content, &chunk.ContentHash,
			&chunk.StartChar, &chunk.EndChar, &chunk.TokenCount, &embedding,
			&chunk.HasDTCCodes, &chunk.HasVersionInfo, &chunk.HasComponentInfo,
		)
		if err != nil {
			return nil, fmt.Errorf("chunks by document: %w", err)
		}
		chunk.DocumentID = documentID
		chunk.Embedding = embedding.Slice()
		out = append(out, chunk)
	}
	return out, rows.Err()
}

// filterClause appends the filter's conditions to args and returns the
// SQL fragment referencing them. The fragment starts with AND.
func filterClause(filter store.Filter, args []any) (string, []any) {
	clause := ""
	if len(filter.ContentTypes) > 0 {
		types := make([]string, 0, len(filter.ContentTypes))
		for _, t := range filter.ContentTypes {
			types = append(types, string(t))
		}
		args = append(args, types)
		clause += fmt.Sprintf(" AND d.content_type = ANY($%d)", len(args))
	}
	if len(filter.VehicleSystems) > 0 {
		systems := make([]string, 0, len(filter.VehicleSystems))
		for _, v := range filter.VehicleSystems {
			systems = append(systems, string(v))
		}
		args = append(args, systems)
		clause += fmt.Sprintf(" AND d.vehicle_system = ANY($%d)", len(args))
	}
	if !filter.IngestedAfter.IsZero() {
		args = append(args, filter.IngestedAfter)
		clause += fmt.Sprintf(" AND d.ingested_at >= $%d", len(args))
	}
	if !filter.IngestedBefore.IsZero() {
		args = append(args, filter.IngestedBefore)
		clause += fmt.Sprintf(" AND d.ingested_at <= $%d", len(args))
	}
	return clause, args
}

const scoredChunkColumns = `
	c.public_id, c.chunk_index, c.content, c.content_hash,
	c.start_char, c.end_char, c.token_count,
	c.has_dtc_codes, c.has_version_info, c.has_component_info,
	d.public_id, d.ingested_at`

func scanScoredChunks(rows pgxv5.Rows) ([]store.ScoredChunk, error) {
	defer rows.Close()
	var out []store.ScoredChunk
	for rows.Next() {
		var hit store.ScoredChunk
		err := rows.Scan(
			&hit.Chunk.PublicID, &hit.Chunk.Index, &hit.Chunk.Content, &hit.Chunk.ContentHash,
			&hit.Chunk.StartChar, &hit.Chunk.EndChar, &hit.Chunk.TokenCount,
			&hit.Chunk.HasDTCCodes, &hit.Chunk.HasVersionInfo, &hit.Chunk.HasComponentInfo,
			&hit.DocumentID, &hit.IngestedAt, &hit.Score,
		)
		if err != nil {
			return nil, err
		}
		hit.Chunk.DocumentID = hit.DocumentID
		out = append(out, hit)
	}
	return out, rows.Err()
}

// Nearest returns the k chunks closest to the embedding by cosine
// distance, restricted to completed documents passing the filter.
func (s *Store) Nearest(ctx context.Context, embedding []float32, k int, filter store.Filter) ([]store.ScoredChunk, error) {
	args := []any{pgvector.NewVector(embedding)}
	clause, args := filterClause(filter, args)
	args = append(args, k)

	rows, err := s.conn.Query(ctx, `
		SELECT`+scoredChunkColumns+`,
		       1 - (c.embedding <=> $1) AS score
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.processing_status = 'completed'
		  AND c.embedding IS NOT NULL`+clause+`
		ORDER BY c.embedding <=> $1, d.ingested_at DESC, c.public_id
		LIMIT $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("nearest: %w", err)
	}
	hits, err := scanScoredChunks(rows)
	if err != nil {
		return nil, fmt.Errorf("nearest: %w", err)
	}
	return hits, nil
}

// Lexical returns the k chunks best matching the query by full-text rank,
// restricted to completed documents passing the filter.
func (s *Store) Lexical(ctx context.Context, query string, k int, filter store.Filter) ([]store.ScoredChunk, error) {
	args := []any{query}
	clause, args := filterClause(filter, args)
	args = append(args, k)

	rows, err := s.conn.Query(ctx, `
		SELECT`+scoredChunkColumns+`,
		       ts_rank(c.content_tsv, plainto_tsquery('english', $1)) AS score
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.processing_status = 'completed'
		  AND c.content_tsv @@ plainto_tsquery('english', $1)`+clause+`
		ORDER BY score DESC, d.ingested_at DESC, c.public_id
		LIMIT $`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("lexical: %w", err)
	}
	hits, err := scanScoredChunks(rows)
	if err != nil {
		return nil, fmt.Errorf("lexical: %w", err)
	}
	return hits, nil
}
