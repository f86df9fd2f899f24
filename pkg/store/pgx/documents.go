package pgx

import (
	"context"
	"errors"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/drivetrace/backend/internal/util"
	"github.com/drivetrace/backend/pkg/domain"
)

const documentColumns = `
	d.public_id, d.filename, d.title, d.content_type, d.file_hash,
	d.vehicle_system, d.component_name, d.supplier, d.model_years,
	d.vin_patterns, d.severity, d.processing_status, d.failure_reason,
	d.chunk_count, d.ingested_at`

func scanDocument(row pgxv5.Row) (*domain.Document, error) {
	var doc domain.Document
	var years []int32
	err := row.Scan(
		&doc.PublicID, &doc.Filename, &doc.Title, &doc.ContentType, &doc.FileHash,
		&doc.VehicleSystem, &doc.ComponentName, &doc.Supplier, &years,
		&doc.VINPatterns, &doc.Severity, &doc.Status, &doc.FailureReason,
		&doc.ChunkCount, &doc.IngestedAt,
	)
	if err != nil {
		return nil, err
	}
	for _, y := range years {
		doc.ModelYears = append(doc.ModelYears, int(y))
	}
	return &doc, nil
}

// CreateDocument inserts a new document record in pending state. A missing
// public ID is filled in; the ingestion timestamp comes from the database.
func (s *Store) CreateDocument(ctx context.Context, doc *domain.Document) error {
	if doc.PublicID == "" {
		doc.PublicID = newID()
	}
	years := make([]int32, 0, len(doc.ModelYears))
	for _, y := range doc.ModelYears {
		years = append(years, int32(y))
	}
	vins := doc.VINPatterns
	if vins == nil {
		vins = []string{}
	}

	err := s.conn.QueryRow(ctx, `
		INSERT INTO documents (
			public_id, filename, title, content_type, file_hash,
			vehicle_system, component_name, supplier, model_years,
			vin_patterns, severity, processing_status, failure_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ingested_at
	`,
		doc.PublicID, doc.Filename, util.SanitizePostgresText(doc.Title), string(doc.ContentType), doc.FileHash,
		string(doc.VehicleSystem), doc.ComponentName, doc.Supplier, years,
		vins, string(doc.Severity), string(doc.Status), doc.FailureReason,
	).Scan(&doc.IngestedAt)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// FindDocumentByHash looks a document up by its content hash, the
// idempotency key of ingestion.
func (s *Store) FindDocumentByHash(ctx context.Context, fileHash string) (*domain.Document, error) {
	doc, err := scanDocument(s.conn.QueryRow(ctx,
		`SELECT`+documentColumns+` FROM documents d WHERE d.file_hash = $1`, fileHash))
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find document by hash: %w", err)
	}
	return doc, nil
}

// GetDocument returns the document with the given public ID.
func (s *Store) GetDocument(ctx context.Context, publicID string) (*domain.Document, error) {
	doc, err := scanDocument(s.conn.QueryRow(ctx,
		`SELECT`+documentColumns+` FROM documents d WHERE d.public_id = $1`, publicID))
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// MarkDocumentStatus moves a document through its processing states.
func (s *Store) MarkDocumentStatus(ctx context.Context, publicID string, status domain.ProcessingStatus, reason string) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE documents
		SET processing_status = $2, failure_reason = $3
		WHERE public_id = $1
	`, publicID, string(status), reason)
	if err != nil {
		return fmt.Errorf("mark document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// CompleteDocument sets the completion marker that makes the document's
// chunks and graph data visible to queries.
func (s *Store) CompleteDocument(ctx context.Context, publicID string, chunkCount int) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE documents
		SET processing_status = $2, failure_reason = '', chunk_count = $3
		WHERE public_id = $1
	`, publicID, string(domain.StatusCompleted), chunkCount)
	if err != nil {
		return fmt.Errorf("complete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// DeleteDocumentData removes the document row; chunks, entity occurrences
// and edges go with it through cascading deletes. Deleting an unknown
// document is a no-op.
func (s *Store) DeleteDocumentData(ctx context.Context, publicID string) error {
	if _, err := s.conn.Exec(ctx,
		`DELETE FROM documents WHERE public_id = $1`, publicID); err != nil {
		return fmt.Errorf("delete document data: %w", err)
	}
	return nil
}
