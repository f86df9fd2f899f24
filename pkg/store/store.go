// Package store defines the persistence interfaces for the vector side
// (documents, chunks, embeddings, full-text) and the graph side (entity
// nodes, relationship edges). Searches only ever see documents whose
// completion marker is set; the marker substitutes for cross-store
// atomicity between the two sides.
package store

import (
	"context"
	"time"

	"github.com/drivetrace/backend/pkg/domain"
)

// Filter narrows search candidates by document metadata. The same filter
// is applied to the vector and lexical branches so fused ranks compare
// like with like. Zero-value fields do not constrain.
type Filter struct {
	ContentTypes   []domain.ContentType
	VehicleSystems []domain.VehicleSystem
	IngestedAfter  time.Time
	IngestedBefore time.Time
}

// ScoredChunk is one ranked search hit. Score semantics differ per branch
// (cosine similarity, lexical rank score); callers fuse by rank, not by
// raw score. Document metadata rides along for tie-breaking and display.
type ScoredChunk struct {
	Chunk      domain.Chunk
	Score      float64
	DocumentID string
	IngestedAt time.Time
}

// Neighbor is one node reached by graph traversal, with the edge that
// reached it and its hop distance from the origin.
type Neighbor struct {
	Entity domain.Entity
	Edge   domain.Relationship
	Depth  int
}

// VectorStore persists documents, chunks and embeddings, and answers
// nearest-neighbor and lexical queries over completed documents.
type VectorStore interface {
	CreateDocument(ctx context.Context, doc *domain.Document) error
	FindDocumentByHash(ctx context.Context, fileHash string) (*domain.Document, error)
	GetDocument(ctx context.Context, publicID string) (*domain.Document, error)
	MarkDocumentStatus(ctx context.Context, publicID string, status domain.ProcessingStatus, reason string) error
	CompleteDocument(ctx context.Context, publicID string, chunkCount int) error
	DeleteDocumentData(ctx context.Context, publicID string) error

	UpsertChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error
	Nearest(ctx context.Context, embedding []float32, k int, filter Filter) ([]ScoredChunk, error)
	Lexical(ctx context.Context, query string, k int, filter Filter) ([]ScoredChunk, error)
	ChunksByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error)
}

// GraphStore persists entities and append-only relationship edges, and
// answers traversal and temporal queries. Upserts are idempotent on the
// identity keys: (type, lower(name), document) for entities and
// (type, endpoints, document) for edges.
type GraphStore interface {
	UpsertEntity(ctx context.Context, entity *domain.Entity) error
	UpsertRelationship(ctx context.Context, rel *domain.Relationship) error

	Neighbors(ctx context.Context, entityName string, relTypes []domain.RelationType, maxDepth int) ([]Neighbor, error)
	EventsInWindow(ctx context.Context, entityName string, start, end time.Time) ([]domain.TimelineEvent, error)
	EntitiesByName(ctx context.Context, name string) ([]domain.Entity, error)
	EntitiesByChunk(ctx context.Context, chunkID string) ([]domain.Entity, error)

	DeleteDocumentData(ctx context.Context, documentID string) error
}
