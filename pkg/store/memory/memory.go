// Package memory implements store.VectorStore and store.GraphStore on
// in-process maps. It backs tests and a database-less local mode; the
// semantics mirror the Postgres implementation, including completed-only
// search visibility.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/drivetrace/backend/pkg/domain"
	"github.com/drivetrace/backend/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Store holds both the vector side and the graph side under one lock.
type Store struct {
	mu sync.RWMutex

	documents map[string]*domain.Document // by public ID
	byHash    map[string]string           // file hash -> public ID
	chunks    map[string][]domain.Chunk   // document ID -> ordered chunks

	entities      map[string]*domain.Entity // by identity key + document
	entityOrder   []string
	relationships []domain.Relationship
	relKeys       map[string]int // identity key + document -> index
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		documents: make(map[string]*domain.Document),
		byHash:    make(map[string]string),
		chunks:    make(map[string][]domain.Chunk),
		entities:  make(map[string]*domain.Entity),
		relKeys:   make(map[string]int),
	}
}

func newID() string {
	id, err := gonanoid.New()
	if err != nil {
		panic(err)
	}
	return id
}

// CreateDocument stores a new document record. A missing public ID and
// ingestion time are filled in.
func (s *Store) CreateDocument(ctx context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.PublicID == "" {
		doc.PublicID = newID()
	}
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = time.Now().UTC()
	}
	copied := *doc
	s.documents[doc.PublicID] = &copied
	s.byHash[doc.FileHash] = doc.PublicID
	return nil
}

// FindDocumentByHash returns the document with the given file hash, or
// ErrDocumentNotFound.
func (s *Store) FindDocumentByHash(ctx context.Context, fileHash string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[fileHash]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	doc := *s.documents[id]
	return &doc, nil
}

// GetDocument returns the document with the given public ID.
func (s *Store) GetDocument(ctx context.Context, publicID string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[publicID]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	copied := *doc
	return &copied, nil
}

// MarkDocumentStatus moves a document through its processing states.
func (s *Store) MarkDocumentStatus(ctx context.Context, publicID string, status domain.ProcessingStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[publicID]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	doc.Status = status
	doc.FailureReason = reason
	return nil
}

// CompleteDocument sets the completion marker; only after this do the
// document's chunks become visible to search.
func (s *Store) CompleteDocument(ctx context.Context, publicID string, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[publicID]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	doc.Status = domain.StatusCompleted
	doc.FailureReason = ""
	doc.ChunkCount = chunkCount
	return nil
}

// DeleteDocumentData removes the document row, its chunks, and every
// entity occurrence and edge it contributed.
func (s *Store) DeleteDocumentData(ctx context.Context, publicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc, ok := s.documents[publicID]; ok {
		delete(s.byHash, doc.FileHash)
		delete(s.documents, publicID)
	}
	delete(s.chunks, publicID)
	s.deleteGraphDataLocked(publicID)
	return nil
}

// UpsertChunks replaces the chunk set of a document. All embeddings must
// share one dimension; a mismatch against already-stored chunks is a
// configuration error.
func (s *Store) UpsertChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.storedDimensionLocked()
	for i := range chunks {
		if dim == 0 {
			dim = len(chunks[i].Embedding)
			continue
		}
		if len(chunks[i].Embedding) != dim {
			return domain.NewConfigError(
				"embedding dimension mismatch: chunk has %d, store has %d",
				len(chunks[i].Embedding), dim,
			)
		}
	}

	stored := make([]domain.Chunk, len(chunks))
	for i, chunk := range chunks {
		if chunk.PublicID == "" {
			chunk.PublicID = newID()
		}
		chunk.DocumentID = documentID
		stored[i] = chunk
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Index < stored[j].Index })
	s.chunks[documentID] = stored
	return nil
}

// ChunksByDocument returns a document's chunks in ordinal order.
func (s *Store) ChunksByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := s.chunks[documentID]
	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)
	return out, nil
}

func (s *Store) storedDimensionLocked() int {
	for _, chunks := range s.chunks {
		for _, chunk := range chunks {
			if len(chunk.Embedding) > 0 {
				return len(chunk.Embedding)
			}
		}
	}
	return 0
}

func (s *Store) passesFilter(doc *domain.Document, filter store.Filter) bool {
	if len(filter.ContentTypes) > 0 {
		ok := false
		for _, ct := range filter.ContentTypes {
			if doc.ContentType == ct {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(filter.VehicleSystems) > 0 {
		ok := false
		for _, vs := range filter.VehicleSystems {
			if doc.VehicleSystem == vs {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !filter.IngestedAfter.IsZero() && doc.IngestedAt.Before(filter.IngestedAfter) {
		return false
	}
	if !filter.IngestedBefore.IsZero() && doc.IngestedAt.After(filter.IngestedBefore) {
		return false
	}
	return true
}

// Nearest ranks chunks of completed, filter-passing documents by cosine
// similarity to the query embedding.
func (s *Store) Nearest(ctx context.Context, embedding []float32, k int, filter store.Filter) ([]store.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []store.ScoredChunk
	for docID, chunks := range s.chunks {
		doc, ok := s.documents[docID]
		if !ok || doc.Status != domain.StatusCompleted || !s.passesFilter(doc, filter) {
			continue
		}
		for _, chunk := range chunks {
			hits = append(hits, store.ScoredChunk{
				Chunk:      chunk,
				Score:      cosineSimilarity(embedding, chunk.Embedding),
				DocumentID: docID,
				IngestedAt: doc.IngestedAt,
			})
		}
	}
	sortHits(hits)
	return truncate(hits, k), nil
}

// Lexical ranks chunks by term overlap with the query. The scorer is a
// stand-in for Postgres ts_rank with equivalent filter semantics.
func (s *Store) Lexical(ctx context.Context, query string, k int, filter store.Filter) ([]store.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var hits []store.ScoredChunk
	for docID, chunks := range s.chunks {
		doc, ok := s.documents[docID]
		if !ok || doc.Status != domain.StatusCompleted || !s.passesFilter(doc, filter) {
			continue
		}
		for _, chunk := range chunks {
			score := lexicalScore(terms, chunk.Content)
			if score == 0 {
				continue
			}
			hits = append(hits, store.ScoredChunk{
				Chunk:      chunk,
				Score:      score,
				DocumentID: docID,
				IngestedAt: doc.IngestedAt,
			})
		}
	}
	sortHits(hits)
	return truncate(hits, k), nil
}

// sortHits orders by score descending, then newer document ingestion,
// then smaller chunk ID, matching the engine's determinism contract.
func sortHits(hits []store.ScoredChunk) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if !hits[i].IngestedAt.Equal(hits[j].IngestedAt) {
			return hits[i].IngestedAt.After(hits[j].IngestedAt)
		}
		return hits[i].Chunk.PublicID < hits[j].Chunk.PublicID
	})
}

func truncate(hits []store.ScoredChunk, k int) []store.ScoredChunk {
	if k > 0 && len(hits) > k {
		return hits[:k]
	}
	return hits
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len(f) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func lexicalScore(terms []string, content string) float64 {
	contentTerms := tokenize(content)
	if len(contentTerms) == 0 {
		return 0
	}
	contentSet := make(map[string]bool, len(contentTerms))
	for _, t := range contentTerms {
		contentSet[t] = true
	}
	matched := 0
	for _, t := range terms {
		if contentSet[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
