// Package query answers retrieval requests: hybrid search over the
// vector and lexical legs fused with reciprocal rank fusion, graph
// neighborhood expansion, and timeline projections.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/drivetrace/backend/pkg/ai"
	"github.com/drivetrace/backend/pkg/domain"
	"github.com/drivetrace/backend/pkg/extract"
	"github.com/drivetrace/backend/pkg/logger"
	"github.com/drivetrace/backend/pkg/store"
)

const (
	rrfK = 60.0

	// Graph-expanded chunks join the pool at a fixed, lower weight than
	// either retrieval leg.
	graphWeight = 0.5

	// How many candidates each leg contributes relative to the requested
	// limit before fusion.
	poolFactor = 3

	maxTraversalDepth = 3
)

// Engine owns one retrieval configuration. Safe for concurrent use.
type Engine struct {
	vectors  store.VectorStore
	graph    store.GraphStore
	embedder ai.EmbeddingClient
	patterns *extract.PatternExtractor
}

// New assembles an Engine. The pattern extractor recognizes entity
// mentions in queries for graph expansion.
func New(vectors store.VectorStore, graph store.GraphStore, embedder ai.EmbeddingClient) *Engine {
	return &Engine{
		vectors:  vectors,
		graph:    graph,
		embedder: embedder,
		patterns: extract.NewPatternExtractor(),
	}
}

// SearchRequest is one hybrid search. Zero weights default to 1.
type SearchRequest struct {
	Query         string
	Limit         int
	Filter        store.Filter
	VectorWeight  float64
	LexicalWeight float64
}

// SearchHit is one fused result. The rank fields record where the chunk
// stood in each leg; zero means the leg did not return it.
type SearchHit struct {
	Chunk       domain.Chunk `json:"chunk"`
	DocumentID  string       `json:"document_id"`
	Score       float64      `json:"score"`
	VectorRank  int          `json:"vector_rank,omitempty"`
	LexicalRank int          `json:"lexical_rank,omitempty"`
	FromGraph   bool         `json:"from_graph,omitempty"`

	ingestedAt time.Time
}

// HybridSearch runs both retrieval legs with the same filter, fuses them
// with reciprocal rank fusion, and folds in chunks reachable through the
// graph from entities recognized in the query. A backend failure is
// returned as a QueryError, never as an empty result set.
func (e *Engine) HybridSearch(ctx context.Context, req SearchRequest) ([]SearchHit, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, &domain.QueryError{Op: "search", Err: fmt.Errorf("empty query")}
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.VectorWeight <= 0 {
		req.VectorWeight = 1
	}
	if req.LexicalWeight <= 0 {
		req.LexicalWeight = 1
	}
	poolK := req.Limit * poolFactor

	embeddings, err := e.embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		return nil, &domain.QueryError{Op: "search", Err: err}
	}
	if len(embeddings) != 1 {
		return nil, &domain.QueryError{Op: "search", Err: fmt.Errorf("expected one query embedding, got %d", len(embeddings))}
	}

	vectorHits, err := e.vectors.Nearest(ctx, embeddings[0], poolK, req.Filter)
	if err != nil {
		return nil, &domain.QueryError{Op: "search", Err: err}
	}
	lexicalHits, err := e.vectors.Lexical(ctx, req.Query, poolK, req.Filter)
	if err != nil {
		return nil, &domain.QueryError{Op: "search", Err: err}
	}

	pool := map[string]*SearchHit{}
	add := func(sc store.ScoredChunk) *SearchHit {
		if hit, ok := pool[sc.Chunk.PublicID]; ok {
			return hit
		}
		hit := &SearchHit{
			Chunk:      sc.Chunk,
			DocumentID: sc.DocumentID,
			ingestedAt: sc.IngestedAt,
		}
		pool[sc.Chunk.PublicID] = hit
		return hit
	}

	for rank, sc := range vectorHits {
		hit := add(sc)
		hit.VectorRank = rank + 1
		hit.Score += rrfComponent(rank+1, req.VectorWeight)
	}
	for rank, sc := range lexicalHits {
		hit := add(sc)
		hit.LexicalRank = rank + 1
		hit.Score += rrfComponent(rank+1, req.LexicalWeight)
	}

	if err := e.expandFromGraph(ctx, req, pool, add); err != nil {
		// Graph expansion failing should not sink a search that already
		// has both retrieval legs.
		logger.Warn("[Query] Graph expansion failed", "query", req.Query, "err", err)
	}

	fused := make([]SearchHit, 0, len(pool))
	for _, hit := range pool {
		fused = append(fused, *hit)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		if !fused[i].ingestedAt.Equal(fused[j].ingestedAt) {
			return fused[i].ingestedAt.After(fused[j].ingestedAt)
		}
		return fused[i].Chunk.PublicID < fused[j].Chunk.PublicID
	})
	if len(fused) > req.Limit {
		fused = fused[:req.Limit]
	}
	return fused, nil
}

func rrfComponent(rank int, weight float64) float64 {
	if rank <= 0 {
		return 0
	}
	return weight / (rrfK + float64(rank))
}

// expandFromGraph recognizes entity mentions in the query, walks one hop
// out from each, and folds the chunks those neighbors were extracted
// from into the pool at graphWeight.
func (e *Engine) expandFromGraph(ctx context.Context, req SearchRequest, pool map[string]*SearchHit, add func(store.ScoredChunk) *SearchHit) error {
	mentions := e.patterns.Entities(req.Query)
	if len(mentions) == 0 {
		return nil
	}

	seen := map[string]bool{}
	var linked []domain.Entity
	for _, mention := range mentions {
		occurrences, err := e.graph.EntitiesByName(ctx, mention.Name)
		if err != nil {
			return err
		}
		linked = append(linked, occurrences...)

		neighbors, err := e.graph.Neighbors(ctx, mention.Name, nil, 1)
		if err != nil {
			return err
		}
		for _, n := range neighbors {
			linked = append(linked, n.Entity)
		}
	}

	boost := rrfComponent(1, graphWeight)
	for _, entity := range linked {
		if entity.ChunkID == "" || seen[entity.ChunkID] {
			continue
		}
		seen[entity.ChunkID] = true

		if hit, ok := pool[entity.ChunkID]; ok {
			hit.FromGraph = true
			hit.Score += boost
			continue
		}

		sc, err := e.loadChunk(ctx, entity.DocumentID, entity.ChunkID, req.Filter)
		if err != nil {
			return err
		}
		if sc == nil {
			continue
		}
		hit := add(*sc)
		hit.FromGraph = true
		hit.Score += boost
	}
	return nil
}

// loadChunk fetches one chunk by provenance, honoring the search filter.
// Returns nil when the chunk's document is filtered out or gone.
func (e *Engine) loadChunk(ctx context.Context, documentID, chunkID string, filter store.Filter) (*store.ScoredChunk, error) {
	doc, err := e.vectors.GetDocument(ctx, documentID)
	if err != nil {
		if err == domain.ErrDocumentNotFound {
			return nil, nil
		}
		return nil, err
	}
	if doc.Status != domain.StatusCompleted || !matchesFilter(doc, filter) {
		return nil, nil
	}

	chunks, err := e.vectors.ChunksByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	for _, chunk := range chunks {
		if chunk.PublicID == chunkID {
			return &store.ScoredChunk{Chunk: chunk, DocumentID: documentID, IngestedAt: doc.IngestedAt}, nil
		}
	}
	return nil, nil
}

func matchesFilter(doc *domain.Document, filter store.Filter) bool {
	if len(filter.ContentTypes) > 0 {
		ok := false
		for _, t := range filter.ContentTypes {
			if doc.ContentType == t {
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
		for _, v := range filter.VehicleSystems {
			if doc.VehicleSystem == v {
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

// Timeline projects the timestamped relationships touching an entity
// onto [start, end]. Zero bounds are unconstrained.
func (e *Engine) Timeline(ctx context.Context, entityName string, start, end time.Time) ([]domain.TimelineEvent, error) {
	if strings.TrimSpace(entityName) == "" {
		return nil, &domain.QueryError{Op: "timeline", Err: fmt.Errorf("empty entity name")}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, &domain.QueryError{Op: "timeline", Err: fmt.Errorf("window end precedes start")}
	}
	events, err := e.graph.EventsInWindow(ctx, entityName, start, end)
	if err != nil {
		return nil, &domain.QueryError{Op: "timeline", Err: err}
	}
	return events, nil
}

// Related walks the graph outward from an entity. Depth is clamped to
// keep traversals bounded; relTypes empty means every edge type.
func (e *Engine) Related(ctx context.Context, entityName string, relTypes []domain.RelationType, depth int) ([]store.Neighbor, error) {
	if strings.TrimSpace(entityName) == "" {
		return nil, &domain.QueryError{Op: "related", Err: fmt.Errorf("empty entity name")}
	}
	if depth <= 0 {
		depth = 1
	}
	if depth > maxTraversalDepth {
		depth = maxTraversalDepth
	}
	for _, t := range relTypes {
		if !t.IsValid() {
			return nil, &domain.QueryError{Op: "related", Err: fmt.Errorf("unknown relation type %q", t)}
		}
	}
	neighbors, err := e.graph.Neighbors(ctx, entityName, relTypes, depth)
	if err != nil {
		return nil, &domain.QueryError{Op: "related", Err: err}
	}
	return neighbors, nil
}
