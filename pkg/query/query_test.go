package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/drivetrace/backend/pkg/domain"
	"github.com/drivetrace/backend/pkg/store"
	"github.com/drivetrace/backend/pkg/store/memory"
)

type fixedEmbedder struct {
	vec []float32
}

func (f *fixedEmbedder) Dimension() int { return len(f.vec) }

func (f *fixedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func seedDoc(t *testing.T, mem *memory.Store, id, content string, embedding []float32) {
	t.Helper()
	ctx := context.Background()
	doc := domain.Document{
		PublicID:    id,
		Filename:    id + ".md",
		ContentType: domain.ContentRepairNote,
		FileHash:    "hash-" + id,
		Status:      domain.StatusPending,
	}
	if err := mem.CreateDocument(ctx, &doc); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	err := mem.UpsertChunks(ctx, id, []domain.Chunk{
		{PublicID: id + "-c0", Index: 0, Content: content, Embedding: embedding},
	})
	if err != nil {
		t.Fatalf("UpsertChunks() error = %v", err)
	}
	if err := mem.CompleteDocument(ctx, id, 1); err != nil {
		t.Fatalf("CompleteDocument() error = %v", err)
	}
}

func TestHybridSearchFusesBothLegs(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	// doc-both is near in vector space AND matches the query terms;
	// doc-vector only embeds close; doc-lexical only shares terms.
	seedDoc(t, mem, "doc-both", "brake pressure sensor drift observed", []float32{1, 0, 0})
	seedDoc(t, mem, "doc-vector", "unrelated wording entirely", []float32{0.9, 0.1, 0})
	seedDoc(t, mem, "doc-lexical", "pressure drift in the cabin vents", []float32{0, 0, 1})

	engine := New(mem, mem, &fixedEmbedder{vec: []float32{1, 0, 0}})
	hits, err := engine.HybridSearch(ctx, SearchRequest{Query: "pressure drift", Limit: 3})
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("HybridSearch() = %d hits, want 3", len(hits))
	}
	if hits[0].DocumentID != "doc-both" {
		t.Errorf("top hit = %q, want doc-both (present in both legs)", hits[0].DocumentID)
	}
	if hits[0].VectorRank == 0 || hits[0].LexicalRank == 0 {
		t.Errorf("top hit ranks: vector=%d lexical=%d, want both set", hits[0].VectorRank, hits[0].LexicalRank)
	}
}

func TestHybridSearchEmptyQuery(t *testing.T) {
	engine := New(memory.New(), memory.New(), &fixedEmbedder{vec: []float32{1}})
	_, err := engine.HybridSearch(context.Background(), SearchRequest{Query: "   "})
	var qerr *domain.QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("HybridSearch() error = %v, want QueryError", err)
	}
}

type failingVectors struct {
	store.VectorStore
}

func (f *failingVectors) Nearest(ctx context.Context, embedding []float32, k int, filter store.Filter) ([]store.ScoredChunk, error) {
	return nil, errors.New("connection refused")
}

func TestHybridSearchBackendFailureIsAnError(t *testing.T) {
	mem := memory.New()
	engine := New(&failingVectors{VectorStore: mem}, mem, &fixedEmbedder{vec: []float32{1}})

	_, err := engine.HybridSearch(context.Background(), SearchRequest{Query: "anything"})
	var qerr *domain.QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("HybridSearch() error = %v, want QueryError (never a silent empty set)", err)
	}
}

func TestHybridSearchExpandsThroughGraph(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()

	// The fault chunk mentions the code; the gateway chunk shares no
	// terms with the query and embeds far away. Only the graph links it.
	seedDoc(t, mem, "doc-fault", "stored code B1A00 after Camera Module self test", []float32{1, 0, 0})
	seedDoc(t, mem, "doc-gateway", "routing table rebuild procedure", []float32{0, 1, 0})

	entities := []domain.Entity{
		{Type: domain.EntityDiagnosticCode, Name: "B1A00", DocumentID: "doc-fault", ChunkID: "doc-fault-c0", Confidence: 1.0, Method: domain.MethodPattern},
		{Type: domain.EntityComponent, Name: "Camera Module", DocumentID: "doc-fault", ChunkID: "doc-fault-c0", Confidence: 0.9, Method: domain.MethodPattern},
		{Type: domain.EntityComponent, Name: "Gateway Unit", DocumentID: "doc-gateway", ChunkID: "doc-gateway-c0", Confidence: 0.9, Method: domain.MethodPattern},
	}
	for i := range entities {
		if err := mem.UpsertEntity(ctx, &entities[i]); err != nil {
			t.Fatalf("UpsertEntity() error = %v", err)
		}
	}
	rel := domain.Relationship{
		Type:       domain.RelationCommunicatesWith,
		SourceName: "Camera Module", SourceType: domain.EntityComponent,
		TargetName: "Gateway Unit", TargetType: domain.EntityComponent,
		Confidence: 0.8, DocumentID: "doc-fault",
	}
	if err := mem.UpsertRelationship(ctx, &rel); err != nil {
		t.Fatalf("UpsertRelationship() error = %v", err)
	}

	engine := New(mem, mem, &fixedEmbedder{vec: []float32{1, 0, 0}})
	hits, err := engine.HybridSearch(ctx, SearchRequest{Query: "What causes B1A00 on the Camera Module?", Limit: 5})
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}

	var gateway *SearchHit
	for i := range hits {
		if hits[i].DocumentID == "doc-gateway" {
			gateway = &hits[i]
		}
	}
	if gateway == nil {
		t.Fatal("graph expansion did not surface the gateway chunk")
	}
	if !gateway.FromGraph {
		t.Error("gateway chunk not marked as graph-expanded")
	}
	if hits[0].DocumentID != "doc-fault" {
		t.Errorf("top hit = %q, want the direct match doc-fault", hits[0].DocumentID)
	}
}

func TestTimelineValidatesWindow(t *testing.T) {
	mem := memory.New()
	engine := New(mem, mem, &fixedEmbedder{vec: []float32{1}})

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := engine.Timeline(context.Background(), "Camera Module", start, end)
	var qerr *domain.QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("Timeline() error = %v, want QueryError for inverted window", err)
	}

	if _, err := engine.Timeline(context.Background(), "", time.Time{}, time.Time{}); err == nil {
		t.Error("Timeline() accepted an empty entity name")
	}
}

func TestRelatedValidation(t *testing.T) {
	mem := memory.New()
	engine := New(mem, mem, &fixedEmbedder{vec: []float32{1}})

	_, err := engine.Related(context.Background(), "Camera Module", []domain.RelationType{"orbits"}, 1)
	var qerr *domain.QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("Related() error = %v, want QueryError for unknown relation type", err)
	}

	if _, err := engine.Related(context.Background(), "", nil, 1); err == nil {
		t.Error("Related() accepted an empty entity name")
	}

	// depth beyond the cap is clamped, not rejected
	if _, err := engine.Related(context.Background(), "Camera Module", nil, 99); err != nil {
		t.Errorf("Related() error = %v for large depth", err)
	}
}
