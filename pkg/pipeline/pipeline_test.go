package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/drivetrace/backend/internal/util"
	"github.com/drivetrace/backend/pkg/chunker"
	"github.com/drivetrace/backend/pkg/domain"
	"github.com/drivetrace/backend/pkg/extract"
	"github.com/drivetrace/backend/pkg/store"
	"github.com/drivetrace/backend/pkg/store/memory"
)

const testDimension = 4

type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	failFirst int
	err       error
}

func (f *fakeEmbedder) Dimension() int { return testDimension }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failFirst > 0 {
		f.failFirst--
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

const sampleDoc = `# Camera Module Firmware 4.2.0

The Camera Module communicates with the Gateway Unit over the vehicle
network. After the update, code B1A00 no longer appears in the fault
memory. Firmware 4.2.0 supersedes 4.1.9 for all 2024 vehicles.
`

func newTestPipeline(t *testing.T, embedder *fakeEmbedder) (*Pipeline, *memory.Store) {
	t.Helper()
	split, err := chunker.New("cl100k_base", 5, 60, 0)
	if err != nil {
		t.Fatalf("chunker.New() error = %v", err)
	}
	mem := memory.New()
	p := New(mem, mem, embedder, extract.New(nil, 0.7), split, Options{
		Backoff: util.BackoffPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	return p, mem
}

func TestIngestCompletesDocument(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{}
	p, mem := newTestPipeline(t, embedder)

	doc, err := p.Ingest(ctx, Input{Filename: "camera_release.md", Content: []byte(sampleDoc)})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if doc.Status != domain.StatusCompleted {
		t.Fatalf("status = %q, want completed", doc.Status)
	}
	if doc.ChunkCount == 0 {
		t.Error("ChunkCount = 0 after completion")
	}
	if doc.ContentType != domain.ContentReleaseNote {
		t.Errorf("content type = %q, want release_note", doc.ContentType)
	}
	if doc.ComponentName == "" {
		t.Error("component name not detected")
	}

	chunks, err := mem.ChunksByDocument(ctx, doc.PublicID)
	if err != nil {
		t.Fatalf("ChunksByDocument() error = %v", err)
	}
	if len(chunks) != doc.ChunkCount {
		t.Errorf("stored chunks = %d, ChunkCount = %d", len(chunks), doc.ChunkCount)
	}
	for _, chunk := range chunks {
		if len(chunk.Embedding) != testDimension {
			t.Errorf("chunk %d embedding dimension = %d", chunk.Index, len(chunk.Embedding))
		}
	}

	hits, err := mem.Nearest(ctx, []float32{1, 1, 0, 0}, 5, store.Filter{})
	if err != nil {
		t.Fatalf("Nearest() error = %v", err)
	}
	if len(hits) == 0 {
		t.Error("completed document invisible to search")
	}

	entities, err := mem.EntitiesByName(ctx, "B1A00")
	if err != nil {
		t.Fatalf("EntitiesByName() error = %v", err)
	}
	if len(entities) == 0 {
		t.Error("diagnostic code entity not written to graph")
	}
}

func TestIngestUnchangedFileIsNoOp(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{}
	p, _ := newTestPipeline(t, embedder)

	first, err := p.Ingest(ctx, Input{Filename: "notes.md", Content: []byte(sampleDoc)})
	if err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	callsAfterFirst := embedder.callCount()

	second, err := p.Ingest(ctx, Input{Filename: "notes.md", Content: []byte(sampleDoc)})
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}
	if second.PublicID != first.PublicID {
		t.Errorf("re-ingest created a new document: %q vs %q", second.PublicID, first.PublicID)
	}
	if embedder.callCount() != callsAfterFirst {
		t.Error("re-ingest of unchanged file called the embedding provider")
	}
}

func TestIngestReprocessesFailedAttempt(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{
		failFirst: 100,
		err:       &domain.ProviderError{Op: "embed", Transient: false, Err: errors.New("bad request")},
	}
	p, mem := newTestPipeline(t, embedder)

	failed, err := p.Ingest(ctx, Input{Filename: "notes.md", Content: []byte(sampleDoc)})
	if err == nil {
		t.Fatal("Ingest() succeeded with a failing provider")
	}
	if failed.Status != domain.StatusFailed || failed.FailureReason == "" {
		t.Fatalf("failed attempt: status=%q reason=%q", failed.Status, failed.FailureReason)
	}

	// nothing from the failed attempt is searchable
	hits, err := mem.Nearest(ctx, []float32{1, 0, 0, 0}, 5, store.Filter{})
	if err != nil {
		t.Fatalf("Nearest() error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("failed document leaked %d chunks into search", len(hits))
	}

	embedder.mu.Lock()
	embedder.failFirst = 0
	embedder.mu.Unlock()

	recovered, err := p.Ingest(ctx, Input{Filename: "notes.md", Content: []byte(sampleDoc)})
	if err != nil {
		t.Fatalf("reprocess Ingest() error = %v", err)
	}
	if recovered.Status != domain.StatusCompleted {
		t.Errorf("reprocessed status = %q, want completed", recovered.Status)
	}
	if recovered.PublicID == failed.PublicID {
		t.Error("reprocess reused the failed document record")
	}
}

func TestIngestRetriesTransientOnly(t *testing.T) {
	ctx := context.Background()

	transient := &fakeEmbedder{
		failFirst: 2,
		err:       &domain.ProviderError{Op: "embed", Transient: true, Err: errors.New("rate limited")},
	}
	p, _ := newTestPipeline(t, transient)
	doc, err := p.Ingest(ctx, Input{Filename: "notes.md", Content: []byte(sampleDoc)})
	if err != nil {
		t.Fatalf("Ingest() error = %v after transient failures", err)
	}
	if doc.Status != domain.StatusCompleted {
		t.Errorf("status = %q, want completed after retries", doc.Status)
	}

	permanent := &fakeEmbedder{
		failFirst: 100,
		err:       &domain.ProviderError{Op: "embed", Transient: false, Err: errors.New("invalid model")},
	}
	p2, _ := newTestPipeline(t, permanent)
	if _, err := p2.Ingest(ctx, Input{Filename: "other.md", Content: []byte(sampleDoc)}); err == nil {
		t.Fatal("Ingest() succeeded despite permanent provider error")
	}
	if got := permanent.callCount(); got != 1 {
		t.Errorf("permanent error retried: %d calls, want 1", got)
	}
}

func TestIngestMalformedDocument(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPipeline(t, &fakeEmbedder{})

	doc, err := p.Ingest(ctx, Input{Filename: "firmware.bin", Content: []byte{0x00, 0x01}})
	var malformed *domain.MalformedDocumentError
	if !errors.As(err, &malformed) {
		t.Fatalf("Ingest() error = %v, want MalformedDocumentError", err)
	}
	if doc.Status != domain.StatusFailed || doc.FailureReason == "" {
		t.Errorf("malformed document: status=%q reason=%q", doc.Status, doc.FailureReason)
	}
}

func TestIngestBatchIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPipeline(t, &fakeEmbedder{})

	results := p.IngestBatch(ctx, []Input{
		{Filename: "good.md", Content: []byte(sampleDoc)},
		{Filename: "bad.bin", Content: []byte{0xFF}},
		{Filename: "also_good.txt", Content: []byte(strings.Replace(sampleDoc, "B1A00", "P0420", 1))},
	})
	if len(results) != 3 {
		t.Fatalf("IngestBatch() = %d results, want 3", len(results))
	}
	if results[0].Err != nil || results[0].Document.Status != domain.StatusCompleted {
		t.Errorf("good.md: err=%v status=%v", results[0].Err, results[0].Document.Status)
	}
	if results[1].Err == nil {
		t.Error("bad.bin did not report its failure")
	}
	if results[2].Err != nil || results[2].Document.Status != domain.StatusCompleted {
		t.Errorf("also_good.txt: err=%v", results[2].Err)
	}
}

func TestDeleteRemovesEverything(t *testing.T) {
	ctx := context.Background()
	p, mem := newTestPipeline(t, &fakeEmbedder{})

	doc, err := p.Ingest(ctx, Input{Filename: "notes.md", Content: []byte(sampleDoc)})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if err := p.Delete(ctx, doc.PublicID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := mem.GetDocument(ctx, doc.PublicID); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("GetDocument() error = %v after delete", err)
	}
	entities, err := mem.EntitiesByName(ctx, "B1A00")
	if err != nil {
		t.Fatalf("EntitiesByName() error = %v", err)
	}
	if len(entities) != 0 {
		t.Errorf("%d entities survived delete", len(entities))
	}
}
