// Package pipeline drives document ingestion: text extraction, chunking,
// embedding, entity extraction, and the store writes, with the document
// status machine wrapped around it.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/drivetrace/backend/internal/util"
	"github.com/drivetrace/backend/pkg/ai"
	"github.com/drivetrace/backend/pkg/chunker"
	"github.com/drivetrace/backend/pkg/docload"
	"github.com/drivetrace/backend/pkg/domain"
	"github.com/drivetrace/backend/pkg/extract"
	"github.com/drivetrace/backend/pkg/logger"
	"github.com/drivetrace/backend/pkg/store"
)

// Options bound the pipeline's concurrency and provider retries.
type Options struct {
	ParallelDocuments  int
	EmbedConcurrency   int
	EmbedBatchSize     int
	ExtractConcurrency int
	Backoff            util.BackoffPolicy
}

func (o Options) withDefaults() Options {
	if o.ParallelDocuments <= 0 {
		o.ParallelDocuments = 4
	}
	if o.EmbedConcurrency <= 0 {
		o.EmbedConcurrency = 4
	}
	if o.EmbedBatchSize <= 0 {
		o.EmbedBatchSize = 64
	}
	if o.ExtractConcurrency <= 0 {
		o.ExtractConcurrency = o.EmbedConcurrency
	}
	if o.Backoff.MaxAttempts <= 0 {
		o.Backoff = util.DefaultBackoff
	}
	return o
}

// Pipeline owns one ingestion configuration. Safe for concurrent use.
type Pipeline struct {
	vectors   store.VectorStore
	graph     store.GraphStore
	embedder  ai.EmbeddingClient
	extractor *extract.Extractor
	splitter  *chunker.Chunker
	opts      Options
}

// New assembles a Pipeline from its stages.
func New(
	vectors store.VectorStore,
	graph store.GraphStore,
	embedder ai.EmbeddingClient,
	extractor *extract.Extractor,
	splitter *chunker.Chunker,
	opts Options,
) *Pipeline {
	return &Pipeline{
		vectors:   vectors,
		graph:     graph,
		embedder:  embedder,
		extractor: extractor,
		splitter:  splitter,
		opts:      opts.withDefaults(),
	}
}

// Input is one document handed to the pipeline. ContentType, when set,
// overrides detection.
type Input struct {
	Filename    string
	Content     []byte
	ContentType domain.ContentType
}

// Ingest processes one document end to end. The file hash is the
// idempotency key: an unchanged file that already completed is returned
// as-is, while a failed or interrupted earlier attempt is wiped and
// processed fresh. On failure the document record stays behind in failed
// state with the reason; its partial data is invisible to search and is
// removed on the next attempt.
func (p *Pipeline) Ingest(ctx context.Context, input Input) (*domain.Document, error) {
	fileHash := docload.FileHash(input.Content)

	existing, err := p.vectors.FindDocumentByHash(ctx, fileHash)
	if err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
		return nil, fmt.Errorf("ingest %s: %w", input.Filename, err)
	}
	if existing != nil {
		if existing.Status == domain.StatusCompleted {
			logger.Debug("[Pipeline] Unchanged document, skipping", "file", input.Filename, "document", existing.PublicID)
			return existing, nil
		}
		logger.Info("[Pipeline] Reprocessing earlier attempt", "file", input.Filename, "document", existing.PublicID, "status", existing.Status)
		if err := p.Delete(ctx, existing.PublicID); err != nil {
			return nil, fmt.Errorf("ingest %s: %w", input.Filename, err)
		}
	}

	text, err := docload.ExtractText(input.Filename, input.Content)
	if err != nil {
		doc := &domain.Document{
			Filename:    input.Filename,
			ContentType: domain.ContentSupplierDoc,
			FileHash:    fileHash,
			Status:      domain.StatusFailed,
		}
		doc.FailureReason = err.Error()
		if createErr := p.vectors.CreateDocument(ctx, doc); createErr != nil {
			return nil, fmt.Errorf("ingest %s: %w", input.Filename, createErr)
		}
		return doc, err
	}

	doc := p.describe(input, text, fileHash)
	if err := p.vectors.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", input.Filename, err)
	}
	if err := p.vectors.MarkDocumentStatus(ctx, doc.PublicID, domain.StatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", input.Filename, err)
	}
	doc.Status = domain.StatusProcessing

	chunks, err := p.process(ctx, doc, text)
	if err != nil {
		p.fail(ctx, doc, err)
		return doc, err
	}

	if err := p.vectors.CompleteDocument(ctx, doc.PublicID, len(chunks)); err != nil {
		p.fail(ctx, doc, err)
		return doc, fmt.Errorf("ingest %s: %w", input.Filename, err)
	}
	doc.Status = domain.StatusCompleted
	doc.ChunkCount = len(chunks)
	logger.Info("[Pipeline] Document ingested", "file", input.Filename, "document", doc.PublicID, "chunks", len(chunks))
	return doc, nil
}

func (p *Pipeline) fail(ctx context.Context, doc *domain.Document, cause error) {
	doc.Status = domain.StatusFailed
	doc.FailureReason = cause.Error()
	if err := p.vectors.MarkDocumentStatus(ctx, doc.PublicID, domain.StatusFailed, cause.Error()); err != nil {
		logger.Error("[Pipeline] Failed to record failure", "document", doc.PublicID, "err", err)
	}
	logger.Warn("[Pipeline] Document failed", "document", doc.PublicID, "file", doc.Filename, "err", cause)
}

// describe builds the document record from filename and content
// heuristics. Component and supplier come from the strongest pattern
// matches over the full text.
func (p *Pipeline) describe(input Input, text, fileHash string) *domain.Document {
	doc := &domain.Document{
		Filename:      input.Filename,
		Title:         docload.DetectTitle(text),
		ContentType:   input.ContentType,
		FileHash:      fileHash,
		VehicleSystem: docload.DetectVehicleSystem(text),
		ModelYears:    docload.DetectModelYears(text),
		VINPatterns:   docload.DetectVINPatterns(text),
		Severity:      docload.DetectSeverity(text),
		Status:        domain.StatusPending,
	}
	if doc.ContentType == "" {
		doc.ContentType = docload.DetectContentType(input.Filename, text)
	}

	var bestComponent, bestSupplier domain.Entity
	for _, entity := range extract.NewPatternExtractor().Entities(text) {
		switch entity.Type {
		case domain.EntityComponent:
			if entity.Confidence > bestComponent.Confidence {
				bestComponent = entity
			}
		case domain.EntitySupplier:
			if entity.Confidence > bestSupplier.Confidence {
				bestSupplier = entity
			}
		}
	}
	doc.ComponentName = bestComponent.Name
	doc.Supplier = bestSupplier.Name
	return doc
}

// process runs the chunk/embed/extract/write stages for one document.
func (p *Pipeline) process(ctx context.Context, doc *domain.Document, text string) ([]domain.Chunk, error) {
	pieces, err := p.splitter.Split(text)
	if err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}
	if len(pieces) == 0 {
		return nil, &domain.MalformedDocumentError{Filename: doc.Filename, Reason: "no chunkable content"}
	}

	chunks := make([]domain.Chunk, len(pieces))
	for i, piece := range pieces {
		id, err := gonanoid.New()
		if err != nil {
			return nil, err
		}
		chunks[i] = domain.Chunk{
			PublicID:         id,
			DocumentID:       doc.PublicID,
			Index:            piece.Index,
			Content:          piece.Content,
			ContentHash:      docload.ContentHash(piece.Content),
			StartChar:        piece.StartChar,
			EndChar:          piece.EndChar,
			TokenCount:       piece.TokenCount,
			HasDTCCodes:      docload.HasDTCCodes(piece.Content),
			HasVersionInfo:   docload.HasVersionInfo(piece.Content),
			HasComponentInfo: docload.HasComponentInfo(piece.Content),
		}
	}

	if err := p.embedChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	entities, relationships, err := p.extractChunks(ctx, doc, chunks)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	if err := p.vectors.UpsertChunks(ctx, doc.PublicID, chunks); err != nil {
		return nil, fmt.Errorf("write chunks: %w", err)
	}
	for i := range entities {
		if err := p.graph.UpsertEntity(ctx, &entities[i]); err != nil {
			return nil, fmt.Errorf("write entities: %w", err)
		}
	}
	for i := range relationships {
		if err := p.graph.UpsertRelationship(ctx, &relationships[i]); err != nil {
			return nil, fmt.Errorf("write relationships: %w", err)
		}
	}
	return chunks, nil
}

// embedChunks fills in chunk embeddings batch by batch. Transient
// provider failures retry with backoff; permanent ones fail the document.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []domain.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.EmbedConcurrency)

	for start := 0; start < len(chunks); start += p.opts.EmbedBatchSize {
		end := min(start+p.opts.EmbedBatchSize, len(chunks))
		batch := chunks[start:end]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i := range batch {
				texts[i] = batch[i].Content
			}
			embeddings, err := util.RetryWithBackoff(gctx, p.opts.Backoff, domain.IsTransient,
				func(ctx context.Context) ([][]float32, error) {
					return p.embedder.Embed(ctx, texts)
				})
			if err != nil {
				return err
			}
			if len(embeddings) != len(batch) {
				return fmt.Errorf("embedding count mismatch: got %d for %d chunks", len(embeddings), len(batch))
			}
			for i := range batch {
				batch[i].Embedding = embeddings[i]
			}
			return nil
		})
	}
	return g.Wait()
}

// extractChunks runs entity extraction over every chunk with bounded
// parallelism and stamps provenance onto the results.
func (p *Pipeline) extractChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Entity, []domain.Relationship, error) {
	results := make([]extract.Result, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.ExtractConcurrency)
	for i := range chunks {
		g.Go(func() error {
			result, err := p.extractor.ExtractChunk(gctx, chunks[i].Content)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var entities []domain.Entity
	var relationships []domain.Relationship
	for i, result := range results {
		for _, entity := range result.Entities {
			entity.DocumentID = doc.PublicID
			entity.ChunkID = chunks[i].PublicID
			entities = append(entities, entity)
		}
		for _, rel := range result.Relationships {
			rel.DocumentID = doc.PublicID
			relationships = append(relationships, rel)
		}
	}
	return entities, relationships, nil
}

// Result pairs one batch input with its outcome.
type Result struct {
	Input    Input
	Document *domain.Document
	Err      error
}

// IngestBatch processes inputs with bounded parallelism. One document's
// failure never aborts the others; every input gets a Result.
func (p *Pipeline) IngestBatch(ctx context.Context, inputs []Input) []Result {
	results := make([]Result, len(inputs))

	g := new(errgroup.Group)
	g.SetLimit(p.opts.ParallelDocuments)
	for i := range inputs {
		g.Go(func() error {
			doc, err := p.Ingest(ctx, inputs[i])
			results[i] = Result{Input: inputs[i], Document: doc, Err: err}
			return nil
		})
	}
	g.Wait()
	return results
}

// Delete removes a document and everything derived from it, in both
// stores. Unknown documents are a no-op.
func (p *Pipeline) Delete(ctx context.Context, documentID string) error {
	if err := p.vectors.DeleteDocumentData(ctx, documentID); err != nil {
		return err
	}
	return p.graph.DeleteDocumentData(ctx, documentID)
}
