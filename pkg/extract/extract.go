// Package extract identifies domain entities and candidate relationships
// in chunk text. Two strategies compose: deterministic pattern matching
// for well-formed tokens (diagnostic codes, VINs, versions, known
// suppliers) and model-assisted extraction for free-text relationships.
// Entity and relationship names are candidates; resolution to stored
// graph nodes happens at write time.
package extract

import (
	"context"

	"github.com/drivetrace/backend/pkg/domain"
	"github.com/drivetrace/backend/pkg/logger"
)

// Result is the extraction outcome for a single chunk, deduplicated by
// identity key with the highest-confidence candidate kept.
type Result struct {
	Entities      []domain.Entity
	Relationships []domain.Relationship
}

// Extractor composes the pattern extractor with an optional model
// extractor. Results below the confidence threshold are flagged
// LowConfidence but never dropped.
type Extractor struct {
	patterns  *PatternExtractor
	model     *ModelExtractor
	threshold float64
}

// New creates an Extractor. model may be nil to run pattern-only.
func New(model *ModelExtractor, threshold float64) *Extractor {
	return &Extractor{
		patterns:  NewPatternExtractor(),
		model:     model,
		threshold: threshold,
	}
}

// ExtractChunk runs both strategies over chunk text and merges their
// candidates. A model failure degrades to pattern-only output; pattern
// extraction itself cannot fail.
func (e *Extractor) ExtractChunk(ctx context.Context, text string) (Result, error) {
	entities := e.patterns.Entities(text)

	if e.model != nil {
		modelEntities, modelRels, err := e.model.Extract(ctx, text)
		if err != nil {
			logger.Warn("model extraction failed, continuing with pattern results", "error", err)
		} else {
			entities = append(entities, modelEntities...)
			relationships := append(e.patterns.Relationships(text, entities), modelRels...)
			return e.finalize(entities, relationships), nil
		}
	}

	relationships := e.patterns.Relationships(text, entities)
	return e.finalize(entities, relationships), nil
}

func (e *Extractor) finalize(entities []domain.Entity, relationships []domain.Relationship) Result {
	result := Result{
		Entities:      dedupeEntities(entities),
		Relationships: dedupeRelationships(relationships),
	}
	for i := range result.Entities {
		if result.Entities[i].Confidence < e.threshold {
			result.Entities[i].LowConfidence = true
		}
	}
	return result
}

// dedupeEntities collapses candidates sharing an identity key, keeping
// the highest confidence. First-seen order is preserved so output stays
// deterministic.
func dedupeEntities(entities []domain.Entity) []domain.Entity {
	index := make(map[string]int, len(entities))
	out := make([]domain.Entity, 0, len(entities))
	for _, entity := range entities {
		key := entity.Key()
		if at, ok := index[key]; ok {
			if entity.Confidence > out[at].Confidence {
				out[at] = entity
			}
			continue
		}
		index[key] = len(out)
		out = append(out, entity)
	}
	return out
}

func dedupeRelationships(relationships []domain.Relationship) []domain.Relationship {
	index := make(map[string]int, len(relationships))
	out := make([]domain.Relationship, 0, len(relationships))
	for _, rel := range relationships {
		key := rel.Key()
		if at, ok := index[key]; ok {
			if rel.Confidence > out[at].Confidence {
				out[at] = rel
			}
			continue
		}
		index[key] = len(out)
		out = append(out, rel)
	}
	return out
}
