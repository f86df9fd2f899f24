package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/drivetrace/backend/pkg/ai"
	"github.com/drivetrace/backend/pkg/domain"
)

type modelEntity struct {
	Name       string  `json:"name" jsonschema_description:"Name of the entity exactly as it appears in the text"`
	Type       string  `json:"type" jsonschema_description:"One of: component, system, supplier, diagnostic_code, vin_pattern, software_version"`
	Confidence float64 `json:"confidence" jsonschema_description:"Extraction confidence between 0 and 1"`
}

type modelRelationship struct {
	SourceName string  `json:"source_name" jsonschema_description:"Name of the source entity, as identified above"`
	SourceType string  `json:"source_type" jsonschema_description:"Entity type of the source"`
	TargetName string  `json:"target_name" jsonschema_description:"Name of the target entity, as identified above"`
	TargetType string  `json:"target_type" jsonschema_description:"Entity type of the target"`
	Type       string  `json:"type" jsonschema_description:"One of: depends_on, communicates_with, part_of, affected_by_update, supersedes"`
	OccurredAt string  `json:"occurred_at,omitempty" jsonschema_description:"RFC 3339 date the relationship became true, when the text states one; empty otherwise"`
	Confidence float64 `json:"confidence" jsonschema_description:"Extraction confidence between 0 and 1"`
}

type modelResponse struct {
	Entities      []modelEntity      `json:"entities" jsonschema_description:"Entities identified in the text"`
	Relationships []modelRelationship `json:"relationships" jsonschema_description:"Relationships between the identified entities"`
}

const extractPrompt = `You analyze technical automotive documents: release notes, hardware specifications, diagnostic logs, repair notes and supplier documentation.

Identify every entity in the text below. Allowed entity types: component, system, supplier, diagnostic_code, vin_pattern, software_version.

Then identify directed relationships between those entities. Allowed relationship types: depends_on, communicates_with, part_of, affected_by_update, supersedes. When the text states a date on which the relationship became true (an update date, a supersession date), include it as an RFC 3339 date in occurred_at.

Only report entities and relationships the text supports. Assign each a confidence between 0 and 1.

Text:
%s`

// ModelExtractor asks an extraction model for entities and relationships
// in a closed taxonomy. Model confidence is capped below 1.0 so pattern
// hits always outrank model guesses for the same candidate.
type ModelExtractor struct {
	client ai.ExtractionClient
}

// NewModelExtractor creates a ModelExtractor on the given client.
func NewModelExtractor(client ai.ExtractionClient) *ModelExtractor {
	return &ModelExtractor{client: client}
}

const modelConfidenceCap = 0.99

// Extract runs one structured extraction call over the chunk text and
// maps the response into domain types. Candidates with unknown types or
// blank names are discarded.
func (m *ModelExtractor) Extract(ctx context.Context, text string) ([]domain.Entity, []domain.Relationship, error) {
	var response modelResponse
	err := m.client.ExtractStructured(
		ctx,
		"document_extraction",
		"Entities and relationships found in an automotive document excerpt",
		fmt.Sprintf(extractPrompt, text),
		&response,
	)
	if err != nil {
		return nil, nil, err
	}

	var entities []domain.Entity
	for _, raw := range response.Entities {
		entityType := domain.EntityType(strings.ToLower(strings.TrimSpace(raw.Type)))
		name := strings.TrimSpace(raw.Name)
		if name == "" || !entityType.IsValid() {
			continue
		}
		entities = append(entities, domain.Entity{
			Type:       entityType,
			Name:       name,
			Confidence: clampConfidence(raw.Confidence),
			Method:     domain.MethodModel,
		})
	}

	var relationships []domain.Relationship
	for _, raw := range response.Relationships {
		relType := domain.RelationType(strings.ToLower(strings.TrimSpace(raw.Type)))
		sourceType := domain.EntityType(strings.ToLower(strings.TrimSpace(raw.SourceType)))
		targetType := domain.EntityType(strings.ToLower(strings.TrimSpace(raw.TargetType)))
		sourceName := strings.TrimSpace(raw.SourceName)
		targetName := strings.TrimSpace(raw.TargetName)
		if sourceName == "" || targetName == "" {
			continue
		}
		if !relType.IsValid() || !sourceType.IsValid() || !targetType.IsValid() {
			continue
		}

		rel := domain.Relationship{
			Type:       relType,
			SourceName: sourceName,
			SourceType: sourceType,
			TargetName: targetName,
			TargetType: targetType,
			Confidence: clampConfidence(raw.Confidence),
		}
		if raw.OccurredAt != "" {
			if occurred, err := parseEventDate(raw.OccurredAt); err == nil {
				rel.OccurredAt = &occurred
			}
		}
		relationships = append(relationships, rel)
	}

	return entities, relationships, nil
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > modelConfidenceCap {
		return modelConfidenceCap
	}
	return c
}

func parseEventDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
