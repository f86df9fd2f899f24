package extract

import (
	"context"
	"testing"

	"github.com/drivetrace/backend/pkg/domain"
)

func findEntity(entities []domain.Entity, entityType domain.EntityType, name string) (domain.Entity, bool) {
	for _, e := range entities {
		if e.Type == entityType && e.Name == name {
			return e, true
		}
	}
	return domain.Entity{}, false
}

func TestPatternEntitiesExactTokens(t *testing.T) {
	p := NewPatternExtractor()
	text := "Stored DTC B1A00 after update. Firmware 4.2.0 deployed on VIN 5YJSA1E26MF123456."

	entities := p.Entities(text)

	dtc, ok := findEntity(entities, domain.EntityDiagnosticCode, "B1A00")
	if !ok {
		t.Fatal("diagnostic code B1A00 not extracted")
	}
	if dtc.Confidence != 1.0 {
		t.Errorf("DTC confidence = %v, want 1.0", dtc.Confidence)
	}
	if dtc.Value != "body" {
		t.Errorf("DTC category = %q, want body", dtc.Value)
	}
	if dtc.Method != domain.MethodPattern {
		t.Errorf("DTC method = %q", dtc.Method)
	}

	version, ok := findEntity(entities, domain.EntitySoftwareVersion, "4.2.0")
	if !ok {
		t.Fatal("software version 4.2.0 not extracted")
	}
	if version.Confidence != 1.0 {
		t.Errorf("version confidence = %v, want 1.0", version.Confidence)
	}

	if _, ok := findEntity(entities, domain.EntityVINPattern, "5YJSA1E26MF123456"); !ok {
		t.Error("VIN not extracted")
	}
}

func TestPatternEntitiesFuzzyScoring(t *testing.T) {
	p := NewPatternExtractor()

	entities := p.Entities("The Camera Module reports over the vehicle CAN bus. Supplier: Bosch")

	component, ok := findEntity(entities, domain.EntityComponent, "Camera Module")
	if !ok {
		t.Fatal("component Camera Module not extracted")
	}
	// base 0.6 + keyword in name + automotive context
	if component.Confidence < 0.85 || component.Confidence > 1.0 {
		t.Errorf("component confidence = %v, want boosted score", component.Confidence)
	}

	supplier, ok := findEntity(entities, domain.EntitySupplier, "Bosch")
	if !ok {
		t.Fatal("supplier Bosch not extracted")
	}
	if supplier.Confidence < 0.85 {
		t.Errorf("known supplier confidence = %v, want >= 0.85", supplier.Confidence)
	}
}

func TestPatternRelationships(t *testing.T) {
	p := NewPatternExtractor()
	text := "The Camera Module communicates with the Gateway Unit. Firmware 4.2.0 supersedes 4.1.9."

	entities := p.Entities(text)
	relationships := p.Relationships(text, entities)

	var foundComm, foundSupersedes bool
	for _, rel := range relationships {
		if rel.Type == domain.RelationCommunicatesWith &&
			rel.SourceName == "Camera Module" && rel.TargetName == "Gateway Unit" {
			foundComm = true
		}
		if rel.Type == domain.RelationSupersedes &&
			rel.SourceName == "4.2.0" && rel.TargetName == "4.1.9" {
			foundSupersedes = true
		}
	}
	if !foundComm {
		t.Errorf("communicates_with edge missing, got %+v", relationships)
	}
	if !foundSupersedes {
		t.Errorf("supersedes edge missing, got %+v", relationships)
	}
}

func TestPatternRelationshipsRequireKnownEndpoints(t *testing.T) {
	p := NewPatternExtractor()

	// "it" and "everything" never resolve to extracted entities, so the
	// phrase alone must not create an edge.
	text := "Apparently it depends on everything."
	relationships := p.Relationships(text, p.Entities(text))
	if len(relationships) != 0 {
		t.Errorf("got %d relationships from unresolvable endpoints, want 0", len(relationships))
	}
}

func TestDedupeEntitiesKeepsHighestConfidence(t *testing.T) {
	entities := []domain.Entity{
		{Type: domain.EntityComponent, Name: "Camera Module", Confidence: 0.6},
		{Type: domain.EntityComponent, Name: "camera module", Confidence: 0.9},
		{Type: domain.EntitySystem, Name: "ADAS", Confidence: 0.9},
	}

	out := dedupeEntities(entities)
	if len(out) != 2 {
		t.Fatalf("dedupeEntities() len = %d, want 2", len(out))
	}
	if out[0].Confidence != 0.9 {
		t.Errorf("kept confidence = %v, want 0.9", out[0].Confidence)
	}
	// first-seen position is preserved
	if out[0].Type != domain.EntityComponent {
		t.Errorf("entity order changed: %+v", out)
	}
}

type fakeExtractionClient struct {
	response modelResponse
	err      error
}

func (f *fakeExtractionClient) ExtractStructured(ctx context.Context, name, description, prompt string, out any) error {
	if f.err != nil {
		return f.err
	}
	*out.(*modelResponse) = f.response
	return nil
}

func TestModelExtractorMapsResponse(t *testing.T) {
	client := &fakeExtractionClient{
		response: modelResponse{
			Entities: []modelEntity{
				{Name: "Radar Sensor", Type: "component", Confidence: 0.85},
				{Name: "bogus", Type: "spaceship", Confidence: 0.99},
				{Name: "", Type: "component", Confidence: 0.5},
			},
			Relationships: []modelRelationship{
				{
					SourceName: "Radar Sensor", SourceType: "component",
					TargetName: "ADAS", TargetType: "system",
					Type: "part_of", OccurredAt: "2024-03-01", Confidence: 1.5,
				},
				{
					SourceName: "Radar Sensor", SourceType: "component",
					TargetName: "ADAS", TargetType: "system",
					Type: "orbits", Confidence: 0.9,
				},
			},
		},
	}

	m := NewModelExtractor(client)
	entities, relationships, err := m.Extract(context.Background(), "chunk text")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(entities) != 1 {
		t.Fatalf("entities = %d, want 1 (invalid candidates dropped)", len(entities))
	}
	if entities[0].Method != domain.MethodModel {
		t.Errorf("method = %q, want model", entities[0].Method)
	}

	if len(relationships) != 1 {
		t.Fatalf("relationships = %d, want 1 (invalid type dropped)", len(relationships))
	}
	rel := relationships[0]
	if rel.Confidence >= 1.0 {
		t.Errorf("model confidence = %v, must stay below 1.0", rel.Confidence)
	}
	if rel.OccurredAt == nil || rel.OccurredAt.Format("2006-01-02") != "2024-03-01" {
		t.Errorf("OccurredAt = %v, want 2024-03-01", rel.OccurredAt)
	}
}

func TestExtractorFlagsLowConfidence(t *testing.T) {
	e := New(nil, 0.7)

	result, err := e.ExtractChunk(context.Background(), "Supplier: Acme Robotics\nStored DTC U0100 on the vehicle bus.")
	if err != nil {
		t.Fatalf("ExtractChunk() error = %v", err)
	}

	supplier, ok := findEntity(result.Entities, domain.EntitySupplier, "Acme Robotics")
	if !ok {
		t.Fatal("unknown supplier not extracted")
	}
	if !supplier.LowConfidence {
		t.Errorf("unknown supplier confidence %v not flagged low", supplier.Confidence)
	}

	dtc, ok := findEntity(result.Entities, domain.EntityDiagnosticCode, "U0100")
	if !ok {
		t.Fatal("DTC U0100 not extracted")
	}
	if dtc.LowConfidence {
		t.Error("exact-syntax DTC flagged low confidence")
	}
}
