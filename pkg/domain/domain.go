package domain

import (
	"strings"
	"time"
)

// ContentType classifies a document within the fixed corpus taxonomy.
type ContentType string

const (
	ContentReleaseNote   ContentType = "release_note"
	ContentHardwareSpec  ContentType = "hardware_spec"
	ContentDiagnosticLog ContentType = "diagnostic_log"
	ContentRepairNote    ContentType = "repair_note"
	ContentSupplierDoc   ContentType = "supplier_doc"
)

func (c ContentType) IsValid() bool {
	switch c {
	case ContentReleaseNote, ContentHardwareSpec, ContentDiagnosticLog,
		ContentRepairNote, ContentSupplierDoc:
		return true
	}
	return false
}

// VehicleSystem identifies the vehicle subsystem a document or entity
// belongs to.
type VehicleSystem string

const (
	SystemADAS         VehicleSystem = "adas"
	SystemBraking      VehicleSystem = "braking"
	SystemSteering     VehicleSystem = "steering"
	SystemPowertrain   VehicleSystem = "powertrain"
	SystemInfotainment VehicleSystem = "infotainment"
	SystemHVAC         VehicleSystem = "hvac"
	SystemLighting     VehicleSystem = "lighting"
	SystemBodyControl  VehicleSystem = "body_control"
	SystemNetwork      VehicleSystem = "network"
)

func (v VehicleSystem) IsValid() bool {
	switch v {
	case SystemADAS, SystemBraking, SystemSteering, SystemPowertrain,
		SystemInfotainment, SystemHVAC, SystemLighting, SystemBodyControl,
		SystemNetwork:
		return true
	}
	return false
}

// Severity grades the impact described by a document.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ProcessingStatus tracks a document through the ingestion state machine.
// Search treats only completed documents as authoritative.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// EntityType is the closed set of node types in the knowledge graph.
// Downstream graph logic switches exhaustively over these values.
type EntityType string

const (
	EntityComponent       EntityType = "component"
	EntitySystem          EntityType = "system"
	EntitySupplier        EntityType = "supplier"
	EntityDiagnosticCode  EntityType = "diagnostic_code"
	EntityVINPattern      EntityType = "vin_pattern"
	EntitySoftwareVersion EntityType = "software_version"
)

func (e EntityType) IsValid() bool {
	switch e {
	case EntityComponent, EntitySystem, EntitySupplier,
		EntityDiagnosticCode, EntityVINPattern, EntitySoftwareVersion:
		return true
	}
	return false
}

// RelationType is the closed set of edge types between entities.
type RelationType string

const (
	RelationDependsOn        RelationType = "depends_on"
	RelationCommunicatesWith RelationType = "communicates_with"
	RelationPartOf           RelationType = "part_of"
	RelationAffectedByUpdate RelationType = "affected_by_update"
	RelationSupersedes       RelationType = "supersedes"
)

func (r RelationType) IsValid() bool {
	switch r {
	case RelationDependsOn, RelationCommunicatesWith, RelationPartOf,
		RelationAffectedByUpdate, RelationSupersedes:
		return true
	}
	return false
}

// ExtractionMethod records how an entity or relationship was produced.
type ExtractionMethod string

const (
	MethodPattern ExtractionMethod = "pattern"
	MethodModel   ExtractionMethod = "model"
)

// Document is the unit of ingestion. A document owns its chunks; replacing
// a document deletes and recreates them, never patches in place. FileHash
// is the idempotency key: re-ingesting an unchanged file is a no-op once
// the document reached StatusCompleted.
type Document struct {
	PublicID      string           `json:"id"`
	Filename      string           `json:"filename"`
	Title         string           `json:"title,omitempty"`
	ContentType   ContentType      `json:"content_type"`
	FileHash      string           `json:"file_hash"`
	VehicleSystem VehicleSystem    `json:"vehicle_system,omitempty"`
	ComponentName string           `json:"component_name,omitempty"`
	Supplier      string           `json:"supplier,omitempty"`
	ModelYears    []int            `json:"model_years,omitempty"`
	VINPatterns   []string         `json:"vin_patterns,omitempty"`
	Severity      Severity         `json:"severity,omitempty"`
	Status        ProcessingStatus `json:"status"`
	FailureReason string           `json:"failure_reason,omitempty"`
	ChunkCount    int              `json:"chunk_count"`
	IngestedAt    time.Time        `json:"ingested_at"`
}

// Chunk is a bounded, contiguous slice of a document used as the unit of
// retrieval. (PublicID, Index) is unique within a document and the
// embedding dimension is uniform across every chunk in the store.
type Chunk struct {
	PublicID    string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	Index       int       `json:"index"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	StartChar   int       `json:"start_char"`
	EndChar     int       `json:"end_char"`
	TokenCount  int       `json:"token_count"`
	Embedding   []float32 `json:"-"`

	// Cheap pre-filter flags computed at chunking time.
	HasDTCCodes      bool `json:"has_dtc_codes"`
	HasVersionInfo   bool `json:"has_version_info"`
	HasComponentInfo bool `json:"has_component_info"`
}

// Entity is a typed, named node extracted from a chunk. Identity within a
// document is (Type, lower(Name)); occurrences of the same name across
// documents merge at the graph level while keeping per-document provenance.
type Entity struct {
	PublicID      string           `json:"id"`
	Type          EntityType       `json:"type"`
	Name          string           `json:"name"`
	Value         string           `json:"value,omitempty"`
	DocumentID    string           `json:"document_id"`
	ChunkID       string           `json:"chunk_id,omitempty"`
	Confidence    float64          `json:"confidence"`
	Method        ExtractionMethod `json:"method"`
	LowConfidence bool             `json:"low_confidence,omitempty"`
}

// Key returns the dedup identity of the entity within one document.
func (e Entity) Key() string {
	return string(e.Type) + "\x00" + strings.ToLower(e.Name)
}

// Relationship is a directed, typed edge between two entities, referenced
// by name and type rather than by stored node identity. Edges are
// append-only: a later contradicting edge never deletes an earlier one.
// OccurredAt, when present, is the moment the relationship became true
// (an update date, a supersession date); it is nil for purely structural
// facts and such edges are excluded from timeline projections.
type Relationship struct {
	PublicID   string       `json:"id"`
	Type       RelationType `json:"type"`
	SourceName string       `json:"source_name"`
	SourceType EntityType   `json:"source_type"`
	TargetName string       `json:"target_name"`
	TargetType EntityType   `json:"target_type"`
	Confidence float64      `json:"confidence"`
	OccurredAt *time.Time   `json:"occurred_at,omitempty"`
	DocumentID string       `json:"document_id"`
}

// Key returns the dedup identity of the edge within one document.
func (r Relationship) Key() string {
	return strings.Join([]string{
		string(r.Type),
		string(r.SourceType), strings.ToLower(r.SourceName),
		string(r.TargetType), strings.ToLower(r.TargetName),
	}, "\x00")
}

// TimelineEvent is a projection of a timestamped relationship touching an
// entity, ordered by timestamp with document ingestion order as tiebreak.
// Never stored; always derived from the graph.
type TimelineEvent struct {
	EntityName   string       `json:"entity_name"`
	Relationship Relationship `json:"relationship"`
	Timestamp    time.Time    `json:"timestamp"`
	DocumentID   string       `json:"document_id"`
	IngestedAt   time.Time    `json:"ingested_at"`
}

// DTCCategory derives the subsystem category encoded in the first letter
// of a diagnostic trouble code: B body, C chassis, P powertrain, U network.
func DTCCategory(code string) string {
	if code == "" {
		return ""
	}
	switch code[0] {
	case 'B', 'b':
		return "body"
	case 'C', 'c':
		return "chassis"
	case 'P', 'p':
		return "powertrain"
	case 'U', 'u':
		return "network"
	}
	return ""
}
