package pgx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"

	"github.com/drivetrace/backend/pkg/domain"
	"github.com/drivetrace/backend/pkg/store"
)

// UpsertEntity inserts an entity occurrence or, when the same
// (type, name, document) identity already exists, keeps whichever side
// has the higher confidence. The stored public ID is echoed back.
func (s *Store) UpsertEntity(ctx context.Context, entity *domain.Entity) error {
	if entity.PublicID == "" {
		entity.PublicID = newID()
	}

	err := s.conn.QueryRow(ctx, `
		INSERT INTO entities (
			public_id, document_id, chunk_public_id, entity_type, name,
			value, confidence, extraction_method, low_confidence
		)
		SELECT $1, d.id, $3, $4, $5, $6, $7, $8, $9
		FROM documents d WHERE d.public_id = $2
		ON CONFLICT (entity_type, lower(name), document_id) DO UPDATE SET
			chunk_public_id = EXCLUDED.chunk_public_id,
			value = EXCLUDED.value,
			confidence = EXCLUDED.confidence,
			extraction_method = EXCLUDED.extraction_method,
			low_confidence = EXCLUDED.low_confidence
		WHERE EXCLUDED.confidence > entities.confidence
		RETURNING public_id
	`,
		entity.PublicID, entity.DocumentID, entity.ChunkID, string(entity.Type),
		entity.Name, entity.Value, entity.Confidence, string(entity.Method),
		entity.LowConfidence,
	).Scan(&entity.PublicID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgxv5.ErrNoRows) {
		return fmt.Errorf("upsert entity: %w", err)
	}

	// Conflict with a higher-confidence row, or unknown document.
	err = s.conn.QueryRow(ctx, `
		SELECT e.public_id
		FROM entities e
		JOIN documents d ON d.id = e.document_id
		WHERE e.entity_type = $1 AND lower(e.name) = lower($2) AND d.public_id = $3
	`, string(entity.Type), entity.Name, entity.DocumentID).Scan(&entity.PublicID)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return domain.ErrDocumentNotFound
	}
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}
	return nil
}

// UpsertRelationship inserts an edge occurrence with the same
// keep-higher-confidence semantics as UpsertEntity.
func (s *Store) UpsertRelationship(ctx context.Context, rel *domain.Relationship) error {
	if rel.PublicID == "" {
		rel.PublicID = newID()
	}

	err := s.conn.QueryRow(ctx, `
		INSERT INTO relationships (
			public_id, document_id, relation_type, source_name, source_type,
			target_name, target_type, confidence, occurred_at
		)
		SELECT $1, d.id, $3, $4, $5, $6, $7, $8, $9
		FROM documents d WHERE d.public_id = $2
		ON CONFLICT (relation_type, source_type, lower(source_name), target_type, lower(target_name), document_id)
		DO UPDATE SET
			confidence = EXCLUDED.confidence,
			occurred_at = EXCLUDED.occurred_at
		WHERE EXCLUDED.confidence > relationships.confidence
		RETURNING public_id
	`,
		rel.PublicID, rel.DocumentID, string(rel.Type), rel.SourceName,
		string(rel.SourceType), rel.TargetName, string(rel.TargetType),
		rel.Confidence, rel.OccurredAt,
	).Scan(&rel.PublicID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgxv5.ErrNoRows) {
		return fmt.Errorf("upsert relationship: %w", err)
	}

	err = s.conn.QueryRow(ctx, `
		SELECT r.public_id
		FROM relationships r
		JOIN documents d ON d.id = r.document_id
		WHERE r.relation_type = $1
		  AND r.source_type = $2 AND lower(r.source_name) = lower($3)
		  AND r.target_type = $4 AND lower(r.target_name) = lower($5)
		  AND d.public_id = $6
	`,
		string(rel.Type), string(rel.SourceType), rel.SourceName,
		string(rel.TargetType), rel.TargetName, rel.DocumentID,
	).Scan(&rel.PublicID)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return domain.ErrDocumentNotFound
	}
	if err != nil {
		return fmt.Errorf("upsert relationship: %w", err)
	}
	return nil
}

const entityColumns = `
	e.public_id, e.entity_type, e.name, e.value, e.confidence,
	e.extraction_method, e.low_confidence, e.chunk_public_id, d.public_id`

func scanEntities(rows pgxv5.Rows) ([]domain.Entity, error) {
	defer rows.Close()
	var out []domain.Entity
	for rows.Next() {
		var e domain.Entity
		err := rows.Scan(
			&e.PublicID, &e.Type, &e.Name, &e.Value, &e.Confidence,
			&e.Method, &e.LowConfidence, &e.ChunkID, &e.DocumentID,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EntitiesByName returns every completed-document occurrence of the name,
// case-insensitively.
func (s *Store) EntitiesByName(ctx context.Context, name string) ([]domain.Entity, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT`+entityColumns+`
		FROM entities e
		JOIN documents d ON d.id = e.document_id
		WHERE d.processing_status = 'completed' AND lower(e.name) = lower($1)
		ORDER BY e.id
	`, name)
	if err != nil {
		return nil, fmt.Errorf("entities by name: %w", err)
	}
	out, err := scanEntities(rows)
	if err != nil {
		return nil, fmt.Errorf("entities by name: %w", err)
	}
	return out, nil
}

// EntitiesByChunk returns the entities extracted from one chunk.
func (s *Store) EntitiesByChunk(ctx context.Context, chunkID string) ([]domain.Entity, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT`+entityColumns+`
		FROM entities e
		JOIN documents d ON d.id = e.document_id
		WHERE e.chunk_public_id = $1
		ORDER BY e.id
	`, chunkID)
	if err != nil {
		return nil, fmt.Errorf("entities by chunk: %w", err)
	}
	out, err := scanEntities(rows)
	if err != nil {
		return nil, fmt.Errorf("entities by chunk: %w", err)
	}
	return out, nil
}

type nodeKey struct {
	entityType domain.EntityType
	name       string // lowercased
}

// Neighbors walks the edge set breadth-first from the named entity up to
// maxDepth hops, following edges in both directions. A visited set keeps
// cycles from repeating nodes. Only edges from completed documents count.
func (s *Store) Neighbors(ctx context.Context, entityName string, relTypes []domain.RelationType, maxDepth int) ([]store.Neighbor, error) {
	if maxDepth <= 0 {
		maxDepth = 1
	}
	typeFilter := make([]string, 0, len(relTypes))
	for _, t := range relTypes {
		typeFilter = append(typeFilter, string(t))
	}

	start := strings.ToLower(entityName)
	visited := map[nodeKey]bool{}
	frontierNames := []string{start}
	var out []store.Neighbor
	var neighborKeys []nodeKey

	for depth := 1; depth <= maxDepth && len(frontierNames) > 0; depth++ {
		rows, err := s.conn.Query(ctx, `
			SELECT r.public_id, r.relation_type, r.source_name, r.source_type,
			       r.target_name, r.target_type, r.confidence, r.occurred_at, d.public_id
			FROM relationships r
			JOIN documents d ON d.id = r.document_id
			WHERE d.processing_status = 'completed'
			  AND (lower(r.source_name) = ANY($1) OR lower(r.target_name) = ANY($1))
			  AND (cardinality($2::text[]) = 0 OR r.relation_type = ANY($2))
		`, frontierNames, typeFilter)
		if err != nil {
			return nil, fmt.Errorf("neighbors: %w", err)
		}

		var edges []domain.Relationship
		for rows.Next() {
			var rel domain.Relationship
			err := rows.Scan(
				&rel.PublicID, &rel.Type, &rel.SourceName, &rel.SourceType,
				&rel.TargetName, &rel.TargetType, &rel.Confidence, &rel.OccurredAt,
				&rel.DocumentID,
			)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("neighbors: %w", err)
			}
			edges = append(edges, rel)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("neighbors: %w", err)
		}

		inFrontier := map[string]bool{}
		for _, n := range frontierNames {
			inFrontier[n] = true
		}
		if depth == 1 {
			visited[nodeKey{name: start}] = true
		}

		var nextNames []string
		for _, rel := range edges {
			for _, hop := range [][2]string{
				{strings.ToLower(rel.SourceName), strings.ToLower(rel.TargetName)},
				{strings.ToLower(rel.TargetName), strings.ToLower(rel.SourceName)},
			} {
				from, to := hop[0], hop[1]
				if !inFrontier[from] || to == start {
					continue
				}
				toKey := nodeKey{entityType: edgeEndpointType(rel, to), name: to}
				if visited[toKey] {
					continue
				}
				visited[toKey] = true
				out = append(out, store.Neighbor{
					Entity: domain.Entity{Type: toKey.entityType, Name: edgeEndpointName(rel, to)},
					Edge:   rel,
					Depth:  depth,
				})
				neighborKeys = append(neighborKeys, toKey)
				nextNames = append(nextNames, to)
			}
		}
		frontierNames = nextNames
	}

	if err := s.fillRepresentatives(ctx, out, neighborKeys); err != nil {
		return nil, fmt.Errorf("neighbors: %w", err)
	}
	return out, nil
}

func edgeEndpointType(rel domain.Relationship, lowerName string) domain.EntityType {
	if strings.ToLower(rel.SourceName) == lowerName {
		return rel.SourceType
	}
	return rel.TargetType
}

func edgeEndpointName(rel domain.Relationship, lowerName string) string {
	if strings.ToLower(rel.SourceName) == lowerName {
		return rel.SourceName
	}
	return rel.TargetName
}

// fillRepresentatives replaces the synthesized neighbor entities with the
// highest-confidence stored occurrence where one exists.
func (s *Store) fillRepresentatives(ctx context.Context, neighbors []store.Neighbor, keys []nodeKey) error {
	if len(neighbors) == 0 {
		return nil
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.name)
	}

	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT ON (e.entity_type, lower(e.name))`+entityColumns+`
		FROM entities e
		JOIN documents d ON d.id = e.document_id
		WHERE d.processing_status = 'completed' AND lower(e.name) = ANY($1)
		ORDER BY e.entity_type, lower(e.name), e.confidence DESC
	`, names)
	if err != nil {
		return err
	}
	stored, err := scanEntities(rows)
	if err != nil {
		return err
	}

	byKey := make(map[nodeKey]domain.Entity, len(stored))
	for _, e := range stored {
		byKey[nodeKey{entityType: e.Type, name: strings.ToLower(e.Name)}] = e
	}
	for i := range neighbors {
		if e, ok := byKey[keys[i]]; ok {
			neighbors[i].Entity = e
		}
	}
	return nil
}

// EventsInWindow projects the timestamped edges touching an entity onto a
// timeline. Bounds are inclusive; a zero bound is unconstrained. Edges
// without a timestamp never appear.
func (s *Store) EventsInWindow(ctx context.Context, entityName string, start, end time.Time) ([]domain.TimelineEvent, error) {
	var startArg, endArg *time.Time
	if !start.IsZero() {
		startArg = &start
	}
	if !end.IsZero() {
		endArg = &end
	}

	rows, err := s.conn.Query(ctx, `
		SELECT r.public_id, r.relation_type, r.source_name, r.source_type,
		       r.target_name, r.target_type, r.confidence, r.occurred_at,
		       d.public_id, d.ingested_at
		FROM relationships r
		JOIN documents d ON d.id = r.document_id
		WHERE d.processing_status = 'completed'
		  AND r.occurred_at IS NOT NULL
		  AND (lower(r.source_name) = lower($1) OR lower(r.target_name) = lower($1))
		  AND ($2::timestamptz IS NULL OR r.occurred_at >= $2)
		  AND ($3::timestamptz IS NULL OR r.occurred_at <= $3)
		ORDER BY r.occurred_at, d.ingested_at
	`, entityName, startArg, endArg)
	if err != nil {
		return nil, fmt.Errorf("events in window: %w", err)
	}
	defer rows.Close()

	var out []domain.TimelineEvent
	for rows.Next() {
		var event domain.TimelineEvent
		var rel domain.Relationship
		err := rows.Scan(
			&rel.PublicID, &rel.Type, &rel.SourceName, &rel.SourceType,
			&rel.TargetName, &rel.TargetType, &rel.Confidence, &rel.OccurredAt,
			&rel.DocumentID, &event.IngestedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("events in window: %w", err)
		}
		event.EntityName = entityName
		event.Relationship = rel
		event.Timestamp = *rel.OccurredAt
		event.DocumentID = rel.DocumentID
		out = append(out, event)
	}
	return out, rows.Err()
}
