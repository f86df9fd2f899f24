package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/drivetrace/backend/pkg/domain"
	"github.com/drivetrace/backend/pkg/store"
)

func entityStoreKey(e *domain.Entity) string {
	return e.Key() + "\x00" + e.DocumentID
}

func relationshipStoreKey(r *domain.Relationship) string {
	return r.Key() + "\x00" + r.DocumentID
}

// UpsertEntity stores an entity occurrence, idempotent on
// (type, lower(name), document). A re-extraction with higher confidence
// replaces the stored occurrence.
func (s *Store) UpsertEntity(ctx context.Context, entity *domain.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entity.PublicID == "" {
		entity.PublicID = newID()
	}
	key := entityStoreKey(entity)
	if existing, ok := s.entities[key]; ok {
		if entity.Confidence > existing.Confidence {
			copied := *entity
			copied.PublicID = existing.PublicID
			s.entities[key] = &copied
		}
		entity.PublicID = s.entities[key].PublicID
		return nil
	}
	copied := *entity
	s.entities[key] = &copied
	s.entityOrder = append(s.entityOrder, key)
	return nil
}

// UpsertRelationship stores an edge, idempotent on its identity key
// within the document. Edges are append-only; contradicting edges from
// other documents coexist.
func (s *Store) UpsertRelationship(ctx context.Context, rel *domain.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rel.PublicID == "" {
		rel.PublicID = newID()
	}
	key := relationshipStoreKey(rel)
	if at, ok := s.relKeys[key]; ok {
		if rel.Confidence > s.relationships[at].Confidence {
			copied := *rel
			copied.PublicID = s.relationships[at].PublicID
			s.relationships[at] = copied
		}
		rel.PublicID = s.relationships[at].PublicID
		return nil
	}
	s.relKeys[key] = len(s.relationships)
	s.relationships = append(s.relationships, *rel)
	return nil
}

// EntitiesByName returns all completed-document occurrences of a name,
// case-insensitive.
func (s *Store) EntitiesByName(ctx context.Context, name string) ([]domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := strings.ToLower(name)
	var out []domain.Entity
	for _, key := range s.entityOrder {
		entity := s.entities[key]
		if strings.ToLower(entity.Name) != lower || !s.documentCompletedLocked(entity.DocumentID) {
			continue
		}
		out = append(out, *entity)
	}
	return out, nil
}

// EntitiesByChunk returns the entities extracted from one chunk.
func (s *Store) EntitiesByChunk(ctx context.Context, chunkID string) ([]domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Entity
	for _, key := range s.entityOrder {
		entity := s.entities[key]
		if entity.ChunkID == chunkID {
			out = append(out, *entity)
		}
	}
	return out, nil
}

func (s *Store) deleteGraphDataLocked(documentID string) {
	kept := s.entityOrder[:0]
	for _, key := range s.entityOrder {
		if s.entities[key].DocumentID == documentID {
			delete(s.entities, key)
			continue
		}
		kept = append(kept, key)
	}
	s.entityOrder = kept

	keptRels := s.relationships[:0]
	for _, rel := range s.relationships {
		if rel.DocumentID == documentID {
			continue
		}
		keptRels = append(keptRels, rel)
	}
	s.relationships = keptRels
	s.relKeys = make(map[string]int, len(s.relationships))
	for i := range s.relationships {
		s.relKeys[relationshipStoreKey(&s.relationships[i])] = i
	}
}

func (s *Store) documentCompletedLocked(documentID string) bool {
	doc, ok := s.documents[documentID]
	return ok && doc.Status == domain.StatusCompleted
}

type nodeKey struct {
	entityType domain.EntityType
	name       string // lowercased
}

func keyOf(entityType domain.EntityType, name string) nodeKey {
	return nodeKey{entityType: entityType, name: strings.ToLower(name)}
}

// Neighbors runs a bounded breadth-first traversal from every node
// matching entityName. Edges are followed in both directions; a visited
// set keyed by (type, lower(name)) guards cycles. Only edges from
// completed documents participate.
func (s *Store) Neighbors(ctx context.Context, entityName string, relTypes []domain.RelationType, maxDepth int) ([]store.Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if maxDepth <= 0 {
		maxDepth = 1
	}

	typeAllowed := func(t domain.RelationType) bool {
		if len(relTypes) == 0 {
			return true
		}
		for _, rt := range relTypes {
			if rt == t {
				return true
			}
		}
		return false
	}

	visited := make(map[nodeKey]bool)
	var frontier []nodeKey
	lower := strings.ToLower(entityName)
	for _, key := range s.entityOrder {
		entity := s.entities[key]
		if strings.ToLower(entity.Name) != lower || !s.documentCompletedLocked(entity.DocumentID) {
			continue
		}
		nk := keyOf(entity.Type, entity.Name)
		if !visited[nk] {
			visited[nk] = true
			frontier = append(frontier, nk)
		}
	}

	var out []store.Neighbor
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []nodeKey
		for _, rel := range s.relationships {
			if !typeAllowed(rel.Type) || !s.documentCompletedLocked(rel.DocumentID) {
				continue
			}
			source := keyOf(rel.SourceType, rel.SourceName)
			target := keyOf(rel.TargetType, rel.TargetName)

			for _, hop := range []struct{ from, to nodeKey }{{source, target}, {target, source}} {
				if !containsKey(frontier, hop.from) || visited[hop.to] {
					continue
				}
				visited[hop.to] = true
				next = append(next, hop.to)
				out = append(out, store.Neighbor{
					Entity: s.representativeLocked(hop.to),
					Edge:   rel,
					Depth:  depth,
				})
			}
		}
		frontier = next
	}
	return out, nil
}

func containsKey(keys []nodeKey, k nodeKey) bool {
	for _, key := range keys {
		if key == k {
			return true
		}
	}
	return false
}

// representativeLocked picks the highest-confidence stored occurrence of
// a node, or synthesizes one when the node only ever appeared as an edge
// endpoint.
func (s *Store) representativeLocked(nk nodeKey) domain.Entity {
	var best *domain.Entity
	for _, key := range s.entityOrder {
		entity := s.entities[key]
		if keyOf(entity.Type, entity.Name) != nk || !s.documentCompletedLocked(entity.DocumentID) {
			continue
		}
		if best == nil || entity.Confidence > best.Confidence {
			best = entity
		}
	}
	if best != nil {
		return *best
	}
	return domain.Entity{Type: nk.entityType, Name: nk.name}
}

// EventsInWindow projects timestamped edges touching entityName onto a
// timeline. Bounds are inclusive; untimed edges are excluded; order is
// ascending by timestamp with document ingestion time as tiebreak.
func (s *Store) EventsInWindow(ctx context.Context, entityName string, start, end time.Time) ([]domain.TimelineEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := strings.ToLower(entityName)
	var out []domain.TimelineEvent
	for _, rel := range s.relationships {
		if rel.OccurredAt == nil || !s.documentCompletedLocked(rel.DocumentID) {
			continue
		}
		if strings.ToLower(rel.SourceName) != lower && strings.ToLower(rel.TargetName) != lower {
			continue
		}
		at := *rel.OccurredAt
		if !start.IsZero() && at.Before(start) {
			continue
		}
		if !end.IsZero() && at.After(end) {
			continue
		}
		var ingestedAt time.Time
		if doc, ok := s.documents[rel.DocumentID]; ok {
			ingestedAt = doc.IngestedAt
		}
		out = append(out, domain.TimelineEvent{
			EntityName:   entityName,
			Relationship: rel,
			Timestamp:    at,
			DocumentID:   rel.DocumentID,
			IngestedAt:   ingestedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].IngestedAt.Before(out[j].IngestedAt)
	})
	return out, nil
}
