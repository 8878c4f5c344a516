// Package neo4j implements the graph store against a Neo4j server.
//
// Entities are nodes labelled Entity keyed by canonical URI; relations
// are FACT relationships keyed by triple identity. Merge semantics are
// applied in Go through the domain merge functions so every backend
// resolves conflicts the same way.
package neo4j

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.GraphStore = (*Store)(nil)

// Store is a Neo4j-backed graph store.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithDatabase selects a database other than the server default.
func WithDatabase(name string) Option {
	return func(s *Store) { s.database = name }
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore connects to the given Neo4j server and verifies connectivity.
func NewStore(ctx context.Context, uri, username, password string, opts ...Option) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: %v", domain.ErrGraphUnavailable, err)
	}

	s := &Store{driver: driver, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close shuts down the underlying driver.
func (s *Store) Close() error {
	return s.driver.Close(context.Background())
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

// UpsertEntity merges the entity into the store by URI. The read and
// the write happen inside one transaction so concurrent ingestions do
// not lose aliases.
func (s *Store) UpsertEntity(ctx context.Context, entity domain.Entity) (*domain.Entity, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	merged, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		existing, err := readEntityTx(ctx, tx, entity.URI)
		if err != nil {
			return nil, err
		}

		out := entity
		if existing == nil {
			if out.CreatedAt.IsZero() {
				out.CreatedAt = s.now()
			}
			out.UpdatedAt = s.now()
		} else {
			out = domain.MergeEntity(*existing, entity, s.now())
		}

		query := `
			MERGE (e:Entity {uri: $uri})
			SET e.type = $type,
			    e.label = $label,
			    e.aliases = $aliases,
			    e.embedding = $embedding,
			    e.confidence = $confidence,
			    e.created_at = $createdAt,
			    e.updated_at = $updatedAt
		`
		if _, err := tx.Run(ctx, query, entityParams(out)); err != nil {
			return nil, fmt.Errorf("writing entity: %w", err)
		}
		return &out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("upserting entity %s: %w", entity.URI, err)
	}
	return merged.(*domain.Entity), nil
}

// UpsertRelation merges the relation by triple identity. Endpoint nodes
// are merged by URI so a relation never dangles.
func (s *Store) UpsertRelation(ctx context.Context, rel domain.Relation) (*domain.Relation, error) {
	if rel.ID == "" {
		rel.ID = domain.RelationID(rel.Subject, rel.Predicate, rel.Object)
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	merged, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		existing, err := readRelationTx(ctx, tx, rel.ID)
		if err != nil {
			return nil, err
		}

		out := rel
		if existing != nil {
			out = domain.MergeRelation(*existing, rel)
		}

		provenance, err := json.Marshal(out.Provenance)
		if err != nil {
			return nil, fmt.Errorf("encoding provenance: %w", err)
		}

		query := `
			MERGE (a:Entity {uri: $subject})
			MERGE (b:Entity {uri: $object})
			MERGE (a)-[r:FACT {id: $id}]->(b)
			SET r.predicate = $predicate,
			    r.provenance = $provenance,
			    r.valid_from = $validFrom,
			    r.valid_to = $validTo
		`
		params := map[string]any{
			"id":         out.ID,
			"subject":    out.Subject,
			"object":     out.Object,
			"predicate":  out.Predicate,
			"provenance": string(provenance),
			"validFrom":  encodeTimePtr(out.ValidFrom),
			"validTo":    encodeTimePtr(out.ValidTo),
		}
		if _, err := tx.Run(ctx, query, params); err != nil {
			return nil, fmt.Errorf("writing relation: %w", err)
		}
		return &out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("upserting relation %s: %w", rel.ID, err)
	}
	return merged.(*domain.Relation), nil
}

// GetEntity retrieves an entity by canonical URI.
func (s *Store) GetEntity(ctx context.Context, uri string) (*domain.Entity, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return readEntityTx(ctx, tx, uri)
	})
	if err != nil {
		return nil, fmt.Errorf("getting entity %s: %w", uri, err)
	}

	entity := result.(*domain.Entity)
	if entity == nil {
		return nil, fmt.Errorf("entity %s: %w", uri, domain.ErrNotFound)
	}
	return entity, nil
}

// FindByAlias returns every entity carrying the surface form. Aliases
// are stored normalised, so containment is an exact list check.
func (s *Store) FindByAlias(ctx context.Context, surface string) ([]domain.Entity, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := `
		MATCH (e:Entity)
		WHERE $surface IN e.aliases
		RETURN e
		ORDER BY e.uri
	`
	result, err := session.Run(ctx, query, map[string]any{
		"surface": domain.NormaliseAlias(surface),
	})
	if err != nil {
		return nil, fmt.Errorf("finding by alias: %w", err)
	}

	var entities []domain.Entity
	for result.Next(ctx) {
		entity, err := entityFromRecord(result.Record(), "e")
		if err != nil {
			return nil, err
		}
		entities = append(entities, *entity)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("finding by alias: %w", err)
	}
	return entities, nil
}

// Neighborhood expands the seeds hop by hop. Each hop fetches the
// relations touching the frontier and admits entities in truncation
// order, so the result is identical across backends.
func (s *Store) Neighborhood(
	ctx context.Context, seeds []string, hops, maxNodes int,
) (*driven.Subgraph, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	sub := &driven.Subgraph{Entities: make(map[string]domain.Entity)}

	frontier := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		if _, ok := sub.Entities[seed]; ok {
			continue
		}
		entity, err := s.fetchEntity(ctx, session, seed)
		if err != nil {
			return nil, err
		}
		if entity != nil {
			sub.Entities[seed] = *entity
			frontier = append(frontier, seed)
		}
	}

	seenRel := make(map[string]bool)
	for hop := 0; hop < hops && len(frontier) > 0; hop++ {
		candidates, found, err := s.fetchTouching(ctx, session, frontier, seenRel)
		if err != nil {
			return nil, err
		}
		sortRelations(candidates)

		var next []string
		for _, rel := range candidates {
			for _, uri := range []string{rel.Subject, rel.Object} {
				if _, ok := sub.Entities[uri]; ok {
					continue
				}
				if len(sub.Entities) >= maxNodes {
					sub.Truncated = true
					continue
				}
				if entity, ok := found[uri]; ok {
					sub.Entities[uri] = entity
					next = append(next, uri)
				}
			}

			// Keep only relations whose both endpoints survived the cap.
			if _, okS := sub.Entities[rel.Subject]; !okS {
				continue
			}
			if _, okO := sub.Entities[rel.Object]; !okO {
				continue
			}
			seenRel[rel.ID] = true
			sub.Relations = append(sub.Relations, rel)
		}

		frontier = next
	}

	return sub, nil
}

// RelationsBetween returns relations connecting any pair of the URIs.
func (s *Store) RelationsBetween(ctx context.Context, uris []string) ([]domain.Relation, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := `
		MATCH (a:Entity)-[r:FACT]->(b:Entity)
		WHERE a.uri IN $uris AND b.uri IN $uris
		RETURN r, a.uri AS subject, b.uri AS object
	`
	result, err := session.Run(ctx, query, map[string]any{"uris": uris})
	if err != nil {
		return nil, fmt.Errorf("relations between: %w", err)
	}

	var rels []domain.Relation
	for result.Next(ctx) {
		rel, err := relationFromRecord(result.Record())
		if err != nil {
			return nil, err
		}
		rels = append(rels, *rel)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("relations between: %w", err)
	}
	return rels, nil
}

// EntityCount reports the number of entity nodes.
func (s *Store) EntityCount(ctx context.Context) (int, error) {
	return s.count(ctx, `MATCH (e:Entity) RETURN count(e) AS n`)
}

// RelationCount reports the number of FACT relationships.
func (s *Store) RelationCount(ctx context.Context) (int, error) {
	return s.count(ctx, `MATCH ()-[r:FACT]->() RETURN count(r) AS n`)
}

func (s *Store) count(ctx context.Context, query string) (int, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return 0, fmt.Errorf("counting: %w", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting: %w", err)
	}
	n, _ := record.Get("n")
	count, ok := n.(int64)
	if !ok {
		return 0, fmt.Errorf("counting: unexpected result type %T", n)
	}
	return int(count), nil
}

func (s *Store) fetchEntity(
	ctx context.Context, session neo4j.SessionWithContext, uri string,
) (*domain.Entity, error) {
	result, err := session.Run(ctx, `MATCH (e:Entity {uri: $uri}) RETURN e`, map[string]any{"uri": uri})
	if err != nil {
		return nil, fmt.Errorf("fetching entity: %w", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("fetching entity: %w", err)
		}
		return nil, nil
	}
	return entityFromRecord(result.Record(), "e")
}

// fetchTouching returns unseen relations with at least one endpoint in
// the frontier, plus the entity records of every endpoint touched.
func (s *Store) fetchTouching(
	ctx context.Context, session neo4j.SessionWithContext, frontier []string, seen map[string]bool,
) ([]domain.Relation, map[string]domain.Entity, error) {
	query := `
		MATCH (a:Entity)-[r:FACT]->(b:Entity)
		WHERE a.uri IN $uris OR b.uri IN $uris
		RETURN r, a.uri AS subject, b.uri AS object, a, b
	`
	result, err := session.Run(ctx, query, map[string]any{"uris": frontier})
	if err != nil {
		return nil, nil, fmt.Errorf("expanding neighbourhood: %w", err)
	}

	var rels []domain.Relation
	found := make(map[string]domain.Entity)
	for result.Next(ctx) {
		record := result.Record()
		rel, err := relationFromRecord(record)
		if err != nil {
			return nil, nil, err
		}
		if seen[rel.ID] {
			continue
		}
		rels = append(rels, *rel)

		for _, key := range []string{"a", "b"} {
			entity, err := entityFromRecord(record, key)
			if err != nil {
				return nil, nil, err
			}
			found[entity.URI] = *entity
		}
	}
	if err := result.Err(); err != nil {
		return nil, nil, fmt.Errorf("expanding neighbourhood: %w", err)
	}
	return rels, found, nil
}

func readEntityTx(ctx context.Context, tx neo4j.ManagedTransaction, uri string) (*domain.Entity, error) {
	result, err := tx.Run(ctx, `MATCH (e:Entity {uri: $uri}) RETURN e`, map[string]any{"uri": uri})
	if err != nil {
		return nil, fmt.Errorf("reading entity: %w", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("reading entity: %w", err)
		}
		return nil, nil
	}
	return entityFromRecord(result.Record(), "e")
}

func readRelationTx(ctx context.Context, tx neo4j.ManagedTransaction, id string) (*domain.Relation, error) {
	query := `
		MATCH (a:Entity)-[r:FACT {id: $id}]->(b:Entity)
		RETURN r, a.uri AS subject, b.uri AS object
	`
	result, err := tx.Run(ctx, query, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("reading relation: %w", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("reading relation: %w", err)
		}
		return nil, nil
	}
	return relationFromRecord(result.Record())
}

func entityParams(e domain.Entity) map[string]any {
	embedding := make([]float64, len(e.Embedding))
	for i, v := range e.Embedding {
		embedding[i] = float64(v)
	}
	return map[string]any{
		"uri":        e.URI,
		"type":       string(e.Type),
		"label":      e.Label,
		"aliases":    e.Aliases,
		"embedding":  embedding,
		"confidence": e.Confidence,
		"createdAt":  e.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":  e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func entityFromRecord(record *neo4j.Record, key string) (*domain.Entity, error) {
	val, ok := record.Get(key)
	if !ok {
		return nil, fmt.Errorf("record missing %q", key)
	}
	node, ok := val.(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected value type %T for %q", val, key)
	}
	props := node.Props

	entity := &domain.Entity{
		URI:        getString(props, "uri"),
		Type:       domain.EntityType(getString(props, "type")),
		Label:      getString(props, "label"),
		Aliases:    getStringSlice(props, "aliases"),
		Confidence: getFloat64(props, "confidence"),
		CreatedAt:  getTime(props, "created_at"),
		UpdatedAt:  getTime(props, "updated_at"),
	}
	if raw, ok := props["embedding"].([]any); ok && len(raw) > 0 {
		entity.Embedding = make([]float32, 0, len(raw))
		for _, v := range raw {
			if f, ok := v.(float64); ok {
				entity.Embedding = append(entity.Embedding, float32(f))
			}
		}
	}
	return entity, nil
}

func relationFromRecord(record *neo4j.Record) (*domain.Relation, error) {
	val, ok := record.Get("r")
	if !ok {
		return nil, fmt.Errorf("record missing relation")
	}
	rel, ok := val.(neo4j.Relationship)
	if !ok {
		return nil, fmt.Errorf("unexpected value type %T for relation", val)
	}
	props := rel.Props

	subject, _ := record.Get("subject")
	object, _ := record.Get("object")
	out := &domain.Relation{
		ID:        getString(props, "id"),
		Subject:   asString(subject),
		Predicate: getString(props, "predicate"),
		Object:    asString(object),
		ValidFrom: decodeTimePtr(props, "valid_from"),
		ValidTo:   decodeTimePtr(props, "valid_to"),
	}

	if raw := getString(props, "provenance"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &out.Provenance); err != nil {
			return nil, fmt.Errorf("decoding provenance for %s: %w", out.ID, err)
		}
	}
	return out, nil
}

// sortRelations orders candidates for deterministic truncation:
// most recently observed first, then highest confidence, then ID.
func sortRelations(rels []domain.Relation) {
	sort.Slice(rels, func(i, j int) bool {
		a, b := rels[i], rels[j]
		at, bt := a.LastObserved(), b.LastObserved()
		if !at.Equal(bt) {
			return at.After(bt)
		}
		if ac, bc := a.Confidence(), b.Confidence(); ac != bc {
			return ac > bc
		}
		return a.ID < b.ID
	})
}

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTimePtr(props map[string]any, key string) *time.Time {
	raw, ok := props[key].(string)
	if !ok || raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil
	}
	return &t
}

func getString(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func getFloat64(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func getStringSlice(props map[string]any, key string) []string {
	raw, ok := props[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func getTime(props map[string]any, key string) time.Time {
	raw, ok := props[key].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
