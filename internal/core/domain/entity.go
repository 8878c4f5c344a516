package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// EntityType classifies an entity against the fixed ontology.
type EntityType string

// The ontology is closed: extractions outside it are dropped.
const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
	EntityProduct      EntityType = "product"
	EntityEvent        EntityType = "event"
	EntityConcept      EntityType = "concept"
)

// Valid reports whether the type belongs to the ontology.
func (t EntityType) Valid() bool {
	switch t {
	case EntityPerson, EntityOrganization, EntityLocation,
		EntityProduct, EntityEvent, EntityConcept:
		return true
	}
	return false
}

// Entity is a deduplicated real-world referent identified by canonical URI.
// No two entities share a URI, and an alias maps to exactly one entity at
// any point in time.
type Entity struct {
	// URI is the canonical identifier.
	URI string

	// Type is the ontology class. Conflicting classifications merge in
	// favour of the higher-confidence, more recent observation.
	Type EntityType

	// Label is the preferred display name.
	Label string

	// Aliases holds every observed surface form, lower-cased.
	Aliases []string

	// Embedding is an optional description vector.
	Embedding []float32

	// Confidence is the extractor confidence of the winning observation.
	Confidence float64

	// CreatedAt orders entities for deterministic tie-breaks.
	CreatedAt time.Time

	// UpdatedAt is the last merge time.
	UpdatedAt time.Time
}

// HasAlias reports whether the entity already carries the surface form.
// Matching is case-insensitive.
func (e *Entity) HasAlias(surface string) bool {
	needle := NormaliseAlias(surface)
	for _, a := range e.Aliases {
		if a == needle {
			return true
		}
	}
	return false
}

// AddAlias records a new surface form, normalised, without duplicates.
func (e *Entity) AddAlias(surface string) {
	if e.HasAlias(surface) {
		return
	}
	e.Aliases = append(e.Aliases, NormaliseAlias(surface))
}

// NormaliseAlias canonicalises a surface form for alias matching.
func NormaliseAlias(surface string) string {
	return strings.ToLower(strings.Join(strings.Fields(surface), " "))
}

// Provenance records where a fact was observed.
type Provenance struct {
	// ChunkID is the chunk the observation came from.
	ChunkID string

	// Extractor names the extractor that produced the observation.
	Extractor string

	// Confidence is the extractor confidence in [0,1].
	Confidence float64

	// ObservedAt is when the observation was recorded.
	ObservedAt time.Time
}

// Relation is a deduplicated (subject, predicate, object) triple.
// Provenance is additive: asserting the same triple again attaches a new
// provenance record instead of creating a second edge.
type Relation struct {
	// ID is derived from the triple and stable across ingestions.
	ID string

	// Subject and Object are entity URIs; Predicate is a verb phrase.
	Subject   string
	Predicate string
	Object    string

	// Provenance lists every observation of this triple.
	Provenance []Provenance

	// ValidFrom and ValidTo optionally bound the assertion in time.
	ValidFrom *time.Time
	ValidTo   *time.Time
}

// RelationID derives the stable identifier for a triple.
func RelationID(subject, predicate, object string) string {
	h := sha256.New()
	h.Write([]byte(subject + "|" + predicate + "|" + object))
	return "rel-" + hex.EncodeToString(h.Sum(nil)[:12])
}

// Confidence returns the highest provenance confidence attached to the
// relation, or zero when it carries none.
func (r *Relation) Confidence() float64 {
	var best float64
	for _, p := range r.Provenance {
		if p.Confidence > best {
			best = p.Confidence
		}
	}
	return best
}

// LastObserved returns the most recent observation time.
func (r *Relation) LastObserved() time.Time {
	var last time.Time
	for _, p := range r.Provenance {
		if p.ObservedAt.After(last) {
			last = p.ObservedAt
		}
	}
	return last
}

// EntityMention is a typed surface form found in a chunk.
type EntityMention struct {
	// Surface is the text as it appeared.
	Surface string

	// Type is the extractor's ontology classification.
	Type EntityType

	// Confidence is the extractor confidence in [0,1].
	Confidence float64
}

// RelationMention is a relation observed between two surface forms in a
// chunk. Subject and Object refer to entity mentions by surface form.
type RelationMention struct {
	Subject    string
	Predicate  string
	Object     string
	Confidence float64
}

// Extraction is everything pulled out of a single chunk.
type Extraction struct {
	ChunkID   string
	Entities  []EntityMention
	Relations []RelationMention
}
