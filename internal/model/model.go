// Package model defines the shared data types that cross component
// boundaries: Compound, Molecule, Atom, Atom Position, Tag Edge, and
// Variant Edge. Centralizing them here means the Store, Atomizer, Tag
// Deriver, Ingestion Pipeline, and Search Executor all pass the same
// named structs rather than positional tuples.
package model

import "time"

// Provenance is the trust/origin label of a compound or molecule.
type Provenance string

const (
	ProvenanceInternal   Provenance = "internal"
	ProvenanceExternal   Provenance = "external"
	ProvenanceQuarantine Provenance = "quarantine"
	ProvenanceVariant    Provenance = "variant"
)

// MoleculeType classifies a molecule's content.
type MoleculeType string

const (
	MoleculeProse MoleculeType = "prose"
	MoleculeCode  MoleculeType = "code"
	MoleculeData  MoleculeType = "data"
)

// Tag is drawn from the fixed closed set the Entity/Tag Deriver emits.
type Tag string

const (
	TagRelationship Tag = "Relationship"
	TagNarrative    Tag = "Narrative"
	TagTechnical    Tag = "Technical"
	TagIndustry     Tag = "Industry"
	TagLocation     Tag = "Location"
	TagEmotional    Tag = "Emotional"
	TagTemporal     Tag = "Temporal"
	TagCausal       Tag = "Causal"
	TagCode         Tag = "Code"
	TagData         Tag = "Data"
)

// MaxTagsPerMolecule bounds the Entity/Tag Deriver's output per molecule.
const MaxTagsPerMolecule = 8

// MaxTagBytes is the per-tag length ceiling; longer tags are silently
// skipped at the Store boundary.
const MaxTagBytes = 255

// Compound is a source document: immutable once written, identified by a
// hash of its path and content.
type Compound struct {
	ID          string
	Path        string
	Body        string
	IngestedAt  time.Time
	Provenance  Provenance
	Signature   uint64 // fingerprint of Body
}

// Molecule is a semantically coherent byte-range span of a Compound.
type Molecule struct {
	ID            string
	CompoundID    string
	Sequence      int
	StartByte     int
	EndByte       int
	Type          MoleculeType
	Content       string
	NumericValue  *float64
	NumericUnit   string
	Tags          []Tag
	Embedding     []float32
	VectorID      *int64 // nil until assigned by the drift gate / vector index
	Provenance    Provenance
}

// Atom is an entity mention within a molecule.
type Atom struct {
	ID         string
	MoleculeID string
	Label      string // normalized: lowercased, <= 255 bytes
	Tags       []Tag
}

// AtomPosition is a denormalized index row answering "where does this
// term occur?" without scanning compound bodies.
type AtomPosition struct {
	Term       string
	CompoundID string
	ByteOffset int
}

// TagEdge is a bipartite edge between an atom and a tag, scoped to a
// bucket.
type TagEdge struct {
	AtomID string
	Tag    string
	Bucket string
}

// VariantEdge records that a source molecule/atom is a near-duplicate of
// a target, emitted by the ingest drift gate.
type VariantEdge struct {
	SourceID string
	TargetID string
	Relation string
	Weight   float64
}

// RelationIsVariantOf is the only relation the core emits.
const RelationIsVariantOf = "is_variant_of"
