package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the
// vec0 virtual table dimension.
const schemaSQLTemplate = `
-- Content-addressed source documents. Immutable once written.
CREATE TABLE IF NOT EXISTS compounds (
    id TEXT PRIMARY KEY,
    path TEXT NOT NULL,
    body TEXT NOT NULL,
    provenance TEXT NOT NULL,
    signature INTEGER NOT NULL,
    ingested_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Semantically coherent byte-range spans of a compound.
CREATE TABLE IF NOT EXISTS molecules (
    id TEXT PRIMARY KEY,
    compound_id TEXT NOT NULL REFERENCES compounds(id) ON DELETE CASCADE,
    sequence INTEGER NOT NULL,
    start_byte INTEGER NOT NULL,
    end_byte INTEGER NOT NULL,
    mol_type TEXT NOT NULL,
    content TEXT NOT NULL,
    numeric_value REAL,
    numeric_unit TEXT,
    tags JSON,
    provenance TEXT NOT NULL,
    vector_id INTEGER
);

-- Entity mentions within a molecule.
CREATE TABLE IF NOT EXISTS atoms (
    id TEXT PRIMARY KEY,
    molecule_id TEXT NOT NULL REFERENCES molecules(id) ON DELETE CASCADE,
    label TEXT NOT NULL,
    tags JSON,
    UNIQUE(molecule_id, label)
);

-- Denormalized term-occurrence index.
CREATE TABLE IF NOT EXISTS atom_positions (
    term TEXT NOT NULL,
    compound_id TEXT NOT NULL REFERENCES compounds(id) ON DELETE CASCADE,
    byte_offset INTEGER NOT NULL,
    PRIMARY KEY (term, compound_id, byte_offset)
);

-- Bipartite atom/tag index, scoped to a bucket.
CREATE TABLE IF NOT EXISTS tag_edges (
    atom_id TEXT NOT NULL REFERENCES atoms(id) ON DELETE CASCADE,
    tag TEXT NOT NULL,
    bucket TEXT NOT NULL,
    PRIMARY KEY (atom_id, tag, bucket)
);

-- Near-duplicate edges emitted by the ingest drift gate.
CREATE TABLE IF NOT EXISTS variant_edges (
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    relation TEXT NOT NULL,
    weight REAL NOT NULL,
    PRIMARY KEY (source_id, target_id, relation)
);

-- Vector embeddings via sqlite-vec.
CREATE VIRTUAL TABLE IF NOT EXISTS vec_atoms USING vec0(
    vector_id INTEGER PRIMARY KEY,
    embedding float[%d]
);

-- Query audit log, used for offline tuning of the elastic-radius constants.
CREATE TABLE IF NOT EXISTS query_log (
    id INTEGER PRIMARY KEY,
    query TEXT NOT NULL,
    strategy TEXT,
    n_results INTEGER,
    elapsed_ms INTEGER,
    partial BOOLEAN DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_molecules_compound ON molecules(compound_id);
CREATE INDEX IF NOT EXISTS idx_molecules_vector_id ON molecules(vector_id);
CREATE INDEX IF NOT EXISTS idx_atoms_molecule ON atoms(molecule_id);
CREATE INDEX IF NOT EXISTS idx_atom_positions_term ON atom_positions(term);
CREATE INDEX IF NOT EXISTS idx_tag_edges_tag ON tag_edges(tag);
CREATE INDEX IF NOT EXISTS idx_tag_edges_bucket ON tag_edges(bucket);
CREATE INDEX IF NOT EXISTS idx_compounds_path ON compounds(path);
`

func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(schemaSQLTemplate, embeddingDim)
}
