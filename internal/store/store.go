// Package store provides content-addressed, transactional persistence
// for compounds, molecules, atoms, atom positions, tag edges, and variant
// edges over a WAL-mode SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/anchorsh/anchor/internal/byterange"
	"github.com/anchorsh/anchor/internal/model"
)

func init() {
	sqlite_vec.Auto()
}

// maxBatchSize bounds bulk-write statement parameter counts per the
// Store's batch-write contract.
const maxBatchSize = 100

// Store wraps the SQLite database holding all Anchor persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// Filters scopes a census or read operation to buckets and/or
// provenance labels. An empty Buckets slice means no bucket restriction.
// An empty Provenance slice admits every provenance except variant,
// unless IncludeVariants is set.
type Filters struct {
	Buckets         []string
	Provenance      []model.Provenance
	IncludeVariants bool
}

// New opens (or creates) a SQLite database at the given path and
// initializes the schema including the sqlite-vec virtual table.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB { return s.db }

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int { return s.embeddingDim }

// inTx runs fn inside a transaction, rolling back on any error so a
// partial compound is never observable.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// IngestBatch is everything a single ingest transaction writes: the
// compound, its molecules, atoms, atom positions, tag edges, and any
// variant edges the drift gate emitted. WriteIngestBatch commits it all
// atomically, or rolls back entirely on any error.
type IngestBatch struct {
	Compound      model.Compound
	Molecules     []model.Molecule
	Atoms         []model.Atom
	AtomPositions []model.AtomPosition
	TagEdges      []model.TagEdge
	VariantEdges  []model.VariantEdge
	// SkippedTags counts tags dropped for exceeding MaxTagBytes, surfaced
	// to the caller as a warning, not a failure.
	SkippedTags int
}

// WriteIngestBatch commits a full ingest batch in a single transaction.
// On any per-statement error the transaction is rolled back and no
// partial state is written.
func (s *Store) WriteIngestBatch(ctx context.Context, b IngestBatch) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := putCompound(ctx, tx, b.Compound); err != nil {
			return fmt.Errorf("put compound: %w", err)
		}
		if err := putMoleculeBatch(ctx, tx, b.Molecules); err != nil {
			return fmt.Errorf("put molecules: %w", err)
		}
		if err := putAtomBatch(ctx, tx, b.Atoms); err != nil {
			return fmt.Errorf("put atoms: %w", err)
		}
		if err := putAtomPositions(ctx, tx, b.AtomPositions); err != nil {
			return fmt.Errorf("put atom positions: %w", err)
		}
		if err := putTagEdges(ctx, tx, b.TagEdges); err != nil {
			return fmt.Errorf("put tag edges: %w", err)
		}
		for _, ve := range b.VariantEdges {
			if err := putVariantEdge(ctx, tx, ve); err != nil {
				return fmt.Errorf("put variant edge: %w", err)
			}
		}
		return nil
	})
}

func putCompound(ctx context.Context, tx *sql.Tx, c model.Compound) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO compounds (id, path, body, provenance, signature, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			body = excluded.body,
			provenance = excluded.provenance,
			signature = excluded.signature
	`, c.ID, c.Path, c.Body, string(c.Provenance), int64(c.Signature), c.IngestedAt)
	return err
}

// putMoleculeBatch upserts molecules in batches of at most maxBatchSize
// rows per statement, to avoid SQLite's bound-parameter ceiling.
func putMoleculeBatch(ctx context.Context, tx *sql.Tx, molecules []model.Molecule) error {
	for start := 0; start < len(molecules); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(molecules) {
			end = len(molecules)
		}
		if err := putMoleculeChunk(ctx, tx, molecules[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func putMoleculeChunk(ctx context.Context, tx *sql.Tx, molecules []model.Molecule) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO molecules (id, compound_id, sequence, start_byte, end_byte,
			mol_type, content, numeric_value, numeric_unit, tags, provenance, vector_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_byte = excluded.start_byte,
			end_byte = excluded.end_byte,
			mol_type = excluded.mol_type,
			content = excluded.content,
			numeric_value = excluded.numeric_value,
			numeric_unit = excluded.numeric_unit,
			tags = excluded.tags,
			provenance = excluded.provenance,
			vector_id = excluded.vector_id
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range molecules {
		tagsJSON, err := json.Marshal(m.Tags)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			m.ID, m.CompoundID, m.Sequence, m.StartByte, m.EndByte,
			string(m.Type), m.Content, m.NumericValue, m.NumericUnit,
			string(tagsJSON), string(m.Provenance), m.VectorID,
		); err != nil {
			return err
		}
	}
	return nil
}

func putAtomBatch(ctx context.Context, tx *sql.Tx, atoms []model.Atom) error {
	if len(atoms) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO atoms (id, molecule_id, label, tags)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET tags = excluded.tags
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range atoms {
		tagsJSON, err := json.Marshal(a.Tags)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, a.ID, a.MoleculeID, a.Label, string(tagsJSON)); err != nil {
			return err
		}
	}
	return nil
}

func putAtomPositions(ctx context.Context, tx *sql.Tx, positions []model.AtomPosition) error {
	if len(positions) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO atom_positions (term, compound_id, byte_offset)
		VALUES (?, ?, ?)
		ON CONFLICT(term, compound_id, byte_offset) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range positions {
		if _, err := stmt.ExecContext(ctx, p.Term, p.CompoundID, p.ByteOffset); err != nil {
			return err
		}
	}
	return nil
}

// putTagEdges bulk-upserts tag edges, silently skipping any whose tag
// exceeds model.MaxTagBytes; an oversized tag was not semantic.
func putTagEdges(ctx context.Context, tx *sql.Tx, edges []model.TagEdge) error {
	if len(edges) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tag_edges (atom_id, tag, bucket)
		VALUES (?, ?, ?)
		ON CONFLICT(atom_id, tag, bucket) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range edges {
		if len(e.Tag) > model.MaxTagBytes {
			continue
		}
		if _, err := stmt.ExecContext(ctx, e.AtomID, e.Tag, e.Bucket); err != nil {
			return err
		}
	}
	return nil
}

func putVariantEdge(ctx context.Context, tx *sql.Tx, ve model.VariantEdge) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO variant_edges (source_id, target_id, relation, weight)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, relation) DO UPDATE SET weight = excluded.weight
	`, ve.SourceID, ve.TargetID, ve.Relation, ve.Weight)
	return err
}

// GetCompound retrieves a compound by id.
func (s *Store) GetCompound(ctx context.Context, id string) (*model.Compound, error) {
	var c model.Compound
	var provenance string
	var signature int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, body, provenance, signature, ingested_at FROM compounds WHERE id = ?
	`, id).Scan(&c.ID, &c.Path, &c.Body, &provenance, &signature, &c.IngestedAt)
	if err != nil {
		return nil, err
	}
	c.Provenance = model.Provenance(provenance)
	c.Signature = uint64(signature)
	return &c, nil
}

// GetAtom retrieves an atom by id.
func (s *Store) GetAtom(ctx context.Context, id string) (*model.Atom, error) {
	var a model.Atom
	var tagsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, molecule_id, label, tags FROM atoms WHERE id = ?
	`, id).Scan(&a.ID, &a.MoleculeID, &a.Label, &tagsJSON)
	if err != nil {
		return nil, err
	}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &a.Tags); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

// ReadSlice returns a UTF-8-safe slice of a compound's body. The caller's
// [start, end) is snapped outward to the nearest enclosing rune
// boundaries, never splitting a multi-byte sequence.
func (s *Store) ReadSlice(ctx context.Context, compoundID string, start, end int) (string, error) {
	c, err := s.GetCompound(ctx, compoundID)
	if err != nil {
		return "", err
	}
	body := []byte(c.Body)
	r := byterange.SnapToBoundaries(body, start, end)
	return string(r.Slice(body)), nil
}

// AtomPositions is the census query: for a single term, return up to cap
// (compound_id, byte_offset) locations, filtered by bucket set and
// provenance.
func (s *Store) AtomPositions(ctx context.Context, term string, filters Filters, cap int) ([]model.AtomPosition, error) {
	var sb strings.Builder
	args := []any{term}

	sb.WriteString(`
		SELECT ap.term, ap.compound_id, ap.byte_offset
		FROM atom_positions ap
		JOIN compounds c ON c.id = ap.compound_id
		WHERE ap.term = ?
	`)

	if len(filters.Provenance) > 0 {
		sb.WriteString(" AND c.provenance IN (" + placeholders(len(filters.Provenance)) + ")")
		for _, p := range filters.Provenance {
			args = append(args, string(p))
		}
	} else if !filters.IncludeVariants {
		sb.WriteString(" AND c.provenance != ?")
		args = append(args, string(model.ProvenanceVariant))
	}

	if len(filters.Buckets) > 0 {
		sb.WriteString(`
			AND EXISTS (
				SELECT 1 FROM atoms a
				JOIN molecules m ON m.id = a.molecule_id
				JOIN tag_edges te ON te.atom_id = a.id
				WHERE a.label = ap.term AND m.compound_id = ap.compound_id
				AND te.bucket IN (` + placeholders(len(filters.Buckets)) + `)
			)
		`)
		for _, b := range filters.Buckets {
			args = append(args, b)
		}
	}

	sb.WriteString(" ORDER BY ap.byte_offset LIMIT ?")
	args = append(args, cap)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AtomPosition
	for rows.Next() {
		var p model.AtomPosition
		if err := rows.Scan(&p.Term, &p.CompoundID, &p.ByteOffset); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MoleculeTagsAt returns the tags and provenance recorded for the
// molecule owning the given compound/byte_offset, used by the search
// scorer to apply the code penalty and provenance boosts without
// re-scanning the compound body.
func (s *Store) MoleculeTagsAt(ctx context.Context, compoundID string, byteOffset int) ([]model.Tag, model.Provenance, error) {
	var tagsJSON string
	var provenance string
	err := s.db.QueryRowContext(ctx, `
		SELECT tags, provenance FROM molecules
		WHERE compound_id = ? AND start_byte <= ? AND end_byte > ?
		ORDER BY start_byte DESC LIMIT 1
	`, compoundID, byteOffset, byteOffset).Scan(&tagsJSON, &provenance)
	if err != nil {
		return nil, "", err
	}
	var tags []model.Tag
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			return nil, "", err
		}
	}
	return tags, model.Provenance(provenance), nil
}

// MoleculeVectorID returns the vector_id already recorded for a molecule,
// if any. Used by the ingest drift gate to skip re-embedding and
// re-gating a molecule that was already indexed by an earlier ingest of
// the same compound, so replay is a true no-op.
func (s *Store) MoleculeVectorID(ctx context.Context, moleculeID string) (*int64, error) {
	var vectorID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT vector_id FROM molecules WHERE id = ?`, moleculeID).Scan(&vectorID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !vectorID.Valid {
		return nil, nil
	}
	id := vectorID.Int64
	return &id, nil
}

// MoleculeByVectorID resolves the molecule owning a given vector_id, used
// by the ingest drift gate to attribute a variant edge to the molecule
// that caused the drift match.
func (s *Store) MoleculeByVectorID(ctx context.Context, vectorID int64) (*model.Molecule, error) {
	var m model.Molecule
	var mType, provenance string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, compound_id, sequence, start_byte, end_byte, mol_type, content, provenance
		FROM molecules WHERE vector_id = ?
	`, vectorID).Scan(&m.ID, &m.CompoundID, &m.Sequence, &m.StartByte, &m.EndByte, &mType, &m.Content, &provenance)
	if err != nil {
		return nil, err
	}
	m.Type = model.MoleculeType(mType)
	m.Provenance = model.Provenance(provenance)
	return &m, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ", ")
}

// --- diagnostics (supplemented features, §9 of SPEC_FULL.md) ---

// StoreStats summarizes corpus size across every table.
type StoreStats struct {
	Compounds     int64
	Molecules     int64
	Atoms         int64
	TagEdges      int64
	VariantEdges  int64
	VectorEntries int64
}

// Stats returns corpus-wide diagnostic counts.
func (s *Store) Stats(ctx context.Context) (*StoreStats, error) {
	st := &StoreStats{}
	queries := []struct {
		sql string
		dst *int64
	}{
		{"SELECT COUNT(*) FROM compounds", &st.Compounds},
		{"SELECT COUNT(*) FROM molecules", &st.Molecules},
		{"SELECT COUNT(*) FROM atoms", &st.Atoms},
		{"SELECT COUNT(*) FROM tag_edges", &st.TagEdges},
		{"SELECT COUNT(*) FROM variant_edges", &st.VariantEdges},
		{"SELECT COUNT(*) FROM molecules WHERE vector_id IS NOT NULL", &st.VectorEntries},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.sql).Scan(q.dst); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// SampleMolecules returns up to n arbitrary molecules, used by tests and
// calibration tooling.
func (s *Store) SampleMolecules(ctx context.Context, n int) ([]model.Molecule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, compound_id, sequence, start_byte, end_byte, mol_type, content, provenance
		FROM molecules LIMIT ?
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Molecule
	for rows.Next() {
		var m model.Molecule
		var mType, provenance string
		if err := rows.Scan(&m.ID, &m.CompoundID, &m.Sequence, &m.StartByte, &m.EndByte, &mType, &m.Content, &provenance); err != nil {
			return nil, err
		}
		m.Type = model.MoleculeType(mType)
		m.Provenance = model.Provenance(provenance)
		out = append(out, m)
	}
	return out, rows.Err()
}

// SearchCompoundsByContent is a non-indexed diagnostic substring search,
// used only by tests and maintenance tooling, never by the query path.
func (s *Store) SearchCompoundsByContent(ctx context.Context, substring string) ([]model.Compound, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, body, provenance, signature, ingested_at
		FROM compounds WHERE body LIKE ?
	`, "%"+substring+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Compound
	for rows.Next() {
		var c model.Compound
		var provenance string
		var signature int64
		if err := rows.Scan(&c.ID, &c.Path, &c.Body, &provenance, &signature, &c.IngestedAt); err != nil {
			return nil, err
		}
		c.Provenance = model.Provenance(provenance)
		c.Signature = uint64(signature)
		out = append(out, c)
	}
	return out, rows.Err()
}

// LogQuery records a query execution for offline tuning.
func (s *Store) LogQuery(ctx context.Context, query, strategy string, nResults int, elapsedMS int64, partial bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (query, strategy, n_results, elapsed_ms, partial)
		VALUES (?, ?, ?, ?, ?)
	`, query, strategy, nResults, elapsedMS, partial)
	return err
}
