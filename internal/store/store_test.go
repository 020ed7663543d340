//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/anchorsh/anchor/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4) // dim=4 for test vectors
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleBatch(compoundID string) IngestBatch {
	compound := model.Compound{
		ID:         compoundID,
		Path:       "/tmp/" + compoundID + ".txt",
		Body:       "Alice met Bob in Paris.",
		IngestedAt: time.Now(),
		Provenance: model.ProvenanceInternal,
		Signature:  12345,
	}
	molecule := model.Molecule{
		ID:         "mol_" + compoundID,
		CompoundID: compoundID,
		Sequence:   0,
		StartByte:  0,
		EndByte:    len(compound.Body),
		Type:       model.MoleculeProse,
		Content:    compound.Body,
		Tags:       []model.Tag{model.TagRelationship, model.TagLocation},
		Provenance: model.ProvenanceInternal,
	}
	atom := model.Atom{
		ID:         "atom_" + compoundID + "_alice",
		MoleculeID: molecule.ID,
		Label:      "alice",
		Tags:       molecule.Tags,
	}
	return IngestBatch{
		Compound:  compound,
		Molecules: []model.Molecule{molecule},
		Atoms:     []model.Atom{atom},
		AtomPositions: []model.AtomPosition{
			{Term: "alice", CompoundID: compoundID, ByteOffset: 0},
			{Term: "Location", CompoundID: compoundID, ByteOffset: 0},
		},
		TagEdges: []model.TagEdge{
			{AtomID: atom.ID, Tag: "Relationship", Bucket: "inbox"},
		},
	}
}

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.EmbeddingDim() != 4 {
		t.Fatalf("expected embedding dim 4, got %d", s.EmbeddingDim())
	}
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	dbPath := filepath.Join(dir, "test.db")
	s, err := New(dbPath, 4)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestWriteIngestBatchAndGetCompound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := sampleBatch("cmp1")
	if err := s.WriteIngestBatch(ctx, batch); err != nil {
		t.Fatalf("writing ingest batch: %v", err)
	}

	got, err := s.GetCompound(ctx, "cmp1")
	if err != nil {
		t.Fatalf("getting compound: %v", err)
	}
	if got.Body != batch.Compound.Body {
		t.Fatalf("body mismatch: got %q want %q", got.Body, batch.Compound.Body)
	}
}

func TestWriteIngestBatchIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := sampleBatch("cmp2")
	if err := s.WriteIngestBatch(ctx, batch); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := s.WriteIngestBatch(ctx, batch); err != nil {
		t.Fatalf("replaying write: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Compounds != 1 {
		t.Fatalf("expected exactly one compound after replay, got %d", stats.Compounds)
	}
	if stats.Molecules != 1 {
		t.Fatalf("expected exactly one molecule after replay, got %d", stats.Molecules)
	}
}

func TestReadSliceSnapsToUTF8Boundaries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := sampleBatch("cmp3")
	batch.Compound.Body = "héllo wörld"
	batch.Molecules[0].EndByte = len(batch.Compound.Body)
	if err := s.WriteIngestBatch(ctx, batch); err != nil {
		t.Fatalf("writing batch: %v", err)
	}

	slice, err := s.ReadSlice(ctx, "cmp3", 2, 3) // start lands mid "é" (bytes 1-2)
	if err != nil {
		t.Fatalf("read slice: %v", err)
	}
	if !utf8.ValidString(slice) {
		t.Fatalf("expected a valid UTF-8 slice, got %q", slice)
	}
}

func TestAtomPositionsCensus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.WriteIngestBatch(ctx, sampleBatch("cmp4")); err != nil {
		t.Fatalf("writing batch: %v", err)
	}

	positions, err := s.AtomPositions(ctx, "alice", Filters{}, 50)
	if err != nil {
		t.Fatalf("census query: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected one position for 'alice', got %d", len(positions))
	}
}

func TestAtomPositionsExcludesVariantsByDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := sampleBatch("cmp5")
	batch.Compound.Provenance = model.ProvenanceVariant
	batch.Molecules[0].Provenance = model.ProvenanceVariant
	if err := s.WriteIngestBatch(ctx, batch); err != nil {
		t.Fatalf("writing batch: %v", err)
	}

	positions, err := s.AtomPositions(ctx, "alice", Filters{}, 50)
	if err != nil {
		t.Fatalf("census query: %v", err)
	}
	if len(positions) != 0 {
		t.Fatalf("expected variant compounds excluded by default, got %d positions", len(positions))
	}

	positions, err = s.AtomPositions(ctx, "alice", Filters{IncludeVariants: true}, 50)
	if err != nil {
		t.Fatalf("census query with IncludeVariants: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected the variant compound included, got %d positions", len(positions))
	}
}

func TestAtomPositionsFiltersByBucket(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.WriteIngestBatch(ctx, sampleBatch("cmp6")); err != nil {
		t.Fatalf("writing batch: %v", err)
	}

	positions, err := s.AtomPositions(ctx, "alice", Filters{Buckets: []string{"notebook"}}, 50)
	if err != nil {
		t.Fatalf("census with non-matching bucket: %v", err)
	}
	if len(positions) != 0 {
		t.Fatalf("expected no positions for an unmatched bucket, got %d", len(positions))
	}

	positions, err = s.AtomPositions(ctx, "alice", Filters{Buckets: []string{"inbox"}}, 50)
	if err != nil {
		t.Fatalf("census with matching bucket: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected one position for a matching bucket, got %d", len(positions))
	}
}

func TestSearchCompoundsByContentMatchesSubstring(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.WriteIngestBatch(ctx, sampleBatch("cmp7")); err != nil {
		t.Fatalf("writing batch: %v", err)
	}

	found, err := s.SearchCompoundsByContent(ctx, "Paris")
	if err != nil {
		t.Fatalf("search by content: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected one matching compound, got %d", len(found))
	}

	none, err := s.SearchCompoundsByContent(ctx, "nonexistent-substring")
	if err != nil {
		t.Fatalf("search by content: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no matches for an absent substring, got %d", len(none))
	}
}

func TestLogQueryRecordsAnEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.LogQuery(ctx, "alice budget", "hybrid", 3, 12, false); err != nil {
		t.Fatalf("logging query: %v", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM query_log WHERE query = ?", "alice budget").Scan(&count); err != nil {
		t.Fatalf("reading query_log: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one logged query row, got %d", count)
	}
}
