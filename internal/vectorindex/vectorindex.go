// Package vectorindex wraps the sqlite-vec virtual table holding molecule
// embeddings, giving the Vector Index its own contract independent of the
// transactional Store per the component boundary spec.md §4.6 draws
// around it.
package vectorindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
)

// Index is an approximate-nearest-neighbor index over molecule
// embeddings, backed by a vec0 virtual table living in the same database
// the Store uses.
type Index struct {
	db     *sql.DB
	nextID int64
}

// Neighbor is one result of a Search call.
type Neighbor struct {
	VectorID int64
	Distance float64
}

// New wraps db (the Store's *sql.DB) and seeds the monotonic vector_id
// sequence from the highest id already present.
func New(ctx context.Context, db *sql.DB) (*Index, error) {
	var maxID sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT MAX(vector_id) FROM vec_atoms").Scan(&maxID); err != nil {
		return nil, fmt.Errorf("seeding vector id sequence: %w", err)
	}
	idx := &Index{db: db}
	if maxID.Valid {
		idx.nextID = maxID.Int64
	}
	return idx, nil
}

// NextID returns a fresh vector_id from the monotonic sequence. Callers
// use this to assign an id to a molecule before calling Add.
func (idx *Index) NextID() int64 {
	return atomic.AddInt64(&idx.nextID, 1)
}

// Add inserts an embedding at the given vector_id.
func (idx *Index) Add(ctx context.Context, vectorID int64, embedding []float32) error {
	_, err := idx.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_atoms (vector_id, embedding) VALUES (?, ?)",
		vectorID, serializeFloat32(embedding))
	return err
}

// Search returns the k nearest neighbors to embedding by distance,
// ascending.
func (idx *Index) Search(ctx context.Context, embedding []float32, k int) ([]Neighbor, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT vector_id, distance FROM vec_atoms
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance
	`, serializeFloat32(embedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.VectorID, &n.Distance); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// NearestDistance returns the distance to the single nearest neighbor of
// embedding, used by the ingest drift gate. ok is false when the index is
// still empty.
func (idx *Index) NearestDistance(ctx context.Context, embedding []float32) (distance float64, ok bool, err error) {
	neighbors, err := idx.Search(ctx, embedding, 1)
	if err != nil {
		return 0, false, err
	}
	if len(neighbors) == 0 {
		return 0, false, nil
	}
	return neighbors[0].Distance, true, nil
}

// Similarity converts a distance into a [0, 1] similarity score, per the
// contract's "convertible to a similarity score" requirement.
func Similarity(distance, maxDistance float64) float64 {
	if maxDistance <= 0 {
		return 0
	}
	s := 1 - distance/maxDistance
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// serializeFloat32 converts a float32 slice to little-endian bytes for
// sqlite-vec, the wire format its vec0 virtual tables expect.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
