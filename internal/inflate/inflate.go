// Package inflate implements the Context Inflator: given a compound id,
// a byte offset, and a radius, it reads a UTF-8-correct slice of the
// compound's on-disk body and can merge adjacent inflated windows into
// one larger window.
package inflate

import "context"

// Reader is the subset of the Store the inflator needs.
type Reader interface {
	ReadSlice(ctx context.Context, compoundID string, start, end int) (string, error)
}

// Window is one inflated, UTF-8-boundary-snapped read.
type Window struct {
	CompoundID string
	Start      int
	End        int
	Content    string
}

// Around reads [offset-radius, offset+radius) from compoundID's body.
// Out-of-range bounds are clamped and snapped to UTF-8 rune boundaries by
// the Store's read_slice contract.
func Around(ctx context.Context, r Reader, compoundID string, offset, radius int) (Window, error) {
	start := offset - radius
	if start < 0 {
		start = 0
	}
	end := offset + radius

	content, err := r.ReadSlice(ctx, compoundID, start, end)
	if err != nil {
		return Window{}, err
	}
	return Window{CompoundID: compoundID, Start: start, End: end, Content: content}, nil
}

// Overlaps reports whether two windows from the same compound share any
// byte range.
func (w Window) Overlaps(o Window) bool {
	return w.CompoundID == o.CompoundID && w.Start < o.End && o.Start < w.End
}

// Abuts reports whether two windows from the same compound are within
// maxGap bytes of each other (touching, overlapping, or separated by a
// small gap).
func (w Window) Abuts(o Window, maxGap int) bool {
	if w.CompoundID != o.CompoundID {
		return false
	}
	lo, hi := w, o
	if hi.Start < lo.Start {
		lo, hi = hi, lo
	}
	return hi.Start-lo.End <= maxGap
}

// Merge re-reads the union of two abutting windows from the same
// compound so the merged content has no internal gap.
func Merge(ctx context.Context, r Reader, a, b Window) (Window, error) {
	start, end := a.Start, a.End
	if b.Start < start {
		start = b.Start
	}
	if b.End > end {
		end = b.End
	}
	content, err := r.ReadSlice(ctx, a.CompoundID, start, end)
	if err != nil {
		return Window{}, err
	}
	return Window{CompoundID: a.CompoundID, Start: start, End: end, Content: content}, nil
}
