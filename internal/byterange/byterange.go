// Package byterange defines the ByteRange value type used everywhere an
// offset pair into a compound body crosses a component boundary. It
// replaces ad-hoc (start, end int) tuples with a constructor that enforces
// UTF-8 boundary and ordering invariants once, at construction, so every
// downstream consumer can assume a valid range.
package byterange

import (
	"fmt"
	"unicode/utf8"
)

// ByteRange is a half-open interval [Start, End) of byte offsets into a
// UTF-8 byte sequence. Offsets are byte positions, never code-point or
// code-unit indices.
type ByteRange struct {
	Start int
	End   int
}

// New validates 0 <= start <= end, then returns the range. It checks
// neither a body length nor UTF-8 boundaries; use NewInBody when the body
// is available.
func New(start, end int) (ByteRange, error) {
	if start < 0 || end < start {
		return ByteRange{}, fmt.Errorf("byterange: invalid bounds [%d, %d)", start, end)
	}
	return ByteRange{Start: start, End: end}, nil
}

// NewInBody validates start <= end, 0 <= start, end <= len(body), and that
// both start and end land on UTF-8 rune boundaries within body.
func NewInBody(body []byte, start, end int) (ByteRange, error) {
	if start < 0 || end < start || end > len(body) {
		return ByteRange{}, fmt.Errorf("byterange: bounds [%d, %d) out of range for body of length %d", start, end, len(body))
	}
	if start < len(body) && !utf8.RuneStart(body[start]) {
		return ByteRange{}, fmt.Errorf("byterange: start %d is not a UTF-8 rune boundary", start)
	}
	if end < len(body) && !utf8.RuneStart(body[end]) {
		return ByteRange{}, fmt.Errorf("byterange: end %d is not a UTF-8 rune boundary", end)
	}
	return ByteRange{Start: start, End: end}, nil
}

// Len returns the number of bytes the range spans.
func (r ByteRange) Len() int { return r.End - r.Start }

// Overlaps reports whether r and o share any byte, strictly (abutting
// ranges do not overlap).
func (r ByteRange) Overlaps(o ByteRange) bool {
	return r.Start < o.End && o.Start < r.End
}

// Abuts reports whether r and o touch or overlap, i.e. there is no gap
// between them in either order.
func (r ByteRange) Abuts(o ByteRange) bool {
	return r.Overlaps(o) || r.End == o.Start || o.End == r.Start
}

// Union returns the smallest range containing both r and o. Callers
// should only call this when Abuts(o) holds, or the union may span an
// unrelated gap.
func (r ByteRange) Union(o ByteRange) ByteRange {
	start := r.Start
	if o.Start < start {
		start = o.Start
	}
	end := r.End
	if o.End > end {
		end = o.End
	}
	return ByteRange{Start: start, End: end}
}

// Slice returns body[r.Start:r.End]. Callers must ensure r was constructed
// against a body of sufficient length (NewInBody guarantees this).
func (r ByteRange) Slice(body []byte) []byte {
	return body[r.Start:r.End]
}

// SnapToBoundaries widens [start, end) outward to the nearest enclosing
// UTF-8 rune boundaries within body, never splitting a multi-byte
// sequence. Used by the Context Inflator and the search packer, both of
// which compute candidate offsets arithmetically before they are known to
// land on boundaries.
func SnapToBoundaries(body []byte, start, end int) ByteRange {
	if start < 0 {
		start = 0
	}
	if end > len(body) {
		end = len(body)
	}
	if end < start {
		end = start
	}
	for start > 0 && start < len(body) && !utf8.RuneStart(body[start]) {
		start--
	}
	for end < len(body) && !utf8.RuneStart(body[end]) {
		end++
	}
	return ByteRange{Start: start, End: end}
}

// TruncateToBoundary returns the largest prefix of n bytes (or fewer) of
// body that ends on a UTF-8 rune boundary. Used by the packer when a
// result's content must be cut to fit a remaining byte budget.
func TruncateToBoundary(body []byte, n int) []byte {
	if n >= len(body) {
		return body
	}
	if n < 0 {
		n = 0
	}
	for n > 0 && !utf8.RuneStart(body[n]) {
		n--
	}
	return body[:n]
}
