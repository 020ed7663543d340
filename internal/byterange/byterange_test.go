package byterange

import "testing"

func TestNewInBody(t *testing.T) {
	body := []byte("Hello 🌍 World")
	emojiStart := 6
	if !testRuneBoundary(body, emojiStart) {
		t.Fatalf("fixture assumption broken: offset %d is not a rune start", emojiStart)
	}

	if _, err := NewInBody(body, 0, len(body)); err != nil {
		t.Fatalf("full range should validate: %v", err)
	}

	// Splitting inside the emoji's multi-byte encoding must fail.
	if _, err := NewInBody(body, emojiStart+1, emojiStart+2); err == nil {
		t.Fatalf("expected error splitting a multi-byte rune")
	}
}

func testRuneBoundary(body []byte, i int) bool {
	_, err := NewInBody(body, i, i)
	return err == nil
}

func TestOverlapsAndAbuts(t *testing.T) {
	a := ByteRange{Start: 0, End: 10}
	b := ByteRange{Start: 10, End: 20}
	c := ByteRange{Start: 5, End: 15}

	if a.Overlaps(b) {
		t.Fatalf("abutting ranges must not strictly overlap")
	}
	if !a.Abuts(b) {
		t.Fatalf("abutting ranges should report Abuts == true")
	}
	if !a.Overlaps(c) {
		t.Fatalf("expected overlap between a and c")
	}
}

func TestSnapToBoundaries(t *testing.T) {
	body := []byte("Hello 🌍 World")
	// 🌍 starts at byte 6 and is 4 bytes long (ends at 10).
	r := SnapToBoundaries(body, 8, 12)
	if !validBoundary(body, r.Start) || !validBoundary(body, r.End) {
		t.Fatalf("snapped range %v not on rune boundaries", r)
	}
	if r.Start > 6 {
		t.Fatalf("expected snap to widen below the emoji start, got %d", r.Start)
	}
}

func validBoundary(body []byte, i int) bool {
	if i == 0 || i == len(body) {
		return true
	}
	_, err := NewInBody(body, i, i)
	return err == nil
}

func TestTruncateToBoundary(t *testing.T) {
	body := []byte("Hello 🌍 World")
	out := TruncateToBoundary(body, 8)
	if !validBoundary(body, len(out)) {
		t.Fatalf("truncated output length %d not on a rune boundary", len(out))
	}
	if len(out) > 8 {
		t.Fatalf("truncated output must not exceed requested length")
	}
}
