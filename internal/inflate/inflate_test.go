package inflate

import (
	"context"
	"testing"
)

type fakeReader struct {
	body string
}

func (f *fakeReader) ReadSlice(ctx context.Context, compoundID string, start, end int) (string, error) {
	if start < 0 {
		start = 0
	}
	if end > len(f.body) {
		end = len(f.body)
	}
	return f.body[start:end], nil
}

func TestAroundClampsAtBodyStart(t *testing.T) {
	r := &fakeReader{body: "0123456789"}
	w, err := Around(context.Background(), r, "c1", 2, 5)
	if err != nil {
		t.Fatalf("around: %v", err)
	}
	if w.Start != 0 {
		t.Fatalf("expected start clamped to 0, got %d", w.Start)
	}
	if w.Content != "0123456" {
		t.Fatalf("unexpected content %q", w.Content)
	}
}

func TestOverlapsAndAbuts(t *testing.T) {
	a := Window{CompoundID: "c1", Start: 0, End: 10}
	b := Window{CompoundID: "c1", Start: 8, End: 20}
	c := Window{CompoundID: "c1", Start: 50, End: 60}

	if !a.Overlaps(b) {
		t.Fatal("expected a and b to overlap")
	}
	if a.Overlaps(c) {
		t.Fatal("did not expect a and c to overlap")
	}
	if !a.Abuts(c, 100) {
		t.Fatal("expected a and c to abut within a generous gap")
	}
	if a.Abuts(c, 5) {
		t.Fatal("did not expect a and c to abut within a tight gap")
	}
}

func TestMergeUnionsRanges(t *testing.T) {
	r := &fakeReader{body: "abcdefghijklmnopqrstuvwxyz"}
	a := Window{CompoundID: "c1", Start: 0, End: 5}
	b := Window{CompoundID: "c1", Start: 3, End: 10}

	merged, err := Merge(context.Background(), r, a, b)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.Start != 0 || merged.End != 10 {
		t.Fatalf("expected merged range [0,10), got [%d,%d)", merged.Start, merged.End)
	}
	if merged.Content != "abcdefghij" {
		t.Fatalf("unexpected merged content %q", merged.Content)
	}
}
