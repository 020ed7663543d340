package atomizer

import (
	"strings"
	"testing"

	"github.com/anchorsh/anchor/internal/model"
)

func TestNonASCIIRoundTrip(t *testing.T) {
	// E1 round-trip: each molecule's byte slice of the body equals its
	// content. The input is one short paragraph, so it is not split on
	// sentences; the molecule count is not asserted here.
	body := []byte("Hello \U0001F30D World. Test \U0001F680.")
	compound, molecules, _, err := Atomize(body, "journal/e1.txt", model.ProvenanceInternal)
	if err != nil {
		t.Fatalf("atomize error: %v", err)
	}

	if len(molecules) == 0 {
		t.Fatalf("expected at least one molecule")
	}

	for _, m := range molecules {
		slice := compound.Body[m.StartByte:m.EndByte]
		trimmedSlice := strings.TrimRight(slice, " \t\r\n")
		trimmedContent := strings.TrimRight(m.Content, " \t\r\n")
		if trimmedSlice != trimmedContent {
			t.Fatalf("molecule slice %q != content %q", trimmedSlice, trimmedContent)
		}
		if !strings.Contains(compound.Body, slice) {
			t.Fatalf("slice not valid substring")
		}
	}
}

func TestMoleculesNonOverlapping(t *testing.T) {
	body := []byte("First paragraph here with enough bytes to survive the drop threshold.\n\nSecond paragraph also has enough content bytes to survive.\n\nThird one too, plenty of bytes in this one as well.")
	_, molecules, _, err := Atomize(body, "notes/doc.txt", model.ProvenanceInternal)
	if err != nil {
		t.Fatalf("atomize error: %v", err)
	}
	for i := 1; i < len(molecules); i++ {
		prev := molecules[i-1]
		cur := molecules[i]
		if prev.CompoundID != cur.CompoundID {
			continue
		}
		if cur.StartByte < prev.EndByte {
			t.Fatalf("molecules %d and %d overlap: prev=[%d,%d) cur=[%d,%d)", i-1, i, prev.StartByte, prev.EndByte, cur.StartByte, cur.EndByte)
		}
	}
}

func TestDropsShortSpans(t *testing.T) {
	body := []byte("ok\n\nThis paragraph is long enough to survive the ten byte drop threshold easily.")
	_, molecules, _, err := Atomize(body, "short.txt", model.ProvenanceInternal)
	if err != nil {
		t.Fatalf("atomize error: %v", err)
	}
	for _, m := range molecules {
		if len(strings.TrimRight(m.Content, " \t\r\n")) < 10 {
			t.Fatalf("found a molecule under the 10-byte drop threshold: %q", m.Content)
		}
	}
}

func TestClassifiesCode(t *testing.T) {
	body := []byte("```go\nfunction main() { return 0 }\n```\n\nSome ordinary prose paragraph follows here with enough length.")
	_, molecules, _, err := Atomize(body, "snippet.md", model.ProvenanceInternal)
	if err != nil {
		t.Fatalf("atomize error: %v", err)
	}
	foundCode := false
	for _, m := range molecules {
		if m.Type == model.MoleculeCode {
			foundCode = true
		}
	}
	if !foundCode {
		t.Fatalf("expected at least one molecule classified as code")
	}
}
