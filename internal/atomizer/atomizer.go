// Package atomizer splits a sanitized compound body into ordered
// molecules with UTF-8 byte offsets, classifying each as prose, code, or
// data, and derives the atoms (entity mentions) each molecule contains.
package atomizer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/anchorsh/anchor/internal/fingerprint"
	"github.com/anchorsh/anchor/internal/model"
	"github.com/anchorsh/anchor/internal/sanitize"
	"github.com/anchorsh/anchor/internal/tagging"
)

// minMoleculeBytes is the drop threshold for spans with too little
// content to be semantically useful on their own.
const minMoleculeBytes = 10

// maxParagraphBytes is the size at which a paragraph is further split on
// sentence boundaries.
const maxParagraphBytes = 500

// Atomize canonicalizes and sanitizes body, splits it into molecules, and
// derives atoms for each molecule. All offsets in the returned molecules
// are UTF-8 byte offsets into the returned Compound's Body, which is the
// canonicalized form the atomizer itself produced, never offsets into
// the pre-sanitized input.
func Atomize(body []byte, path string, provenance model.Provenance) (model.Compound, []model.Molecule, []model.Atom, error) {
	canonical := Canonicalize(body)
	compoundID := CompoundID(path, canonical)

	compound := model.Compound{
		ID:         compoundID,
		Path:       path,
		Body:       canonical,
		IngestedAt: time.Now(),
		Provenance: provenance,
		Signature:  fingerprint.Fingerprint(canonical),
	}

	molecules, atoms, _ := AtomizeSpans(canonical, 0, len(canonical), compoundID, 0, provenance)
	return compound, molecules, atoms, nil
}

// Canonicalize normalizes line endings, applies NFC normalization, and
// sanitizes body. Exposed for the streaming ingest path, which
// canonicalizes the full content once before slicing it into windows.
func Canonicalize(body []byte) string {
	return canonicalize(string(body))
}

// CompoundID computes the content-addressed id a canonicalized body and
// its source path hash to. Exposed so the streaming ingest path can
// derive one stable id before any window is processed.
func CompoundID(path, canonical string) string {
	return hashID("compound", path, canonical)
}

// AtomizeSpans runs paragraph/sentence splitting over
// canonical[windowStart:windowEnd], producing molecules and atoms
// attributed to compoundID with sequence numbers starting at seqStart.
// It returns the next unused sequence number, so callers can process a
// compound's content across several windows while keeping a single
// monotonic sequence space.
func AtomizeSpans(canonical string, windowStart, windowEnd int, compoundID string, seqStart int, provenance model.Provenance) ([]model.Molecule, []model.Atom, int) {
	window := canonical[windowStart:windowEnd]
	spans := splitSpans(window)

	molecules := make([]model.Molecule, 0, len(spans))
	atoms := make([]model.Atom, 0, len(spans)*2)

	seq := seqStart
	for _, sp := range spans {
		start := windowStart + sp.start
		end := windowStart + sp.end
		content := canonical[start:end]
		trimmedLen := len(strings.TrimRight(content, " \t\r\n"))
		if trimmedLen < minMoleculeBytes {
			continue
		}

		mType, numVal, numUnit := classify(content)
		tags, entities := tagging.Derive(content)

		moleculeID := hashID("molecule", compoundID, fmt.Sprintf("%d", seq))
		mol := model.Molecule{
			ID:           moleculeID,
			CompoundID:   compoundID,
			Sequence:     seq,
			StartByte:    start,
			EndByte:      end,
			Type:         mType,
			Content:      content,
			NumericValue: numVal,
			NumericUnit:  numUnit,
			Tags:         tags,
			Provenance:   provenance,
		}
		molecules = append(molecules, mol)

		for _, ent := range entities {
			label := normalizeLabel(ent)
			if label == "" {
				continue
			}
			atoms = append(atoms, model.Atom{
				ID:         fmt.Sprintf("atom_%s_%s", moleculeID, entityHash16(label)),
				MoleculeID: moleculeID,
				Label:      label,
				Tags:       tags,
			})
		}

		seq++
	}

	return molecules, atoms, seq
}

// canonicalize normalizes line endings to "\n", applies NFC normalization
// so combining-character sequences have one canonical byte form before
// offset scanning begins, and runs the content sanitizer.
func canonicalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = norm.NFC.String(text)
	return sanitize.Sanitize(text)
}

type span struct {
	start, end int
}

// splitSpans scans the canonicalized body with a running byte cursor,
// producing paragraph spans and, for paragraphs over maxParagraphBytes,
// sentence sub-spans. Offsets are computed by scanning, never by
// re-encoding, so non-ASCII and emoji boundaries are always correct.
func splitSpans(body string) []span {
	var spans []span
	cursor := 0

	for _, para := range splitOnBlankLines(body, &cursor) {
		if len(para.text) > maxParagraphBytes {
			spans = append(spans, splitOnSentences(para.text, para.start)...)
		} else {
			spans = append(spans, span{start: para.start, end: para.start + len(para.text)})
		}
	}
	return spans
}

type textSpan struct {
	text  string
	start int
}

// splitOnBlankLines walks body with a running cursor, emitting paragraphs
// separated by runs of blank lines and recording each paragraph's true
// start offset in body.
func splitOnBlankLines(body string, cursor *int) []textSpan {
	var out []textSpan
	lines := strings.Split(body, "\n")
	var bufStart = -1
	var buf strings.Builder

	pos := 0
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, textSpan{text: buf.String(), start: bufStart})
			buf.Reset()
			bufStart = -1
		}
	}

	for i, line := range lines {
		lineLen := len(line)
		if strings.TrimSpace(line) == "" {
			flush()
		} else {
			if bufStart == -1 {
				bufStart = pos
			} else {
				buf.WriteByte('\n')
			}
			buf.WriteString(line)
		}
		pos += lineLen
		if i != len(lines)-1 {
			pos++ // account for the '\n' separator consumed by Split
		}
	}
	flush()
	*cursor = pos
	return out
}

// sentenceEnd matches a sentence-ending punctuation mark followed by
// whitespace, excluding common abbreviations via a negative lookbehind
// emulated with a small exclusion set (Go's regexp has no lookbehind).
var sentenceEnd = regexp.MustCompile(`[.!?]["')\]]?\s+`)

var commonAbbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "vs": true, "etc": true, "e.g": true,
	"i.e": true, "inc": true, "ltd": true, "co": true, "st": true,
}

// splitOnSentences splits text on sentence boundaries, skipping boundaries
// that immediately follow a common abbreviation, and offsets each
// resulting span by baseOffset (the span's start within the full body).
func splitOnSentences(text string, baseOffset int) []span {
	var spans []span
	start := 0
	locs := sentenceEnd.FindAllStringIndex(text, -1)
	for _, loc := range locs {
		wordBefore := lastWord(text[start:loc[0]])
		if commonAbbreviations[strings.ToLower(wordBefore)] {
			continue
		}
		end := loc[1]
		spans = append(spans, span{start: baseOffset + start, end: baseOffset + end})
		start = end
	}
	if start < len(text) {
		spans = append(spans, span{start: baseOffset + start, end: baseOffset + len(text)})
	}
	return spans
}

func lastWord(s string) string {
	s = strings.TrimRight(s, ".!?\"')] \t")
	idx := strings.LastIndexAny(s, " \t\n")
	if idx < 0 {
		return s
	}
	return s[idx+1:]
}

var (
	codeFence   = regexp.MustCompile("```")
	codeKeyword = regexp.MustCompile(`\b(function|class|const|import|package|func|def)\b`)
	braceRune   = regexp.MustCompile(`[{}]`)
	tableRow    = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*([a-zA-Z%°]+)\b`)
)

// classify assigns a MoleculeType using the heuristic rule set: at least
// two of {fenced-code marker, code keyword, high brace density} yields
// code; a numeric-with-unit match yields data; otherwise prose.
func classify(content string) (model.MoleculeType, *float64, string) {
	signals := 0
	if codeFence.MatchString(content) {
		signals++
	}
	if codeKeyword.MatchString(content) {
		signals++
	}
	if len(content) > 0 {
		density := float64(len(braceRune.FindAllString(content, -1))) / float64(len(content))
		if density > 0.01 {
			signals++
		}
	}
	if signals >= 2 {
		return model.MoleculeCode, nil, ""
	}

	if m := tableRow.FindStringSubmatch(content); m != nil {
		var val float64
		if _, err := fmt.Sscanf(m[1], "%f", &val); err == nil {
			return model.MoleculeData, &val, m[2]
		}
	}

	return model.MoleculeProse, nil, ""
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) > 255 {
		s = s[:255]
	}
	return s
}

func hashID(kind string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func entityHash16(label string) string {
	h := sha256.Sum256([]byte(label))
	return hex.EncodeToString(h[:])[:16]
}
