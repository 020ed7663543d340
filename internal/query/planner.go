// Package query implements the Query Planner: it turns a raw query
// string into direct and related terms, a byte budget split between
// them, an optional temporal window, and a code-weight penalty passed
// through from the caller.
package query

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// stripChars are punctuation marks that would break term matching if
// left in a token.
const stripChars = `?*:|!<>(){}[]^"~`

// TemporalWindow is a half-open [Start, End) range extracted from
// natural-language temporal phrases in the query.
type TemporalWindow struct {
	Start time.Time
	End   time.Time
}

// Plan is the Query Planner's output.
type Plan struct {
	DirectTerms    []string
	RelatedTerms   []string
	TemporalWindow *TemporalWindow
	CodeWeight     float64
	// DirectBudget and RelatedBudget are max_chars split 70/30 between
	// direct and related terms.
	DirectBudget  int
	RelatedBudget int
}

// Build runs the planner's full pipeline: lowercase and strip
// punctuation, tokenize, drop stopwords, expand via the synonym ring,
// extract temporal intent, and split the byte budget 70/30.
func Build(rawQuery string, maxChars int, codeWeight float64) Plan {
	window := extractTemporalWindow(rawQuery)

	cleaned := stripPunctuation(strings.ToLower(rawQuery))
	tokens := strings.Fields(cleaned)

	directSet := make(map[string]bool, len(tokens))
	var direct []string
	for _, tok := range tokens {
		if tok == "" || isStopWord(tok) || directSet[tok] {
			continue
		}
		directSet[tok] = true
		direct = append(direct, tok)
	}

	related := expandSynonyms(direct, directSet)

	return Plan{
		DirectTerms:    direct,
		RelatedTerms:   related,
		TemporalWindow: window,
		CodeWeight:     codeWeight,
		DirectBudget:   int(float64(maxChars) * 0.7),
		RelatedBudget:  maxChars - int(float64(maxChars)*0.7),
	}
}

func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(stripChars, r) {
			return ' '
		}
		return r
	}, s)
}

var (
	relativeDays  = regexp.MustCompile(`(?i)last\s+(\d+)\s+day`)
	relativeWeeks = regexp.MustCompile(`(?i)last\s+(\d+)\s+week`)
	relativeMonth = regexp.MustCompile(`(?i)last\s+(\d+)\s+month`)
	isoDate       = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	monthName     = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\b`)
)

// extractTemporalWindow parses "last N days/weeks/months", an ISO date,
// or a bare month name into a TemporalWindow anchored at the current
// time. Returns nil when the query carries no temporal intent.
func extractTemporalWindow(query string) *TemporalWindow {
	now := time.Now()

	if m := relativeDays.FindStringSubmatch(query); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return &TemporalWindow{Start: now.AddDate(0, 0, -n), End: now}
		}
	}
	if m := relativeWeeks.FindStringSubmatch(query); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return &TemporalWindow{Start: now.AddDate(0, 0, -7*n), End: now}
		}
	}
	if m := relativeMonth.FindStringSubmatch(query); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return &TemporalWindow{Start: now.AddDate(0, -n, 0), End: now}
		}
	}
	if m := isoDate.FindStringSubmatch(query); m != nil {
		year, errY := strconv.Atoi(m[1])
		month, errM := strconv.Atoi(m[2])
		day, errD := strconv.Atoi(m[3])
		if errY == nil && errM == nil && errD == nil {
			start := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
			return &TemporalWindow{Start: start, End: start.AddDate(0, 0, 1)}
		}
	}
	if m := monthName.FindStringSubmatch(query); m != nil {
		for i := time.January; i <= time.December; i++ {
			if strings.EqualFold(i.String(), m[1]) {
				year := now.Year()
				start := time.Date(year, i, 1, 0, 0, 0, 0, time.UTC)
				return &TemporalWindow{Start: start, End: start.AddDate(0, 1, 0)}
			}
		}
	}
	return nil
}

// codePenaltyTags are the tags a low code_weight discounts.
var codePenaltyTags = map[string]bool{"Code": true, "Technical": true, "JSON": true, "Config": true, "Test": true}

// narrativeTags always override the code penalty when present.
var narrativeTags = map[string]bool{"Narrative": true, "Relationship": true, "Social": true, "Personal": true}

// AppliesCodePenalty reports whether the scorer should apply
// plan.CodeWeight to a result carrying the given tags.
func (p Plan) AppliesCodePenalty(tags []string) bool {
	if p.CodeWeight >= 1.0 {
		return false
	}
	hasCode := false
	for _, t := range tags {
		if narrativeTags[t] {
			return false
		}
		if codePenaltyTags[t] {
			hasCode = true
		}
	}
	return hasCode
}
