// Package tagging derives entity mentions and semantic category tags
// from molecule content using a declarative heuristic rule set: no LLM
// call, a closed tag vocabulary, and a bounded output size.
package tagging

import (
	"regexp"
	"strings"

	"github.com/anchorsh/anchor/internal/model"
)

// entityKind classifies a recognized entity mention, used only to drive
// the compositional tagging rules below; it is not stored.
type entityKind int

const (
	kindPerson entityKind = iota
	kindPlace
	kindConcept
	kindDate
	kindTechnical
)

// capitalizedWord matches a run of capitalized words, the heuristic
// person/place/org signal (no capitalized-word NER model is in scope).
var capitalizedWord = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,3})\b`)

// placeSuffixes is a small curated suffix list recognizing place names.
var placeSuffixes = []string{"ville", "town", "burg", "shire", "land", "city", "polis"}

// technicalTerms is a curated set of technical/code-adjacent vocabulary.
var technicalTerms = map[string]bool{
	"api": true, "cache": true, "database": true, "server": true,
	"function": true, "algorithm": true, "compiler": true, "kernel": true,
	"query": true, "index": true, "thread": true, "socket": true,
	"config": true, "json": true, "schema": true, "endpoint": true,
}

// timeReference matches common temporal phrases.
var timeReference = regexp.MustCompile(`(?i)\b(yesterday|today|tomorrow|last\s+(week|month|year|night)|this\s+(morning|week|month)|\d{4}-\d{2}-\d{2}|january|february|march|april|may|june|july|august|september|october|november|december)\b`)

// codeFence and codeKeyword mirror the atomizer's own code-likeness
// signals so the deriver's Code tag agrees with the atomizer's
// classification even when called independently.
var codeFence = regexp.MustCompile("```")
var codeKeyword = regexp.MustCompile(`\b(function|class|const|import|package|func|def)\b`)

// chatSpeakerPrefix matches a leading "Name:" pattern common to chat logs.
var chatSpeakerPrefix = regexp.MustCompile(`(?m)^[A-Z][a-zA-Z]*\s*:\s`)

// causalMarker matches words signaling a cause/effect relationship.
var causalMarker = regexp.MustCompile(`(?i)\b(because|therefore|as a result|due to|leads to|causes|caused by|consequently)\b`)

// emotionalMarker is a small curated list of emotion-bearing words.
var emotionalMarker = regexp.MustCompile(`(?i)\b(happy|sad|angry|anxious|excited|frustrated|grateful|worried|afraid|proud|relieved|disappointed)\b`)

// industryTerms is a curated set recognizing industry/domain vocabulary.
var industryTerms = map[string]bool{
	"healthcare": true, "finance": true, "manufacturing": true,
	"retail": true, "logistics": true, "agriculture": true,
	"aerospace": true, "pharmaceutical": true, "construction": true,
}

// Derive returns the deduplicated, size-bounded tag set and the raw
// entity strings recognized in content.
func Derive(content string) ([]model.Tag, []string) {
	entities, kinds := extractEntities(content)

	tagSet := make(map[model.Tag]bool)

	personCount := 0
	placeCount := 0
	hasTime := false
	for _, k := range kinds {
		switch k {
		case kindPerson:
			personCount++
		case kindPlace:
			placeCount++
		case kindDate:
			hasTime = true
		}
	}
	if !hasTime && timeReference.MatchString(content) {
		hasTime = true
	}

	if personCount >= 2 {
		tagSet[model.TagRelationship] = true
	}
	if personCount >= 1 && hasTime {
		tagSet[model.TagNarrative] = true
	}
	if chatSpeakerPrefix.MatchString(content) {
		tagSet[model.TagNarrative] = true
	}
	if hasTime {
		tagSet[model.TagTemporal] = true
	}
	if causalMarker.MatchString(content) {
		tagSet[model.TagCausal] = true
	}
	if emotionalMarker.MatchString(content) {
		tagSet[model.TagEmotional] = true
	}
	if looksLikeCode(content) {
		tagSet[model.TagCode] = true
		tagSet[model.TagTechnical] = true
	}
	for _, e := range entities {
		if technicalTerms[strings.ToLower(e)] {
			tagSet[model.TagTechnical] = true
		}
		if industryTerms[strings.ToLower(e)] {
			tagSet[model.TagIndustry] = true
		}
	}
	if placeCount >= 1 {
		tagSet[model.TagLocation] = true
	}
	if looksLikeTable(content) {
		tagSet[model.TagData] = true
	}

	tags := make([]model.Tag, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
		if len(tags) >= model.MaxTagsPerMolecule {
			break
		}
	}
	return tags, entities
}

// extractEntities recognizes capitalized-word spans as candidate
// person/place entities and technical-term/industry-term vocabulary hits
// as concept/technical entities, returning parallel entity-kind slices.
func extractEntities(content string) ([]string, []entityKind) {
	var entities []string
	var kinds []entityKind
	seen := make(map[string]bool)

	for _, m := range capitalizedWord.FindAllString(content, -1) {
		if seen[m] {
			continue
		}
		seen[m] = true
		entities = append(entities, m)
		if hasPlaceSuffix(m) {
			kinds = append(kinds, kindPlace)
		} else {
			kinds = append(kinds, kindPerson)
		}
	}

	lower := strings.ToLower(content)
	for term := range technicalTerms {
		if strings.Contains(lower, term) && !seen[term] {
			seen[term] = true
			entities = append(entities, term)
			kinds = append(kinds, kindTechnical)
		}
	}

	if timeReference.MatchString(content) {
		match := timeReference.FindString(content)
		if !seen[match] {
			seen[match] = true
			entities = append(entities, match)
			kinds = append(kinds, kindDate)
		}
	}

	return entities, kinds
}

func hasPlaceSuffix(word string) bool {
	lw := strings.ToLower(word)
	for _, suf := range placeSuffixes {
		if strings.HasSuffix(lw, suf) {
			return true
		}
	}
	return false
}

// looksLikeCode applies the same two-of-three signal rule the atomizer
// uses for its own code classification, so tagging.Derive never tags Code
// on a span the atomizer would classify as prose.
func looksLikeCode(content string) bool {
	signals := 0
	if codeFence.MatchString(content) {
		signals++
	}
	if codeKeyword.MatchString(content) {
		signals++
	}
	if strings.Count(content, "{")+strings.Count(content, "}") > len(content)/50 && len(content) > 0 {
		signals++
	}
	return signals >= 2
}

var tableLike = regexp.MustCompile(`\d+(\.\d+)?\s*[a-zA-Z%°]+`)

func looksLikeTable(content string) bool {
	return tableLike.MatchString(content)
}
