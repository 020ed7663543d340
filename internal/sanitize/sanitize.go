// Package sanitize strips serialized-metadata wrappers, known metadata
// keys, and runs of backslashes from ingested content while preserving
// all other content verbatim. It is the first step of atomization.
package sanitize

import (
	"encoding/json"
	"regexp"
	"strings"
)

// maxUnwrapPasses bounds the recursively-escaped-JSON unwind so a
// pathological input cannot loop the sanitizer indefinitely.
const maxUnwrapPasses = 3

// metadataKeys are stripped by name wherever they appear as a JSON object
// key at the top level of an unwrapped payload.
var metadataKeys = map[string]bool{
	"response_content": true,
	"thinking_content": true,
	"type":             true,
	"timestamp":        true,
	"source":           true,
}

// backslashRun matches two or more consecutive backslashes, which the
// sanitizer collapses to a single forward slash.
var backslashRun = regexp.MustCompile(`\\{2,}`)

// Sanitize removes recursively escaped JSON wrappers (at most three
// passes), known metadata keys, and collapses runs of two or more
// backslashes to "/". It preserves all other content verbatim and is
// idempotent after the first application.
func Sanitize(text string) string {
	out := text
	for i := 0; i < maxUnwrapPasses; i++ {
		unwrapped, changed := unwrapOnce(out)
		if !changed {
			break
		}
		out = unwrapped
	}
	out = stripMetadataKeys(out)
	out = backslashRun.ReplaceAllString(out, "/")
	return out
}

// unwrapOnce attempts to interpret text as a JSON-encoded string (i.e. a
// payload that was itself json.Marshal'd, producing escape sequences like
// \" and \\n around the real content) and returns the one-level-unwrapped
// string plus whether an unwrap actually happened.
func unwrapOnce(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 || trimmed[0] != '"' {
		return text, false
	}
	var inner string
	if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
		return text, false
	}
	return inner, true
}

// stripMetadataKeys removes "key": value pairs whose key matches the
// known metadata key set, operating on the object level when the content
// parses as a JSON object. Content that does not parse as a JSON object
// is returned unchanged, so plain prose is never touched.
func stripMetadataKeys(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return text
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return text
	}

	changed := false
	for k := range obj {
		if metadataKeys[k] {
			delete(obj, k)
			changed = true
		}
	}
	if !changed {
		return text
	}

	// Re-serialize only the surviving content; if nothing is left,
	// collapse to the empty string rather than "{}" noise.
	remainder, err := json.Marshal(obj)
	if err != nil {
		return text
	}
	if len(obj) == 0 {
		return ""
	}
	return string(remainder)
}
