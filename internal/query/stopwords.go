package query

// stopWords is the fixed set of articles, auxiliaries, and common verbs
// dropped from a query before term expansion: 107 entries, covering
// articles, prepositions, auxiliaries, pronouns, and common verbs.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"nor": true, "so": true, "yet": true, "in": true, "on": true, "at": true,
	"to": true, "for": true, "of": true, "with": true, "by": true, "from": true,
	"as": true, "about": true, "into": true, "between": true, "through": true,
	"during": true, "before": true, "after": true, "above": true, "below": true,
	"up": true, "down": true, "over": true, "under": true, "again": true,
	"further": true, "then": true, "once": true, "here": true, "there": true,
	"is": true, "am": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "have": true, "has": true, "had": true,
	"having": true, "do": true, "does": true, "did": true, "doing": true,
	"will": true, "would": true, "could": true, "should": true, "may": true,
	"might": true, "must": true, "shall": true, "can": true, "this": true,
	"that": true, "these": true, "those": true, "what": true, "which": true,
	"who": true, "whom": true, "whose": true, "where": true, "when": true,
	"why": true, "how": true, "not": true, "no": true, "if": true, "than": true,
	"too": true, "very": true, "just": true, "also": true, "i": true,
	"me": true, "my": true, "we": true, "our": true, "you": true, "your": true,
	"he": true, "him": true, "his": true, "she": true, "her": true, "it": true,
	"its": true, "they": true, "them": true, "their": true, "all": true,
	"each": true, "other": true, "some": true, "any": true, "own": true,
}

func isStopWord(w string) bool {
	return stopWords[w]
}
