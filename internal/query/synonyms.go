package query

// synonymRing is the deterministic static thesaurus the planner expands
// direct terms through, keyed by lemma. No LLM call and no external
// dictionary lookup: a fixed Go map keeps query expansion reproducible
// and fast, at the cost of coverage outside the ring.
var synonymRing = map[string][]string{
	"job":        {"work", "career", "employment", "role"},
	"work":       {"job", "career", "employment"},
	"money":      {"finances", "income", "budget", "cash"},
	"finances":   {"money", "budget", "income"},
	"budget":     {"money", "finances", "spending"},
	"meeting":    {"call", "sync", "standup"},
	"call":       {"meeting", "conversation", "chat"},
	"project":    {"initiative", "effort", "workstream"},
	"deadline":   {"due date", "timeline", "cutoff"},
	"idea":       {"thought", "concept", "notion"},
	"plan":       {"strategy", "roadmap", "outline"},
	"problem":    {"issue", "bug", "blocker"},
	"bug":        {"issue", "defect", "problem"},
	"issue":      {"problem", "bug", "ticket"},
	"goal":       {"objective", "target", "aim"},
	"friend":     {"buddy", "companion", "colleague"},
	"family":     {"relatives", "household", "parents"},
	"trip":       {"travel", "journey", "vacation"},
	"travel":     {"trip", "journey"},
	"health":     {"wellness", "fitness", "medical"},
	"doctor":     {"physician", "clinician"},
	"recipe":     {"dish", "meal", "cooking"},
	"food":       {"meal", "dish", "cooking"},
	"book":       {"novel", "reading", "text"},
	"note":       {"memo", "reminder", "entry"},
	"code":       {"program", "script", "source"},
	"program":    {"code", "software", "application"},
	"config":     {"configuration", "settings", "setup"},
	"error":      {"exception", "failure", "fault"},
	"test":       {"spec", "check", "verification"},
	"data":       {"dataset", "records", "information"},
	"customer":   {"client", "user", "account"},
	"client":     {"customer", "user"},
	"contract":   {"agreement", "terms"},
	"invoice":    {"bill", "receipt"},
	"house":      {"home", "apartment", "residence"},
	"car":        {"vehicle", "automobile"},
	"photo":      {"picture", "image", "snapshot"},
	"video":      {"recording", "clip", "footage"},
	"email":      {"message", "mail", "correspondence"},
	"message":    {"email", "note", "text"},
	"school":     {"university", "college", "education"},
	"study":      {"research", "learning", "coursework"},
	"party":      {"celebration", "gathering", "event"},
	"event":      {"gathering", "occasion", "party"},
	"happy":      {"glad", "pleased", "joyful"},
	"sad":        {"unhappy", "down", "upset"},
	"angry":      {"upset", "frustrated", "mad"},
	"tired":      {"exhausted", "fatigued"},
}

// expandSynonyms returns the deduplicated union of synonyms for every
// term in terms, excluding terms already present in direct.
func expandSynonyms(terms []string, direct map[string]bool) []string {
	seen := make(map[string]bool, len(terms))
	var related []string
	for _, t := range terms {
		for _, syn := range synonymRing[t] {
			if direct[syn] || seen[syn] {
				continue
			}
			seen[syn] = true
			related = append(related, syn)
		}
	}
	return related
}
