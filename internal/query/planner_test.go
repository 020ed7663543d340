package query

import "testing"

func TestBuildDropsStopwordsAndPunctuation(t *testing.T) {
	p := Build("What is the status of the Paris project?", 1000, 1.0)
	for _, term := range p.DirectTerms {
		if isStopWord(term) {
			t.Fatalf("expected stopwords dropped, found %q", term)
		}
	}
	found := false
	for _, term := range p.DirectTerms {
		if term == "paris" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'paris' among direct terms, got %v", p.DirectTerms)
	}
}

func TestBuildBudgetSplitIs70_30(t *testing.T) {
	p := Build("project status", 1000, 1.0)
	if p.DirectBudget != 700 {
		t.Fatalf("expected direct budget 700, got %d", p.DirectBudget)
	}
	if p.RelatedBudget != 300 {
		t.Fatalf("expected related budget 300, got %d", p.RelatedBudget)
	}
	if p.DirectBudget+p.RelatedBudget != 1000 {
		t.Fatalf("expected budgets to sum to max_chars, got %d", p.DirectBudget+p.RelatedBudget)
	}
}

func TestBuildExpandsSynonymRing(t *testing.T) {
	p := Build("job status", 1000, 1.0)
	if len(p.RelatedTerms) == 0 {
		t.Fatal("expected related terms expanded from the synonym ring")
	}
	for _, rel := range p.RelatedTerms {
		if rel == "job" {
			t.Fatal("related terms should exclude a term already in direct terms")
		}
	}
}

func TestExtractTemporalWindowRelativeDays(t *testing.T) {
	p := Build("what happened in the last 7 days", 1000, 1.0)
	if p.TemporalWindow == nil {
		t.Fatal("expected a temporal window for 'last 7 days'")
	}
	if !p.TemporalWindow.End.After(p.TemporalWindow.Start) {
		t.Fatal("expected window end after start")
	}
}

func TestExtractTemporalWindowISODate(t *testing.T) {
	p := Build("notes from 2025-03-14", 1000, 1.0)
	if p.TemporalWindow == nil {
		t.Fatal("expected a temporal window for an ISO date")
	}
	if p.TemporalWindow.Start.Day() != 14 {
		t.Fatalf("expected day 14, got %d", p.TemporalWindow.Start.Day())
	}
}

func TestExtractTemporalWindowNoneForUntimedQuery(t *testing.T) {
	p := Build("favorite recipe for dinner", 1000, 1.0)
	if p.TemporalWindow != nil {
		t.Fatalf("expected no temporal window, got %+v", p.TemporalWindow)
	}
}

func TestAppliesCodePenaltyRespectsNarrativeOverride(t *testing.T) {
	p := Build("anything", 1000, 0.1)
	if !p.AppliesCodePenalty([]string{"Code"}) {
		t.Fatal("expected the code penalty applied to a Code-tagged result")
	}
	if p.AppliesCodePenalty([]string{"Code", "Narrative"}) {
		t.Fatal("expected a Narrative tag to override the code penalty")
	}
	if p.AppliesCodePenalty([]string{"Prose"}) {
		t.Fatal("expected no penalty for a result without any code-like tag")
	}
}

func TestAppliesCodePenaltyNoopAtFullWeight(t *testing.T) {
	p := Build("anything", 1000, 1.0)
	if p.AppliesCodePenalty([]string{"Code"}) {
		t.Fatal("expected no penalty when code_weight is 1.0")
	}
}
