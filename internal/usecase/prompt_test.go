package usecase

import (
	"strings"
	"testing"

	"nexus/internal/adapter/analyzer"
	"nexus/internal/domain"
)

func TestPromptBuilder_CitesPassages(t *testing.T) {
	b := NewPromptBuilder(analyzer.NewTokenizer(), "", 0, 0)

	p, err := b.Build([]domain.Passage{
		{DocID: "d1", Title: "colors.md", Text: "Grass is green."},
		{DocID: "d2", Text: "The sky is blue."},
	}, nil, "What color is grass?")
	if err != nil {
		t.Fatal(err)
	}

	if len(p.Messages) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(p.Messages))
	}
	system := p.Messages[0].Content
	for _, want := range []string{DefaultInstruction, "[1] colors.md\nGrass is green.", "[2] d2\nThe sky is blue."} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q:\n%s", want, system)
		}
	}
	if p.Messages[1].Role != "user" || p.Messages[1].Content != "What color is grass?" {
		t.Errorf("unexpected user message: %+v", p.Messages[1])
	}
}

func TestPromptBuilder_NoContext(t *testing.T) {
	b := NewPromptBuilder(analyzer.NewTokenizer(), "Answer briefly.", 0, 0)
	p, err := b.Build(nil, nil, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(p.Messages[0].Content, "Answer briefly.") || !strings.Contains(p.Messages[0].Content, "none was found") {
		t.Errorf("unexpected system prompt: %q", p.Messages[0].Content)
	}
}

func TestPromptBuilder_ContextBudget(t *testing.T) {
	// "alpha beta gamma" is 3 tokens, "delta" is 1
	b := NewPromptBuilder(analyzer.NewTokenizer(), "", 0, 4)
	p, err := b.Build([]domain.Passage{
		{DocID: "a", Text: "alpha beta gamma"},
		{DocID: "b", Text: "one two three four five"},
		{DocID: "c", Text: "delta"},
	}, nil, "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Passages) != 2 || p.Passages[1].DocID != "c" || p.ContextTokens != 4 {
		t.Errorf("expected a and c within budget, got %+v (%d tokens)", p.Passages, p.ContextTokens)
	}
	if strings.Contains(p.Messages[0].Content, "one two three") {
		t.Error("over-budget passage leaked into prompt")
	}
}

func TestPromptBuilder_HistoryDropsOldestFirst(t *testing.T) {
	history := []domain.Turn{
		{Role: domain.RoleUser, Text: "first question here"},     // 3 tokens
		{Role: domain.RoleAssistant, Text: "first answer here"},  // 3 tokens
		{Role: domain.RoleUser, Text: "second question here"},    // 3 tokens
		{Role: domain.RoleAssistant, Text: "second answer here"}, // 3 tokens
	}
	b := NewPromptBuilder(analyzer.NewTokenizer(), "", 7, 0)

	p, err := b.Build(nil, history, "third question")
	if err != nil {
		t.Fatal(err)
	}
	if p.HistoryTurns != 2 {
		t.Fatalf("expected 2 most recent turns, got %d", p.HistoryTurns)
	}
	// system, second question, second answer, current
	if len(p.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(p.Messages))
	}
	if p.Messages[1].Content != "second question here" || p.Messages[2].Role != "assistant" {
		t.Errorf("unexpected history order: %+v", p.Messages)
	}
	if p.Messages[3].Content != "third question" {
		t.Errorf("current turn must be last, got %+v", p.Messages[3])
	}
}

func TestPromptBuilder_CurrentTurnAlwaysIncluded(t *testing.T) {
	b := NewPromptBuilder(analyzer.NewTokenizer(), "", 1, 1)
	p, err := b.Build(nil, []domain.Turn{{Role: domain.RoleUser, Text: "old stuff"}}, "a very long current question that is over budget")
	if err != nil {
		t.Fatal(err)
	}
	last := p.Messages[len(p.Messages)-1]
	if last.Content != "a very long current question that is over budget" {
		t.Errorf("current turn missing: %+v", last)
	}
	if p.HistoryTurns != 0 {
		t.Errorf("expected no history within budget, got %d", p.HistoryTurns)
	}
}
