package usecase

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"nexus/internal/domain"
	"nexus/internal/port"
)

// DefaultInstruction is the system instruction used when none is configured.
const DefaultInstruction = "You are a helpful assistant. Use the following context to answer the user's question. " +
	"If the answer is not in the context, say you don't know."

//go:embed templates/system.tmpl
var systemTemplate string

var systemTmpl = template.Must(template.New("system").Parse(systemTemplate))

// PromptBuilder assembles chat messages from retrieved passages and
// conversation history under token budgets.
type PromptBuilder struct {
	tokenizer     port.Tokenizer
	instruction   string
	historyBudget int
	contextBudget int
}

// NewPromptBuilder creates a prompt builder. A budget <= 0 is unlimited.
func NewPromptBuilder(tokenizer port.Tokenizer, instruction string, historyBudget, contextBudget int) *PromptBuilder {
	if strings.TrimSpace(instruction) == "" {
		instruction = DefaultInstruction
	}
	return &PromptBuilder{
		tokenizer:     tokenizer,
		instruction:   instruction,
		historyBudget: historyBudget,
		contextBudget: contextBudget,
	}
}

// Prompt is a ready-to-send message list and what went into it.
type Prompt struct {
	Messages      []port.Message
	Passages      []domain.Passage
	HistoryTurns  int
	ContextTokens int
	HistoryTokens int
}

type citedPassage struct {
	N     int
	Title string
	Text  string
}

// Build returns system, history, user. Passages are taken in rank order
// while they fit the context budget. History is taken newest first while it
// fits the history budget, so the oldest turns are dropped first. The
// current user text is always included.
func (b *PromptBuilder) Build(passages []domain.Passage, history []domain.Turn, userText string) (Prompt, error) {
	var p Prompt

	cited := make([]citedPassage, 0, len(passages))
	for _, passage := range passages {
		tokens := b.tokenizer.CountTokens(passage.Text)
		if b.contextBudget > 0 && p.ContextTokens+tokens > b.contextBudget {
			continue // Skip if it would exceed budget
		}
		p.ContextTokens += tokens
		p.Passages = append(p.Passages, passage)
		title := passage.Title
		if title == "" {
			title = passage.DocID
		}
		cited = append(cited, citedPassage{N: len(cited) + 1, Title: title, Text: passage.Text})
	}

	var sb strings.Builder
	err := systemTmpl.Execute(&sb, struct {
		Instruction string
		Passages    []citedPassage
	}{b.instruction, cited})
	if err != nil {
		return Prompt{}, fmt.Errorf("failed to render system prompt: %w", err)
	}

	first := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		tokens := b.tokenizer.CountTokens(history[i].Text)
		if b.historyBudget > 0 && p.HistoryTokens+tokens > b.historyBudget {
			break
		}
		p.HistoryTokens += tokens
		first = i
	}
	p.HistoryTurns = len(history) - first

	p.Messages = make([]port.Message, 0, p.HistoryTurns+2)
	p.Messages = append(p.Messages, port.Message{Role: "system", Content: sb.String()})
	for _, turn := range history[first:] {
		p.Messages = append(p.Messages, port.Message{Role: string(turn.Role), Content: turn.Text})
	}
	p.Messages = append(p.Messages, port.Message{Role: string(domain.RoleUser), Content: userText})

	return p, nil
}
