package port

// Tokenizer is the budget unit shared by the prompt builder and the chunker.
type Tokenizer interface {
	Tokenize(text string) []string
	CountTokens(text string) int
}
