package driven

// Tokenizer splits raw corpus lines into normalised tokens.
// Implementations are pure and safe for concurrent use.
type Tokenizer interface {
	// Tokenize returns the ordered tokens of a single line.
	Tokenize(line string) []string

	// Language returns the language tag the tokenizer was built for.
	Language() string
}

// TermWeights exposes per-(token, document) weights computed over a corpus.
type TermWeights interface {
	// Weight returns the weight of token in document doc; 0 for unseen tokens.
	Weight(token string, doc int) float64
}
