// Package tokenizer splits translation-memory lines into normalised tokens.
//
// Each supported language has its own model: casing rules and clitic
// handling differ between English and French. Tokenization is a pure
// per-line function, so whole corpora are tokenized in parallel.
package tokenizer

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
	"github.com/custodia-labs/tmsearch/internal/core/ports/driven"
)

// Ensure Tokenizer implements the interface.
var _ driven.Tokenizer = (*Tokenizer)(nil)

// model holds the per-language rules.
type model struct {
	tag          language.Tag
	splitClitics func(word string) []string
}

var models = map[string]model{
	"eng": {tag: language.English, splitClitics: splitEnglish},
	"fra": {tag: language.French, splitClitics: splitFrench},
}

// Tokenizer is a language-specific tokenizer. It is safe for concurrent use.
type Tokenizer struct {
	lang  string
	model model
}

// New returns the tokenizer for a language tag ("eng" or "fra").
func New(lang string) (*Tokenizer, error) {
	m, ok := models[lang]
	if !ok {
		return nil, fmt.Errorf("%w: no tokenizer model for language %q", domain.ErrUnsupportedType, lang)
	}
	return &Tokenizer{lang: lang, model: m}, nil
}

// Language returns the language tag.
func (t *Tokenizer) Language() string {
	return t.lang
}

// Tokenize lowercases the line, strips punctuation and symbols and
// returns the remaining word tokens in order.
func (t *Tokenizer) Tokenize(line string) []string {
	// Casers are stateful; one per call keeps Tokenize safe for concurrent use.
	text := cases.Lower(t.model.tag).String(norm.NFC.String(line))
	text = strings.ReplaceAll(text, "’", "'")

	words := strings.FieldsFunc(text, func(r rune) bool {
		return !isWordRune(r) && r != '\''
	})

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, "'")
		if w == "" || !hasLinguisticRune(w) {
			continue
		}
		for _, part := range t.model.splitClitics(w) {
			if hasLinguisticRune(part) {
				tokens = append(tokens, part)
			}
		}
	}
	return tokens
}

// TokenizeCorpus tokenizes every line using up to workers goroutines.
// The result is aligned with lines.
func TokenizeCorpus(ctx context.Context, tok driven.Tokenizer, lines []string, workers int) ([][]string, error) {
	out := make([][]string, len(lines))
	if len(lines) == 0 {
		return out, nil
	}
	if workers < 1 {
		workers = 1
	}

	chunk := (len(lines) + workers - 1) / workers
	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(lines); start += chunk {
		end := min(start+chunk, len(lines))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				out[i] = tok.Tokenize(lines[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("tokenizing corpus: %w", err)
	}
	return out, nil
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func hasLinguisticRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

var englishSuffixes = []string{"'s", "'re", "'ve", "'ll", "'d", "'m"}

// splitEnglish separates negation and possessive clitics: "don't" -> "do", "n't".
func splitEnglish(word string) []string {
	if strings.HasSuffix(word, "n't") && len(word) > 3 {
		return []string{word[:len(word)-3], "n't"}
	}
	for _, suf := range englishSuffixes {
		if strings.HasSuffix(word, suf) && len(word) > len(suf) {
			return []string{word[:len(word)-len(suf)], suf}
		}
	}
	return splitApostrophes(word)
}

var frenchElisions = []string{"jusqu'", "lorsqu'", "puisqu'", "quoiqu'", "qu'", "l'", "d'", "j'", "m'", "n'", "s'", "t'", "c'"}

var frenchKeep = map[string]bool{
	"aujourd'hui": true,
	"prud'homme":  true,
}

// splitFrench detaches elided articles and pronouns: "l'homme" -> "l'", "homme".
func splitFrench(word string) []string {
	if frenchKeep[word] {
		return []string{word}
	}
	for _, pre := range frenchElisions {
		if strings.HasPrefix(word, pre) && len(word) > len(pre) {
			return append([]string{pre}, splitFrench(word[len(pre):])...)
		}
	}
	return splitApostrophes(word)
}

// splitApostrophes breaks any remaining apostrophe-joined word into its parts.
func splitApostrophes(word string) []string {
	if !strings.Contains(word, "'") {
		return []string{word}
	}
	parts := strings.Split(word, "'")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
