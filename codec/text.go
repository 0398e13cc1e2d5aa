package codec

import (
	"strings"
	"unicode"

	"mllab/dataset"
)

const (
	// MinVocabulary is the smallest usable bag-of-words vocabulary.
	MinVocabulary = 5

	// minWordLength excludes stop-word-ish short tokens.
	minWordLength = 3

	// minDocFrequency keeps only words seen in at least this many texts.
	minDocFrequency = 2
)

// TextCodec holds the frozen bag-of-words vocabulary: word to slot index,
// assigned in first-seen order during fit.
type TextCodec struct {
	vocab map[string]int
	words []string
}

// FitText builds the vocabulary from all training texts: lower-cased,
// stripped of non-alphanumerics, split on whitespace; words longer than two
// characters with document frequency >= 2 are kept in first-seen order.
// Returns ErrInsufficientVocabulary when fewer than MinVocabulary survive.
func FitText(texts []string) (*TextCodec, error) {
	docFreq := make(map[string]int)
	var order []string
	for _, text := range texts {
		seen := make(map[string]bool)
		for _, w := range Tokenize(text) {
			if seen[w] {
				continue
			}
			seen[w] = true
			if docFreq[w] == 0 {
				order = append(order, w)
			}
			docFreq[w]++
		}
	}

	c := &TextCodec{vocab: make(map[string]int)}
	for _, w := range order {
		if docFreq[w] >= minDocFrequency {
			c.vocab[w] = len(c.words)
			c.words = append(c.words, w)
		}
	}
	if len(c.words) < MinVocabulary {
		return nil, ErrInsufficientVocabulary
	}
	return c, nil
}

func (c *TextCodec) Mode() dataset.Mode { return dataset.ModeText }

func (c *TextCodec) Dim() int { return len(c.words) }

// VocabularySize returns the number of recognized words.
func (c *TextCodec) VocabularySize() int { return len(c.words) }

// Words returns the vocabulary in slot order.
func (c *TextCodec) Words() []string {
	return append([]string(nil), c.words...)
}

// Transform counts vocabulary words in the text and L1-normalizes the
// counts. Out-of-vocabulary words contribute nothing; a text with no
// recognized words stays all-zero.
func (c *TextCodec) Transform(s dataset.Sample) ([]float64, error) {
	txt, ok := s.(dataset.TextSample)
	if !ok {
		return nil, ErrWrongSampleMode
	}
	vec := make([]float64, len(c.words))
	total := 0.0
	for _, w := range Tokenize(txt.Text) {
		if idx, ok := c.vocab[w]; ok {
			vec[idx]++
			total++
		}
	}
	if total > 0 {
		for i := range vec {
			vec[i] /= total
		}
	}
	return vec, nil
}

// Tokenize lower-cases, strips non-alphanumeric runes and splits on
// whitespace, dropping tokens shorter than three characters.
func Tokenize(text string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	var words []string
	for _, w := range strings.Fields(b.String()) {
		if len([]rune(w)) >= minWordLength {
			words = append(words, w)
		}
	}
	return words
}
