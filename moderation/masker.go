// Package moderation masks censored words in message content before it is
// persisted or broadcast. Matching is an Aho-Corasick multi-pattern search
// over a normalized view of the text, so punctuation tricks and case
// changes do not defeat the list.
package moderation

import (
	_ "embed"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"

	"chat-core/errors"
)

//go:embed words.txt
var defaultWords string

// DefaultWords returns the embedded censored list, one word per line.
func DefaultWords() []string {
	var words []string
	for _, line := range strings.Split(defaultWords, "\n") {
		if w := strings.TrimSpace(line); w != "" {
			words = append(words, w)
		}
	}
	return words
}

type Masker struct {
	machine  *goahocorasick.Machine
	maskRune rune
}

func NewMasker(words []string, maskRune rune) (*Masker, error) {
	if len(words) == 0 {
		return nil, errors.ErrEmptyWords
	}
	patterns := make([][]rune, len(words))
	for i, word := range words {
		patterns[i] = normalize([]rune(word))
	}
	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Masker{machine: machine, maskRune: maskRune}, nil
}

// Mask replaces every censored span with the mask rune, preserving the
// original length and spacing of the text.
func (m *Masker) Mask(content string) string {
	original := []rune(content)
	normalized, origIdx := normalizeIndexed(original)
	if len(normalized) == 0 {
		return content
	}

	spans := m.machine.MultiPatternSearch(normalized, false)
	if len(spans) == 0 {
		return content
	}

	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(origIdx) {
			continue
		}
		for i := origIdx[start]; i <= origIdx[end-1]; i++ {
			original[i] = m.maskRune
		}
	}
	return string(original)
}

// normalizeIndexed lowercases and strips noise runes, keeping a mapping
// back to the original rune positions so masking hits the right spans.
func normalizeIndexed(original []rune) ([]rune, []int) {
	normalized := make([]rune, 0, len(original))
	origIdx := make([]int, 0, len(original))
	for i, r := range original {
		if isNoise(r) {
			continue
		}
		normalized = append(normalized, unicode.ToLower(r))
		origIdx = append(origIdx, i)
	}
	return normalized, origIdx
}

func normalize(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if isNoise(r) {
			continue
		}
		out = append(out, unicode.ToLower(r))
	}
	return out
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
