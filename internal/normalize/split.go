package normalize

import (
	"strings"
	"unicode"
)

// SplitIntoSentences splits content on sentence-ending punctuation, the way
// a synopsis or an evidence excerpt needs to without pulling in a full NLP
// dependency.
func SplitIntoSentences(content string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range content {
		current.WriteRune(r)

		if isSentenceEnd(r) {
			if i == len(content)-1 || (i+1 < len(content) && unicode.IsSpace(rune(content[i+1]))) {
				sentence := strings.TrimSpace(current.String())
				if sentence != "" {
					sentences = append(sentences, sentence)
				}
				current.Reset()
			}
		}
	}

	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		sentences = append(sentences, remaining)
	}

	return sentences
}

// SplitIntoParagraphs splits content on blank lines.
func SplitIntoParagraphs(content string) []string {
	var paragraphs []string
	for _, p := range strings.Split(content, "\n\n") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return paragraphs
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// Excerpt trims content to at most maxBytes, preferring a sentence boundary
// over a mid-word cut.
func Excerpt(content string, maxBytes int) string {
	if len(content) <= maxBytes {
		return content
	}

	var built strings.Builder
	for _, s := range SplitIntoSentences(content) {
		if built.Len()+len(s)+1 > maxBytes {
			break
		}
		if built.Len() > 0 {
			built.WriteByte(' ')
		}
		built.WriteString(s)
	}

	if built.Len() > 0 {
		return built.String()
	}
	return content[:maxBytes]
}
