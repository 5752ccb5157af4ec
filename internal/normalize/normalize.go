// Package normalize implements the Normalizer: content hashing,
// deduplication support, synopsis generation, and structured signal
// extraction from raw event content.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

// InlineBlobThreshold is the default byte threshold above which content is
// blobbed out rather than stored inline.
const InlineBlobThreshold = 1000

// StructuredSignals holds machine-derived facts about event content.
type StructuredSignals struct {
	ExitCode      *int
	ErrorSignature string
	TestsPassed   int
	TestsFailed   int
	FilesChanged  []string
	LineCount     int
	ByteCount     int
}

// Normalized is the output of NormalizeEvent.
type Normalized struct {
	ContentHash string
	Synopsis    string
	ShouldBlob  bool
	Signals     StructuredSignals
}

// Meta carries the caller-supplied hints NormalizeEvent uses to decide which
// structured signals are worth extracting.
type Meta struct {
	ExitCode *int
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// ContentHash computes a dedup-oriented content hash: whitespace-collapsed,
// lowercased content, SHA-256, truncated to 16 hex chars.
func ContentHash(content string) string {
	collapsed := whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(content)), " ")
	sum := sha256.Sum256([]byte(collapsed))
	return hex.EncodeToString(sum[:])[:16]
}

// NormalizeEvent normalizes raw event content prior to storage.
func NormalizeEvent(content string, eventType string, meta Meta, inlineThreshold int) Normalized {
	if inlineThreshold <= 0 {
		inlineThreshold = InlineBlobThreshold
	}

	n := Normalized{
		ContentHash: ContentHash(content),
		ShouldBlob:  len(content) > inlineThreshold,
	}

	if n.ShouldBlob {
		n.Synopsis = synopsize(content)
	}

	n.Signals = extractSignals(content, meta)

	return n
}

// synopsize produces a short summary of content that is too large to store
// inline: the first sentence, or the start of the text, cut at 280 bytes.
func synopsize(content string) string {
	sentences := SplitIntoSentences(content)
	if len(sentences) > 0 {
		first := sentences[0]
		if len(first) > 280 {
			return first[:280] + "…"
		}
		return first
	}
	if len(content) > 280 {
		return content[:280] + "…"
	}
	return content
}

var (
	testsPassedRe  = regexp.MustCompile(`(?i)(\d+)\s+passed`)
	testsFailedRe  = regexp.MustCompile(`(?i)(\d+)\s+failed`)
	diffHeaderRe   = regexp.MustCompile(`(?m)^diff --git a/(\S+) b/(\S+)`)
	errorLikeRe    = regexp.MustCompile(`(?i)^(.*(error|exception|panic|traceback|failed)[^\n]*)$`)
)

func extractSignals(content string, meta Meta) StructuredSignals {
	s := StructuredSignals{
		ExitCode:  meta.ExitCode,
		LineCount: strings.Count(content, "\n") + 1,
		ByteCount: len(content),
	}

	if m := testsPassedRe.FindStringSubmatch(content); m != nil {
		s.TestsPassed, _ = strconv.Atoi(m[1])
	}
	if m := testsFailedRe.FindStringSubmatch(content); m != nil {
		s.TestsFailed, _ = strconv.Atoi(m[1])
	}

	for _, m := range diffHeaderRe.FindAllStringSubmatch(content, -1) {
		s.FilesChanged = append(s.FilesChanged, m[1])
	}

	for _, line := range strings.Split(content, "\n") {
		if m := errorLikeRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			s.ErrorSignature = compactLine(m[1])
			break
		}
	}

	return s
}

func compactLine(line string) string {
	line = whitespaceRun.ReplaceAllString(strings.TrimSpace(line), " ")
	if len(line) > 200 {
		return line[:200]
	}
	return line
}
