// Package facts implements the Fact Extractor: deterministic
// subject-predicate-object extraction from an utterance, with time-anchor
// resolution.
package facts

import (
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/agentmem/agentmem/internal/normalize"
	"github.com/agentmem/agentmem/internal/store"
)

// Fact is one extracted candidate statement.
type Fact struct {
	Subject    string
	Predicate  string
	Object     string
	Time       string // YYYY-MM-DD, empty if no anchor resolved
	Confidence store.Confidence
}

// Input carries the context an utterance needs to resolve subject pronouns
// and relative dates.
type Input struct {
	Utterance   string
	Speaker     string
	SessionDate time.Time
}

// DefaultMaxFacts is the default cap on facts returned per utterance.
const DefaultMaxFacts = 3

var dateParser = buildDateParser()

func buildDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

type predicatePattern struct {
	name string
	re   *regexp.Regexp
}

// Ordered predicate patterns; first match wins per sentence. Each pattern's
// last capture group is the object.
var predicatePatterns = []predicatePattern{
	{"identity", regexp.MustCompile(`(?i)^(?:my name is|i am called)\s+(.+)$`)},
	{"field", regexp.MustCompile(`(?i)^(?:i work in|i'm in|i am in)\s+(.+)$`)},
	{"likes", regexp.MustCompile(`(?i)^(?:like[s]?|love[s]?|prefer[s]?|enjoy[s]?)\s+(.+)$`)},
	{"went-to", regexp.MustCompile(`(?i)^(?:went|go|going|travel(?:ed|led)?)\s+to\s+(.+)$`)},
	{"works-at", regexp.MustCompile(`(?i)^(?:work[s]?|worked)\s+at\s+(.+)$`)},
	{"plans-to", regexp.MustCompile(`(?i)^(?:plan[s]?|intend[s]?|going)\s+to\s+(.+)$`)},
	{"is", regexp.MustCompile(`(?i)^(?:am|is|are)\s+(.+)$`)},
	{"has", regexp.MustCompile(`(?i)^(?:have|has|had)\s+(.+)$`)},
	{"got", regexp.MustCompile(`(?i)^(?:got|received|bought)\s+(.+)$`)},
	// attribute is the catch-all: whatever verb phrase remains becomes the
	// object wholesale, e.g. "runs every morning".
	{"attribute", regexp.MustCompile(`(?i)^(.+)$`)},
}

var (
	leadingMyOur  = regexp.MustCompile(`(?i)^(my|our)\b\s*(.*)$`)
	leadingIWe    = regexp.MustCompile(`(?i)^(i|we)\b\s*(.*)$`)
	properNounRe  = regexp.MustCompile(`^([A-Z][a-zA-Z'-]+(?:\s[A-Z][a-zA-Z'-]+)*)\b\s*(.*)$`)
	leadingVerbGap = regexp.MustCompile(`^\s+`)
	toAboutPrefix = regexp.MustCompile(`(?i)^(to|about)\s+`)
	clauseCutRe   = regexp.MustCompile(`(?i)\s[-–—]\s|\b(because|so|which|that)\b`)
	relAgoRe      = regexp.MustCompile(`(?i)(\d+)\s+(day|week|month|year)s?\s+ago`)
)

// Extract returns up to maxFacts candidate facts parsed from in.Utterance.
// maxFacts <= 0 uses DefaultMaxFacts.
func Extract(in Input, maxFacts int) []Fact {
	if maxFacts <= 0 {
		maxFacts = DefaultMaxFacts
	}

	var facts []Fact
	for _, sentence := range normalize.SplitIntoSentences(in.Utterance) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		subject, remainder, ok := resolveSubject(sentence, in.Speaker)
		if !ok {
			continue
		}

		predicate, objectRaw, ok := matchPredicate(remainder)
		if !ok {
			continue
		}

		object := sanitizeObject(objectRaw)
		if len(object) < 3 {
			continue
		}

		anchor := resolveTime(sentence, in.SessionDate)

		facts = append(facts, Fact{
			Subject:    subject,
			Predicate:  predicate,
			Object:     object,
			Time:       anchor,
			Confidence: store.ConfidenceMedium,
		})

		if len(facts) >= maxFacts {
			break
		}
	}

	return facts
}

// resolveSubject implements: leading My/Our -> speaker, I/We -> speaker,
// proper-noun prefix -> itself, else speaker if known, else drop.
func resolveSubject(sentence, speaker string) (subject string, remainder string, ok bool) {
	if m := leadingMyOur.FindStringSubmatch(sentence); m != nil {
		if speaker == "" {
			return "", "", false
		}
		return speaker, strings.TrimSpace(m[2]), true
	}
	if m := leadingIWe.FindStringSubmatch(sentence); m != nil {
		if speaker == "" {
			return "", "", false
		}
		return speaker, strings.TrimSpace(m[2]), true
	}
	if m := properNounRe.FindStringSubmatch(sentence); m != nil {
		return m[1], strings.TrimSpace(m[2]), true
	}
	if speaker != "" {
		return speaker, sentence, true
	}
	return "", "", false
}

func matchPredicate(remainder string) (predicate, object string, ok bool) {
	remainder = leadingVerbGap.ReplaceAllString(remainder, "")
	for _, p := range predicatePatterns {
		if m := p.re.FindStringSubmatch(remainder); m != nil {
			return p.name, m[len(m)-1], true
		}
	}
	return "", "", false
}

// sanitizeObject collapses whitespace, trims a leading to|about, cuts at an
// em-dash or because/so/which/that clause, and trims trailing punctuation.
func sanitizeObject(raw string) string {
	s := strings.TrimSpace(raw)
	s = toAboutPrefix.ReplaceAllString(s, "")

	if loc := clauseCutRe.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}

	s = strings.TrimRight(s, ".,;:!? \t")
	s = strings.Join(strings.Fields(s), " ")
	return s
}

// resolveTime tries explicit date patterns, then relative phrases via
// olebedev/when, then falls back to sessionDate. Returns "" if nothing
// resolves and no session date is available.
func resolveTime(sentence string, sessionDate time.Time) string {
	if d, ok := parseExplicitDate(sentence); ok {
		return d.Format("2006-01-02")
	}

	base := sessionDate
	if base.IsZero() {
		base = time.Now().UTC()
	}

	if r, err := dateParser.Parse(sentence, base); err == nil && r != nil {
		return r.Time.Format("2006-01-02")
	}

	if m := relAgoRe.FindStringSubmatch(sentence); m != nil {
		// olebedev/when's common ruleset already covers "N units ago" in
		// most phrasings; this is a deterministic fallback for ones it
		// misses.
		if d, ok := parseAgo(m, base); ok {
			return d.Format("2006-01-02")
		}
	}

	if !sessionDate.IsZero() {
		return sessionDate.Format("2006-01-02")
	}
	return ""
}

var (
	dmyRe = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4})\b`)
	mdyRe = regexp.MustCompile(`\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2})(?:st|nd|rd|th)?,?\s*(\d{4})?\b`)
	isoRe = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
)

func parseExplicitDate(sentence string) (time.Time, bool) {
	if m := isoRe.FindStringSubmatch(sentence); m != nil {
		if t, err := time.Parse("2006-01-02", m[0]); err == nil {
			return t, true
		}
	}
	if m := dmyRe.FindStringSubmatch(sentence); m != nil {
		if t, err := time.Parse("2-1-2006", m[1]+"-"+m[2]+"-"+m[3]); err == nil {
			return t, true
		}
		if t, err := time.Parse("1/2/2006", m[1]+"/"+m[2]+"/"+m[3]); err == nil {
			return t, true
		}
	}
	if m := mdyRe.FindStringSubmatch(sentence); m != nil {
		year := m[3]
		if year == "" {
			year = time.Now().UTC().Format("2006")
		}
		layout := "January 2 2006"
		if t, err := time.Parse(layout, m[1]+" "+m[2]+" "+year); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseAgo(m []string, base time.Time) (time.Time, bool) {
	var n int
	for _, c := range m[1] {
		n = n*10 + int(c-'0')
	}
	switch m[2] {
	case "day":
		return base.AddDate(0, 0, -n), true
	case "week":
		return base.AddDate(0, 0, -7*n), true
	case "month":
		return base.AddDate(0, -n, 0), true
	case "year":
		return base.AddDate(-n, 0, 0), true
	}
	return time.Time{}, false
}
