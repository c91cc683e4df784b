// Package classifier maps raw hierarchy labels to semantic node kinds.
//
// Labels arrive as loosely formatted heading text like
// "CHAPTER 3. Disability of Party" or "PART 2. OF CIVIL ACTIONS [307 - 1062.20]".
// Matching is whole-token only: a keyword appearing inside a longer word
// ("PARTIES", "DEPARTMENT") must never match.
package classifier

import (
	"regexp"
	"strings"

	"github.com/statutelab/lexharvest/models"
)

// Result is a successful classification of a label.
type Result struct {
	Kind   models.NodeKind
	Number string
	Title  string
}

// keywordOrder is the fixed priority order for keyword matching; the first
// whole-token match wins.
var keywordOrder = []struct {
	kind    models.NodeKind
	keyword string
}{
	{models.KindDivision, "DIVISION"},
	{models.KindPart, "PART"},
	{models.KindTitle, "TITLE"},
	{models.KindChapter, "CHAPTER"},
	{models.KindArticle, "ARTICLE"},
}

// keywordPatterns holds a case-insensitive token-boundary pattern per
// keyword, compiled once. Matching the original label directly keeps the
// match indices valid for slicing it: upcasing first can change byte
// offsets on non-ASCII labels.
var keywordPatterns = func() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(keywordOrder))
	for _, kw := range keywordOrder {
		patterns[kw.keyword] = regexp.MustCompile(`(?i)\b` + kw.keyword + `\b`)
	}
	return patterns
}()

// numberPattern matches a section-style number token: digits with optional
// decimal part and optional trailing letter ("3", "5.5", "73d").
var numberPattern = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)*[a-zA-Z]?)`)

// Classify maps a label to (kind, number, title). The second return is
// false when no keyword matches as a whole token; callers decide how to
// handle unclassifiable labels (the tree builder inherits the nearest open
// ancestor's kind).
func Classify(label string) (Result, bool) {
	for _, kw := range keywordOrder {
		loc := keywordPatterns[kw.keyword].FindStringIndex(label)
		if loc == nil {
			continue
		}

		rest := strings.TrimSpace(label[loc[1]:])
		number := ""
		if m := numberPattern.FindStringSubmatch(rest); m != nil {
			number = m[1]
			rest = strings.TrimSpace(rest[len(m[1]):])
		}

		return Result{
			Kind:   kw.kind,
			Number: number,
			Title:  cleanTitle(rest),
		}, true
	}

	return Result{}, false
}

// cleanTitle strips leading punctuation left over after removing the
// keyword and number (". Disability of Party" -> "Disability of Party")
// and any trailing bracketed section range.
func cleanTitle(s string) string {
	s = strings.TrimLeft(s, ".:-— \t")

	// Drop a trailing "[307 - 1062.20]" style range annotation.
	if i := strings.LastIndex(s, "["); i >= 0 && strings.HasSuffix(strings.TrimSpace(s), "]") {
		s = s[:i]
	}

	return strings.TrimSpace(s)
}
