// Package matcher turns a person or company name into a pattern that also
// recognises reordered and initialled spellings.
package matcher

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// word boundaries that understand non-ASCII letters
const (
	leftBoundary  = `(?:^|[^\p{L}\p{N}_])`
	rightBoundary = `(?:$|[^\p{L}\p{N}_])`
)

type Pattern struct {
	re    *regexp.Regexp
	terms []string
}

// Compile builds a Pattern for name, or returns nil when name is empty
// after trimming quotes and whitespace.
func Compile(name string) *Pattern {
	parts := strings.Fields(strings.ToLower(trimQuotes(name)))
	if len(parts) == 0 {
		return nil
	}

	exact := strings.Join(parts, " ")
	terms := []string{exact}
	alts := []string{joinWords(parts, `\s+`)}

	if len(parts) > 1 {
		first, last := parts[0], parts[len(parts)-1]

		reversed := make([]string, len(parts))
		for i, p := range parts {
			reversed[len(parts)-1-i] = p
		}
		terms = append(terms,
			strings.Join(reversed, " "),
			first+" "+initial(last)+".",
			initial(first)+". "+last,
		)
		alts = append(alts,
			joinWords(reversed, `,?\s+`),
			regexp.QuoteMeta(first)+`\s+`+regexp.QuoteMeta(initial(last))+`\.`,
			regexp.QuoteMeta(initial(first))+`\.\s*`+regexp.QuoteMeta(last),
		)
	}

	re := regexp.MustCompile(`(?i)` + leftBoundary + `(` + strings.Join(alts, "|") + `)` + rightBoundary)
	return &Pattern{re: re, terms: terms}
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'“”‘’`)
	return strings.TrimSpace(s)
}

func joinWords(parts []string, sep string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(quoted, sep)
}

func initial(word string) string {
	r, _ := utf8.DecodeRuneInString(word)
	return string(unicode.ToLower(r))
}

// Match reports whether text mentions the name in any variant.
func (p *Pattern) Match(text string) bool {
	if p == nil {
		return false
	}
	return p.re.MatchString(text)
}

// Find returns the first matching variant as it appears in text.
func (p *Pattern) Find(text string) (string, bool) {
	if p == nil {
		return "", false
	}
	m := p.re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SearchTerms lists the literal variants: exact, reversed, "first l.",
// "f. last".
func (p *Pattern) SearchTerms() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.terms))
	copy(out, p.terms)
	return out
}

// String returns the compiled expression.
func (p *Pattern) String() string {
	if p == nil {
		return ""
	}
	return p.re.String()
}
