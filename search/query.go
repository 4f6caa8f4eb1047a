package search

import (
	"strings"
	"unicode"
)

// stopwords are excluded from keyword boosting and query relaxation.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "are": true, "was": true, "can": true,
	"how": true, "what": true, "when": true, "where": true, "why": true,
	"into": true, "your": true, "you": true, "not": true, "use": true,
	"using": true, "does": true, "all": true, "its": true, "has": true,
}

// QueryTokens splits a query into lowercase alphanumeric tokens.
func QueryTokens(q string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(q) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// SanitizeQuery renders a query for the text engine: tokens joined by
// AND.
func SanitizeQuery(q string) string {
	return strings.Join(QueryTokens(q), " AND ")
}

// RelaxQuery renders the fallback form: per-token prefix matches
// OR'd, so partial words still hit.
func RelaxQuery(q string) string {
	tokens := QueryTokens(q)
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		parts = append(parts, tok+"*")
	}
	return strings.Join(parts, " OR ")
}

// BoostTerms returns the query terms eligible for keyword boosting:
// at least three letters and not a stopword.
func BoostTerms(q string) []string {
	var terms []string
	for _, tok := range QueryTokens(q) {
		if len(tok) >= 3 && !stopwords[tok] {
			terms = append(terms, tok)
		}
	}
	return terms
}
