// Package dsl splits the engine's unified query string into a lexical
// clause and a vector clause, per §4.8. Vector clauses use the
// unambiguous `~"text"` marker, optionally fielded and weighted; whatever
// remains after extracting them is handed to Bleve's own query-string
// grammar unchanged.
package dsl

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Aman-CERP/amanmcp/internal/engineerr"
)

var vectorClauseRE = regexp.MustCompile(`(?:[\w.]+:)?~"[^"]*"(?:\^\d+(?:\.\d+)?)?`)
var vectorClauseParts = regexp.MustCompile(`^(?:([\w.]+):)?~"([^"]*)"(?:\^(\d+(?:\.\d+)?))?$`)

// VectorClause is one parsed `~"text"` term from the query string.
type VectorClause struct {
	Field  string // empty means "all vector fields"
	Text   string
	Weight float64
}

// Parsed is the result of splitting a raw query string.
type Parsed struct {
	VectorClauses []VectorClause
	LexicalQuery  string // cleaned remainder; empty if no lexical leg
}

// Parse splits raw into its vector and lexical legs. At least one leg
// must be non-empty; an all-whitespace or fully-consumed-by-markers input
// with no vector clauses either is rejected.
func Parse(raw string) (Parsed, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Parsed{}, engineerr.InvalidArgument(engineerr.CodeBadQuery, "empty query")
	}

	matches := vectorClauseRE.FindAllString(trimmed, -1)
	clauses := make([]VectorClause, 0, len(matches))
	for _, m := range matches {
		vc, err := parseVectorClause(m)
		if err != nil {
			return Parsed{}, err
		}
		clauses = append(clauses, vc)
	}

	remainder := vectorClauseRE.ReplaceAllString(trimmed, " ")
	lexical := cleanRemainder(remainder)

	if len(clauses) == 0 && lexical == "" {
		return Parsed{}, engineerr.InvalidArgument(engineerr.CodeBadQuery, "query has neither a lexical nor a vector clause")
	}

	return Parsed{VectorClauses: clauses, LexicalQuery: lexical}, nil
}

func parseVectorClause(m string) (VectorClause, error) {
	sub := vectorClauseParts.FindStringSubmatch(m)
	if sub == nil {
		return VectorClause{}, engineerr.InvalidArgument(engineerr.CodeBadQuery, "malformed vector clause: "+m)
	}
	vc := VectorClause{Field: sub[1], Text: sub[2], Weight: 1}
	if sub[3] != "" {
		w, err := strconv.ParseFloat(sub[3], 64)
		if err != nil {
			return VectorClause{}, engineerr.InvalidArgument(engineerr.CodeBadQuery, "malformed vector clause weight: "+m)
		}
		vc.Weight = w
	}
	return vc, nil
}

// ConcatenatedVectorText joins every vector clause's text, space-separated,
// for callers that want one combined embedding input instead of per-clause
// embedding (e.g. a single free-text "more like this" vector leg).
func ConcatenatedVectorText(clauses []VectorClause) string {
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, " ")
}

var (
	whitespaceRE  = regexp.MustCompile(`\s+`)
	leadingBoolRE = regexp.MustCompile(`(?i)^(?:\s*(?:AND|OR)\s+)+`)
	trailingBoolRE = regexp.MustCompile(`(?i)(?:\s+(?:AND|OR)\s*)+$`)
	consecBoolRE  = regexp.MustCompile(`(?i)\s+(?:AND|OR)(?:\s+(?:AND|OR))+\s+`)
)

// cleanRemainder collapses whitespace left by clause extraction and drops
// leading/trailing/consecutive boolean operators that extraction may have
// orphaned (e.g. "foo AND ~\"bar\"" becomes "foo AND" once the vector
// clause is blanked out).
func cleanRemainder(s string) string {
	s = whitespaceRE.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	for {
		next := leadingBoolRE.ReplaceAllString(s, "")
		next = trailingBoolRE.ReplaceAllString(next, "")
		next = consecBoolRE.ReplaceAllString(next, " ")
		next = strings.TrimSpace(next)
		if strings.EqualFold(next, "AND") || strings.EqualFold(next, "OR") {
			next = ""
		}
		if next == s {
			break
		}
		s = next
	}
	return s
}
