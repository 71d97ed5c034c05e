package balancer

import (
	"fmt"
	"strings"
	"unicode"
)

type statementKind string

const (
	Writable    = statementKind("writable")
	NonWritable = statementKind("non-writable")
)

//nolint:gochecknoglobals
var (
	writablePrefixes = []string{
		"insert", "update", "delete", "replace", "merge", "upsert",
		"create", "alter", "drop", "truncate", "grant", "revoke",
		"lock", "call",
	}
	nonWritablePrefixes = []string{
		"select", "with", "values", "show", "explain", "describe", "desc",
	}
)

// CheckIfRequiresWrite reports whether a SQL statement must be executed on
// the master. A statement may start with a "{{writable}}" or
// "{{non-writable}}" hint in any case, the hint is stripped from the returned
// statement.
// A locking read ("select ... for update", "for share") requires the master.
// Statements of unknown kind get the default.
func CheckIfRequiresWrite(expr string, _default bool) (string, bool) {
	trimmed := strings.TrimLeftFunc(expr, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	})
	trimmedS := strings.ToLower(trimmed)

	if hint, ok := stripHint(expr, trimmed, trimmedS, NonWritable); ok {
		return hint, false
	}
	if hint, ok := stripHint(expr, trimmed, trimmedS, Writable); ok {
		return hint, true
	}

	keyword := firstWord(trimmedS)
	for _, prefix := range writablePrefixes {
		if keyword == prefix {
			return expr, true
		}
	}

	for _, prefix := range nonWritablePrefixes {
		if keyword == prefix {
			if keyword == "with" && hasWritableClause(trimmedS) {
				return expr, true
			}
			return expr, isLockingRead(trimmedS)
		}
	}

	return expr, _default
}

// ReturnsRows reports whether a statement is a query, i.e. it starts with
// one of the read keywords. Hints must be stripped before.
func ReturnsRows(expr string) bool {
	keyword := firstWord(strings.ToLower(strings.TrimLeftFunc(expr, unicode.IsSpace)))
	for _, prefix := range nonWritablePrefixes {
		if keyword == prefix {
			return true
		}
	}
	return false
}

// stripHint removes a leading hint of the kind, written in any case, from
// expr. trimmed is expr without leading spaces, lower is trimmed in lower case.
func stripHint(expr, trimmed, lower string, kind statementKind) (string, bool) {
	template := fmt.Sprintf("{{%s}}", kind)
	if !strings.HasPrefix(lower, template) {
		return expr, false
	}
	return expr[:len(expr)-len(trimmed)] + trimmed[len(template):], true
}

// hasWritableClause detects data-modifying statements inside a WITH query.
func hasWritableClause(s string) bool {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, word := range words {
		switch word {
		case "insert", "update", "delete", "merge":
			return true
		}
	}
	return false
}

func firstWord(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if end < 0 {
		return s
	}
	return s[:end]
}

func isLockingRead(s string) bool {
	fields := strings.Fields(s)
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] != "for" {
			continue
		}
		switch strings.TrimRight(fields[i+1], ";") {
		case "update", "share":
			return true
		}
	}
	return false
}
