// Package security provides security-related utilities for Compass
package security

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidIdentifierRegex matches valid PostgreSQL identifiers
// Only allows lowercase letters, digits, and underscores, starting with a letter or underscore
var ValidIdentifierRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateIdentifier checks if a string is a valid SQL identifier
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 63 {
		return fmt.Errorf("identifier too long (max 63 characters)")
	}
	if !ValidIdentifierRegex.MatchString(name) {
		return fmt.Errorf("invalid identifier: must contain only lowercase letters, numbers, and underscores, starting with a letter or underscore")
	}
	// Check for reserved words
	if isReservedWord(name) {
		return fmt.Errorf("'%s' is a reserved SQL keyword", name)
	}
	return nil
}

// QuoteIdentifier safely quotes a PostgreSQL identifier
// This should only be used AFTER validation
func QuoteIdentifier(name string) string {
	// Double any internal quotes for safety
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// SafeOrderClause validates a caller-supplied sort column against an
// allowlist and returns a quoted ORDER BY fragment. Used by the list
// endpoints so sort params can never inject SQL.
func SafeOrderClause(column string, allowed map[string]bool, descending bool) (string, error) {
	if !allowed[column] {
		return "", fmt.Errorf("sorting by '%s' is not supported", column)
	}
	if err := ValidateIdentifier(column); err != nil {
		return "", err
	}
	clause := QuoteIdentifier(column)
	if descending {
		clause += " DESC"
	}
	return clause, nil
}

// EscapeLikePattern escapes special characters in LIKE patterns
func EscapeLikePattern(pattern string) string {
	// Escape the special characters used in SQL LIKE: %, _, and \
	pattern = strings.ReplaceAll(pattern, `\`, `\\`)
	pattern = strings.ReplaceAll(pattern, `%`, `\%`)
	pattern = strings.ReplaceAll(pattern, `_`, `\_`)
	return pattern
}

// SearchCondition builds a safe search condition across the given columns
// Returns the condition string and the parameter
func SearchCondition(columns []string, searchTerm string) (string, []interface{}) {
	if len(columns) == 0 || searchTerm == "" {
		return "", nil
	}

	escaped := EscapeLikePattern(searchTerm)
	param := "%" + escaped + "%"

	conditions := make([]string, 0, len(columns))
	for _, col := range columns {
		if err := ValidateIdentifier(col); err == nil {
			conditions = append(conditions, fmt.Sprintf(`%s ILIKE ? ESCAPE '\'`, QuoteIdentifier(col)))
		}
	}

	if len(conditions) == 0 {
		return "", nil
	}

	params := make([]interface{}, len(conditions))
	for i := range params {
		params[i] = param
	}

	return "(" + strings.Join(conditions, " OR ") + ")", params
}

// isReservedWord checks if a word is a PostgreSQL reserved word
func isReservedWord(word string) bool {
	reserved := map[string]bool{
		"all": true, "analyse": true, "analyze": true, "and": true, "any": true,
		"array": true, "as": true, "asc": true, "asymmetric": true, "both": true,
		"case": true, "cast": true, "check": true, "collate": true, "column": true,
		"constraint": true, "create": true, "current_catalog": true, "current_date": true,
		"current_role": true, "current_time": true, "current_timestamp": true,
		"current_user": true, "default": true, "deferrable": true, "desc": true,
		"distinct": true, "do": true, "else": true, "end": true, "except": true,
		"false": true, "fetch": true, "for": true, "foreign": true, "from": true,
		"grant": true, "group": true, "having": true, "in": true, "initially": true,
		"intersect": true, "into": true, "lateral": true, "leading": true, "limit": true,
		"localtime": true, "localtimestamp": true, "not": true, "null": true, "offset": true,
		"on": true, "only": true, "or": true, "order": true, "placing": true,
		"primary": true, "references": true, "returning": true, "select": true,
		"session_user": true, "some": true, "symmetric": true, "table": true,
		"then": true, "to": true, "trailing": true, "true": true, "union": true,
		"unique": true, "user": true, "using": true, "variadic": true, "when": true,
		"where": true, "window": true, "with": true,
	}
	return reserved[strings.ToLower(word)]
}
