package warehouse

import (
	"regexp"
	"strings"

	"github.com/linuxfoundation/lfx-gateway/internal/errors"
)

// Application-layer screening only. The warehouse role is expected to be
// read-only as well; this check exists so a write attempt fails before a
// connection is ever borrowed.
var (
	writeKeywordPattern = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|MERGE|GRANT|REVOKE|EXECUTE|CALL)\b`)
	lineCommentPattern  = regexp.MustCompile(`--[^\n]*`)
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// validateReadOnly rejects any statement that is not a plain read. The
// statement must open with SELECT or WITH, and no write keyword may appear
// anywhere in the text, CTE bodies included.
func validateReadOnly(sqlText string) error {
	stripped := blockCommentPattern.ReplaceAllString(sqlText, " ")
	stripped = lineCommentPattern.ReplaceAllString(stripped, " ")
	trimmed := strings.TrimSpace(stripped)

	if trimmed == "" {
		return errors.Validation("SQL statement is empty")
	}

	if match := writeKeywordPattern.FindString(stripped); match != "" {
		return errors.ForbiddenSQL("Statement contains a write operation").
			WithDetails("keyword", strings.ToUpper(match))
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return errors.Validation("Only SELECT or WITH statements are allowed")
	}

	return nil
}
