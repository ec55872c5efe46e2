package filtering

import (
	"fmt"
	"strings"
	"time"
)

// BuildQuery assembles a Gmail search query for PDF attachments whose file
// name or subject mentions a resume. A zero since disables the date floor.
func BuildQuery(since time.Time) string {
	parts := make([]string, 0, 4)
	if !since.IsZero() {
		parts = append(parts, "after:"+since.Format("2006/01/02"))
	}
	parts = append(parts, "has:attachment", "filename:pdf")

	terms := make([]string, 0, len(FilenameKeywords)+1)
	for _, kw := range FilenameKeywords {
		if strings.ContainsAny(kw, " ") {
			continue
		}
		terms = append(terms, "filename:"+kw)
	}

	quoted := make([]string, 0, len(SubjectKeywords))
	for _, kw := range SubjectKeywords {
		quoted = append(quoted, fmt.Sprintf("%q", kw))
	}
	terms = append(terms, "subject:("+strings.Join(quoted, " OR ")+")")

	parts = append(parts, "("+strings.Join(terms, " OR ")+")")
	return strings.Join(parts, " ")
}
