// Package filtering decides which mail attachments are worth downloading
// before any network or AI work is spent on them.
package filtering

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const (
	// NeutralScore is assigned when nothing speaks for or against an attachment.
	NeutralScore = 50
	// StrongScore is assigned when the file name itself names a resume.
	StrongScore = 100
	// SubjectScore is assigned when the subject mentions a resume or a job.
	SubjectScore = 80
	// NamePatternScore is assigned to files named like "Jan Kowalski.pdf".
	NamePatternScore = 70

	// DefaultThreshold is the minimum score used by sync when none is given.
	DefaultThreshold = 10

	MinFileSize = 50 * 1024
	MaxFileSize = 10 * 1024 * 1024
)

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\p{Lu}\p{Ll}+[\s_-]\p{Lu}\p{Ll}+$`),
	regexp.MustCompile(`^(\p{Lu}\p{Ll}+[\s_-]){1,3}\p{Lu}\p{Ll}+`),
}

// Attachment carries the mail metadata the pre-filter looks at.
type Attachment struct {
	Subject  string
	Sender   string
	Filename string
	Body     string
}

// Assessment is the pre-filter verdict for one attachment.
type Assessment struct {
	Score          int
	ShouldDownload bool
	StrongSignal   bool
	Reasons        []string
}

// Passes reports whether the attachment should be downloaded under threshold.
func (a Assessment) Passes(threshold int) bool {
	return a.ShouldDownload && a.Score >= threshold
}

// Score evaluates an attachment. Blacklist hits reject immediately; otherwise
// the strongest positive signal sets the score.
func Score(att Attachment) Assessment {
	sender := strings.ToLower(att.Sender)
	filename := strings.ToLower(att.Filename)
	subject := strings.ToLower(att.Subject)

	if hit := firstMatch(sender, SenderBlacklist); hit != "" {
		return rejected(fmt.Sprintf("sender blacklisted: %s", hit))
	}
	if hit := firstMatch(filename, FilenameBlacklist); hit != "" {
		return rejected(fmt.Sprintf("filename blacklisted: %s", hit))
	}
	if hit := firstMatch(subject, SubjectBlacklist); hit != "" {
		return rejected(fmt.Sprintf("subject blacklisted: %s", hit))
	}

	result := Assessment{Score: NeutralScore, ShouldDownload: true}

	switch {
	case firstMatch(filename, FilenameKeywords) != "":
		result.Score = StrongScore
		result.StrongSignal = true
		result.Reasons = append(result.Reasons, "filename contains cv keyword: "+firstMatch(filename, FilenameKeywords))
	case firstMatch(subject, SubjectKeywords) != "":
		result.Score = SubjectScore
		result.Reasons = append(result.Reasons, "subject contains application keyword: "+firstMatch(subject, SubjectKeywords))
	case LooksLikeName(att.Filename):
		result.Score = NamePatternScore
		result.Reasons = append(result.Reasons, "filename looks like a person name")
	default:
		result.Reasons = append(result.Reasons, "no strong signals, leaving the decision to ai")
	}

	if hit := firstMatch(strings.ToLower(att.Body), BodyKeywords); hit != "" {
		result.Reasons = append(result.Reasons, "body mentions: "+hit)
	}

	return result
}

// LooksLikeName reports whether a file name, without its .pdf extension,
// is shaped like capitalized first and last names.
func LooksLikeName(filename string) bool {
	base := strings.TrimSpace(filename)
	if strings.EqualFold(path.Ext(base), ".pdf") {
		base = base[:len(base)-len(".pdf")]
	}
	for _, re := range namePatterns {
		if re.MatchString(base) {
			return true
		}
	}
	return false
}

// IsPDF reports whether an attachment is a PDF by MIME type or extension.
func IsPDF(mimeType, filename string) bool {
	return strings.EqualFold(strings.TrimSpace(mimeType), "application/pdf") ||
		strings.HasSuffix(strings.ToLower(strings.TrimSpace(filename)), ".pdf")
}

// TooLarge reports whether a known attachment size exceeds MaxFileSize.
// Unknown sizes (zero or negative) never count as too large.
func TooLarge(size int64) bool {
	return size > MaxFileSize
}

func rejected(reason string) Assessment {
	return Assessment{Score: 0, ShouldDownload: false, Reasons: []string{reason}}
}

func firstMatch(s string, keywords []string) string {
	if s == "" {
		return ""
	}
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return kw
		}
	}
	return ""
}
