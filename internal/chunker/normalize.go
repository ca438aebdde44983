package chunker

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	blankRuns       = regexp.MustCompile(`\n{3,}`)
	trailingBlanks  = regexp.MustCompile(`[ \t\x{00A0}]+\n`)
	lineTerminators = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\x00", "")
)

// Normalize prepares extracted text for chunking: Unicode NFC, LF line
// endings, no trailing blanks on lines, at most one blank line between
// paragraphs, no leading or trailing whitespace. Normalize is idempotent.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = lineTerminators.Replace(text)
	text = trailingBlanks.ReplaceAllString(text, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
