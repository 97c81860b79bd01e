package mirror

import (
	"strings"
)

// Lines starting with this are part of a document's summary, not its body.
const summarySigil = "///"

const docExt = ".md"

// SplitSummaryAndBody separates the summary lines of a document from the rest.
//
// Summary lines have the sigil stripped and are joined with spaces. Body lines
// keep their order and are joined with newlines.
func SplitSummaryAndBody(raw string) (summary, body string) {
	if raw == "" {
		return "", ""
	}

	var summaryLines, bodyLines []string
	for _, line := range strings.Split(raw, "\n") {
		if rest, ok := strings.CutPrefix(line, summarySigil); ok {
			summaryLines = append(summaryLines, strings.TrimSuffix(rest, "\r"))
			continue
		}
		bodyLines = append(bodyLines, line)
	}

	return strings.Join(summaryLines, " "), strings.Join(bodyLines, "\n")
}

// DocumentName is a file's display name: its base name without the .md
// extension.
func DocumentName(filename string) string {
	return strings.TrimSuffix(filename, docExt)
}

// IsDocument reports whether a path is a markdown file.
func IsDocument(path string) bool {
	return strings.HasSuffix(path, docExt)
}
