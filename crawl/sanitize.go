package crawl

import (
	"regexp"
	"strings"
)

// Mojibake repairs for UTF-8 text decoded as Latin-1 upstream.
var mojibakeReplacer = strings.NewReplacer(
	"â€™", "'",
	"â€˜", "'",
	"â€œ", "\"",
	"â€", "\"",
	"â€“", "–",
	"â€”", "—",
	"â€¦", "…",
	"Â·", "·",
	"Â ", " ",
)

var (
	anchorItemRe  = regexp.MustCompile(`^\s*[-*+]\s*\[[^\]]*\]\(#[^)]*\)\s*$`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
	scriptBlockRe = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)>`)
	setextH1Re    = regexp.MustCompile(`^=+\s*$`)
	setextH2Re    = regexp.MustCompile(`^-+\s*$`)
)

// SanitizeMarkdown normalizes extracted markdown: drops anchor-only
// TOC lists, converts setext headings to ATX, strips leftover
// script/style tags, unescapes underscores in code fences, repairs
// mojibake and collapses blank-line runs.
func SanitizeMarkdown(md string) string {
	md = scriptBlockRe.ReplaceAllString(md, "")
	md = mojibakeReplacer.Replace(md)

	lines := strings.Split(md, "\n")
	var out []string
	inFence := false

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			out = append(out, line)
			continue
		}
		if inFence {
			// Escaped underscores inside fences break code verbatim.
			out = append(out, strings.ReplaceAll(line, `\_`, "_"))
			continue
		}

		// Anchor-only list items are navigation, not content.
		if anchorItemRe.MatchString(line) {
			continue
		}

		// Setext headings become ATX so the chunker sees one form.
		if i+1 < len(lines) && trimmed != "" && !strings.HasPrefix(trimmed, "#") &&
			!strings.HasPrefix(trimmed, "-") && !strings.HasPrefix(trimmed, "|") {
			next := strings.TrimSpace(lines[i+1])
			if setextH1Re.MatchString(next) && len(next) >= 2 {
				out = append(out, "# "+trimmed)
				i++
				continue
			}
			if setextH2Re.MatchString(next) && len(next) >= 2 {
				out = append(out, "## "+trimmed)
				i++
				continue
			}
		}

		out = append(out, line)
	}

	md = strings.Join(out, "\n")
	md = blankRunRe.ReplaceAllString(md, "\n\n")
	return strings.TrimSpace(md)
}

// HasCodeSnippet reports whether markdown contains a fenced code
// block, for the docs-only gate.
func HasCodeSnippet(md string) bool {
	return strings.Contains(md, "```") || strings.Contains(md, "~~~")
}
