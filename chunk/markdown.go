package chunk

import (
	"regexp"
	"strings"

	"github.com/iannuttall/librarian"
)

// headingRe matches ATX headings, levels 1-5.
var headingRe = regexp.MustCompile(`^(#{1,5})\s+(.+?)\s*#*\s*$`)

// heading is one ATX heading found outside code fences.
type heading struct {
	level int
	title string
	line  int // 1-based
}

// parseHeadings scans for ATX headings, ignoring fenced code blocks.
func parseHeadings(lines []string) []heading {
	var heads []heading
	inFence := false
	fence := ""
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if inFence {
			if strings.HasPrefix(trimmed, fence) {
				inFence = false
			}
			continue
		}
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = true
			fence = trimmed[:3]
			continue
		}
		if m := headingRe.FindStringSubmatch(line); m != nil {
			heads = append(heads, heading{level: len(m[1]), title: m[2], line: i + 1})
		}
	}
	return heads
}

// mdPiece is a markdown chunk before formatting.
type mdPiece struct {
	ctx   string
	body  string
	start int
	end   int
}

// chunkMarkdown implements the markdown strategy: a short flat file
// with code stays whole; otherwise leaf heading sections become
// chunks, passed through the token limiter and a small-chunk merge.
// Files without headings fall back to the whole text under the same
// limiter.
func chunkMarkdown(file File) []librarian.ChunkDraft {
	lines := strings.Split(file.Content, "\n")
	heads := parseHeadings(lines)

	nested := false
	if len(heads) > 0 {
		min := heads[0].level
		for _, h := range heads {
			if h.level < min {
				min = h.level
			}
		}
		for _, h := range heads {
			if h.level > min {
				nested = true
				break
			}
		}
	}

	rootCtx := breadcrumb(file.Prefix, file.Title)

	// Short, flat, code-bearing files read best as one chunk.
	if librarian.ApproxTokens(file.Content) <= MaxDocTokens && !nested && hasCodeBlock(file.Content) {
		return finalizeDocPieces([]mdPiece{{
			ctx:   rootCtx,
			body:  strings.TrimSpace(file.Content),
			start: 1,
			end:   len(lines),
		}})
	}

	var pieces []mdPiece
	if len(heads) == 0 {
		pieces = []mdPiece{{
			ctx:   rootCtx,
			body:  strings.TrimSpace(file.Content),
			start: 1,
			end:   len(lines),
		}}
	} else {
		pieces = sectionPieces(file, lines, heads)
	}

	var limited []mdPiece
	for _, p := range pieces {
		limited = append(limited, limitPiece(p)...)
	}
	return finalizeDocPieces(mergeSmallPieces(limited))
}

// sectionPieces flattens the heading tree into per-section pieces.
// Each heading owns the text up to the next heading; sections with no
// text of their own (pure parents) yield nothing.
func sectionPieces(file File, lines []string, heads []heading) []mdPiece {
	var pieces []mdPiece
	trail := make(map[int]string)

	for i, h := range heads {
		trail[h.level] = h.title
		for lvl := h.level + 1; lvl <= 6; lvl++ {
			delete(trail, lvl)
		}

		crumbs := []string{file.Prefix, file.Title}
		for lvl := 1; lvl <= h.level; lvl++ {
			if title, ok := trail[lvl]; ok && title != file.Title {
				crumbs = append(crumbs, title)
			}
		}

		start := h.line + 1
		end := len(lines)
		if i+1 < len(heads) {
			end = heads[i+1].line - 1
		}
		if start > end {
			continue
		}
		body := strings.TrimSpace(strings.Join(lines[start-1:end], "\n"))
		if body == "" {
			continue
		}
		pieces = append(pieces, mdPiece{
			ctx:   breadcrumb(crumbs...),
			body:  body,
			start: start,
			end:   end,
		})
	}
	return pieces
}

// limitPiece splits an oversized piece line by line, carrying
// OverlapTokens of trailing context into each successor and folding
// undersized leftovers back into their predecessor.
func limitPiece(p mdPiece) []mdPiece {
	if librarian.ApproxTokens(p.body) <= MaxDocTokens {
		return []mdPiece{p}
	}

	lines := strings.Split(p.body, "\n")
	var out []mdPiece
	var cur []string
	curStart := p.start

	flush := func(endLine int) {
		if len(cur) == 0 {
			return
		}
		out = append(out, mdPiece{ctx: p.ctx, body: strings.Join(cur, "\n"), start: curStart, end: endLine})
	}

	tokens := 0
	for i, line := range lines {
		lineTokens := librarian.ApproxTokens(line)

		// A single line beyond the budget is split by characters.
		if lineTokens > MaxDocTokens {
			flush(p.start + i - 1)
			cur = nil
			tokens = 0
			for _, part := range splitLongLine(line, MaxDocTokens) {
				out = append(out, mdPiece{ctx: p.ctx, body: part, start: p.start + i, end: p.start + i})
			}
			curStart = p.start + i + 1
			continue
		}

		if tokens+lineTokens > MaxDocTokens && len(cur) > 0 {
			flush(p.start + i - 1)
			overlap := tailLines(cur, OverlapTokens)
			cur = append([]string{}, overlap...)
			curStart = p.start + i - len(overlap)
			tokens = 0
			for _, l := range cur {
				tokens += librarian.ApproxTokens(l)
			}
		}
		cur = append(cur, line)
		tokens += lineTokens
	}
	flush(p.end)

	// Fold an undersized tail into its predecessor.
	if len(out) >= 2 {
		last := out[len(out)-1]
		if librarian.ApproxTokens(last.body) < MinChunkTokens {
			prev := out[len(out)-2]
			prev.body += "\n" + last.body
			prev.end = last.end
			out = append(out[:len(out)-2], prev)
		}
	}
	return out
}

// splitLongLine hard-splits a single line at character budget
// boundaries.
func splitLongLine(line string, maxTokens int) []string {
	budget := maxTokens * 4
	var parts []string
	for len(line) > budget {
		parts = append(parts, line[:budget])
		line = line[budget:]
	}
	if line != "" {
		parts = append(parts, line)
	}
	return parts
}

// tailLines returns the trailing lines whose combined size stays
// within the token budget.
func tailLines(lines []string, budget int) []string {
	tokens := 0
	i := len(lines)
	for i > 0 {
		t := librarian.ApproxTokens(lines[i-1])
		if tokens+t > budget {
			break
		}
		tokens += t
		i--
	}
	return lines[i:]
}

// mergeSmallPieces merges consecutive same-section pieces under
// MinMergeTokens while the combined result stays under MaxDocTokens.
func mergeSmallPieces(pieces []mdPiece) []mdPiece {
	var out []mdPiece
	for _, p := range pieces {
		if len(out) > 0 {
			last := &out[len(out)-1]
			lastTokens := librarian.ApproxTokens(last.body)
			curTokens := librarian.ApproxTokens(p.body)
			if last.ctx == p.ctx && lastTokens < MinMergeTokens && lastTokens+curTokens < MaxDocTokens {
				last.body += "\n\n" + p.body
				last.end = p.end
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// finalizeDocPieces renders pieces as chunk drafts.
func finalizeDocPieces(pieces []mdPiece) []librarian.ChunkDraft {
	var drafts []librarian.ChunkDraft
	for _, p := range pieces {
		content := formatChunk(p.ctx, p.body, "", false)
		drafts = append(drafts, librarian.ChunkDraft{
			Type:        librarian.ChunkDoc,
			StartLine:   p.start,
			EndLine:     p.end,
			TokenCount:  librarian.ApproxTokens(content),
			Content:     content,
			ContextPath: p.ctx,
		})
	}
	return drafts
}
