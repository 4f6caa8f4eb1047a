package chunk

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/iannuttall/librarian"
)

// symbolPatterns matches declaration lines across the common language
// families. The scanner is intentionally permissive: nested matches
// produce small chunks that the containment dedupe removes later.
var symbolPatterns = []struct {
	re  *regexp.Regexp
	typ string
}{
	{regexp.MustCompile(`^\s*(?:export\s+)?(?:public\s+|private\s+|protected\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`), "class"},
	{regexp.MustCompile(`^\s*(?:export\s+)?interface\s+([A-Za-z_$][\w$]*)`), "interface"},
	{regexp.MustCompile(`^\s*(?:export\s+)?(?:const\s+)?enum\s+([A-Za-z_$][\w$]*)`), "enum"},
	{regexp.MustCompile(`^\s*type\s+([A-Za-z_]\w*)\s+struct\b`), "struct"},
	{regexp.MustCompile(`^\s*type\s+([A-Za-z_]\w*)\s+interface\b`), "interface"},
	{regexp.MustCompile(`^\s*func\s+\([^)]+\)\s+([A-Za-z_]\w*)`), "method"},
	{regexp.MustCompile(`^\s*func\s+([A-Za-z_]\w*)`), "function"},
	{regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)`), "function"},
	{regexp.MustCompile(`^\s*(?:async\s+)?def\s+([A-Za-z_]\w*)`), "function"},
	{regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?fn\s+([A-Za-z_]\w*)`), "function"},
	{regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?struct\s+([A-Za-z_]\w*)`), "struct"},
	{regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?enum\s+([A-Za-z_]\w*)`), "enum"},
}

// symbol is one scanned declaration with its extent.
type symbol struct {
	name      string
	typ       string
	startLine int // 1-based
	endLine   int
	startChar int // byte offsets into the file
	endChar   int
}

// id returns the stable symbol identifier: name plus byte extent.
func (s *symbol) id() string {
	return fmt.Sprintf("%s:%d-%d", s.name, s.startChar, s.endChar)
}

// chunkCode implements the code strategy: scan symbols, split each
// into target-sized parts with line overlap, merge undersized parts
// of the same symbol, and drop tiny chunks whose code is fully
// contained in a larger one. Files with no symbols fall back to line
// windows.
func chunkCode(file File) []librarian.ChunkDraft {
	lines := strings.Split(file.Content, "\n")
	offsets := lineOffsets(file.Content)
	symbols := scanSymbols(lines, offsets)

	if len(symbols) == 0 {
		return lineFallback(file, lines)
	}

	var drafts []librarian.ChunkDraft
	for i := range symbols {
		drafts = append(drafts, symbolChunks(file, lines, &symbols[i])...)
	}
	drafts = dropContainedTiny(drafts)
	if len(drafts) == 0 {
		return lineFallback(file, lines)
	}
	return drafts
}

// lineOffsets returns the byte offset of each line start.
func lineOffsets(content string) []int {
	offsets := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

// scanSymbols finds declaration lines and resolves their extents by
// brace matching, falling back to indentation for brace-less
// languages.
func scanSymbols(lines []string, offsets []int) []symbol {
	var symbols []symbol
	for i, line := range lines {
		for _, p := range symbolPatterns {
			m := p.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			end := symbolEnd(lines, i)
			endChar := offsets[end-1] + len(lines[end-1])
			symbols = append(symbols, symbol{
				name:      m[1],
				typ:       p.typ,
				startLine: i + 1,
				endLine:   end,
				startChar: offsets[i],
				endChar:   endChar,
			})
			break
		}
	}
	return symbols
}

// symbolEnd returns the 1-based last line of the symbol starting at
// line index start.
func symbolEnd(lines []string, start int) int {
	// Brace matching from the declaration line.
	depth := 0
	opened := false
	for i := start; i < len(lines) && i < start+2000; i++ {
		for _, r := range lines[i] {
			switch r {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
		}
		if opened && depth <= 0 {
			return i + 1
		}
		// Braces must appear near the declaration to count.
		if !opened && i > start+2 {
			break
		}
	}

	if !opened {
		// Indentation block (Python-style): lines deeper than the
		// declaration belong to it.
		base := indentOf(lines[start])
		end := start + 1
		for i := start + 1; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "" {
				continue
			}
			if indentOf(lines[i]) <= base {
				break
			}
			end = i + 1
		}
		return end
	}

	return len(lines)
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

// symbolChunks splits one symbol's text into parts around the token
// target, merges undersized neighbors back together while the result
// stays within the merge cap, and tags parts with (index, count) when
// the symbol remains split.
func symbolChunks(file File, lines []string, sym *symbol) []librarian.ChunkDraft {
	windows := windowLines(lines[sym.startLine-1:sym.endLine], sym.startLine, CodeTargetTokens, CodeOverlapLines)
	windows = mergeWindows(windows, CodeMergeCapTokens)

	ctx := breadcrumb(file.Prefix, file.Title, sym.name)
	drafts := make([]librarian.ChunkDraft, 0, len(windows))
	for i, w := range windows {
		draft := librarian.ChunkDraft{
			Type:        librarian.ChunkCode,
			Language:    file.Language,
			SymbolName:  sym.name,
			SymbolType:  sym.typ,
			SymbolID:    sym.id(),
			StartLine:   w.start,
			EndLine:     w.end,
			StartChar:   sym.startChar,
			EndChar:     sym.endChar,
			Content:     formatChunk(ctx, w.body, file.Language, true),
			ContextPath: ctx,
		}
		if len(windows) > 1 {
			draft.SymbolPart = i + 1
			draft.SymbolParts = len(windows)
		}
		draft.TokenCount = librarian.ApproxTokens(draft.Content)
		drafts = append(drafts, draft)
	}
	return drafts
}

// window is a contiguous run of lines.
type window struct {
	body  string
	start int
	end   int
}

// windowLines splits lines into windows near the token target with
// line overlap between successors. Windows that still exceed the hard
// cap are subdivided by characters.
func windowLines(lines []string, firstLine, targetTokens, overlap int) []window {
	var windows []window
	var cur []string
	curStart := firstLine
	tokens := 0

	flush := func(endLine int) {
		if len(cur) == 0 {
			return
		}
		body := strings.Join(cur, "\n")
		if librarian.ApproxTokens(body) > CodeHardCapTokens {
			for _, part := range splitLongLine(body, CodeTargetTokens) {
				windows = append(windows, window{body: part, start: curStart, end: endLine})
			}
		} else {
			windows = append(windows, window{body: body, start: curStart, end: endLine})
		}
	}

	for i, line := range lines {
		lineTokens := librarian.ApproxTokens(line)
		if tokens+lineTokens > targetTokens && len(cur) > 0 {
			flush(firstLine + i - 1)
			keep := overlap
			if keep > len(cur) {
				keep = len(cur)
			}
			cur = append([]string{}, cur[len(cur)-keep:]...)
			curStart = firstLine + i - keep
			tokens = 0
			for _, l := range cur {
				tokens += librarian.ApproxTokens(l)
			}
		}
		cur = append(cur, line)
		tokens += lineTokens
	}
	flush(firstLine + len(lines) - 1)
	return windows
}

// mergeWindows folds undersized windows into their neighbor while the
// combined size stays within the cap. Full-size windows are left
// alone so a symbol just over the target still yields distinct parts.
func mergeWindows(windows []window, capTokens int) []window {
	small := CodeTargetTokens / 4
	var out []window
	for _, w := range windows {
		if len(out) > 0 {
			last := &out[len(out)-1]
			lastTokens := librarian.ApproxTokens(last.body)
			curTokens := librarian.ApproxTokens(w.body)
			if (lastTokens < small || curTokens < small) && lastTokens+curTokens <= capTokens {
				last.body += "\n" + w.body
				last.end = w.end
				continue
			}
		}
		out = append(out, w)
	}
	return out
}

// dropContainedTiny removes tiny chunks whose line range and exact
// code appear inside a containing chunk.
func dropContainedTiny(drafts []librarian.ChunkDraft) []librarian.ChunkDraft {
	var out []librarian.ChunkDraft
	for i, d := range drafts {
		if d.TokenCount >= TinyChunkTokens {
			out = append(out, d)
			continue
		}
		contained := false
		body := chunkBody(d.Content)
		for j, other := range drafts {
			if i == j {
				continue
			}
			if other.StartLine <= d.StartLine && d.EndLine <= other.EndLine &&
				(other.StartLine != d.StartLine || other.EndLine != d.EndLine) &&
				strings.Contains(chunkBody(other.Content), body) {
				contained = true
				break
			}
		}
		if !contained {
			out = append(out, d)
		}
	}
	return out
}

// chunkBody strips the breadcrumb header and code fence from a
// formatted chunk, for containment comparison.
func chunkBody(content string) string {
	if _, rest, ok := strings.Cut(content, "\n\n"); ok {
		content = rest
	}
	content = strings.TrimPrefix(content, "```")
	if idx := strings.IndexByte(content, '\n'); idx >= 0 && !strings.ContainsAny(content[:idx], " \t") {
		content = content[idx+1:]
	}
	return strings.TrimSuffix(strings.TrimRight(content, "\n"), "```")
}

// lineFallback chunks a file with no recognizable symbols into plain
// line windows.
func lineFallback(file File, lines []string) []librarian.ChunkDraft {
	ctx := breadcrumb(file.Prefix, file.Title)
	windows := windowLines(lines, 1, CodeTargetTokens, CodeOverlapLines)

	var drafts []librarian.ChunkDraft
	for _, w := range windows {
		if strings.TrimSpace(w.body) == "" {
			continue
		}
		content := formatChunk(ctx, w.body, file.Language, true)
		drafts = append(drafts, librarian.ChunkDraft{
			Type:        librarian.ChunkCode,
			Language:    file.Language,
			StartLine:   w.start,
			EndLine:     w.end,
			TokenCount:  librarian.ApproxTokens(content),
			Content:     content,
			ContextPath: ctx,
		})
	}
	return drafts
}
