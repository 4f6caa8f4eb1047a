package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iannuttall/librarian"
)

// maxSliceSpan bounds the lines one slice may return.
const maxSliceSpan = 400

// Run executes the get command.
func (c *GetCmd) Run(deps *Dependencies) error {
	source, err := deps.Sources.FindSourceByLibrary(deps.Ctx, c.Library)
	if err != nil {
		return err
	}

	lib, err := deps.OpenLibrary(source.DBPath)
	if err != nil {
		return err
	}
	defer lib.Close()

	var doc *librarian.Document
	switch {
	case c.Doc != 0:
		doc, err = lib.Documents.FindDocumentByID(deps.Ctx, c.Doc)
	case c.Path != "":
		doc, err = findByPathOrURI(deps, lib.Documents, c.Path)
	default:
		return librarian.Errorf(librarian.EINVALID, "pass --doc ID or a document path/URI")
	}
	if err != nil {
		return err
	}

	content, err := lib.Documents.DocumentContent(deps.Ctx, doc.ID)
	if err != nil {
		return err
	}

	if c.Slice != "" {
		content, err = sliceLines(content, c.Slice)
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(deps.Stdout, content)
	return nil
}

// findByPathOrURI resolves a document by its path first, then by URI.
func findByPathOrURI(deps *Dependencies, docs librarian.DocumentService, target string) (*librarian.Document, error) {
	found, err := docs.FindDocuments(deps.Ctx, librarian.DocumentFilter{Path: &target, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		found, err = docs.FindDocuments(deps.Ctx, librarian.DocumentFilter{URI: &target, Limit: 1})
		if err != nil {
			return nil, err
		}
	}
	if len(found) == 0 {
		return nil, librarian.Errorf(librarian.ENOTFOUND, "no document matches %q", target)
	}
	return found[0], nil
}

// sliceLines returns lines a through b (1-based, inclusive) of
// content. The range must be ordered and span fewer than
// maxSliceSpan lines; an end past the document is clamped.
func sliceLines(content, sliceSpec string) (string, error) {
	startStr, endStr, ok := strings.Cut(sliceSpec, ":")
	if !ok {
		return "", librarian.Errorf(librarian.EINVALID, "slice must be a:b, got %q", sliceSpec)
	}
	start, err := strconv.Atoi(startStr)
	if err != nil || start < 1 {
		return "", librarian.Errorf(librarian.EINVALID, "invalid slice start %q", startStr)
	}
	end, err := strconv.Atoi(endStr)
	if err != nil || end < 1 {
		return "", librarian.Errorf(librarian.EINVALID, "invalid slice end %q", endStr)
	}
	if end < start {
		return "", librarian.Errorf(librarian.EINVALID, "slice end %d precedes start %d", end, start)
	}
	if span := end - start + 1; span >= maxSliceSpan {
		return "", librarian.Errorf(librarian.EINVALID,
			"slice spans %d lines; the limit is %d", span, maxSliceSpan)
	}

	lines := strings.Split(content, "\n")
	if start > len(lines) {
		return "", librarian.Errorf(librarian.EINVALID,
			"slice starts at line %d but the document has %d lines", start, len(lines))
	}
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}
