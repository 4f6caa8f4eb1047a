package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/search"
)

// Run executes the search command.
func (c *SearchCmd) Run(deps *Dependencies) error {
	source, err := deps.Sources.FindSourceByLibrary(deps.Ctx, c.Library)
	if err != nil {
		return err
	}

	lib, err := deps.OpenLibrary(source.DBPath)
	if err != nil {
		return err
	}
	defer lib.Close()

	svc := &search.Service{
		Chunks:      lib.Chunks,
		Vectors:     lib.Vectors,
		Embedder:    deps.Embedder,
		Expander:    deps.Expander,
		Logger:      deps.Logger,
		SourceName:  source.Library(),
		StrongScore: deps.Config.Search.StrongScore,
		StrongGap:   deps.Config.Search.StrongGap,
	}

	items, err := svc.Search(deps.Ctx, c.Query, librarian.SearchMode(c.Mode), c.Version)
	if err != nil {
		return err
	}

	if c.JSON {
		return emitJSON(deps, items, map[string]any{
			"library": source.Library(),
			"mode":    c.Mode,
			"version": c.Version,
			"query":   c.Query,
			"count":   len(items),
		})
	}

	if len(items) == 0 {
		fmt.Fprintln(deps.Stdout, "No results.")
		return nil
	}
	for i, item := range items {
		fmt.Fprintf(deps.Stdout, "%d. %s  (%s", i+1, item.Title, item.Path)
		if item.Slice != "" {
			fmt.Fprintf(deps.Stdout, ":%s", item.Slice)
		}
		fmt.Fprintf(deps.Stdout, ")  score=%.3f confidence=%.2f\n", item.Score, item.Confidence)
		if item.ContextPath != "" {
			fmt.Fprintf(deps.Stdout, "   %s\n", item.ContextPath)
		}
		fmt.Fprintf(deps.Stdout, "   %s\n", item.Preview)
	}
	return nil
}

// Run executes the library command: list sources matching the name
// filter.
func (c *LibraryCmd) Run(deps *Dependencies) error {
	sources, err := deps.Sources.FindSources(deps.Ctx, librarian.SourceFilter{})
	if err != nil {
		return err
	}

	type libraryItem struct {
		ID       int64    `json:"id"`
		Library  string   `json:"library"`
		Kind     string   `json:"kind"`
		Versions []string `json:"versions"`
	}

	var items []libraryItem
	needle := strings.ToLower(c.Query)
	for _, source := range sources {
		if needle != "" && !strings.Contains(strings.ToLower(source.Library()), needle) {
			continue
		}
		versions, err := deps.Sources.FindSourceVersions(deps.Ctx, source.ID)
		if err != nil {
			return err
		}
		var labels []string
		for _, v := range versions {
			labels = append(labels, v.Label)
		}
		if c.Version != "" && !contains(labels, c.Version) {
			continue
		}
		items = append(items, libraryItem{
			ID:       source.ID,
			Library:  source.Library(),
			Kind:     string(source.Kind),
			Versions: labels,
		})
	}

	if c.JSON {
		return emitJSON(deps, items, map[string]any{"count": len(items), "query": c.Query})
	}
	if len(items) == 0 {
		fmt.Fprintln(deps.Stdout, "No matching libraries.")
		return nil
	}
	for _, item := range items {
		fmt.Fprintf(deps.Stdout, "%d  %s  (%s)", item.ID, item.Library, item.Kind)
		if len(item.Versions) > 0 {
			fmt.Fprintf(deps.Stdout, "  versions: %s", strings.Join(item.Versions, ", "))
		}
		fmt.Fprintln(deps.Stdout)
	}
	return nil
}

// emitJSON prints the structured form: items[] plus meta.
func emitJSON(deps *Dependencies, items any, meta map[string]any) error {
	enc := json.NewEncoder(deps.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"items": items,
		"meta":  meta,
	})
}

func contains(items []string, needle string) bool {
	for _, item := range items {
		if item == needle {
			return true
		}
	}
	return false
}
