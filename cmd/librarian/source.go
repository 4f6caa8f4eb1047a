package main

import (
	"fmt"
	"os"

	"github.com/iannuttall/librarian"
)

// Run executes the source list command.
func (c *SourceListCmd) Run(deps *Dependencies) error {
	sources, err := deps.Sources.FindSources(deps.Ctx, librarian.SourceFilter{})
	if err != nil {
		return err
	}

	if c.JSON {
		return emitJSON(deps, sources, map[string]any{"count": len(sources)})
	}
	if len(sources) == 0 {
		fmt.Fprintln(deps.Stdout, "No sources registered.")
		return nil
	}
	for _, source := range sources {
		target := source.RootURL
		if source.Kind == librarian.SourceGitHub {
			target = source.Owner + "/" + source.Repo
			if source.Ref != "" {
				target += "@" + source.Ref
			}
		}
		fmt.Fprintf(deps.Stdout, "%d  %-8s %-30s %s\n", source.ID, source.Kind, source.Library(), target)
	}
	return nil
}

// Run executes the source remove command.
func (c *SourceRemoveCmd) Run(deps *Dependencies) error {
	source, err := deps.Sources.FindSourceByID(deps.Ctx, c.ID)
	if err != nil {
		return err
	}

	if err := deps.Sources.DeleteSource(deps.Ctx, source.ID); err != nil {
		return err
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(source.DBPath + suffix)
	}

	fmt.Fprintf(deps.Stdout, "Removed %s (id %d)\n", source.Library(), source.ID)
	return nil
}
