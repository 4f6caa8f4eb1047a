package main

import (
	"fmt"

	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/ingest"
)

// Run executes the ingest command.
func (c *IngestCmd) Run(deps *Dependencies) error {
	sources, err := selectSources(deps, c.Source)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Fprintln(deps.Stdout, "No sources registered. Add one with 'librarian add'.")
		return nil
	}

	opts := ingest.Options{
		Force:       c.Force,
		Concurrency: c.Concurrency,
	}
	if c.Embed {
		if deps.Embedder == nil {
			return librarian.Errorf(librarian.EUNAVAILABLE,
				"no embedding model configured; set models.embed in config.yml")
		}
		opts.Embedder = deps.Embedder
	}

	var failed int
	for _, source := range sources {
		progress := func(p ingest.Progress) {
			if p.Total > 0 {
				fmt.Fprintf(deps.Stdout, "\r  %s [%s] %d/%d %s", p.Source, p.Label, p.Current, p.Total, p.Unit)
			} else {
				fmt.Fprintf(deps.Stdout, "\r  %s [%s] %d %s", p.Source, p.Label, p.Current, p.Unit)
			}
		}

		fmt.Fprintf(deps.Stdout, "Ingesting %s\n", source.Library())
		stats, err := deps.Orch.IngestSource(deps.Ctx, source, opts, progress)
		fmt.Fprintln(deps.Stdout)
		if err != nil {
			// One source's failure never aborts the others.
			failed++
			fmt.Fprintf(deps.Stderr, "  failed: %s\n", librarian.ErrorMessage(err))
			continue
		}
		fmt.Fprintf(deps.Stdout, "  processed=%d updated=%d unchanged=%d skipped=%d failed=%d deactivated=%d\n",
			stats.Processed, stats.Updated, stats.Unchanged, stats.Skipped, stats.Failed, stats.Deactivated)
	}

	if failed == len(sources) {
		return librarian.Errorf(librarian.EINTERNAL, "all %d sources failed to ingest", failed)
	}
	return nil
}

// selectSources resolves --source to one source, or all when unset.
func selectSources(deps *Dependencies, library string) ([]*librarian.Source, error) {
	if library != "" {
		source, err := deps.Sources.FindSourceByLibrary(deps.Ctx, library)
		if err != nil {
			return nil, err
		}
		return []*librarian.Source{source}, nil
	}
	return deps.Sources.FindSources(deps.Ctx, librarian.SourceFilter{})
}
