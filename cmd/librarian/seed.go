package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/ingest"
)

// Run executes the seed command: register each target, then ingest
// them with rate-limit backoff.
func (c *SeedCmd) Run(deps *Dependencies) error {
	targets, err := c.collectTargets()
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return librarian.Errorf(librarian.EINVALID, "no targets; pass --file or --url")
	}

	var sources []*librarian.Source
	for _, target := range targets {
		source, err := sourceFromTarget(&AddCmd{Target: target, Mode: "docs", MaxDepth: 3, MaxPages: 500})
		if err != nil {
			fmt.Fprintf(deps.Stderr, "  skip %s: %s\n", target, librarian.ErrorMessage(err))
			continue
		}

		// Already-registered targets are reused, not duplicated.
		if existing, err := deps.Sources.FindSourceByLibrary(deps.Ctx, source.Library()); err == nil {
			sources = append(sources, existing)
			continue
		}
		if err := deps.Sources.CreateSource(deps.Ctx, source); err != nil {
			fmt.Fprintf(deps.Stderr, "  skip %s: %s\n", target, librarian.ErrorMessage(err))
			continue
		}
		fmt.Fprintf(deps.Stdout, "Added %s\n", source.Library())
		sources = append(sources, source)
	}

	if c.NoIngest {
		return nil
	}

	opts := ingest.Options{Concurrency: c.Concurrency}
	if !c.NoEmbed && deps.Embedder != nil {
		opts.Embedder = deps.Embedder
	}

	var failed int
	for _, source := range sources {
		fmt.Fprintf(deps.Stdout, "Ingesting %s\n", source.Library())
		err := ingest.RetryOnRateLimit(deps.Ctx, func() error {
			_, err := deps.Orch.IngestSource(deps.Ctx, source, opts, nil)
			return err
		})
		if err != nil {
			failed++
			fmt.Fprintf(deps.Stderr, "  failed: %s\n", librarian.ErrorMessage(err))
		}
	}

	if failed == len(sources) && failed > 0 {
		return librarian.Errorf(librarian.EINTERNAL, "all %d seeded sources failed", failed)
	}
	return nil
}

// collectTargets merges --url flags with the lines of every --file.
func (c *SeedCmd) collectTargets() ([]string, error) {
	targets := append([]string{}, c.URL...)
	for _, path := range c.File {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			targets = append(targets, line)
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, err
		}
	}
	return targets, nil
}
