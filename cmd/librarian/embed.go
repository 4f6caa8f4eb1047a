package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/iannuttall/librarian"
	"github.com/iannuttall/librarian/ingest"
	"github.com/iannuttall/librarian/openai"
)

// Run executes the embed command.
func (c *EmbedCmd) Run(deps *Dependencies) error {
	embedder := deps.Embedder
	if c.Model != "" {
		embedder = embedderForModel(c.Model)
	}
	if embedder == nil {
		return librarian.Errorf(librarian.EUNAVAILABLE,
			"no embedding model configured; set models.embed in config.yml or pass --model")
	}

	sources, err := selectSources(deps, c.Source)
	if err != nil {
		return err
	}

	for _, source := range sources {
		lib, err := deps.OpenLibrary(source.DBPath)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "  %s: %s\n", source.Library(), librarian.ErrorMessage(err))
			continue
		}

		if c.Force {
			if err := lib.Vectors.ClearEmbeddings(deps.Ctx); err != nil {
				lib.Close()
				return err
			}
		}

		n, err := ingest.EmbedMissing(deps.Ctx, lib, embedder, 0)
		lib.Close()
		if err != nil {
			return err
		}
		fmt.Fprintf(deps.Stdout, "%s: embedded %d chunks (%s)\n", source.Library(), n, embedder.ModelURI())
	}
	return nil
}

// embedderForModel builds an embedder from a --model URI override.
func embedderForModel(model string) librarian.Embedder {
	if name, ok := strings.CutPrefix(model, "openai://"); ok {
		return openai.NewEmbedder(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_BASE_URL"), name)
	}
	return nil
}
