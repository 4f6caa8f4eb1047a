package main

import (
	"fmt"
	"strings"

	"github.com/iannuttall/librarian"
)

// Run executes the add command.
func (c *AddCmd) Run(deps *Dependencies) error {
	source, err := sourceFromTarget(c)
	if err != nil {
		return err
	}

	if err := deps.Sources.CreateSource(deps.Ctx, source); err != nil {
		return err
	}

	fmt.Fprintf(deps.Stdout, "Added %s source %q (id %d)\n", source.Kind, source.Library(), source.ID)
	fmt.Fprintf(deps.Stdout, "Run 'librarian ingest --source %s' to index it.\n", source.Library())
	return nil
}

// sourceFromTarget classifies the target: URLs become web sources,
// owner/repo pairs become github sources.
func sourceFromTarget(c *AddCmd) (*librarian.Source, error) {
	target := strings.TrimSpace(c.Target)

	if strings.Contains(target, "://") {
		name := c.Name
		if name == "" {
			name = hostOf(target)
		}
		return &librarian.Source{
			Kind:         librarian.SourceWeb,
			Name:         name,
			RootURL:      target,
			AllowedPaths: c.Allow,
			DeniedPaths:  c.Deny,
			MaxDepth:     c.MaxDepth,
			MaxPages:     c.MaxPages,
			VersionLabel: c.Version,
		}, nil
	}

	owner, repo, ok := strings.Cut(target, "/")
	if !ok || owner == "" || repo == "" {
		return nil, librarian.Errorf(librarian.EINVALID,
			"target must be owner/repo or a documentation URL, got %q", target)
	}
	name := c.Name
	if name == "" {
		name = target
	}
	return &librarian.Source{
		Kind:         librarian.SourceGitHub,
		Name:         name,
		Owner:        owner,
		Repo:         repo,
		Ref:          c.Ref,
		DocsPath:     c.DocsPath,
		IngestMode:   librarian.IngestMode(c.Mode),
		VersionLabel: c.Version,
	}, nil
}

func hostOf(rawURL string) string {
	rest := rawURL
	if _, after, ok := strings.Cut(rawURL, "://"); ok {
		rest = after
	}
	host, _, _ := strings.Cut(rest, "/")
	return host
}
