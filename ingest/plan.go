package ingest

import (
	"context"

	"github.com/iannuttall/librarian"
)

// planEntry is one (label, ref) pair to sync.
type planEntry struct {
	Label string
	Ref   string
}

// buildPlan decides which version labels to sync and which ref each
// resolves to: labels already known in source_versions, the source's
// declared label, and the top N majors from the repository's tags.
// Each label resolves to the latest stable tag of its series when one
// exists, else the previously stored ref, else the source's ref, else
// the repository default branch.
func (o *Orchestrator) buildPlan(ctx context.Context, source *librarian.Source, prior []*librarian.SourceVersion) []planEntry {
	var tags []string
	if o.Host != nil {
		if listed, err := o.Host.ListTags(ctx, source.Owner, source.Repo); err == nil {
			tags = listed
		} else if o.Logger != nil {
			o.Logger.Debug("tag listing unavailable", "source", source.Library(), "error", err)
		}
	}

	maxMajors := o.MaxMajorVersions
	if maxMajors <= 0 {
		maxMajors = DefaultMaxMajorVersions
	}

	priorRefs := make(map[string]string, len(prior))
	var labels []string
	seen := make(map[string]bool)
	push := func(label string) {
		if label != "" && !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}

	for _, v := range prior {
		priorRefs[v.Label] = v.Ref
		push(v.Label)
	}
	push(source.VersionLabel)
	for _, label := range librarian.TopMajorLabels(tags, maxMajors) {
		push(label)
	}
	if len(labels) == 0 {
		push("main")
	}

	defaultRef := ""
	resolveDefault := func() string {
		if defaultRef != "" {
			return defaultRef
		}
		defaultRef = source.Ref
		if defaultRef == "" && o.Host != nil {
			if branch, err := o.Host.DefaultBranch(ctx, source.Owner, source.Repo); err == nil {
				defaultRef = branch
			}
		}
		if defaultRef == "" {
			defaultRef = "HEAD"
		}
		return defaultRef
	}

	plan := make([]planEntry, 0, len(labels))
	for _, label := range labels {
		ref := librarian.PickLatestForSeries(tags, label)
		if ref == "" {
			ref = priorRefs[label]
		}
		if ref == "" {
			ref = resolveDefault()
		}
		plan = append(plan, planEntry{Label: label, Ref: ref})
	}
	return plan
}
