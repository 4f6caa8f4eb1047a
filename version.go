package librarian

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// ParseSeriesLabel parses a version label like "16.x" into its major
// number. Labels that are not of the N.x form (e.g. "main") return
// ok=false.
func ParseSeriesLabel(label string) (major uint64, ok bool) {
	var n uint64
	var suffix string
	if _, err := fmt.Sscanf(label, "%d.%s", &n, &suffix); err != nil {
		return 0, false
	}
	if suffix != "x" {
		return 0, false
	}
	return n, true
}

// ExtractMajorVersion maps a semver-like tag to its series label:
// "v16.2.3" → "16.x". Tags that do not parse return "".
func ExtractMajorVersion(tag string) string {
	v, err := semver.NewVersion(tag)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d.x", v.Major())
}

// parseTags keeps the tags that parse as semver, paired with their
// original spelling.
func parseTags(tags []string) []taggedVersion {
	out := make([]taggedVersion, 0, len(tags))
	for _, t := range tags {
		v, err := semver.NewVersion(t)
		if err != nil {
			continue
		}
		out = append(out, taggedVersion{tag: t, v: v})
	}
	return out
}

type taggedVersion struct {
	tag string
	v   *semver.Version
}

// PickDefaultVersion returns the highest stable tag, falling back to
// the highest prerelease when no stable tag exists. Returns "" when
// no tag parses.
func PickDefaultVersion(tags []string) string {
	parsed := parseTags(tags)
	var best, bestPre *taggedVersion
	for i := range parsed {
		tv := &parsed[i]
		if tv.v.Prerelease() == "" {
			if best == nil || tv.v.GreaterThan(best.v) {
				best = tv
			}
		} else if bestPre == nil || tv.v.GreaterThan(bestPre.v) {
			bestPre = tv
		}
	}
	if best != nil {
		return best.tag
	}
	if bestPre != nil {
		return bestPre.tag
	}
	return ""
}

// PickLatestForSeries returns the highest stable tag whose major
// matches the series label ("16.x"). Returns "" when the label is not
// a series or no tag matches.
func PickLatestForSeries(tags []string, seriesLabel string) string {
	major, ok := ParseSeriesLabel(seriesLabel)
	if !ok {
		return ""
	}
	var best *taggedVersion
	parsed := parseTags(tags)
	for i := range parsed {
		tv := &parsed[i]
		if tv.v.Major() != major || tv.v.Prerelease() != "" {
			continue
		}
		if best == nil || tv.v.GreaterThan(best.v) {
			best = tv
		}
	}
	if best == nil {
		return ""
	}
	return best.tag
}

// LatestTagByMajor maps each major version present in tags to its
// highest stable tag.
func LatestTagByMajor(tags []string) map[uint64]string {
	out := make(map[uint64]string)
	bestByMajor := make(map[uint64]*semver.Version)
	for _, tv := range parseTags(tags) {
		if tv.v.Prerelease() != "" {
			continue
		}
		m := tv.v.Major()
		if cur, ok := bestByMajor[m]; !ok || tv.v.GreaterThan(cur) {
			bestByMajor[m] = tv.v
			out[m] = tv.tag
		}
	}
	return out
}

// TopMajorLabels returns the series labels for the n highest majors
// present in tags, descending (e.g. ["16.x", "15.x", "14.x"]).
func TopMajorLabels(tags []string, n int) []string {
	byMajor := LatestTagByMajor(tags)
	majors := make([]uint64, 0, len(byMajor))
	for m := range byMajor {
		majors = append(majors, m)
	}
	sort.Slice(majors, func(i, j int) bool { return majors[i] > majors[j] })
	if n > 0 && len(majors) > n {
		majors = majors[:n]
	}
	labels := make([]string, 0, len(majors))
	for _, m := range majors {
		labels = append(labels, fmt.Sprintf("%d.x", m))
	}
	return labels
}
