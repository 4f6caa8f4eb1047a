// Package goquery provides the DOM-select extraction fallback and
// link harvesting for crawled pages. Where the readability pass fails
// or returns too little, this extractor strips navigation chrome and
// keeps a whitelist of content tags.
package goquery

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/iannuttall/librarian"
)

// Ensure Extractor implements librarian.Extractor at compile time.
var _ librarian.Extractor = (*Extractor)(nil)

// strippedSelectors removes page chrome and side content before the
// whitelist pass.
var strippedSelectors = []string{
	"nav", "header", "footer", "aside", "script", "style", "noscript",
	"form", "iframe", "svg", "button",
	"[role=navigation]", "[role=banner]", "[role=contentinfo]",
	".sidebar", ".nav", ".navbar", ".menu", ".toc", ".breadcrumbs",
	".footer", ".header", ".edit-page", ".pagination",
}

// contentRoots are tried in order for the main content container.
var contentRoots = []string{
	"main", "article", "[role=main]", ".content", ".markdown-body",
	".theme-doc-markdown", ".md-content", "#content", "body",
}

// Extractor extracts main content by DOM selection.
type Extractor struct{}

// NewExtractor creates a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract strips chrome elements, picks the first content root (in
// contentRoots order) that has text and returns its HTML.
func (e *Extractor) Extract(rawHTML string) (*librarian.ExtractResult, error) {
	if rawHTML == "" {
		return nil, librarian.Errorf(librarian.EINVALID, "empty HTML input")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		title = h1
	}

	for _, sel := range strippedSelectors {
		doc.Find(sel).Remove()
	}

	var root *goquery.Selection
	for _, sel := range contentRoots {
		candidate := doc.Find(sel).First()
		if candidate.Length() > 0 && len(strings.TrimSpace(candidate.Text())) > 0 {
			root = candidate
			break
		}
	}
	if root == nil {
		return &librarian.ExtractResult{Title: title}, nil
	}

	contentHTML, err := root.Html()
	if err != nil {
		return nil, err
	}

	return &librarian.ExtractResult{
		Title:       title,
		ContentHTML: contentHTML,
	}, nil
}
