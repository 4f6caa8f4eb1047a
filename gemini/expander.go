// Package gemini backs query expansion and embeddings with Google
// Gemini models.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/iannuttall/librarian"
	"google.golang.org/genai"
)

const expansionModel = "gemini-2.5-flash"

// Ensure Expander implements librarian.Expander at compile time.
var _ librarian.Expander = (*Expander)(nil)

// Expander generates alternative search queries with Gemini.
type Expander struct {
	client *genai.Client
}

// NewExpander creates a new Expander.
func NewExpander(client *genai.Client) *Expander {
	return &Expander{client: client}
}

// Expand returns up to n alternative phrasings of q, one per line of
// the model's response.
func (e *Expander) Expand(ctx context.Context, q string, n int) ([]string, error) {
	if strings.TrimSpace(q) == "" {
		return nil, librarian.Errorf(librarian.EINVALID, "query required")
	}
	if n <= 0 {
		return nil, nil
	}

	prompt := BuildExpansionPrompt(q, n)
	result, err := e.client.Models.GenerateContent(ctx, expansionModel,
		[]*genai.Content{{
			Parts: []*genai.Part{{Text: prompt}},
		}},
		BuildExpansionConfig(),
	)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, librarian.Errorf(librarian.EINTERNAL, "gemini returned nil result")
	}

	return ParseExpansions(result.Text(), q, n), nil
}

// ParseExpansions extracts up to n alternative queries from the
// model's line-oriented response, dropping list markers, blanks and
// echoes of the original query.
func ParseExpansions(text, q string, n int) []string {
	var alternates []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line == "" || strings.EqualFold(line, q) {
			continue
		}
		alternates = append(alternates, line)
		if len(alternates) == n {
			break
		}
	}
	return alternates
}

// BuildExpansionConfig returns the GenerateContentConfig for query
// expansion calls.
func BuildExpansionConfig() *genai.GenerateContentConfig {
	temp := float32(0.7)
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{
				Text: "You rewrite developer documentation search queries. Produce alternative phrasings that use different terminology for the same intent. Output one query per line with no numbering or commentary.",
			}},
		},
		Temperature: &temp,
	}
}

// BuildExpansionPrompt builds the user prompt for query expansion.
func BuildExpansionPrompt(q string, n int) string {
	return fmt.Sprintf("Rewrite this documentation search query %d different ways:\n\n%s", n, q)
}
