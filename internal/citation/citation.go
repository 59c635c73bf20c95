// Package citation renders retrieved passages into human-readable source
// attributions. Two fixed styles are supported: APA reference lines and
// Markdown blockquotes with an attribution footer.
package citation

import (
	"fmt"
	"strings"

	"github.com/efebarandurmaz/tome/internal/vector"
)

// Style selects the output format of a citation.
type Style string

const (
	StyleAPA      Style = "apa"
	StyleMarkdown Style = "markdown"
	StyleBoth     Style = "both"
)

// DefaultSnippetLength caps Markdown snippets before word-boundary trimming.
const DefaultSnippetLength = 200

// Citation is a retrieved passage paired with its source metadata.
type Citation struct {
	DocID    string            `json:"doc_id"`
	Snippet  string            `json:"content_snippet"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata"`
}

// Formatted holds a citation rendered in every supported style.
type Formatted struct {
	APA      string `json:"apa"`
	Markdown string `json:"markdown"`
}

// FromResult builds a Citation from a search result.
func FromResult(r vector.SearchResult) Citation {
	return Citation{
		DocID:    r.DocID,
		Snippet:  r.Content,
		Score:    r.Score,
		Metadata: r.Metadata,
	}
}

// APA renders "Author (Year). Title. Source" with "Unknown"/"n.d." sentinels
// for missing fields; the trailing source segment is omitted when absent.
func (c Citation) APA() string {
	author := c.meta("author", "Unknown")
	year := c.meta("year", "n.d.")
	title := c.meta("title", c.DocID)
	source := c.Metadata["source"]

	if source != "" {
		return fmt.Sprintf("%s (%s). %s. %s", author, year, title, source)
	}
	return fmt.Sprintf("%s (%s). %s", author, year, title)
}

// Markdown renders the truncated snippet as a blockquote followed by an
// attribution line with title, source (if present) and the relevance score.
func (c Citation) Markdown() string {
	title := c.meta("title", c.DocID)
	source := c.Metadata["source"]
	snippet := Truncate(c.Snippet, DefaultSnippetLength)

	if source != "" {
		return fmt.Sprintf("> %s\n\n— *%s*, %s (relevance: %.2f)", snippet, title, source, c.Score)
	}
	return fmt.Sprintf("> %s\n\n— *%s* (relevance: %.2f)", snippet, title, c.Score)
}

// Format renders the citation in every style; callers pick by Style.
func (c Citation) Format() Formatted {
	return Formatted{APA: c.APA(), Markdown: c.Markdown()}
}

func (c Citation) meta(key, fallback string) string {
	if v := c.Metadata[key]; v != "" {
		return v
	}
	return fallback
}

// Truncate cuts text at maxLength, trims back to the last space so no word is
// cut mid-token, and appends an ellipsis. Text within the limit is returned
// unmodified.
func Truncate(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}

	truncated := text[:maxLength]
	if last := strings.LastIndex(truncated, " "); last > 0 {
		truncated = truncated[:last]
	}
	return truncated + "..."
}

// Extract builds citations for a result set. An empty input is a validation
// failure, not a vacuous success.
func Extract(results []vector.SearchResult, style Style) ([]Citation, []Formatted, error) {
	if len(results) == 0 {
		return nil, nil, fmt.Errorf("no search results provided for citation extraction")
	}

	citations := make([]Citation, len(results))
	formatted := make([]Formatted, len(results))
	for i, r := range results {
		citations[i] = FromResult(r)
		switch style {
		case StyleAPA:
			formatted[i] = Formatted{APA: citations[i].APA()}
		case StyleMarkdown:
			formatted[i] = Formatted{Markdown: citations[i].Markdown()}
		default:
			formatted[i] = citations[i].Format()
		}
	}
	return citations, formatted, nil
}
