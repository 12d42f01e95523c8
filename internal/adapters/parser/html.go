// Package parser provides document parsing adapters implementing
// ports.DocumentParser.
package parser

import (
	"context"
	"html"
	"regexp"
	"strings"
)

var (
	scriptRe = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
	spaceRe  = regexp.MustCompile(`[ \t]+`)
)

// HTMLParser implements ports.DocumentParser for HTML documents. It strips
// script and style blocks, removes tags, and unescapes entities, producing
// plain text suitable for chunking.
type HTMLParser struct{}

// NewHTMLParser creates a new HTML parser.
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

// Parse extracts plain text from HTML bytes.
func (p *HTMLParser) Parse(ctx context.Context, data []byte, filename string) (string, error) {
	text := string(data)
	text = scriptRe.ReplaceAllString(text, "")
	text = styleRe.ReplaceAllString(text, "")

	// Block-level closings become line breaks so paragraphs stay separated.
	for _, tag := range []string{"</p>", "</div>", "</li>", "</h1>", "</h2>", "</h3>", "</h4>", "</tr>", "<br>", "<br/>", "<br />"} {
		text = strings.ReplaceAll(text, tag, tag+"\n")
	}

	text = tagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}

// SupportedFormats returns formats this parser handles.
func (p *HTMLParser) SupportedFormats() []string {
	return []string{"html", "htm"}
}
