package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"lodestar/internal/core"
)

var nonContentSelectors = "script, style, nav, footer, header, aside, form, iframe, noscript, " +
".sidebar, #sidebar,.ad,.advertisement,.popup,.modal,.cookie-banner"

// FetchWeb retrieves a web article and parses it into a structured
// document plus its linearized flat text.
func (c *Client) FetchWeb(ctx context.Context, pageURL string) (core.StructuredDocument, error) {
	req, err := http.NewRequest(http.MethodGet, pageURL, nil)
	if err != nil {
		return core.StructuredDocument{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return core.StructuredDocument{}, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return core.StructuredDocument{}, fmt.Errorf("parse html: %w", err)
	}

	doc.Find(nonContentSelectors).Remove()

	root := findMainContentRoot(doc)
	sections := walkSections(root)

	var linear strings.Builder
	for _, s := range sections {
		linear.WriteString(s.Text)
		linear.WriteString("\n\n")
	}

	return core.StructuredDocument{
		Sections: sections,
		LinearizedText: strings.TrimSpace(linear.String()),
	}, nil
}

var mainContentSelectors = []string{
	"article", "main", ".main-content", ".entry-content", ".post-content",
	".post-body", ".article-body", "[role='main']", ".content", "#content",
}

// findMainContentRoot returns the first selection matching a known
// main-content container, or the document body if none match.
func findMainContentRoot(doc *goquery.Document) *goquery.Selection {
	for _, selector := range mainContentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() > 0 {
			return sel
		}
	}
	return doc.Find("body")
}

// walkSections linearizes headings, paragraphs, code blocks, and list
// items into an ordered slice of DocSections, preserving document
// order and heading level.
func walkSections(root *goquery.Selection) []core.DocSection {
	var sections []core.DocSection

	root.Find("h1, h2, h3, h4, h5, h6, p, pre, code, li").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}

		tag := goquery.NodeName(s)
		switch tag {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			level := int(tag[1] - '0')
			sections = append(sections, core.DocSection{Kind: core.SectionHeading, Level: level, Text: text})
		case "pre", "code":
			sections = append(sections, core.DocSection{Kind: core.SectionCode, Text: text})
		case "li":
			sections = append(sections, core.DocSection{Kind: core.SectionListItem, Text: text})
		default:
			sections = append(sections, core.DocSection{Kind: core.SectionParagraph, Text: text})
		}
	})

	return sections
}

// ExtractTitle finds a page's title via the <title> tag, Open Graph
// metadata, or the first heading, in that order.
func ExtractTitle(htmlBody string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return ""
	}

	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		return title
	}
	if ogTitle, ok := doc.Find("meta[property='og:title']").Attr("content"); ok && strings.TrimSpace(ogTitle) != "" {
		return strings.TrimSpace(ogTitle)
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return ""
}
