package source

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Tags whose content is never syllabus text.
var skipTags = map[string]bool{
	"script": true, "style": true, "nav": true,
	"header": true, "footer": true, "aside": true,
	"noscript": true, "iframe": true, "template": true, "head": true,
}

// Tags that end a text block. Table cells stay within their row so a
// "Quiz 3 | Feb 15" row reads as one line.
var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "dt": true, "dd": true, "tr": true, "table": true,
	"blockquote": true, "pre": true, "body": true,
}

// Blocks parses an HTML document and returns its readable text split into
// normalized blocks, one per block-level element, in document order. Empty
// blocks are dropped.
func Blocks(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var (
		blocks []string
		sb     strings.Builder
	)
	flush := func() {
		if b := Normalize(sb.String()); b != "" {
			blocks = append(blocks, b)
		}
		sb.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}

		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
		case n.Type == html.ElementNode && n.Data == "br":
			sb.WriteString("\n")
		case n.Type == html.ElementNode && (n.Data == "td" || n.Data == "th"):
			sb.WriteString(" ")
		case n.Type == html.ElementNode && blockTags[n.Data]:
			flush()
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && blockTags[n.Data] {
			flush()
		}
	}

	walk(doc)
	flush()

	if blocks == nil {
		blocks = []string{}
	}
	return blocks, nil
}

// Text joins Blocks with newlines, the form the extractor scans.
func Text(r io.Reader) (string, error) {
	blocks, err := Blocks(r)
	if err != nil {
		return "", err
	}
	return strings.Join(blocks, "\n"), nil
}
