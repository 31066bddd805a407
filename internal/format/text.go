// Package format converts email HTML into readable plain text suitable for
// model prompts and chat display.
package format

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// Converter turns email HTML bodies into markdown-flavoured plain text.
type Converter struct{}

// HTMLToText simplifies marketing-style layout markup and converts the
// result to markdown. Conversion is best effort: on parse failure the raw
// input is converted as-is.
func (c Converter) HTMLToText(raw []byte) (string, error) {
	simplified := unwrapLayoutTables(raw)

	text, err := htmltomarkdown.ConvertString(string(simplified))
	if err != nil {
		return "", fmt.Errorf("htmltomarkdown.ConvertString failed: %w", err)
	}

	text = blankLines.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text), nil
}

// unwrapLayoutTables strips single-column tables used purely for layout.
// Tables with headers or multiple columns are semantic and kept.
func unwrapLayoutTables(raw []byte) []byte {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return raw
	}

	// Unwrapping can expose nested layout tables, so run to a fixed point
	// with a small iteration cap.
	for range 10 {
		if !unwrapPass(doc) {
			break
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return raw
	}

	return buf.Bytes()
}

func unwrapPass(n *html.Node) bool {
	changed := false

	child := n.FirstChild
	for child != nil {
		next := child.NextSibling
		if unwrapPass(child) {
			changed = true
		}
		child = next
	}

	if n.Type == html.ElementNode && n.Data == "table" && isLayoutTable(n) {
		unwrapTable(n)
		changed = true
	}

	return changed
}

func isLayoutTable(table *html.Node) bool {
	if containsElement(table, "th") || containsElement(table, "thead") {
		return false
	}
	return maxRowCells(table) <= 1
}

func containsElement(n *html.Node, tag string) bool {
	if n.Type == html.ElementNode && n.Data == tag {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if containsElement(c, tag) {
			return true
		}
	}
	return false
}

func maxRowCells(table *html.Node) int {
	maxCells := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			cells := 0
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells++
				}
			}
			if cells > maxCells {
				maxCells = cells
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(table)
	return maxCells
}

// unwrapTable replaces the table with its non-structural content, inserting
// a line break between rows so text does not run together.
func unwrapTable(table *html.Node) {
	var content []*html.Node
	liftTableContent(table, &content)

	parent := table.Parent
	if parent == nil {
		return
	}
	for _, node := range content {
		parent.InsertBefore(node, table)
	}
	parent.RemoveChild(table)
}

func liftTableContent(n *html.Node, content *[]*html.Node) {
	switch {
	case n.Type == html.ElementNode && n.Data == "tr":
		before := len(*content)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			liftTableContent(c, content)
		}
		if len(*content) > before {
			*content = append(*content, &html.Node{Type: html.TextNode, Data: "\n"})
		}
	case n.Type == html.ElementNode && isTableTag(n.Data):
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			liftTableContent(c, content)
		}
	case n.Type == html.ElementNode:
		*content = append(*content, detachClone(n))
	case n.Type == html.TextNode && strings.TrimSpace(n.Data) != "":
		*content = append(*content, &html.Node{Type: html.TextNode, Data: n.Data})
	}
}

func isTableTag(tag string) bool {
	switch tag {
	case "table", "tbody", "thead", "tfoot", "tr", "td", "th":
		return true
	}
	return false
}

func detachClone(n *html.Node) *html.Node {
	clone := &html.Node{
		Type: n.Type,
		Data: n.Data,
		Attr: append([]html.Attribute{}, n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		clone.AppendChild(detachClone(c))
	}
	return clone
}
