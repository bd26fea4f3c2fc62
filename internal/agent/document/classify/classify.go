// Package classify flattens a decoded HTML block tree into an ordered list of
// paragraph and image elements.
package classify

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/feichai0017/docformat/internal/models"
)

// Classify walks the direct children of root in document order.
//
// Each paragraph-like block (p, h1..h6) yields its trimmed text as a paragraph
// element when non-empty, followed by one image element per img descendant.
// The element position is the block's index among root's children. Tables and
// any other block are dropped without inspecting their content.
func Classify(root *html.Node) []models.ContentElement {
	if root == nil {
		return nil
	}
	var out []models.ContentElement
	position := 0
	for block := root.FirstChild; block != nil; block = block.NextSibling {
		if block.Type != html.ElementNode {
			continue
		}
		pos := position
		position++
		if !paragraphLike(block) {
			continue
		}

		if text := strings.TrimSpace(textContent(block)); text != "" {
			out = append(out, models.NewParagraph(text, pos))
		}
		for _, src := range imageSources(block) {
			out = append(out, models.NewImage(src, pos))
		}
	}
	return out
}

// ClassifyHTML parses an HTML fragment as body content and classifies it.
func ClassifyHTML(fragment string) ([]models.ContentElement, error) {
	body := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html fragment: %w", err)
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	return Classify(body), nil
}

func paragraphLike(n *html.Node) bool {
	switch n.DataAtom {
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.TextNode:
				b.WriteString(c.Data)
			case c.Type == html.ElementNode && c.DataAtom == atom.Br:
				b.WriteByte('\n')
			case c.Type == html.ElementNode:
				walk(c)
			}
		}
	}
	walk(n)
	return b.String()
}

func imageSources(n *html.Node) []string {
	var srcs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.DataAtom == atom.Img {
				for _, a := range c.Attr {
					if a.Key == "src" && a.Val != "" {
						srcs = append(srcs, a.Val)
						break
					}
				}
				continue
			}
			walk(c)
		}
	}
	walk(n)
	return srcs
}
