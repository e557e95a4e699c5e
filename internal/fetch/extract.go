package fetch

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// page is what survives of an HTML document: its title, icon href and
// readable text.
type page struct {
	title string
	icon  string
	text  string
}

// chrome never carries article text.
var chrome = map[atom.Atom]bool{
	atom.Head: true, atom.Script: true, atom.Style: true, atom.Noscript: true,
	atom.Template: true, atom.Iframe: true, atom.Svg: true, atom.Form: true,
	atom.Nav: true, atom.Header: true, atom.Footer: true, atom.Aside: true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Main: true, atom.Blockquote: true, atom.Pre: true, atom.Ul: true,
	atom.Ol: true, atom.Dl: true, atom.Table: true, atom.Tr: true,
	atom.Figure: true, atom.Details: true, atom.Hr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

var headingMarks = map[atom.Atom]string{
	atom.H1: "# ", atom.H2: "## ", atom.H3: "### ",
	atom.H4: "#### ", atom.H5: "#### ", atom.H6: "#### ",
}

// extractHTML reduces raw HTML to a page. Text comes from the first
// <article> or <main> when the document has one, else from <body>.
// Headings keep '#' marks and list items a "- " prefix.
func extractHTML(raw string) page {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return page{text: cleanWhitespace(raw)}
	}

	var p page
	var ogTitle, touchIcon string
	var article, main *html.Node
	visit(doc, func(n *html.Node) bool {
		switch n.DataAtom {
		case atom.Title:
			if p.title == "" {
				p.title = strings.TrimSpace(innerText(n))
			}
		case atom.Meta:
			if getAttr(n, "property") == "og:title" && ogTitle == "" {
				ogTitle = strings.TrimSpace(getAttr(n, "content"))
			}
		case atom.Link:
			rel := " " + strings.ToLower(getAttr(n, "rel")) + " "
			switch {
			case strings.Contains(rel, " apple-touch-icon "):
				if touchIcon == "" {
					touchIcon = getAttr(n, "href")
				}
			case strings.Contains(rel, " icon "):
				if p.icon == "" {
					p.icon = getAttr(n, "href")
				}
			}
		case atom.Article:
			if article == nil {
				article = n
			}
		case atom.Main:
			if main == nil {
				main = n
			}
		}
		return true
	})
	if p.title == "" {
		p.title = ogTitle
	}
	if p.icon == "" {
		p.icon = touchIcon
	}

	root := doc
	switch {
	case article != nil:
		root = article
	case main != nil:
		root = main
	}

	var b strings.Builder
	render(&b, root)
	p.text = cleanWhitespace(b.String())
	return p
}

// visit calls fn on every element in document order. Returning false
// skips the element's children.
func visit(n *html.Node, fn func(*html.Node) bool) {
	if n.Type == html.ElementNode && !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visit(c, fn)
	}
}

func render(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			b.WriteString(t)
			b.WriteByte(' ')
		}
		return
	case html.ElementNode:
		if chrome[n.DataAtom] {
			return
		}
		if blocks[n.DataAtom] && b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(headingMarks[n.DataAtom])
		if n.DataAtom == atom.Li {
			b.WriteString("\n- ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		render(b, c)
	}
	if n.DataAtom == atom.Br {
		b.WriteByte('\n')
	}
}

func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// cleanWhitespace squeezes each line's spaces and keeps at most one
// blank line in a row.
func cleanWhitespace(s string) string {
	var out []string
	blank := false
	for line := range strings.SplitSeq(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" && blank {
			continue
		}
		blank = line == ""
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
