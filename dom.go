package chatwatch

import (
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

var (
	quoteReplacer = strings.NewReplacer(
		"‘", "'",
		"’", "'",
		"“", "\"",
		"”", "\"",
	)
)

// textContent returns the concatenated text of every text node below node,
// the same way a browser's textContent does. Images contribute nothing.
func textContent(node *html.Node) string {
	if node == nil {
		return ""
	}
	var b strings.Builder
	for n := range node.Descendants() {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
	}
	return norm.NFC.String(quoteReplacer.Replace(b.String()))
}

// elementChildren returns the direct element children of node, skipping text
// and comment nodes as well as annotation nodes added by this package.
// Positional message fields are indexed into this slice.
func elementChildren(node *html.Node) []*html.Node {
	var children []*html.Node
	for n := range node.ChildNodes() {
		if n.Type == html.ElementNode && !hasAttr(n, annotationAttr) {
			children = append(children, n)
		}
	}
	return children
}

func getAttr(node *html.Node, key string) (string, bool) {
	for _, attr := range node.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

func setAttr(node *html.Node, key, val string) {
	for i, attr := range node.Attr {
		if attr.Key == key {
			node.Attr[i].Val = val
			return
		}
	}
	node.Attr = append(node.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(node *html.Node, key string) {
	node.Attr = slices.DeleteFunc(node.Attr, func(a html.Attribute) bool {
		return a.Key == key
	})
}

func hasAttr(node *html.Node, key string) bool {
	_, ok := getAttr(node, key)
	return ok
}

func hasClass(node *html.Node, class string) bool {
	v, _ := getAttr(node, "class")
	return slices.Contains(strings.Fields(v), class)
}

// getStyle and setStyle treat the style attribute as an ordered list of
// property declarations so that handlers touching different properties do
// not overwrite each other.
func getStyle(node *html.Node, prop string) string {
	v, _ := getAttr(node, "style")
	for decl := range strings.SplitSeq(v, ";") {
		name, val, ok := strings.Cut(decl, ":")
		if ok && strings.TrimSpace(name) == prop {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

func setStyle(node *html.Node, prop, val string) {
	v, _ := getAttr(node, "style")
	var decls []string
	replaced := false
	for decl := range strings.SplitSeq(v, ";") {
		name, _, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(name) == prop {
			if val != "" {
				decls = append(decls, prop+": "+val)
			}
			replaced = true
			continue
		}
		decls = append(decls, strings.TrimSpace(decl))
	}
	if !replaced && val != "" {
		decls = append(decls, prop+": "+val)
	}
	if len(decls) == 0 {
		removeAttr(node, "style")
		return
	}
	setAttr(node, "style", strings.Join(decls, "; "))
}

// newElement builds a detached element with the given attributes and optional
// text content.
func newElement(a atom.Atom, text string, attrs ...html.Attribute) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return n
}

// childWithClass returns the first direct element child of node carrying
// class, or nil.
func childWithClass(node *html.Node, class string) *html.Node {
	for n := range node.ChildNodes() {
		if n.Type == html.ElementNode && hasClass(n, class) {
			return n
		}
	}
	return nil
}

// previousElement returns the closest preceding element sibling, or nil.
func previousElement(node *html.Node) *html.Node {
	for n := node.PrevSibling; n != nil; n = n.PrevSibling {
		if n.Type == html.ElementNode {
			return n
		}
	}
	return nil
}

// detach removes node from its parent if it has one.
func detach(node *html.Node) {
	if node.Parent != nil {
		node.Parent.RemoveChild(node)
	}
}
