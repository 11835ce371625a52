package chatwatch

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// annotationAttr tags every node inserted by this package. Its value names
// the kind of annotation.
const annotationAttr = "data-chatwatch"

// Marker attributes record which handler styled a message element.
const (
	ownAttr     = "data-cw-own"
	pinnedAttr  = "data-cw-pinned"
	keywordAttr = "data-cw-keyword"
)

const (
	dividerClass   = "cw-session-divider"
	pinToggleClass = "cw-pin-toggle"
	badgeClass     = "cw-keyword-badge"
)

// Style values. Self-highlighting and pins share the left border, pins and
// keywords share the background.
const (
	ownBorder         = "3px solid #4a90d9"
	pinBorder         = "3px solid #f5a623"
	pinBackground     = "#fff8e1"
	keywordBackground = "#e8f5e9"
	keywordOutline    = "1px solid #43a047"
)

func isPinned(n *html.Node) bool { return hasAttr(n, pinnedAttr) }

func isOwnMarked(n *html.Node) bool { return hasAttr(n, ownAttr) }

func isKeywordMarked(n *html.Node) bool { return hasAttr(n, keywordAttr) }

// applyOwnStyle marks n as an own message. Pin styling keeps the border while
// the element is pinned.
func applyOwnStyle(n *html.Node) {
	setAttr(n, ownAttr, "true")
	if !isPinned(n) {
		setStyle(n, "border-left", ownBorder)
	}
}

// clearOwnStyle removes the self-highlight marking. A pinned element keeps
// its pin border.
func clearOwnStyle(n *html.Node) {
	removeAttr(n, ownAttr)
	if isPinned(n) {
		applyPinStyle(n)
		return
	}
	setStyle(n, "border-left", "")
}

func applyPinStyle(n *html.Node) {
	setAttr(n, pinnedAttr, "true")
	setStyle(n, "border-left", pinBorder)
	setStyle(n, "background-color", pinBackground)
}

// clearPinStyle removes pin styling and hands the shared properties back to
// whichever other marking still applies. restoreOwn is set for own messages
// while self-highlighting is on.
func clearPinStyle(n *html.Node, restoreOwn bool) {
	removeAttr(n, pinnedAttr)
	if restoreOwn {
		applyOwnStyle(n)
	} else {
		removeAttr(n, ownAttr)
		setStyle(n, "border-left", "")
	}
	if isKeywordMarked(n) {
		setStyle(n, "background-color", keywordBackground)
	} else {
		setStyle(n, "background-color", "")
	}
}

// applyKeywordStyle highlights n and appends a badge naming keyword. It does
// nothing if n already carries a badge.
func applyKeywordStyle(n *html.Node, keyword string) {
	setAttr(n, keywordAttr, keyword)
	setStyle(n, "background-color", keywordBackground)
	setStyle(n, "outline", keywordOutline)
	if childWithClass(n, badgeClass) != nil {
		return
	}
	n.AppendChild(newElement(atom.Span, keyword,
		html.Attribute{Key: annotationAttr, Val: "badge"},
		html.Attribute{Key: "class", Val: badgeClass},
	))
}

func clearKeywordStyle(n *html.Node) {
	removeAttr(n, keywordAttr)
	setStyle(n, "outline", "")
	if !isPinned(n) {
		setStyle(n, "background-color", "")
	}
	if badge := childWithClass(n, badgeClass); badge != nil {
		n.RemoveChild(badge)
	}
}

func newDivider() *html.Node {
	return newElement(atom.Div, "new session",
		html.Attribute{Key: annotationAttr, Val: "divider"},
		html.Attribute{Key: "class", Val: dividerClass},
	)
}

func isDivider(n *html.Node) bool {
	return n != nil && hasClass(n, dividerClass)
}

func newPinToggle(fp string) *html.Node {
	return newElement(atom.Button, "pin",
		html.Attribute{Key: annotationAttr, Val: "pin-toggle"},
		html.Attribute{Key: "class", Val: pinToggleClass},
		html.Attribute{Key: "data-cw-fingerprint", Val: fp},
		html.Attribute{Key: "type", Val: "button"},
	)
}
