package chatwatch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Positions of the message fields among a message element's element
// children.
const (
	timestampField = 0
	authorField    = 2
	bodyField      = 5
)

// FingerprintSeparator joins timestamp and body text in a fingerprint.
const FingerprintSeparator = "|"

// Message is a chat message as seen through an Adapter.
type Message struct {
	// Node is the message element in the live page. Annotations are applied
	// to it.
	Node *html.Node

	// Timestamp is the raw timestamp text.
	Timestamp string

	// Author is the rendered author text.
	Author string

	// AuthorID is the raw identity encoded in the author link, or empty.
	AuthorID string

	// Body is the body text.
	Body string

	// Items contains the item references found in the body.
	Items []ItemRef

	// Fingerprint is the composite identity of the message.
	Fingerprint string
}

// ItemRef is a named object referenced from a message body.
type ItemRef struct {
	Name string
	Link string
}

// Fingerprint derives the identity string of a message from its timestamp
// and body text. It is deterministic and not collision free.
func Fingerprint(timestamp, body string) string {
	return strings.TrimSpace(timestamp + FingerprintSeparator + body)
}

// Adapter isolates knowledge of the host page's message markup. Handlers only
// ever see Adapter output.
type Adapter interface {
	// IsMessage reports whether node has the shape of a message element.
	IsMessage(node *html.Node) bool

	// Extract reads the fields of a message element. If a positional field
	// is missing, Extract returns the fields it could read together with an
	// error wrapping ErrMalformedMessage.
	Extract(node *html.Node) (*Message, error)
}

// HTMLAdapter reads messages laid out as a row of positional cells:
// timestamp first, author third, body sixth. The author cell holds a link
// whose query parameter carries the raw author identity, and item references
// are links wrapping an image whose alt text names the item.
type HTMLAdapter struct {
	message    cascadia.Matcher
	authorLink cascadia.Matcher
	itemImage  cascadia.Matcher
	param      string
}

// NewHTMLAdapter compiles the message selector. authorParam names the query
// parameter of the author link.
func NewHTMLAdapter(messageSelector, authorParam string) (*HTMLAdapter, error) {
	m, err := cascadia.Parse(messageSelector)
	if err != nil {
		return nil, fmt.Errorf("bad message selector %q: %w", messageSelector, err)
	}
	if authorParam == "" {
		authorParam = "player"
	}
	return &HTMLAdapter{
		message:    m,
		authorLink: cascadia.MustCompile("a[href]"),
		itemImage:  cascadia.MustCompile("a > img[alt]"),
		param:      authorParam,
	}, nil
}

func (a *HTMLAdapter) IsMessage(node *html.Node) bool {
	return node != nil && node.Type == html.ElementNode && a.message.Match(node)
}

func (a *HTMLAdapter) Extract(node *html.Node) (*Message, error) {
	msg := &Message{Node: node}
	cells := elementChildren(node)

	var missing []string
	if len(cells) > timestampField {
		msg.Timestamp = strings.TrimSpace(textContent(cells[timestampField]))
	} else {
		missing = append(missing, "timestamp")
	}
	if len(cells) > authorField {
		a.readAuthor(cells[authorField], msg)
	} else {
		missing = append(missing, "author")
	}
	if len(cells) > bodyField {
		body := cells[bodyField]
		msg.Body = textContent(body)
		msg.Items = a.readItems(body)
	} else {
		missing = append(missing, "body")
	}
	msg.Fingerprint = Fingerprint(msg.Timestamp, msg.Body)

	if len(missing) > 0 {
		return msg, fmt.Errorf("%w: missing %s", ErrMalformedMessage, strings.Join(missing, ", "))
	}
	return msg, nil
}

func (a *HTMLAdapter) readAuthor(cell *html.Node, msg *Message) {
	msg.Author = strings.TrimSuffix(strings.TrimSpace(textContent(cell)), ":")
	for _, link := range cascadia.QueryAll(cell, a.authorLink) {
		href, _ := getAttr(link, "href")
		u, err := url.Parse(href)
		if err != nil {
			continue
		}
		// Query decoding turns '+' into a space already.
		if id := u.Query().Get(a.param); id != "" {
			msg.AuthorID = id
			return
		}
	}
}

func (a *HTMLAdapter) readItems(body *html.Node) []ItemRef {
	var items []ItemRef
	for _, img := range cascadia.QueryAll(body, a.itemImage) {
		name, _ := getAttr(img, "alt")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		link, _ := getAttr(img.Parent, "href")
		items = append(items, ItemRef{Name: name, Link: link})
	}
	return items
}
