package chatwatch

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const testMessageSelector = "div.chat-message"

// chatLine describes one message for the fixtures below.
type chatLine struct {
	ts     string
	author string
	id     string
	body   string
	items  []string
}

// markup renders a message element with the host layout: timestamp in cell
// 0, author link in cell 2, body in cell 5.
func (l chatLine) markup() string {
	id := l.id
	if id == "" {
		id = l.author
	}
	var body strings.Builder
	body.WriteString(l.body)
	for i, item := range l.items {
		fmt.Fprintf(&body, ` <a href="/items/%d"><img alt="%s" src="/i/%d.png"></a>`, i, item, i)
	}
	return fmt.Sprintf(`<div class="chat-message">`+
		`<span class="ts">%s</span>`+
		`<span class="icon"></span>`+
		`<span class="author"><a href="/profile?player=%s">%s:</a></span>`+
		`<span class="gap"></span>`+
		`<span class="gap"></span>`+
		`<span class="body">%s</span>`+
		`</div>`, l.ts, strings.ReplaceAll(id, " ", "+"), l.author, body.String())
}

func (l chatLine) fingerprint() string {
	var body strings.Builder
	body.WriteString(l.body)
	for range l.items {
		body.WriteString(" ")
	}
	return Fingerprint(l.ts, body.String())
}

func parseNodes(t *testing.T, markup string) []*html.Node {
	t.Helper()
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	require.NoError(t, err)
	return nodes
}

func messageNodes(t *testing.T, lines ...chatLine) []*html.Node {
	t.Helper()
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.markup())
	}
	return parseNodes(t, b.String())
}

func newContainer(nodes ...*html.Node) *html.Node {
	c := newElement(atom.Div, "", html.Attribute{Key: "id", Val: "chat-messages"})
	for _, n := range nodes {
		detach(n)
		c.AppendChild(n)
	}
	return c
}

func testAdapter(t *testing.T) *HTMLAdapter {
	t.Helper()
	a, err := NewHTMLAdapter(testMessageSelector, "player")
	require.NoError(t, err)
	return a
}

// recordingAlerter collects alerts.
type recordingAlerter struct {
	lock   sync.Mutex
	alerts []Alert
}

func (r *recordingAlerter) Alert(a Alert) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingAlerter) All() []Alert {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Alert(nil), r.alerts...)
}

// testSession returns a session over a container holding lines, with every
// feature enabled.
func testSession(t *testing.T, lines ...chatLine) (*Session, *recordingAlerter) {
	t.Helper()
	alerts := &recordingAlerter{}
	s := &Session{
		Container: newContainer(messageNodes(t, lines...)...),
		adapter:   testAdapter(t),
		alerter:   alerts,
	}
	for _, f := range Features {
		s.Features = s.Features.With(f)
	}
	return s, alerts
}

// appendLines adds lines to the session container and returns the update a
// dispatcher would hand to handlers.
func appendLines(t *testing.T, s *Session, lines ...chatLine) Update {
	t.Helper()
	nodes := messageNodes(t, lines...)
	for _, n := range nodes {
		s.Container.AppendChild(n)
	}
	return updateFor(t, s, false, nodes...)
}

func updateFor(t *testing.T, s *Session, removed bool, nodes ...*html.Node) Update {
	t.Helper()
	u := Update{Removed: removed}
	for _, n := range nodes {
		msg, err := s.adapter.Extract(n)
		require.NoError(t, err)
		u.Messages = append(u.Messages, msg)
	}
	return u
}

// messageByFingerprint finds the message node with fp in the container.
func messageByFingerprint(t *testing.T, s *Session, fp string) *Message {
	t.Helper()
	for _, m := range s.Messages() {
		if m.Fingerprint == fp {
			return m
		}
	}
	t.Fatalf("no message with fingerprint %q", fp)
	return nil
}
