package chatwatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestFingerprintIsDeterministic(t *testing.T) {
	a := Fingerprint("12:01", "hello there ")
	b := Fingerprint("12:01", "hello there ")
	assert.Equal(t, a, b)
	assert.Equal(t, "12:01|hello there", a)
	assert.Equal(t, "|", Fingerprint("", ""))
}

func TestHTMLAdapterExtract(t *testing.T) {
	line := chatLine{ts: "12:01", author: "Player One", id: "player+one", body: "selling", items: []string{"Dragon Egg", "Sword"}}
	nodes := messageNodes(t, line)
	require.Len(t, nodes, 1)

	a := testAdapter(t)
	require.True(t, a.IsMessage(nodes[0]))
	msg, err := a.Extract(nodes[0])
	require.NoError(t, err)

	assert.Equal(t, "12:01", msg.Timestamp)
	assert.Equal(t, "Player One", msg.Author)
	assert.Equal(t, "player one", msg.AuthorID)
	assert.Equal(t, []ItemRef{
		{Name: "Dragon Egg", Link: "/items/0"},
		{Name: "Sword", Link: "/items/1"},
	}, msg.Items)
	assert.Equal(t, line.fingerprint(), msg.Fingerprint)
	assert.Same(t, nodes[0], msg.Node)
}

func TestHTMLAdapterMalformed(t *testing.T) {
	nodes := parseNodes(t, `<div class="chat-message"><span>12:01</span><span></span></div>`)
	msg, err := testAdapter(t).Extract(nodes[0])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedMessage))
	assert.Contains(t, err.Error(), "author")
	assert.Equal(t, "12:01", msg.Timestamp)
}

func TestHTMLAdapterIgnoresAnnotations(t *testing.T) {
	line := chatLine{ts: "12:01", author: "a", body: "hi"}
	node := messageNodes(t, line)[0]
	// An annotation inserted before the cells must not shift positions.
	node.InsertBefore(newPinToggle("x"), node.FirstChild)
	applyKeywordStyle(node, "hi")

	msg, err := testAdapter(t).Extract(node)
	require.NoError(t, err)
	assert.Equal(t, "12:01", msg.Timestamp)
	assert.Equal(t, line.fingerprint(), msg.Fingerprint)
}

func TestHTMLAdapterIsMessage(t *testing.T) {
	a := testAdapter(t)
	nodes := parseNodes(t, `<div class="system">x</div>text`)
	assert.False(t, a.IsMessage(nodes[0]))
	assert.False(t, a.IsMessage(nodes[1]))
	assert.False(t, a.IsMessage(nil))
	assert.False(t, a.IsMessage(newDivider()))

	_, err := NewHTMLAdapter("div[", "")
	assert.Error(t, err)
}

func TestTextContentNormalizesQuotes(t *testing.T) {
	nodes := parseNodes(t, "<p>it’s <b>“fine”</b></p>")
	assert.Equal(t, `it's "fine"`, textContent(nodes[0]))
	assert.Equal(t, "", textContent((*html.Node)(nil)))
}
