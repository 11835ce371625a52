package chatwatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordMatcherDragonEgg(t *testing.T) {
	s, alerts := testSession(t)
	s.Keywords = NormalizeKeywords([]string{"dragon egg"})
	k := NewKeywordMatcher(0)

	line := chatLine{ts: "12:00", author: "bob", body: "selling", items: []string{"Dragon Egg"}}
	u := appendLines(t, s, line)
	require.NoError(t, k.Handle(s, u))

	require.Len(t, alerts.All(), 1)
	a := alerts.All()[0]
	assert.Equal(t, FeatureKeywords, a.Feature)
	assert.Contains(t, a.Title, "dragon egg")
	assert.Contains(t, a.Body, "bob")

	node := u.Messages[0].Node
	badge := childWithClass(node, badgeClass)
	require.NotNil(t, badge)
	assert.Equal(t, "dragon egg", textContent(badge))
	assert.Equal(t, keywordBackground, getStyle(node, "background-color"))

	// The same fingerprint later triggers nothing.
	u = appendLines(t, s, line)
	require.NoError(t, k.Handle(s, u))
	assert.Len(t, alerts.All(), 1)
	assert.Nil(t, childWithClass(u.Messages[0].Node, badgeClass))
}

func TestKeywordMatcherLeavesPinnedMessages(t *testing.T) {
	line := chatLine{ts: "12:00", author: "bob", body: "selling", items: []string{"Dragon Egg"}}
	s, alerts := testSession(t)
	s.Keywords = []string{"dragon egg"}

	nodes := messageNodes(t, line)
	s.Container.AppendChild(nodes[0])
	p := NewPinManager()
	p.Toggle(s, line.fingerprint())
	require.True(t, isPinned(nodes[0]))

	k := NewKeywordMatcher(0)
	require.NoError(t, k.Handle(s, updateFor(t, s, false, nodes...)))

	assert.True(t, isPinned(nodes[0]))
	assert.Equal(t, pinBackground, getStyle(nodes[0], "background-color"))
	assert.False(t, isKeywordMarked(nodes[0]))
	assert.Nil(t, childWithClass(nodes[0], badgeClass))
	assert.Len(t, alerts.All(), 1)
}

func TestKeywordMatcherScansOnlyItems(t *testing.T) {
	s, alerts := testSession(t)
	s.Keywords = []string{"dragon egg"}
	k := NewKeywordMatcher(0)
	u := appendLines(t, s, chatLine{ts: "12:00", author: "bob", body: "anyone got a dragon egg?"})
	require.NoError(t, k.Handle(s, u))
	assert.Empty(t, alerts.All())
}

func TestMatchKeywordTieBreak(t *testing.T) {
	kw, item, ok := matchKeyword(NormalizeKeywords([]string{"egg", "dragon"}), []ItemRef{{Name: "Dragon Egg"}})
	require.True(t, ok)
	assert.Equal(t, "dragon", kw)
	assert.Equal(t, "Dragon Egg", item.Name)

	kw, item, ok = matchKeyword([]string{"egg", "sword"}, []ItemRef{{Name: "Old Sword"}, {Name: "Egg"}})
	require.True(t, ok)
	assert.Equal(t, "sword", kw)
	assert.Equal(t, "Old Sword", item.Name)

	_, _, ok = matchKeyword([]string{"egg"}, nil)
	assert.False(t, ok)
}

func TestKeywordMatcherStop(t *testing.T) {
	s, _ := testSession(t)
	s.Keywords = []string{"egg"}
	k := NewKeywordMatcher(0)
	u := appendLines(t, s, chatLine{ts: "12:00", author: "bob", body: "x", items: []string{"Egg"}})
	require.NoError(t, k.Handle(s, u))
	node := u.Messages[0].Node
	require.True(t, isKeywordMarked(node))

	require.NoError(t, k.Stop(s))
	assert.False(t, isKeywordMarked(node))
	assert.Nil(t, childWithClass(node, badgeClass))
	assert.False(t, hasAttr(node, "style"))
}

func TestNormalizeKeywords(t *testing.T) {
	assert.Equal(t, []string{"dragon", "egg"}, NormalizeKeywords([]string{" Egg", "egg", "", "DRAGON"}))
	assert.Equal(t, []string{}, NormalizeKeywords(nil))
}
