package chatwatch

import (
	"strings"

	"golang.org/x/text/cases"
)

// NormalizeIdentity converts a raw author identity, as typed by the user or
// encoded in an author link, to its comparable form. Case is folded, '+' is
// treated as a space, a leading '@' and trailing ':' are dropped, and all
// whitespace is removed so "Player One" and "PlayerOne" compare equal.
func NormalizeIdentity(raw string) string {
	s := cases.Fold().String(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "+", " ")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "@")
	s = strings.TrimSuffix(s, ":")
	return strings.Join(strings.Fields(s), "")
}

// SameIdentity reports whether two raw identities name the same author. Empty
// identities never match.
func SameIdentity(a, b string) bool {
	na, nb := NormalizeIdentity(a), NormalizeIdentity(b)
	return na != "" && na == nb
}

// IsOwn reports whether msg was written by identity.
func IsOwn(msg *Message, identity string) bool {
	if msg == nil {
		return false
	}
	author := msg.AuthorID
	if author == "" {
		author = msg.Author
	}
	return SameIdentity(author, identity)
}

// foldText case-folds free text for substring matching. A Caser carries
// state, so each call gets its own.
func foldText(s string) string {
	return cases.Fold().String(s)
}
