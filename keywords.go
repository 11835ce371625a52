package chatwatch

import (
	"fmt"
	"strings"
)

// KeywordMatcher alerts when an item referenced in a message matches one of
// the user's keywords. Only item names are scanned, never the free text.
type KeywordMatcher struct {
	history *History
}

func NewKeywordMatcher(capacity int) *KeywordMatcher {
	return &KeywordMatcher{history: NewHistory("keywords", capacity)}
}

func (k *KeywordMatcher) Start(*Session) error { return nil }

func (k *KeywordMatcher) Handle(s *Session, u Update) error {
	if len(s.Keywords) == 0 {
		return nil
	}
	for _, msg := range u.Messages {
		keyword, item, ok := matchKeyword(s.Keywords, msg.Items)
		if !ok {
			continue
		}
		if !k.history.Add(msg.Fingerprint) {
			continue
		}
		// A pinned message keeps its pin styling; the alert still goes out.
		if !isPinned(msg.Node) {
			applyKeywordStyle(msg.Node, keyword)
		}
		logger.Debug("keyword_matched", "keyword", keyword, "item", item.Name, "author", msg.Author)
		s.Alert(Alert{
			Feature: FeatureKeywords,
			Title:   fmt.Sprintf("Keyword %q", keyword),
			Body:    fmt.Sprintf("%s posted %s", msg.Author, item.Name),
		})
	}
	return nil
}

// Stop removes keyword styling and badges.
func (k *KeywordMatcher) Stop(s *Session) error {
	if s.Container == nil {
		return nil
	}
	for n := range s.Container.ChildNodes() {
		if isKeywordMarked(n) {
			clearKeywordStyle(n)
		}
	}
	return nil
}

// matchKeyword returns the first item, in message order, whose folded name
// contains a keyword. keywords must be normalized; when several match one
// item the smallest wins.
func matchKeyword(keywords []string, items []ItemRef) (string, ItemRef, bool) {
	for _, item := range items {
		name := foldText(item.Name)
		for _, kw := range keywords {
			if strings.Contains(name, kw) {
				return kw, item, true
			}
		}
	}
	return "", ItemRef{}, false
}
