package chatwatch

import (
	"fmt"
	"strings"
)

// mentionPreviewRunes bounds the message body carried by a mention alert.
const mentionPreviewRunes = 100

// MentionMatcher alerts when a message body contains the user's identity.
// Each fingerprint alerts at most once while it is retained in the history.
type MentionMatcher struct {
	history *History
}

func NewMentionMatcher(capacity int) *MentionMatcher {
	return &MentionMatcher{history: NewHistory("mentions", capacity)}
}

func (m *MentionMatcher) Start(*Session) error { return nil }

func (m *MentionMatcher) Stop(*Session) error { return nil }

func (m *MentionMatcher) Handle(s *Session, u Update) error {
	needle := mentionNeedle(s.Identity)
	if needle == "" {
		return nil
	}
	for _, msg := range u.Messages {
		if !strings.Contains(foldText(msg.Body), needle) {
			continue
		}
		if !m.history.Add(msg.Fingerprint) {
			continue
		}
		logger.Debug("mention_matched", "author", msg.Author, "fingerprint", msg.Fingerprint)
		s.Alert(Alert{
			Feature: FeatureMentions,
			Title:   fmt.Sprintf("%s mentioned you", msg.Author),
			Body:    truncateRunes(strings.TrimSpace(msg.Body), mentionPreviewRunes),
		})
	}
	return nil
}

// mentionNeedle is the identity as it would be typed in a message: case
// folded, with '+' read as a space and the '@' and ':' decorations removed.
func mentionNeedle(identity string) string {
	s := foldText(strings.TrimSpace(identity))
	s = strings.TrimSpace(strings.ReplaceAll(s, "+", " "))
	s = strings.TrimPrefix(s, "@")
	s = strings.TrimSuffix(s, ":")
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
