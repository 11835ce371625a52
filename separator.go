package chatwatch

import (
	"golang.org/x/net/html"
)

// SessionMarker draws a divider where a previous session's messages end
// when the host page reloads its chat history.
//
// It remembers the fingerprint of the first message of the latest ordinary
// batch. When a batch arrives together with a removal, that fingerprint is
// looked up among the reinserted messages and a divider is placed right
// before it.
type SessionMarker struct {
	tracking bool
	leading  string
}

func NewSessionMarker() *SessionMarker {
	return &SessionMarker{}
}

func (m *SessionMarker) Start(*Session) error {
	m.tracking = false
	m.leading = ""
	return nil
}

func (m *SessionMarker) Handle(s *Session, u Update) error {
	if len(u.Messages) == 0 {
		return nil
	}
	first := u.Messages[0].Fingerprint
	if !u.Removed || !m.tracking {
		m.leading = first
		m.tracking = true
		return nil
	}
	for _, msg := range u.Messages {
		if msg.Fingerprint != m.leading {
			continue
		}
		if msg.Node.Parent != nil && !isDivider(previousElement(msg.Node)) {
			msg.Node.Parent.InsertBefore(newDivider(), msg.Node)
			logger.Debug("session_divider_inserted", "fingerprint", m.leading)
		}
		return nil
	}
	m.leading = first
	return nil
}

// Stop removes every divider and forgets the leading fingerprint.
func (m *SessionMarker) Stop(s *Session) error {
	m.tracking = false
	m.leading = ""
	if s.Container == nil {
		return nil
	}
	var dividers []*html.Node
	for n := range s.Container.ChildNodes() {
		if isDivider(n) {
			dividers = append(dividers, n)
		}
	}
	for _, n := range dividers {
		s.Container.RemoveChild(n)
	}
	return nil
}
