package chatwatch

// SelfHighlighter marks the user's own messages with a left border.
type SelfHighlighter struct{}

func NewSelfHighlighter() *SelfHighlighter {
	return &SelfHighlighter{}
}

func (h *SelfHighlighter) Start(*Session) error { return nil }

// Rescan re-evaluates every message in the container against the current
// identity, marking new matches and unmarking stale ones.
func (h *SelfHighlighter) Rescan(s *Session) error {
	for _, msg := range s.Messages() {
		switch {
		case IsOwn(msg, s.Identity):
			applyOwnStyle(msg.Node)
		case isOwnMarked(msg.Node):
			clearOwnStyle(msg.Node)
		}
	}
	return nil
}

func (h *SelfHighlighter) Handle(s *Session, u Update) error {
	for _, msg := range u.Messages {
		if IsOwn(msg, s.Identity) {
			applyOwnStyle(msg.Node)
		}
	}
	return nil
}

// Stop removes every own-message marking. Pinned messages keep their pin
// styling.
func (h *SelfHighlighter) Stop(s *Session) error {
	if s.Container == nil {
		return nil
	}
	for n := range s.Container.ChildNodes() {
		if isOwnMarked(n) {
			clearOwnStyle(n)
		}
	}
	return nil
}
