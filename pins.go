package chatwatch

import (
	"slices"

	"golang.org/x/net/html"
)

// PinManager lets the user pin messages for attention. Every message gets a
// toggle; pinned fingerprints live only as long as the feature is on.
type PinManager struct {
	pinned map[string]struct{}
}

func NewPinManager() *PinManager {
	return &PinManager{pinned: make(map[string]struct{})}
}

func (p *PinManager) Start(*Session) error {
	clear(p.pinned)
	return nil
}

// Rescan attaches toggles to the messages already in the container.
func (p *PinManager) Rescan(s *Session) error {
	for _, msg := range s.Messages() {
		p.attach(msg)
	}
	return nil
}

func (p *PinManager) Handle(s *Session, u Update) error {
	for _, msg := range u.Messages {
		p.attach(msg)
	}
	return nil
}

// attach adds the toggle once and restores pin styling for a pinned
// fingerprint seen again, as after a history reload.
func (p *PinManager) attach(msg *Message) {
	if childWithClass(msg.Node, pinToggleClass) == nil {
		msg.Node.AppendChild(newPinToggle(msg.Fingerprint))
	}
	if p.Pinned(msg.Fingerprint) && !isPinned(msg.Node) {
		applyPinStyle(msg.Node)
	}
}

// Toggle flips the pin state of fp, restyles the matching messages, and
// reports whether fp is now pinned.
func (p *PinManager) Toggle(s *Session, fp string) bool {
	_, was := p.pinned[fp]
	if was {
		delete(p.pinned, fp)
	} else {
		p.pinned[fp] = struct{}{}
	}
	for _, msg := range s.Messages() {
		if msg.Fingerprint != fp {
			continue
		}
		if was {
			clearPinStyle(msg.Node, restoresOwn(s, msg))
		} else {
			applyPinStyle(msg.Node)
		}
	}
	logger.Info("pin_toggled", "fingerprint", fp, "pinned", !was)
	return !was
}

// Clear unpins everything in one pass.
func (p *PinManager) Clear(s *Session) {
	for _, msg := range s.Messages() {
		if isPinned(msg.Node) {
			clearPinStyle(msg.Node, restoresOwn(s, msg))
		}
	}
	if n := len(p.pinned); n > 0 {
		logger.Info("pins_cleared", "count", n)
	}
	clear(p.pinned)
}

// Stop unpins everything and removes the toggles.
func (p *PinManager) Stop(s *Session) error {
	p.Clear(s)
	if s.Container == nil {
		return nil
	}
	for n := range s.Container.ChildNodes() {
		if n.Type != html.ElementNode {
			continue
		}
		if toggle := childWithClass(n, pinToggleClass); toggle != nil {
			n.RemoveChild(toggle)
		}
	}
	return nil
}

func (p *PinManager) Pinned(fp string) bool {
	_, ok := p.pinned[fp]
	return ok
}

// Fingerprints returns the pinned fingerprints in sorted order.
func (p *PinManager) Fingerprints() []string {
	fps := make([]string, 0, len(p.pinned))
	for fp := range p.pinned {
		fps = append(fps, fp)
	}
	slices.Sort(fps)
	return fps
}

// restoresOwn reports whether unpinning msg should hand it back to the
// self-highlighter.
func restoresOwn(s *Session, msg *Message) bool {
	return s.Features.Has(FeatureHighlighting) && IsOwn(msg, s.Identity)
}
