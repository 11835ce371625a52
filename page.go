package chatwatch

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Mutation is a child-list change on a container: nodes inserted and nodes
// removed by one host operation.
type Mutation struct {
	Added   []*html.Node
	Removed []*html.Node
}

// Host is the page that holds the chat. The embedded Locker guards the
// document tree; anything that reads or writes nodes must hold it.
type Host interface {
	sync.Locker

	// Container returns the first node matching any of selectors, or nil.
	// It takes the lock itself.
	Container(selectors []string) *html.Node

	// Subscribe delivers child-list mutations of container until the
	// returned cancel function is called.
	Subscribe(container *html.Node) (<-chan Mutation, func())
}

// Page is an in-memory live document. A feeder mounts a chat container and
// appends or refreshes its messages; subscribers are told about each change
// in order.
type Page struct {
	lock sync.Mutex
	doc  *html.Node
	body *html.Node

	mounted *html.Node

	subsLock sync.Mutex
	subs     map[*pageSubscription]struct{}
}

type pageSubscription struct {
	container *html.Node
	ch        chan Mutation
	done      chan struct{}
	once      sync.Once
}

// NewPage returns an empty document with no container mounted.
func NewPage() *Page {
	doc, err := html.Parse(strings.NewReader("<html><head></head><body></body></html>"))
	if err != nil {
		panic(fmt.Sprintf("chatwatch: parsing empty document: %v", err))
	}
	return &Page{
		doc:  doc,
		body: cascadia.Query(doc, cascadia.MustCompile("body")),
		subs: make(map[*pageSubscription]struct{}),
	}
}

func (p *Page) Lock()   { p.lock.Lock() }
func (p *Page) Unlock() { p.lock.Unlock() }

// Mount places container into the document body, replacing any container
// mounted earlier. Mounting emits no mutation.
func (p *Page) Mount(container *html.Node) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.mounted != nil {
		detach(p.mounted)
	}
	detach(container)
	p.body.AppendChild(container)
	p.mounted = container
}

// Mounted returns the mounted container, or nil.
func (p *Page) Mounted() *html.Node {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.mounted
}

// Container implements Host.
func (p *Page) Container(selectors []string) *html.Node {
	p.lock.Lock()
	defer p.lock.Unlock()
	for _, s := range selectors {
		sel, err := cascadia.Parse(s)
		if err != nil {
			logger.Warn("bad_container_selector", "selector", s, "error", err)
			continue
		}
		if n := cascadia.Query(p.doc, sel); n != nil {
			return n
		}
	}
	return nil
}

// Append inserts nodes at the end of the mounted container.
func (p *Page) Append(nodes ...*html.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	p.lock.Lock()
	c := p.mounted
	if c == nil {
		p.lock.Unlock()
		return ErrContainerNotFound
	}
	for _, n := range nodes {
		detach(n)
		c.AppendChild(n)
	}
	p.lock.Unlock()

	p.publish(c, Mutation{Added: nodes})
	return nil
}

// Refresh purges every child of the mounted container and inserts nodes in
// their place, the way a host page reloads its chat history.
func (p *Page) Refresh(nodes ...*html.Node) error {
	p.lock.Lock()
	c := p.mounted
	if c == nil {
		p.lock.Unlock()
		return ErrContainerNotFound
	}
	var removed []*html.Node
	for c.FirstChild != nil {
		n := c.FirstChild
		c.RemoveChild(n)
		removed = append(removed, n)
	}
	for _, n := range nodes {
		detach(n)
		c.AppendChild(n)
	}
	p.lock.Unlock()

	p.publish(c, Mutation{Added: nodes, Removed: removed})
	return nil
}

// Render writes the mounted container, annotations included.
func (p *Page) Render(w io.Writer) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.mounted == nil {
		return ErrContainerNotFound
	}
	return html.Render(w, p.mounted)
}

// Subscribe implements Host.
func (p *Page) Subscribe(container *html.Node) (<-chan Mutation, func()) {
	sub := &pageSubscription{
		container: container,
		ch:        make(chan Mutation, 16),
		done:      make(chan struct{}),
	}
	p.subsLock.Lock()
	p.subs[sub] = struct{}{}
	p.subsLock.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			p.subsLock.Lock()
			delete(p.subs, sub)
			p.subsLock.Unlock()
			close(sub.done)
		})
	}
	return sub.ch, cancel
}

// publish hands m to every subscriber of container. It blocks while a
// subscriber's buffer is full so that no mutation is lost, and gives up on
// subscriptions that are cancelled meanwhile.
func (p *Page) publish(container *html.Node, m Mutation) {
	p.subsLock.Lock()
	var targets []*pageSubscription
	for sub := range p.subs {
		if sub.container == container {
			targets = append(targets, sub)
		}
	}
	p.subsLock.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- m:
		case <-sub.done:
		}
	}
}
