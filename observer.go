package chatwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// Default container discovery settings.
const (
	DefaultDiscoveryInterval = 500 * time.Millisecond
	DefaultDiscoveryAttempts = 20
)

// DefaultContainerSelectors locate the chat container on common layouts.
var DefaultContainerSelectors = []string{
	"#chat-messages",
	"#chat",
	".chat-log",
	"[data-role=chat]",
}

// Batch is the set of message elements inserted by one host mutation, in
// arrival order.
type Batch struct {
	Nodes []*html.Node

	// Removed is set when the same mutation also removed nodes, which is how
	// a purge-and-reinsert refresh of the host page shows up.
	Removed bool
}

// ObserverConfig controls container discovery.
type ObserverConfig struct {
	Selectors []string
	Interval  time.Duration
	Attempts  int
}

// Observer owns the single subscription to the host's chat container and
// turns mutations into batches of message elements.
type Observer struct {
	host    Host
	adapter Adapter
	cfg     ObserverConfig
	out     chan Batch

	lock      sync.Mutex
	running   bool
	container *html.Node
	cancel    func()
	stop      chan struct{}

	// abort is set while discovery is in progress.
	abort context.CancelFunc
}

// NewObserver returns a stopped observer. Zero config fields select the
// defaults.
func NewObserver(host Host, adapter Adapter, cfg ObserverConfig) *Observer {
	if len(cfg.Selectors) == 0 {
		cfg.Selectors = DefaultContainerSelectors
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultDiscoveryInterval
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultDiscoveryAttempts
	}
	return &Observer{
		host:    host,
		adapter: adapter,
		cfg:     cfg,
		out:     make(chan Batch, 16),
	}
}

// Batches returns the channel batches are delivered on. The same channel is
// used across restarts.
func (o *Observer) Batches() <-chan Batch {
	return o.out
}

// Running reports whether the subscription is attached.
func (o *Observer) Running() bool {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.running
}

// Container returns the attached container, or nil when stopped.
func (o *Observer) Container() *html.Node {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.container
}

// Start attaches to the container, waiting for it to appear. Calling Start on
// a running or starting observer does nothing. If the container does not show
// up within the configured attempts, Start returns ErrContainerNotFound.
//
// Discovery does not hold the observer lock, so Stop can abort it; Start then
// returns context.Canceled.
func (o *Observer) Start(ctx context.Context) error {
	o.lock.Lock()
	if o.running || o.abort != nil {
		o.lock.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.abort = cancel
	o.lock.Unlock()

	container, err := o.discover(ctx)

	o.lock.Lock()
	defer o.lock.Unlock()
	o.abort = nil
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return err
	}

	mutations, unsubscribe := o.host.Subscribe(container)
	stop := make(chan struct{})
	o.container = container
	o.cancel = unsubscribe
	o.stop = stop
	o.running = true
	go o.forward(container, mutations, stop)
	logger.Info("observer_started")
	return nil
}

func (o *Observer) discover(ctx context.Context) (*html.Node, error) {
	for attempt := 1; ; attempt++ {
		if container := o.host.Container(o.cfg.Selectors); container != nil {
			return container, nil
		}
		if attempt >= o.cfg.Attempts {
			return nil, fmt.Errorf("%w after %d attempts", ErrContainerNotFound, attempt)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.cfg.Interval):
		}
	}
}

// Stop detaches the subscription, or aborts a discovery in progress. It is
// safe to call on a stopped observer.
func (o *Observer) Stop() {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.abort != nil {
		o.abort()
		return
	}
	if !o.running {
		return
	}
	o.cancel()
	close(o.stop)
	o.running = false
	o.container = nil
	o.cancel = nil
	logger.Info("observer_stopped")
}

func (o *Observer) forward(container *html.Node, mutations <-chan Mutation, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case m, ok := <-mutations:
			if !ok {
				return
			}
			b := o.filter(container, m)
			if len(b.Nodes) == 0 {
				continue
			}
			select {
			case o.out <- b:
			case <-stop:
				return
			}
		}
	}
}

// filter keeps the inserted nodes that are direct children of container and
// look like messages.
func (o *Observer) filter(container *html.Node, m Mutation) Batch {
	o.host.Lock()
	defer o.host.Unlock()
	b := Batch{Removed: len(m.Removed) > 0}
	for _, n := range m.Added {
		if n.Parent == container && o.adapter.IsMessage(n) {
			b.Nodes = append(b.Nodes, n)
		}
	}
	return b
}
