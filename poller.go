package chatwatch

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/net/html"
)

// Default poll timing.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultPollRetry    = time.Minute
)

// Poller mirrors a remote chat page into the live page. New messages at the
// end of the remote chat are appended; if the remote history no longer lines
// up with what the live page shows, the live container is purged and
// refilled, the way a host page reloads its history.
type Poller struct {
	client   *PageClient
	page     *Page
	adapter  Adapter
	interval time.Duration
	retry    time.Duration
}

func NewPoller(client *PageClient, page *Page, adapter Adapter, interval, retry time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if retry <= 0 {
		retry = DefaultPollRetry
	}
	return &Poller{
		client:   client,
		page:     page,
		adapter:  adapter,
		interval: interval,
		retry:    retry,
	}
}

// Run polls until ctx is done. Fetch failures are logged and retried after a
// longer delay.
func (p *Poller) Run(ctx context.Context) error {
	for {
		container, size, err := p.client.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			pageFetches.WithLabelValues("error").Inc()
			logger.Warn("page_fetch_failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retry):
				// Connection was interrupted; try again later.
				continue
			}
		}
		pageFetches.WithLabelValues("ok").Inc()
		logger.Debug("page_fetched", "size", humanize.Bytes(uint64(size)))
		if err := p.Sync(container); err != nil {
			logger.Warn("page_sync_failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.interval):
		}
	}
}

// Sync brings the live page up to date with a freshly fetched container. The
// first call mounts it as is.
func (p *Poller) Sync(fetched *html.Node) error {
	if p.page.Mounted() == nil {
		p.page.Mount(fetched)
		logger.Info("page_mounted")
		return nil
	}

	var nodes []*html.Node
	var fps []string
	for n := range fetched.ChildNodes() {
		if !p.adapter.IsMessage(n) {
			continue
		}
		msg, _ := p.adapter.Extract(n)
		nodes = append(nodes, n)
		fps = append(fps, msg.Fingerprint)
	}

	last, ok := p.lastFingerprint()
	if !ok {
		return p.page.Append(nodes...)
	}
	for i := len(fps) - 1; i >= 0; i-- {
		if fps[i] != last {
			continue
		}
		if added := nodes[i+1:]; len(added) > 0 {
			logger.Info("messages_appended", "count", len(added))
			return p.page.Append(added...)
		}
		return nil
	}
	logger.Info("page_refreshed", "messages", humanize.Comma(int64(len(nodes))))
	return p.page.Refresh(nodes...)
}

// lastFingerprint returns the fingerprint of the last message on the live
// page.
func (p *Poller) lastFingerprint() (string, bool) {
	p.page.Lock()
	defer p.page.Unlock()
	c := p.page.mounted
	if c == nil {
		return "", false
	}
	for n := c.LastChild; n != nil; n = n.PrevSibling {
		if p.adapter.IsMessage(n) {
			msg, _ := p.adapter.Extract(n)
			return msg.Fingerprint, true
		}
	}
	return "", false
}
