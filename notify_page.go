package chatwatch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const pageWriteTimeout = 5 * time.Second

var errNoPageListeners = errors.New("no page listeners connected")

// PageNotifier pushes alerts to browsers viewing the rendered page over a
// WebSocket. It is the in-page fallback channel.
type PageNotifier struct {
	upgrader websocket.Upgrader

	lock    sync.Mutex
	clients map[*pageListener]struct{}
}

type pageListener struct {
	conn *websocket.Conn
	lock sync.Mutex
}

// PageAlert is the JSON message sent to page listeners.
type PageAlert struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

func NewPageNotifier() *PageNotifier {
	return &PageNotifier{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*pageListener]struct{}),
	}
}

func (p *PageNotifier) Name() string { return "page" }

func (p *PageNotifier) RequestPermission(context.Context) error { return nil }

// Listeners returns the number of connected pages.
func (p *PageNotifier) Listeners() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.clients)
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the peer goes away. Anything the peer sends is ignored.
func (p *PageNotifier) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket_upgrade_failed", "error", err)
		return
	}
	l := &pageListener{conn: conn}
	p.lock.Lock()
	p.clients[l] = struct{}{}
	p.lock.Unlock()
	logger.Debug("page_listener_connected", "remote", r.RemoteAddr)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	p.remove(l)
	logger.Debug("page_listener_disconnected", "remote", r.RemoteAddr)
}

func (p *PageNotifier) remove(l *pageListener) {
	p.lock.Lock()
	_, ok := p.clients[l]
	delete(p.clients, l)
	p.lock.Unlock()
	if ok {
		l.conn.Close()
	}
}

// Notify sends the alert to every connected page. It fails only when no page
// received it.
func (p *PageNotifier) Notify(ctx context.Context, title, body string) error {
	p.lock.Lock()
	listeners := make([]*pageListener, 0, len(p.clients))
	for l := range p.clients {
		listeners = append(listeners, l)
	}
	p.lock.Unlock()

	msg := PageAlert{Type: "alert", Title: title, Body: body}
	sent := 0
	for _, l := range listeners {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.lock.Lock()
		l.conn.SetWriteDeadline(time.Now().Add(pageWriteTimeout))
		err := l.conn.WriteJSON(msg)
		l.lock.Unlock()
		if err != nil {
			logger.Debug("page_listener_write_failed", "error", err)
			p.remove(l)
			continue
		}
		sent++
	}
	if sent == 0 {
		return errNoPageListeners
	}
	return nil
}
