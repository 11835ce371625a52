package chatwatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	feature Feature
	calls   *[]Feature
	err     error
	panics  bool
	starts  int
	stops   int
}

func (f *fakeHandler) Start(*Session) error { f.starts++; return nil }
func (f *fakeHandler) Stop(*Session) error  { f.stops++; return nil }

func (f *fakeHandler) Handle(*Session, Update) error {
	*f.calls = append(*f.calls, f.feature)
	if f.panics {
		panic("boom")
	}
	return f.err
}

func fakeHandlers(calls *[]Feature) map[Feature]Handler {
	hs := make(map[Feature]Handler)
	for _, f := range Features {
		hs[f] = &fakeHandler{feature: f, calls: calls}
	}
	return hs
}

func batchIn(t *testing.T, lines ...chatLine) Batch {
	t.Helper()
	nodes := messageNodes(t, lines...)
	newContainer(nodes...)
	return Batch{Nodes: nodes}
}

func TestDispatchOrderAndIsolation(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Host: NewPage(), Adapter: testAdapter(t)})
	var calls []Feature
	d.handlers = fakeHandlers(&calls)
	d.handlers[FeatureMentions].(*fakeHandler).err = errors.New("failed")
	d.handlers[FeatureSeparator].(*fakeHandler).panics = true
	for _, f := range Features {
		d.session.Features = d.session.Features.With(f)
	}

	d.dispatch(batchIn(t, chatLine{ts: "12:00", author: "a", body: "x"}))
	assert.Equal(t, Features, calls)
}

func TestDispatchSkipsDisabledAndMalformed(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Host: NewPage(), Adapter: testAdapter(t)})
	var calls []Feature
	d.handlers = fakeHandlers(&calls)

	d.dispatch(batchIn(t, chatLine{ts: "12:00", author: "a", body: "x"}))
	assert.Empty(t, calls)

	d.session.Features = d.session.Features.With(FeatureKeywords).With(FeatureMentions)
	d.dispatch(batchIn(t, chatLine{ts: "12:00", author: "a", body: "x"}))
	assert.Equal(t, []Feature{FeatureMentions, FeatureKeywords}, calls)

	calls = nil
	malformed := parseNodes(t, `<div class="chat-message"><span>12:00</span></div>`)
	newContainer(malformed...)
	d.dispatch(Batch{Nodes: malformed})
	assert.Empty(t, calls)
}

func TestInvokeRecoversPanics(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Host: NewPage(), Adapter: testAdapter(t)})
	err := d.invoke(FeaturePins, "handle", func() error { panic("boom") })
	require.Error(t, err)
	var herr *HandlerError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, FeaturePins, herr.Feature)
	assert.True(t, errors.Is(err, ErrHandlerFailure))
	assert.NoError(t, d.invoke(FeaturePins, "handle", func() error { return nil }))
}

// harness runs a dispatcher over a live page.
type harness struct {
	page   *Page
	store  *MemoryStore
	alerts *recordingAlerter
	d      *Dispatcher
	cancel context.CancelFunc
}

func newHarness(t *testing.T, cfg DispatcherConfig, lines ...chatLine) *harness {
	t.Helper()
	h := &harness{
		page:   NewPage(),
		store:  NewMemoryStore(),
		alerts: &recordingAlerter{},
	}
	if lines != nil {
		h.page.Mount(newContainer(messageNodes(t, lines...)...))
	}
	persistence := NewPersistence(h.store)
	cfg.Host = h.page
	cfg.Adapter = testAdapter(t)
	cfg.Store = persistence
	cfg.Alerter = h.alerts
	h.d = NewDispatcher(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		persistence.Close()
	})
	return h
}

func (h *harness) snapshot(t *testing.T) SessionView {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := h.d.Snapshot(ctx)
	require.NoError(t, err)
	return v
}

func (h *harness) attached(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return h.snapshot(t).Attached }, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) stored(key string) string {
	b, err := h.store.Get(key)
	if err != nil {
		return ""
	}
	return string(b)
}

func (h *harness) withPage(fn func()) {
	h.page.Lock()
	defer h.page.Unlock()
	fn()
}

func TestDispatcherEndToEnd(t *testing.T) {
	own := chatLine{ts: "12:00", author: "Player One", id: "player+one", body: "hello"}
	h := newHarness(t, DispatcherConfig{}, own, chatLine{ts: "12:01", author: "bob", body: "hi"})
	ctx := context.Background()

	require.NoError(t, h.d.SetIdentity(ctx, " PlayerOne "))
	require.NoError(t, h.d.Enable(ctx, FeatureHighlighting))
	require.NoError(t, h.d.Enable(ctx, FeatureHighlighting))
	h.attached(t)

	require.Eventually(t, func() bool {
		marked := false
		h.withPage(func() {
			marked = isOwnMarked(h.page.Mounted().FirstChild)
		})
		return marked
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.d.Enable(ctx, FeatureMentions))
	require.NoError(t, h.page.Append(messageNodes(t, chatLine{ts: "12:02", author: "bob", body: "ping PlayerOne"})...))
	require.Eventually(t, func() bool { return len(h.alerts.All()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "bob mentioned you", h.alerts.All()[0].Title)

	v := h.snapshot(t)
	assert.Equal(t, []string{"mentions", "highlighting"}, v.Features)
	assert.Equal(t, "PlayerOne", v.Identity)

	require.NoError(t, h.d.Disable(ctx, FeatureHighlighting))
	h.withPage(func() {
		assert.False(t, isOwnMarked(h.page.Mounted().FirstChild))
	})

	require.Eventually(t, func() bool { return h.stored(keyFeatures) == `["mentions"]` }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, `"PlayerOne"`, h.stored(keyIdentity))

	require.NoError(t, h.d.Disable(ctx, FeatureMentions))
	assert.False(t, h.snapshot(t).Attached)
	assert.False(t, h.d.Observer().Running())
}

func TestDispatcherLoadsPersistedState(t *testing.T) {
	h := newHarness(t, DispatcherConfig{DefaultFeatures: []Feature{FeatureMentions}}, chatLine{ts: "12:00", author: "a", body: "a"})
	for key, v := range map[string]any{
		keyIdentity: "PlayerOne",
		keyKeywords: []string{"Egg", "dragon"},
		keyFeatures: []string{"pins", "keywords", "bogus"},
	} {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, h.store.Set(key, b))
	}

	h.d.Load()
	require.Eventually(t, func() bool { return h.snapshot(t).Identity == "PlayerOne" }, 2*time.Second, 5*time.Millisecond)
	v := h.snapshot(t)
	assert.Equal(t, []string{"dragon", "egg"}, v.Keywords)
	assert.Equal(t, []string{"keywords"}, v.Features)
}

func TestDispatcherDefaultFeatures(t *testing.T) {
	h := newHarness(t, DispatcherConfig{DefaultFeatures: []Feature{FeatureSeparator}}, chatLine{ts: "12:00", author: "a", body: "a"})
	h.d.Load()
	require.Eventually(t, func() bool {
		f := h.snapshot(t).Features
		return len(f) == 1 && f[0] == "separator"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDispatcherContainerNotFound(t *testing.T) {
	h := newHarness(t, DispatcherConfig{Observer: ObserverConfig{Interval: time.Millisecond, Attempts: 2}})
	require.NoError(t, h.d.Enable(context.Background(), FeatureMentions))
	require.Eventually(t, func() bool { return len(h.snapshot(t).Features) == 0 }, 2*time.Second, 5*time.Millisecond)
	// The toggle stays persisted for the next activation.
	require.Eventually(t, func() bool { return h.stored(keyFeatures) == `["mentions"]` }, 2*time.Second, 5*time.Millisecond)
}

func TestDispatcherPinsAndReset(t *testing.T) {
	line := chatLine{ts: "12:00", author: "a", body: "a"}
	h := newHarness(t, DispatcherConfig{}, line)
	ctx := context.Background()

	_, err := h.d.TogglePin(ctx, line.fingerprint())
	assert.Error(t, err, "pins are disabled")

	require.NoError(t, h.d.Enable(ctx, FeaturePins))
	require.NoError(t, h.d.Enable(ctx, FeatureKeywords))
	h.attached(t)
	pinned, err := h.d.TogglePin(ctx, line.fingerprint())
	require.NoError(t, err)
	assert.True(t, pinned)
	assert.Equal(t, []string{line.fingerprint()}, h.snapshot(t).Pins)
	h.withPage(func() {
		assert.True(t, isPinned(h.page.Mounted().FirstChild))
	})

	require.NoError(t, h.d.ClearPins(ctx))
	assert.Empty(t, h.snapshot(t).Pins)
	pinned, err = h.d.TogglePin(ctx, line.fingerprint())
	require.NoError(t, err)
	assert.True(t, pinned)

	// Pins are never persisted; after a reset only keywords come back.
	require.NoError(t, h.d.Reset(ctx))
	require.Eventually(t, func() bool {
		v := h.snapshot(t)
		return len(v.Features) == 1 && v.Features[0] == "keywords"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, h.snapshot(t).Pins)
	h.withPage(func() {
		assert.False(t, isPinned(h.page.Mounted().FirstChild))
		assert.Nil(t, childWithClass(h.page.Mounted().FirstChild, pinToggleClass))
	})
}
