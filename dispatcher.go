package chatwatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// Store keys for persisted session state.
const (
	keyIdentity = "identity"
	keyKeywords = "keywords"
	keyFeatures = "features"
)

// Alert is a notification raised by a feature handler.
type Alert struct {
	Feature Feature `json:"feature"`
	Title   string  `json:"title"`
	Body    string  `json:"body"`
}

// Alerter accepts alerts without blocking.
type Alerter interface {
	Alert(Alert)
}

// Update is a batch of new messages as handlers see it. Messages the adapter
// could not read are left out.
type Update struct {
	Messages []*Message
	Removed  bool
}

// Handler is one annotation feature. All methods are called from the
// dispatch loop with the page lock held.
type Handler interface {
	Start(s *Session) error
	Stop(s *Session) error
	Handle(s *Session, u Update) error
}

// rescanner is implemented by handlers that annotate messages already present
// in the container, not just new ones.
type rescanner interface {
	Rescan(s *Session) error
}

// Session is the state shared by the handlers: the feature toggles, the
// user's identity and keywords, and the container the observer attached to.
type Session struct {
	Features  FeatureSet
	Identity  string
	Keywords  []string
	Container *html.Node

	adapter Adapter
	alerter Alerter
}

// Alert forwards a to the notification center, if any.
func (s *Session) Alert(a Alert) {
	if s.alerter != nil {
		s.alerter.Alert(a)
	}
}

// Messages returns every readable message currently in the container.
func (s *Session) Messages() []*Message {
	if s.Container == nil {
		return nil
	}
	var msgs []*Message
	for n := range s.Container.ChildNodes() {
		if !s.adapter.IsMessage(n) {
			continue
		}
		msg, err := s.adapter.Extract(n)
		if err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// SessionView is a copy of the session state for callers outside the loop.
type SessionView struct {
	Features []string `json:"features"`
	Identity string   `json:"identity"`
	Keywords []string `json:"keywords"`
	Pins     []string `json:"pins"`
	Attached bool     `json:"attached"`
}

// DispatcherConfig wires a Dispatcher to its collaborators. Store and Alerter
// may be nil.
type DispatcherConfig struct {
	Host     Host
	Adapter  Adapter
	Observer ObserverConfig
	Store    *Persistence
	Alerter  Alerter

	// HistoryCapacity sizes the mention and keyword histories.
	HistoryCapacity int

	// DefaultFeatures are enabled when no toggles have been persisted.
	DefaultFeatures []Feature
}

// Dispatcher owns the session and the observer and routes every batch to
// the enabled handlers in a fixed order. Session state is only touched from
// Run; other goroutines post commands to it.
type Dispatcher struct {
	cfg      DispatcherConfig
	host     Host
	adapter  Adapter
	observer *Observer
	store    *Persistence
	commands chan func()

	session  *Session
	handlers map[Feature]Handler
	pins     *PinManager

	// starting is set while the observer looks for the container.
	starting bool
}

// NewDispatcher returns a dispatcher with every feature disabled. Call Run to
// start processing and Load to restore persisted state.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		host:     cfg.Host,
		adapter:  cfg.Adapter,
		observer: NewObserver(cfg.Host, cfg.Adapter, cfg.Observer),
		store:    cfg.Store,
		commands: make(chan func(), 64),
	}
	d.newSession()
	return d
}

func (d *Dispatcher) newSession() {
	d.session = &Session{adapter: d.adapter, alerter: d.cfg.Alerter}
	d.pins = NewPinManager()
	d.handlers = map[Feature]Handler{
		FeatureMentions:     NewMentionMatcher(d.cfg.HistoryCapacity),
		FeatureHighlighting: NewSelfHighlighter(),
		FeatureSeparator:    NewSessionMarker(),
		FeaturePins:         d.pins,
		FeatureKeywords:     NewKeywordMatcher(d.cfg.HistoryCapacity),
	}
}

// Observer returns the dispatcher's observer.
func (d *Dispatcher) Observer() *Observer {
	return d.observer
}

// Run processes batches and commands until ctx is done, then detaches the
// observer.
func (d *Dispatcher) Run(ctx context.Context) error {
	batches := d.observer.Batches()
	for {
		select {
		case <-ctx.Done():
			d.observer.Stop()
			return ctx.Err()
		case b := <-batches:
			d.host.Lock()
			d.dispatch(b)
			d.host.Unlock()
		case fn := <-d.commands:
			d.host.Lock()
			fn()
			d.host.Unlock()
		}
	}
}

// post queues fn for the dispatch loop without waiting.
func (d *Dispatcher) post(fn func()) {
	d.commands <- fn
}

// Do runs fn on the dispatch loop and waits for its result.
func (d *Dispatcher) Do(ctx context.Context, fn func(s *Session) error) error {
	done := make(chan error, 1)
	select {
	case d.commands <- func() { done <- fn(d.session) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) dispatch(b Batch) {
	s := d.session
	if s.Features.Empty() {
		return
	}
	u := Update{Removed: b.Removed}
	for _, n := range b.Nodes {
		// Nodes purged by a later refresh are gone from the page.
		if n.Parent == nil {
			continue
		}
		msg, err := d.adapter.Extract(n)
		if err != nil {
			logger.Debug("skipping_message", "error", err)
			continue
		}
		u.Messages = append(u.Messages, msg)
	}
	if len(u.Messages) == 0 {
		return
	}
	batchesDispatched.Inc()
	messagesDispatched.Add(float64(len(u.Messages)))

	for _, f := range Features {
		if !s.Features.Has(f) {
			continue
		}
		h := d.handlers[f]
		_ = d.invoke(f, "handle", func() error { return h.Handle(s, u) })
	}
}

// invoke calls fn, converting an error or panic into a logged HandlerError.
func (d *Dispatcher) invoke(f Feature, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = &HandlerError{Feature: f, Err: err}
			handlerFailures.WithLabelValues(f.String()).Inc()
			logger.Error("handler_failure", "feature", f.String(), "op", op, "error", err)
		}
	}()
	return fn()
}

// Enable turns f on. Enabling an enabled feature does nothing.
func (d *Dispatcher) Enable(ctx context.Context, f Feature) error {
	return d.Do(ctx, func(*Session) error {
		d.enable(f, true)
		return nil
	})
}

// Disable turns f off. Disabling a disabled feature does nothing.
func (d *Dispatcher) Disable(ctx context.Context, f Feature) error {
	return d.Do(ctx, func(*Session) error {
		d.disable(f, true)
		return nil
	})
}

func (d *Dispatcher) enable(f Feature, persist bool) {
	s := d.session
	if s.Features.Has(f) {
		return
	}
	s.Features = s.Features.With(f)
	h := d.handlers[f]
	if err := d.invoke(f, "start", func() error { return h.Start(s) }); err == nil && s.Container != nil {
		d.rescan(f)
	}
	logger.Info("feature_enabled", "feature", f.String())
	if persist && f.Persistent() {
		d.saveFeatures()
	}
	d.attach()
}

func (d *Dispatcher) disable(f Feature, persist bool) {
	s := d.session
	if !s.Features.Has(f) {
		return
	}
	s.Features = s.Features.Without(f)
	h := d.handlers[f]
	_ = d.invoke(f, "stop", func() error { return h.Stop(s) })
	logger.Info("feature_disabled", "feature", f.String())
	if persist && f.Persistent() {
		d.saveFeatures()
	}
	if s.Features.Empty() {
		d.observer.Stop()
		s.Container = nil
	}
}

func (d *Dispatcher) rescan(f Feature) {
	r, ok := d.handlers[f].(rescanner)
	if !ok {
		return
	}
	_ = d.invoke(f, "rescan", func() error { return r.Rescan(d.session) })
}

// attach starts the observer in the background if it is not attached yet.
// Discovery may take a while and takes the page lock itself, so it cannot run
// on the dispatch loop.
func (d *Dispatcher) attach() {
	if d.starting || d.session.Container != nil {
		return
	}
	d.starting = true
	go func() {
		err := d.observer.Start(context.Background())
		container := d.observer.Container()
		d.post(func() { d.attached(container, err) })
	}()
}

func (d *Dispatcher) attached(container *html.Node, err error) {
	d.starting = false
	s := d.session
	switch {
	case errors.Is(err, context.Canceled):
		// Stopped while looking for the container; a feature may have been
		// enabled again since.
		if !s.Features.Empty() {
			d.attach()
		}
		return
	case err != nil:
		logger.Error("observer_start_failed", "error", err)
		// Fatal for this activation. The persisted toggles are kept so the
		// next activation tries again.
		for _, f := range Features {
			d.disable(f, false)
		}
		return
	case s.Features.Empty():
		d.observer.Stop()
		return
	case container == nil:
		d.attach()
		return
	}
	s.Container = container
	for _, f := range Features {
		if s.Features.Has(f) {
			d.rescan(f)
		}
	}
}

// SetIdentity replaces the user's identity and re-evaluates self-highlighting.
func (d *Dispatcher) SetIdentity(ctx context.Context, identity string) error {
	return d.Do(ctx, func(*Session) error {
		d.setIdentity(identity, true)
		return nil
	})
}

func (d *Dispatcher) setIdentity(identity string, persist bool) {
	s := d.session
	s.Identity = strings.TrimSpace(identity)
	if persist {
		d.save(keyIdentity, s.Identity)
	}
	if s.Features.Has(FeatureHighlighting) && s.Container != nil {
		d.rescan(FeatureHighlighting)
	}
}

// SetKeywords replaces the keyword set wholesale.
func (d *Dispatcher) SetKeywords(ctx context.Context, keywords []string) error {
	return d.Do(ctx, func(*Session) error {
		d.setKeywords(keywords, true)
		return nil
	})
}

func (d *Dispatcher) setKeywords(keywords []string, persist bool) {
	d.session.Keywords = NormalizeKeywords(keywords)
	if persist {
		d.save(keyKeywords, d.session.Keywords)
	}
}

// NormalizeKeywords case-folds and trims keywords, drops empty and duplicate
// entries, and sorts the result.
func NormalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(foldText(k))
		if k != "" {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// TogglePin flips the pin state of the messages with fingerprint fp and
// reports whether they are now pinned.
func (d *Dispatcher) TogglePin(ctx context.Context, fp string) (bool, error) {
	var pinned bool
	err := d.Do(ctx, func(s *Session) error {
		if !s.Features.Has(FeaturePins) {
			return fmt.Errorf("%s is disabled", FeaturePins)
		}
		return d.invoke(FeaturePins, "toggle", func() error {
			pinned = d.pins.Toggle(s, fp)
			return nil
		})
	})
	return pinned, err
}

// ClearPins unpins everything.
func (d *Dispatcher) ClearPins(ctx context.Context) error {
	return d.Do(ctx, func(s *Session) error {
		return d.invoke(FeaturePins, "clear", func() error {
			d.pins.Clear(s)
			return nil
		})
	})
}

// Snapshot returns a copy of the session state.
func (d *Dispatcher) Snapshot(ctx context.Context) (SessionView, error) {
	var v SessionView
	err := d.Do(ctx, func(s *Session) error {
		v = SessionView{
			Features: s.Features.Names(),
			Identity: s.Identity,
			Keywords: slices.Clone(s.Keywords),
			Pins:     d.pins.Fingerprints(),
			Attached: s.Container != nil,
		}
		if v.Keywords == nil {
			v.Keywords = []string{}
		}
		return nil
	})
	return v, err
}

// Reset tears the session down the way a page reload does: every handler is
// stopped, histories and pins are dropped, and persisted state is loaded
// again.
func (d *Dispatcher) Reset(ctx context.Context) error {
	return d.Do(ctx, func(*Session) error {
		for _, f := range Features {
			d.disable(f, false)
		}
		d.observer.Stop()
		d.newSession()
		logger.Info("session_reset")
		d.Load()
		return nil
	})
}

// persistedState is what Load read from the store. found records the keys
// that were present.
type persistedState struct {
	identity string
	keywords []string
	features []string
	found    map[string]bool
}

// Load reads identity, keywords and feature toggles from the store in the
// background and applies them on the dispatch loop. Missing keys leave the
// defaults in place; read failures are logged and also leave the defaults.
func (d *Dispatcher) Load() {
	if d.store == nil {
		go d.post(func() { d.apply(persistedState{}) })
		return
	}
	go func() {
		st := persistedState{found: make(map[string]bool)}
		for _, item := range []struct {
			key string
			v   any
		}{
			{keyIdentity, &st.identity},
			{keyKeywords, &st.keywords},
			{keyFeatures, &st.features},
		} {
			err := d.store.Load(item.key, item.v)
			switch {
			case err == nil:
				st.found[item.key] = true
			case errors.Is(err, ErrKeyNotFound):
			default:
				logger.Warn("state_load_failed", "key", item.key, "error", err)
			}
		}
		d.post(func() { d.apply(st) })
	}()
}

func (d *Dispatcher) apply(st persistedState) {
	if st.found[keyIdentity] {
		d.setIdentity(st.identity, false)
	}
	if st.found[keyKeywords] {
		d.setKeywords(st.keywords, false)
	}
	if !st.found[keyFeatures] {
		for _, f := range d.cfg.DefaultFeatures {
			d.enable(f, false)
		}
	}
	for _, name := range st.features {
		f, err := ParseFeature(name)
		if err != nil {
			logger.Warn("unknown_persisted_feature", "name", name)
			continue
		}
		if f.Persistent() {
			d.enable(f, false)
		}
	}
	logger.Info("state_loaded", "keys", len(st.found), "features", len(st.features))
}

func (d *Dispatcher) saveFeatures() {
	var names []string
	for _, f := range Features {
		if f.Persistent() && d.session.Features.Has(f) {
			names = append(names, f.String())
		}
	}
	if names == nil {
		names = []string{}
	}
	d.save(keyFeatures, names)
}

func (d *Dispatcher) save(key string, v any) {
	if d.store == nil {
		return
	}
	d.store.Save(key, v)
}
