package chatwatch

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"
)

// Store is a string-keyed byte store. Get returns ErrKeyNotFound for keys
// that were never set.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Close() error
}

// PebbleStore keeps session state in a pebble database on disk.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebbleStore opens (or creates) the database at path.
func OpenPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, &StorageError{Op: "open", Key: path, Err: err}
	}
	logger.Info("pebble_opened", "path", path)
	return &PebbleStore{db: db}, nil
}

func (p *PebbleStore) Get(key string) ([]byte, error) {
	v, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (p *PebbleStore) Set(key string, value []byte) error {
	return p.db.Set([]byte(key), value, pebble.Sync)
}

func (p *PebbleStore) Close() error {
	return p.db.Close()
}

// MemoryStore is a Store that forgets everything on exit.
type MemoryStore struct {
	lock sync.Mutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Set(key string, value []byte) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

type storeOp struct {
	key   string
	value []byte
	reply chan storeResult
}

type storeResult struct {
	value []byte
	err   error
}

var errPersistenceClosed = errors.New("persistence closed")

// Persistence stores JSON values. Reads and writes are applied in order by a
// single goroutine, so a read observes every write queued before it. Writes
// do not wait; reads block and are meant for background goroutines.
type Persistence struct {
	store Store
	ops   chan storeOp
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewPersistence starts the store goroutine. Close stops it after the queued
// operations are applied.
func NewPersistence(store Store) *Persistence {
	p := &Persistence{
		store: store,
		ops:   make(chan storeOp, 64),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

// Load decodes the value stored under key into v. A missing key returns
// ErrKeyNotFound; any other failure is a *StorageError.
func (p *Persistence) Load(key string, v any) error {
	reply := make(chan storeResult, 1)
	if !p.submit(storeOp{key: key, reply: reply}) {
		return &StorageError{Op: "get", Key: key, Err: errPersistenceClosed}
	}
	var r storeResult
	select {
	case r = <-reply:
	case <-p.done:
		return &StorageError{Op: "get", Key: key, Err: errPersistenceClosed}
	}
	if errors.Is(r.err, ErrKeyNotFound) {
		return r.err
	}
	if r.err != nil {
		storageErrors.WithLabelValues("get").Inc()
		return &StorageError{Op: "get", Key: key, Err: r.err}
	}
	if err := json.Unmarshal(r.value, v); err != nil {
		storageErrors.WithLabelValues("decode").Inc()
		return &StorageError{Op: "decode", Key: key, Err: err}
	}
	return nil
}

// Save queues v to be stored under key. Failures are logged.
func (p *Persistence) Save(key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		storageErrors.WithLabelValues("encode").Inc()
		logger.Error("state_save_failed", "error", &StorageError{Op: "encode", Key: key, Err: err})
		return
	}
	if !p.submit(storeOp{key: key, value: b}) {
		logger.Warn("state_save_dropped", "key", key, "error", errPersistenceClosed)
	}
}

func (p *Persistence) submit(op storeOp) bool {
	select {
	case <-p.quit:
		return false
	default:
	}
	select {
	case p.ops <- op:
		return true
	case <-p.quit:
		return false
	}
}

func (p *Persistence) run() {
	defer close(p.done)
	for {
		select {
		case op := <-p.ops:
			p.apply(op)
		case <-p.quit:
			for {
				select {
				case op := <-p.ops:
					p.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (p *Persistence) apply(op storeOp) {
	if op.reply != nil {
		v, err := p.store.Get(op.key)
		op.reply <- storeResult{value: v, err: err}
		return
	}
	if err := p.store.Set(op.key, op.value); err != nil {
		storageErrors.WithLabelValues("set").Inc()
		logger.Error("state_save_failed", "error", &StorageError{Op: "set", Key: op.key, Err: err})
	}
}

// Close applies the queued operations and closes the store.
func (p *Persistence) Close() error {
	var err error
	p.once.Do(func() {
		close(p.quit)
		<-p.done
		err = p.store.Close()
	})
	return err
}
