package storage

import (
	"container/heap"
	"math"
	"sync"
	"time"

	"github.com/eternalApril/moonkv/internal/resp"
)

// idleSweep is how long the sweeper sleeps when nothing is scheduled.
// A new deadline wakes it earlier
const idleSweep = time.Minute

// Options configures the active expiration of a MapStorage
type Options struct {
	ActiveExpiry bool      // run the background sweeper
	BatchSize    int       // how many due keys to process per pass under the lock
	OnExpire     func(int) // called outside the lock with the number of keys removed by a pass
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		ActiveExpiry: true,
		BatchSize:    1000,
	}
}

type entry struct {
	value    resp.Value
	expireAt int64 // unix nanoseconds, 0 means no TTL
	version  uint64
}

func (e entry) expired(now int64) bool {
	return e.expireAt != 0 && now >= e.expireAt
}

// MapStorage is a thread-safe key-value storage.
// A single mutex guards the map and the expiry queue; expired keys are removed
// by one sweeper goroutine and, as a fallback, when a read finds them
type MapStorage struct {
	data     map[string]entry
	expiries expiryQueue
	version  uint64
	mu       sync.Mutex

	active    bool
	batchSize int
	onExpire  func(int)

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewMapStorage creates a new instance of MapStorage and starts its sweeper if enabled
func NewMapStorage(opts Options) *MapStorage {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}

	m := &MapStorage{
		data:      make(map[string]entry),
		active:    opts.ActiveExpiry,
		batchSize: opts.BatchSize,
		onExpire:  opts.OnExpire,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	if m.active {
		go m.sweep()
	} else {
		close(m.done)
	}

	return m
}

// Get returns a copy of the value and true if the key is found. Otherwise, Value{}, false
func (m *MapStorage) Get(key string) (resp.Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(key, time.Now().UnixNano())
	if !ok {
		return resp.Value{}, false
	}

	return e.value.Clone(), true
}

// Set writes the value and replaces the previous expiry of the key
func (m *MapStorage) Set(key string, value resp.Value, options SetOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.version++
	e := entry{
		value:   value.Clone(),
		version: m.version,
	}

	if options.HasTTL {
		e.expireAt = deadline(time.Now().UnixNano(), options.TTL)
		m.schedule(key, e)
	}

	m.data[key] = e
}

// Delete deletes the key. Returns true if the key existed and was deleted
func (m *MapStorage) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookup(key, time.Now().UnixNano()); !ok {
		return false
	}

	delete(m.data, key)
	return true
}

// Update runs fn on the current value of key and stores its result
func (m *MapStorage) Update(key string, fn UpdateFunc) (resp.Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, exists := m.lookup(key, time.Now().UnixNano())

	var current resp.Value
	if exists {
		current = cur.value.Clone()
	}

	next, err := fn(current, exists)
	if err != nil {
		return resp.Value{}, err
	}

	// an existing key keeps its version so its scheduled expiry still applies
	e := entry{
		value:    next.Clone(),
		expireAt: cur.expireAt,
		version:  cur.version,
	}
	if !exists {
		m.version++
		e.version = m.version
	}
	m.data[key] = e

	return next, nil
}

// Len returns the number of stored entries
func (m *MapStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.data)
}

// Close stops the sweeper and waits for it to exit. It is safe to call more than once
func (m *MapStorage) Close() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	<-m.done
}

// deadline returns now+ttl in unix nanoseconds, saturating at MaxInt64
func deadline(now int64, ttl time.Duration) int64 {
	if ttl > 0 && int64(ttl) > math.MaxInt64-now {
		return math.MaxInt64
	}
	return now + int64(ttl)
}

// lookup returns the live entry for key, deleting it if it has expired. Caller holds mu
func (m *MapStorage) lookup(key string, now int64) (entry, bool) {
	e, ok := m.data[key]
	if !ok {
		return entry{}, false
	}

	if e.expired(now) {
		delete(m.data, key)
		return entry{}, false
	}

	return e, true
}

// schedule queues the expiry of e and wakes the sweeper if it became the
// earliest deadline. Caller holds mu
func (m *MapStorage) schedule(key string, e entry) {
	if !m.active {
		return
	}

	// overwritten keys leave stale items behind, drop them once they dominate
	if len(m.expiries) > 2*len(m.data)+64 {
		m.compact()
	}

	heap.Push(&m.expiries, expiryItem{key: key, expireAt: e.expireAt, version: e.version})

	if m.expiries[0].version == e.version {
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
}

// compact removes queue items whose key was deleted or overwritten. Caller holds mu
func (m *MapStorage) compact() {
	live := m.expiries[:0]
	for _, item := range m.expiries {
		if e, ok := m.data[item.key]; ok && e.version == item.version {
			live = append(live, item)
		}
	}
	clear(m.expiries[len(live):])
	m.expiries = live
	heap.Init(&m.expiries)
}

// sweep removes keys as their deadlines pass until Close is called
func (m *MapStorage) sweep() {
	defer close(m.done)

	timer := time.NewTimer(idleSweep)
	defer timer.Stop()

	for {
		timer.Reset(m.expireDue())

		select {
		case <-timer.C:
		case <-m.wake:
		case <-m.stop:
			return
		}
	}
}

// expireDue deletes up to batchSize due keys and returns how long to wait
// before the next deadline
func (m *MapStorage) expireDue() time.Duration {
	m.mu.Lock()

	now := time.Now().UnixNano()
	expired := 0

	for processed := 0; len(m.expiries) > 0 && processed < m.batchSize; processed++ {
		if m.expiries[0].expireAt > now {
			break
		}

		item := heap.Pop(&m.expiries).(expiryItem)

		// a later Set gave the key a new version, this deadline no longer applies
		if e, ok := m.data[item.key]; ok && e.version == item.version {
			delete(m.data, item.key)
			expired++
		}
	}

	wait := idleSweep
	if len(m.expiries) > 0 {
		wait = max(time.Duration(m.expiries[0].expireAt-now), 0)
	}

	m.mu.Unlock()

	if expired > 0 && m.onExpire != nil {
		m.onExpire(expired)
	}

	return wait
}
