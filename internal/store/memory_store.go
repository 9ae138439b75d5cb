package store

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matheuscscp/echo-callback/internal/config"
)

type memoryStore struct {
	ttl           time.Duration
	maxSize       int
	slots         map[slotKey]*slot
	evictionQueue []slotKey
	mu            sync.Mutex
	metrics       *metrics
	registerer    prometheus.Registerer

	now         func() time.Time
	generateKey func() [idBytes]byte
}

type Option func(*memoryStore)

func WithTTL(ttl time.Duration) Option {
	return func(m *memoryStore) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithMaxSize(n int) Option {
	return func(m *memoryStore) {
		if n > 0 {
			m.maxSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *memoryStore) {
		m.now = now
	}
}

// WithRegisterer registers the store metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *memoryStore) {
		m.registerer = reg
	}
}

func NewMemoryStore(opts ...Option) *memoryStore {
	m := &memoryStore{
		ttl:         config.DefaultSlotTTL,
		maxSize:     config.DefaultMaxSlots,
		slots:       make(map[slotKey]*slot),
		metrics:     newMetrics(),
		now:         time.Now,
		generateKey: generateID,
	}
	for _, o := range opts {
		o(m)
	}
	if m.registerer != nil {
		m.metrics.register(m.registerer, m.Len)
	}
	return m
}

func (m *memoryStore) CreateSlot() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		key := slotKey(encodeID(m.generateKey()))
		if _, ok := m.slots[key]; ok {
			continue
		}

		// Enforce maximum size. Every live key is in the queue, so the
		// queue cannot run out before the map shrinks.
		for len(m.slots) >= m.maxSize {
			oldest := m.evictionQueue[0]
			m.evictionQueue = m.evictionQueue[1:]
			if _, ok := m.slots[oldest]; ok {
				delete(m.slots, oldest)
				m.metrics.removed.WithLabelValues(removalReasonEvicted).Inc()
			}
		}

		m.slots[key] = &slot{
			state:     stateEmpty,
			createdAt: m.now(),
		}
		m.evictionQueue = append(m.evictionQueue, key)
		m.metrics.created.Inc()
		return string(key)
	}
}

func (m *memoryStore) CheckWritable(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(slotKey(id))
	if err != nil {
		return err
	}
	if s.state != stateEmpty {
		return ErrAlreadyWritten
	}
	return nil
}

func (m *memoryStore) WriteOnce(id string, payload json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.lookup(slotKey(id))
	if err != nil {
		return err
	}
	if err := s.apply(eventWrite); err != nil {
		return ErrAlreadyWritten
	}
	s.payload = slices.Clone(payload)
	m.metrics.written.Inc()
	return nil
}

func (m *memoryStore) ReadAndConsume(id string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := slotKey(id)
	s, err := m.lookup(key)
	if err != nil {
		return nil, err
	}
	if err := s.apply(eventConsume); err != nil {
		return nil, ErrNotReady
	}
	delete(m.slots, key)
	m.metrics.removed.WithLabelValues(removalReasonConsumed).Inc()
	m.compactQueueIfSparse()
	return s.payload, nil
}

// SweepExpired removes every slot older than the TTL, written or not,
// and drops keys of removed slots from the eviction queue.
func (m *memoryStore) SweepExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var removed int
	evictionQueue := make([]slotKey, 0, len(m.slots))
	for _, key := range m.evictionQueue {
		s, ok := m.slots[key]
		if !ok {
			continue
		}
		if s.expired(now, m.ttl) {
			delete(m.slots, key)
			removed++
		} else {
			evictionQueue = append(evictionQueue, key)
		}
	}
	m.evictionQueue = evictionQueue
	m.metrics.removed.WithLabelValues(removalReasonExpired).Add(float64(removed))
	return removed
}

func (m *memoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

// lookup returns the live slot for key. A slot past its TTL that the sweep
// has not reached yet is removed here and reported as not found.
// The caller must hold the lock.
func (m *memoryStore) lookup(key slotKey) (*slot, error) {
	s, ok := m.slots[key]
	if !ok {
		return nil, ErrNotFound
	}
	if s.expired(m.now(), m.ttl) {
		delete(m.slots, key)
		m.metrics.removed.WithLabelValues(removalReasonExpired).Inc()
		m.compactQueueIfSparse()
		return nil, ErrNotFound
	}
	return s, nil
}

// compactQueueIfSparse drops keys of removed slots from the eviction queue
// once they outnumber the live ones. The caller must hold the lock.
func (m *memoryStore) compactQueueIfSparse() {
	if len(m.evictionQueue) <= 2*len(m.slots) {
		return
	}
	evictionQueue := make([]slotKey, 0, len(m.slots))
	for _, key := range m.evictionQueue {
		if _, ok := m.slots[key]; ok {
			evictionQueue = append(evictionQueue, key)
		}
	}
	m.evictionQueue = evictionQueue
}
