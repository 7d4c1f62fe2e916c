package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/volodymyrd/echarlar/internal/core/domain"
)

// Operation labels.
const (
	opFindUser     = "find_user"
	opSaveUser     = "save_user"
	opFindRoom     = "find_room"
	opSaveRoom     = "save_room"
	opSaveMessage  = "save_message"
	opFindMessages = "find_messages"
)

// Result labels.
const (
	resultOK       = "ok"
	resultNotFound = "not_found"
	resultError    = "error"
)

// storeMetrics holds the store's Prometheus collectors.
type storeMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func newStoreMetrics() *storeMetrics {
	return &storeMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echarlar",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total store operations by operation and result",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "echarlar",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store operation latency in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"op"}),
	}
}

// InstrumentedStore decorates a Store with Prometheus metrics.
type InstrumentedStore struct {
	next    Store
	metrics *storeMetrics
}

// Instrument wraps store so every operation is counted and timed.
// The collectors are registered with registry.
func Instrument(store Store, registry prometheus.Registerer) (*InstrumentedStore, error) {
	m := newStoreMetrics()
	if err := registry.Register(m.operations); err != nil {
		return nil, err
	}
	if err := registry.Register(m.duration); err != nil {
		registry.Unregister(m.operations)
		return nil, err
	}
	return &InstrumentedStore{next: store, metrics: m}, nil
}

// Unwrap returns the decorated store.
func (s *InstrumentedStore) Unwrap() Store {
	return s.next
}

// Unwrap strips decorators from store and returns the engine-backed store.
func Unwrap(store Store) Store {
	for {
		u, ok := store.(interface{ Unwrap() Store })
		if !ok {
			return store
		}
		store = u.Unwrap()
	}
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	result := resultOK
	switch {
	case err == nil:
	case domain.IsDomainError(err, domain.ErrNotFound.Code):
		result = resultNotFound
	default:
		result = resultError
	}
	s.metrics.operations.WithLabelValues(op, result).Inc()
	s.metrics.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// FindUser implements Store.
func (s *InstrumentedStore) FindUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	start := time.Now()
	u, err := s.next.FindUser(ctx, id)
	s.observe(opFindUser, start, err)
	return u, err
}

// SaveUser implements Store.
func (s *InstrumentedStore) SaveUser(ctx context.Context, user *domain.User) error {
	start := time.Now()
	err := s.next.SaveUser(ctx, user)
	s.observe(opSaveUser, start, err)
	return err
}

// FindRoom implements Store.
func (s *InstrumentedStore) FindRoom(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	start := time.Now()
	r, err := s.next.FindRoom(ctx, id)
	s.observe(opFindRoom, start, err)
	return r, err
}

// SaveRoom implements Store.
func (s *InstrumentedStore) SaveRoom(ctx context.Context, room *domain.Room) error {
	start := time.Now()
	err := s.next.SaveRoom(ctx, room)
	s.observe(opSaveRoom, start, err)
	return err
}

// SaveMessage implements Store.
func (s *InstrumentedStore) SaveMessage(ctx context.Context, room *domain.Room, message *domain.Message) error {
	start := time.Now()
	err := s.next.SaveMessage(ctx, room, message)
	s.observe(opSaveMessage, start, err)
	return err
}

// FindMessages implements Store.
func (s *InstrumentedStore) FindMessages(ctx context.Context, roomID uuid.UUID, limit int, cursor *domain.Cursor) (*domain.Page, error) {
	start := time.Now()
	p, err := s.next.FindMessages(ctx, roomID, limit, cursor)
	s.observe(opFindMessages, start, err)
	return p, err
}

// Close closes the wrapped store. Collectors stay registered.
func (s *InstrumentedStore) Close() error {
	return s.next.Close()
}

var _ Store = (*InstrumentedStore)(nil)
