// Package testutil holds in-memory stand-ins for the Postgres store and the
// job queue, plus helpers for building signed processor payloads.
package testutil

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/k-code-yt/go-storefront/internal/fulfillment/application"
	"github.com/k-code-yt/go-storefront/internal/fulfillment/domain"
	paydomain "github.com/k-code-yt/go-storefront/internal/payment/domain"
)

type memState struct {
	events   map[uuid.UUID]*paydomain.PaymentEvent
	eventIDs map[string]uuid.UUID
	orders   map[uuid.UUID]*domain.Order
	items    map[uuid.UUID][]domain.OrderItem
	variants map[uuid.UUID]*domain.Variant
}

func newMemState() *memState {
	return &memState{
		events:   map[uuid.UUID]*paydomain.PaymentEvent{},
		eventIDs: map[string]uuid.UUID{},
		orders:   map[uuid.UUID]*domain.Order{},
		items:    map[uuid.UUID][]domain.OrderItem{},
		variants: map[uuid.UUID]*domain.Variant{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.events {
		e := *v
		c.events[k] = &e
	}
	for k, v := range s.eventIDs {
		c.eventIDs[k] = v
	}
	for k, v := range s.orders {
		o := *v
		c.orders[k] = &o
	}
	for k, v := range s.items {
		c.items[k] = slices.Clone(v)
	}
	for k, v := range s.variants {
		vv := *v
		c.variants[k] = &vv
	}
	return c
}

// MemStore serializes transactions behind one lock and applies a
// transaction's writes only when fn returns nil.
type MemStore struct {
	mu         sync.Mutex
	state      *memState
	failCommit error
	commits    int
}

func NewMemStore() *MemStore {
	return &MemStore{state: newMemState()}
}

func (s *MemStore) AddVariant(v domain.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.variants[v.ID] = &v
}

func (s *MemStore) AddOrder(o domain.Order, items ...domain.OrderItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.orders[o.ID] = &o
	for i := range items {
		items[i].OrderID = o.ID
	}
	s.state.items[o.ID] = items
}

func (s *MemStore) AddEvent(e paydomain.PaymentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.events[e.ID] = &e
	s.state.eventIDs[e.EventID] = e.ID
}

// FailNextCommit makes the next transaction roll back with err after fn ran.
func (s *MemStore) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommit = err
}

func (s *MemStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *MemStore) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.events)
}

func (s *MemStore) EventByExternalID(eventID string) *paydomain.PaymentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.state.eventIDs[eventID]
	if !ok {
		return nil
	}
	e := *s.state.events[id]
	return &e
}

func (s *MemStore) Order(id uuid.UUID) *domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	if !ok {
		return nil
	}
	c := *o
	return &c
}

func (s *MemStore) Stock(variantID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state.variants[variantID]
	if !ok {
		return -1
	}
	return v.StockQty
}

func (s *MemStore) InsertIfAbsent(ctx context.Context, e *paydomain.PaymentEvent) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.state.eventIDs[e.EventID]; ok {
		return id, false, nil
	}
	c := *e
	s.state.events[c.ID] = &c
	s.state.eventIDs[c.EventID] = c.ID
	return c.ID, true, nil
}

func (s *MemStore) ListUnprocessed(ctx context.Context, receivedBefore time.Time, after *paydomain.EventCursor, limit int) ([]paydomain.PaymentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []paydomain.PaymentEvent
	for _, e := range s.state.events {
		if e.ProcessedAt != nil || !e.ReceivedAt.Before(receivedBefore) {
			continue
		}
		if after != nil && compareCursor(e.Cursor(), after) <= 0 {
			continue
		}
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b paydomain.PaymentEvent) int {
		return compareCursor(a.Cursor(), b.Cursor())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) GetEvent(ctx context.Context, id uuid.UUID) (*paydomain.PaymentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.state.events[id]
	if !ok {
		return nil, nil
	}
	c := *e
	return &c, nil
}

func (s *MemStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &memTx{state: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failCommit != nil {
		err := s.failCommit
		s.failCommit = nil
		return err
	}
	s.state = work
	s.commits++
	return nil
}

type memTx struct {
	state *memState
}

func (t *memTx) MarkEventProcessed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	e, ok := t.state.events[id]
	if !ok || e.ProcessedAt != nil {
		return false, nil
	}
	e.ProcessedAt = &at
	return true, nil
}

func (t *memTx) FindOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return nil, nil
	}
	c := *o
	return &c, nil
}

func (t *memTx) FindOrderBySession(ctx context.Context, sessionID string) (*domain.Order, error) {
	for _, o := range t.state.orders {
		if o.CheckoutSessionID != nil && *o.CheckoutSessionID == sessionID {
			c := *o
			return &c, nil
		}
	}
	return nil, nil
}

func (t *memTx) MarkOrderPaid(ctx context.Context, orderID uuid.UUID, sessionID, paymentIntentID string) (bool, error) {
	o, ok := t.state.orders[orderID]
	if !ok || o.Status != domain.OrderStatus_Pending {
		return false, nil
	}
	o.Status = domain.OrderStatus_Paid
	if sessionID != "" {
		o.CheckoutSessionID = &sessionID
	}
	if paymentIntentID != "" {
		o.PaymentIntentID = &paymentIntentID
	}
	return true, nil
}

func (t *memTx) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	return slices.Clone(t.state.items[orderID]), nil
}

func (t *memTx) DecrementStock(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	v, ok := t.state.variants[variantID]
	if !ok || v.StockQty < qty {
		return false, nil
	}
	v.StockQty -= qty
	return true, nil
}

// compareCursor orders like Postgres compares (timestamptz, uuid) rows.
func compareCursor(a, b *paydomain.EventCursor) int {
	if c := a.ReceivedAt.Compare(b.ReceivedAt); c != 0 {
		return c
	}
	return bytes.Compare(a.ID[:], b.ID[:])
}
