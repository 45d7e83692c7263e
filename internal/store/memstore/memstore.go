// Package memstore is an in-memory store.Store used by tests.
package memstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/alfredjeanlab/occurrences/internal/model"
	"github.com/alfredjeanlab/occurrences/internal/store"
)

// Store holds occurrences in memory and hands out sessions over them.
// Version tokens come from a single counter, like the database sequence.
type Store struct {
	// StreamErr, when set, makes every stream fail with it after yielding
	// StreamErrAfter occurrences.
	StreamErr      error
	StreamErrAfter int

	mu          sync.Mutex
	nextID      int
	version     uint64
	occurrences map[int]*model.Occurrence
	open        int
	opened      int
}

// Compile-time check that Store hands out store sessions.
var _ store.Sessions = (*Store)(nil)

func New() *Store {
	return &Store{occurrences: make(map[int]*model.Occurrence)}
}

// Session returns a new session. Each must be closed.
func (m *Store) Session(_ context.Context) (store.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open++
	m.opened++
	return &session{m: m}, nil
}

// OpenSessions reports sessions acquired but not yet closed.
func (m *Store) OpenSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// SessionsOpened reports how many sessions were ever acquired.
func (m *Store) SessionsOpened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// nextToken must be called with mu held.
func (m *Store) nextToken() model.RowVersion {
	m.version++
	tok := make(model.RowVersion, 8)
	binary.BigEndian.PutUint64(tok, m.version)
	return tok
}

// snapshot returns deep copies of all occurrences ordered by id, with
// prices ordered by currency.
func (m *Store) snapshot() []*model.Occurrence {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.Occurrence, 0, len(m.occurrences))
	for _, o := range m.occurrences {
		out = append(out, clone(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clone(o *model.Occurrence) *model.Occurrence {
	c := &model.Occurrence{
		ID:        o.ID,
		Title:     o.Title,
		Timestamp: append(model.RowVersion(nil), o.Timestamp...),
		Prices:    []*model.Price{},
	}
	for _, p := range o.Prices {
		cp := &model.Price{
			Currency:  p.Currency,
			Timestamp: append(model.RowVersion(nil), p.Timestamp...),
		}
		cp.Value.Set(&p.Value)
		c.AttachPrice(cp)
	}
	sort.Slice(c.Prices, func(i, j int) bool { return c.Prices[i].Currency < c.Prices[j].Currency })
	return c
}

// session implements store.Store over the shared Store.
type session struct {
	m      *Store
	closed bool
	inTx   bool
}

// Compile-time check that session implements store.Store.
var _ store.Store = (*session)(nil)

func (s *session) check() error {
	if s.closed {
		return fmt.Errorf("session is closed")
	}
	return nil
}

func (s *session) CountOccurrences(_ context.Context) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return len(s.m.occurrences), nil
}

func (s *session) CreateOccurrence(_ context.Context, o *model.Occurrence) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := model.ValidateOccurrence(o); err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	s.m.nextID++
	o.ID = s.m.nextID
	o.Timestamp = s.m.nextToken()
	if o.Prices == nil {
		o.Prices = []*model.Price{}
	}
	s.m.occurrences[o.ID] = clone(o)
	return nil
}

func (s *session) GetOccurrence(_ context.Context, id int) (*model.Occurrence, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	o, ok := s.m.occurrences[id]
	if !ok {
		return nil, fmt.Errorf("occurrence %d: %w", id, store.ErrNotFound)
	}
	return clone(o), nil
}

func (s *session) UpdateOccurrence(_ context.Context, o *model.Occurrence) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := model.ValidateOccurrence(o); err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	cur, ok := s.m.occurrences[o.ID]
	if !ok || !cur.Timestamp.Equal(o.Timestamp) {
		return fmt.Errorf("update occurrence %d: %w", o.ID, store.ErrConcurrencyConflict)
	}
	cur.Title = o.Title
	cur.Timestamp = s.m.nextToken()
	o.Timestamp = append(model.RowVersion(nil), cur.Timestamp...)
	return nil
}

func (s *session) AddPrice(_ context.Context, p *model.Price) error {
	if err := s.check(); err != nil {
		return err
	}
	p.Currency = model.NormalizeCurrency(p.Currency)
	if err := model.ValidatePrice(p); err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	o, ok := s.m.occurrences[p.OccurrenceID]
	if !ok {
		return fmt.Errorf("add price: occurrence %d: %w", p.OccurrenceID, store.ErrNotFound)
	}
	for _, existing := range o.Prices {
		if existing.Currency == p.Currency {
			return fmt.Errorf("add price %s for occurrence %d: %w", p.Currency, p.OccurrenceID, store.ErrAlreadyExists)
		}
	}
	p.Timestamp = s.m.nextToken()
	stored := &model.Price{Currency: p.Currency, Timestamp: p.Timestamp}
	stored.Value.Set(&p.Value)
	o.AttachPrice(stored)
	return nil
}

func (s *session) ListOccurrencesWithPrices(_ context.Context) ([]*model.Occurrence, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.m.snapshot(), nil
}

func (s *session) StreamOccurrencesWithPrices(_ context.Context) (store.OccurrenceStream, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return &stream{
		items:    s.m.snapshot(),
		failErr:  s.m.StreamErr,
		failFrom: s.m.StreamErrAfter,
	}, nil
}

// RunInTransaction runs fn against the same session; there is no rollback.
func (s *session) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	if err := s.check(); err != nil {
		return err
	}
	return fn(&session{m: s.m, inTx: true})
}

func (s *session) Close() error {
	if s.inTx || s.closed {
		return nil
	}
	s.closed = true
	s.m.mu.Lock()
	s.m.open--
	s.m.mu.Unlock()
	return nil
}

// stream replays a snapshot, optionally failing part way.
type stream struct {
	items    []*model.Occurrence
	pos      int
	cur      *model.Occurrence
	failErr  error
	failFrom int
	err      error
}

func (st *stream) Next(ctx context.Context) bool {
	if st.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		st.err = err
		st.cur = nil
		return false
	}
	if st.failErr != nil && st.pos >= st.failFrom {
		st.err = st.failErr
		st.cur = nil
		return false
	}
	if st.pos >= len(st.items) {
		st.cur = nil
		return false
	}
	st.cur = st.items[st.pos]
	st.pos++
	return true
}

func (st *stream) Occurrence() *model.Occurrence { return st.cur }
func (st *stream) Err() error                    { return st.err }

func (st *stream) Close() error {
	st.items = nil
	st.cur = nil
	return nil
}
