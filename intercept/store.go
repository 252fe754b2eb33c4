package intercept

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ysmood/gson"
)

// Payload is one decoded response.
type Payload struct {
	Class     Class
	URL       string
	Method    string
	Status    int
	Headers   http.Header
	Timestamp time.Time
	Body      gson.JSON

	seq uint64
}

// Store accumulates payloads for one URL, keyed by class then source URL.
// A later response for the same key replaces the earlier one. A sealed
// store drops everything until the next Begin.
type Store struct {
	mu       sync.RWMutex
	byClass  map[Class]map[string]*Payload
	failures []*DecodeError
	seq      uint64
	sealed   bool
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{byClass: make(map[Class]map[string]*Payload)}
}

// Put stores p and reports the payload it replaced, if any. It returns
// false when the store is sealed and p was dropped.
func (s *Store) Put(p *Payload) (replaced *Payload, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return nil, false
	}

	m, found := s.byClass[p.Class]
	if !found {
		m = make(map[string]*Payload)
		s.byClass[p.Class] = m
	}
	s.seq++
	p.seq = s.seq
	replaced = m[p.URL]
	m[p.URL] = p
	return replaced, true
}

// RecordFailure keeps a decode failure for the current URL.
func (s *Store) RecordFailure(err *DecodeError) {
	s.mu.Lock()
	if !s.sealed {
		s.failures = append(s.failures, err)
	}
	s.mu.Unlock()
}

// Failures returns the decode failures recorded since the last Reset.
func (s *Store) Failures() []*DecodeError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*DecodeError(nil), s.failures...)
}

// Len is the number of stored payloads across all classes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.byClass {
		n += len(m)
	}
	return n
}

// Reset drops every payload and failure.
func (s *Store) Reset() {
	s.mu.Lock()
	s.clear()
	s.mu.Unlock()
}

// Begin clears the store and opens it for the next URL.
func (s *Store) Begin() {
	s.mu.Lock()
	s.clear()
	s.sealed = false
	s.mu.Unlock()
}

// Seal clears the store and drops payloads until the next Begin.
func (s *Store) Seal() {
	s.mu.Lock()
	s.clear()
	s.sealed = true
	s.mu.Unlock()
}

// Accepting reports whether the store is open.
func (s *Store) Accepting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.sealed
}

func (s *Store) clear() {
	s.byClass = make(map[Class]map[string]*Payload)
	s.failures = nil
}

// Snapshot copies the current maps. Stored payloads are never mutated after
// Put, so sharing the pointers is safe.
func (s *Store) Snapshot() Payloads {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Payloads{byClass: make(map[Class][]*Payload, len(s.byClass))}
	for c, m := range s.byClass {
		list := make([]*Payload, 0, len(m))
		for _, p := range m {
			list = append(list, p)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
		out.byClass[c] = list
	}
	return out
}

// Payloads is a read-only view of a Store, each class in arrival order.
type Payloads struct {
	byClass map[Class][]*Payload
}

// NewPayloads builds a view from loose payloads, in the given order.
// Later entries with the same class and URL replace earlier ones.
func NewPayloads(ps ...*Payload) Payloads {
	s := NewStore()
	for _, p := range ps {
		cp := *p
		s.Put(&cp)
	}
	return s.Snapshot()
}

// Class returns the payloads of class c in arrival order.
func (p Payloads) Class(c Class) []*Payload {
	return p.byClass[c]
}

// Len counts payloads across classes.
func (p Payloads) Len() int {
	n := 0
	for _, l := range p.byClass {
		n += len(l)
	}
	return n
}

// Find returns the first payload of class c accepted by match.
func (p Payloads) Find(c Class, match func(*Payload) bool) *Payload {
	for _, pl := range p.byClass[c] {
		if match(pl) {
			return pl
		}
	}
	return nil
}
