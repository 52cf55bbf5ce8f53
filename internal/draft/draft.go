// Package draft stages registration data between wizard steps. It replaces the
// browser-local ad hoc storage handoff with typed records held in a short-lived
// in-process store.
package draft

import (
	"sync"
	"time"

	"vacenf.org/internal/ids"
	"vacenf.org/internal/registry"
)

// Registration is the staged two-step professional registration: personal data
// first, address second. The password is staged already hashed.
type Registration struct {
	Nome       string           `json:"nome"`
	Registro   string           `json:"registro"`
	Ocupacao   string           `json:"ocupacao"`
	Email      string           `json:"email"`
	Nascimento time.Time        `json:"nascimento"`
	CPF        string           `json:"cpf"`
	Admin      bool             `json:"admin"`
	SenhaHash  string           `json:"-"`
	Endereco   registry.Address `json:"endereco"`
	HasAddress bool             `json:"hasEndereco"`
}

type entry struct {
	reg       Registration
	expiresAt time.Time
}

// Store keeps drafts for the lifetime of one wizard flow. Expired drafts are
// collected by a background janitor.
type Store struct {
	mu    sync.Mutex
	items map[string]entry
	ttl   time.Duration
	stop  chan struct{}
	once  sync.Once
}

// NewStore creates a store whose drafts expire after ttl.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	s := &Store{
		items: make(map[string]entry),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Put stages a new draft and returns its identifier.
func (s *Store) Put(reg Registration) string {
	id := ids.New()
	s.mu.Lock()
	s.items[id] = entry{reg: reg, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return id
}

// Get returns a staged draft if it exists and has not expired.
func (s *Store) Get(id string) (Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok || time.Now().After(e.expiresAt) {
		delete(s.items, id)
		return Registration{}, false
	}
	return e.reg, true
}

// Update replaces a staged draft, extending its lifetime.
func (s *Store) Update(id string, reg Registration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok || time.Now().After(e.expiresAt) {
		delete(s.items, id)
		return false
	}
	s.items[id] = entry{reg: reg, expiresAt: time.Now().Add(s.ttl)}
	return true
}

// Delete removes a draft after commit or cancellation.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Close stops the janitor.
func (s *Store) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *Store) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for id, e := range s.items {
				if now.After(e.expiresAt) {
					delete(s.items, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
