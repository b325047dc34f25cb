package memory

import (
	"sync"
	"time"

	"localcog/internal/domain"
)

// DefaultCapacity is the number of turns kept per session.
const DefaultCapacity = 50

// ShortTerm keeps the most recent turns of every session in memory.
type ShortTerm struct {
	capacity int

	mu       sync.Mutex
	sessions map[string][]domain.Turn
}

func NewShortTerm(capacity int) *ShortTerm {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ShortTerm{capacity: capacity, sessions: make(map[string][]domain.Turn)}
}

// Capacity returns the per-session turn limit.
func (m *ShortTerm) Capacity() int { return m.capacity }

// Add appends a turn, dropping the oldest once the session is full.
func (m *ShortTerm) Add(session string, role domain.Role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := append(m.sessions[session], domain.Turn{Role: role, Content: content, At: time.Now()})
	if over := len(turns) - m.capacity; over > 0 {
		turns = append(turns[:0:0], turns[over:]...)
	}
	m.sessions[session] = turns
}

// Seed replaces the turns of a session that holds none yet. It reports
// whether the turns were used.
func (m *ShortTerm) Seed(session string, turns []domain.Turn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions[session]) > 0 {
		return false
	}
	if over := len(turns) - m.capacity; over > 0 {
		turns = turns[over:]
	}
	m.sessions[session] = append([]domain.Turn(nil), turns...)
	return true
}

// Get returns a copy of the session's turns, oldest first.
func (m *ShortTerm) Get(session string) []domain.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Turn(nil), m.sessions[session]...)
}

// Len returns how many turns the session holds.
func (m *ShortTerm) Len(session string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions[session])
}

func (m *ShortTerm) Clear(session string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, session)
}
