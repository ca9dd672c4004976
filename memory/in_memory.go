package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultSummaryFacts is the number of most recent facts rendered by ContextSummary.
const DefaultSummaryFacts = 10

// ErrNotFound is returned when deleting an unknown fact.
var ErrNotFound = errors.New("memory not found")

// Fact is one remembered statement.
type Fact struct {
	ID        string
	Content   string
	CreatedAt time.Time
}

// InMemoryStore is a naive process-local memory provider.
//
// Concurrency: protected by RWMutex.
// Recall: linear scan with case-insensitive substring matching, newest first.
// Suitable for tests and single-process agents.
type InMemoryStore struct {
	mu      sync.RWMutex
	facts   map[string][]Fact // conversation key -> facts in insertion order
	nextID  int
	summary int
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		facts:   make(map[string][]Fact),
		summary: DefaultSummaryFacts,
	}
}

// Remember appends a fact for the conversation.
func (m *InMemoryStore) Remember(_ context.Context, key, fact string) error {
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return fmt.Errorf("empty fact")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.facts[key] = append(m.facts[key], Fact{
		ID:        fmt.Sprintf("mem_%d", m.nextID),
		Content:   fact,
		CreatedAt: time.Now(),
	})
	return nil
}

// Recall returns up to limit facts containing query, newest first. An empty
// query matches everything.
func (m *InMemoryStore) Recall(_ context.Context, key, query string, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(query)
	facts := m.facts[key]
	out := make([]string, 0, min(limit, len(facts)))
	for i := len(facts) - 1; i >= 0 && len(out) < limit; i-- {
		if q == "" || strings.Contains(strings.ToLower(facts[i].Content), q) {
			out = append(out, facts[i].Content)
		}
	}
	return out, nil
}

// Facts returns a copy of every fact stored for the conversation.
func (m *InMemoryStore) Facts(key string) []Fact {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Fact(nil), m.facts[key]...)
}

// Delete removes a fact by id.
func (m *InMemoryStore) Delete(key, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	facts := m.facts[key]
	for i, f := range facts {
		if f.ID == id {
			m.facts[key] = append(facts[:i], facts[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// ContextSummary renders the most recent facts, oldest first, or "" when the
// conversation has none.
func (m *InMemoryStore) ContextSummary(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	facts := m.facts[key]
	if len(facts) > m.summary {
		facts = facts[len(facts)-m.summary:]
	}
	contents := make([]string, len(facts))
	for i, f := range facts {
		contents[i] = f.Content
	}
	return Summarize(contents), nil
}

// Summarize renders facts as the system note injected into a conversation.
func Summarize(facts []string) string {
	if len(facts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known facts from earlier conversations:")
	for _, f := range facts {
		b.WriteString("\n- ")
		b.WriteString(f)
	}
	return b.String()
}
