package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
)

// Interface compliance (compile-time assertions)
var (
	_ core.MemoryProvider = (*InMemoryStore)(nil)
	_ core.MemoryWriter   = (*InMemoryStore)(nil)
)

func TestInMemoryStore_RememberRecall(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryStore()
	require.NoError(t, m.Remember(ctx, "k", "User prefers Go"))
	require.NoError(t, m.Remember(ctx, "k", "Deadline is Friday"))
	require.NoError(t, m.Remember(ctx, "other", "unrelated"))

	facts, err := m.Recall(ctx, "k", "go", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"User prefers Go"}, facts)

	facts, _ = m.Recall(ctx, "k", "", 1)
	assert.Equal(t, []string{"Deadline is Friday"}, facts)

	assert.Error(t, m.Remember(ctx, "k", "   "))
}

func TestInMemoryStore_ContextSummary(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryStore()

	s, err := m.ContextSummary(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, s)

	for i := 0; i < DefaultSummaryFacts+2; i++ {
		require.NoError(t, m.Remember(ctx, "k", fmt.Sprintf("fact %d", i)))
	}
	s, _ = m.ContextSummary(ctx, "k")
	assert.Contains(t, s, "Known facts")
	assert.NotContains(t, s, "fact 0\n")
	assert.Contains(t, s, fmt.Sprintf("fact %d", DefaultSummaryFacts+1))
}

func TestInMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryStore()
	require.NoError(t, m.Remember(ctx, "k", "a"))
	facts := m.Facts("k")
	require.Len(t, facts, 1)

	require.NoError(t, m.Delete("k", facts[0].ID))
	assert.Empty(t, m.Facts("k"))
	assert.ErrorIs(t, m.Delete("k", "does_not_exist"), ErrNotFound)
}

func TestInMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := m.Remember(ctx, "k", fmt.Sprintf("f%d", i)); err != nil {
				t.Errorf("remember error: %v", err)
			}
			if _, err := m.Recall(ctx, "k", "", 5); err != nil {
				t.Errorf("recall error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, m.Facts("k"), 25)
}
