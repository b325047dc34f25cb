package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localcog/internal/domain"
	"localcog/internal/logger"
)

func TestShortTerm_RingKeepsNewest(t *testing.T) {
	m := NewShortTerm(3)
	for i := 0; i < 5; i++ {
		m.Add("s", domain.RoleUser, fmt.Sprintf("m%d", i))
	}

	turns := m.Get("s")
	require.Len(t, turns, 3)
	assert.Equal(t, "m2", turns[0].Content)
	assert.Equal(t, "m4", turns[2].Content)
	assert.Empty(t, m.Get("other"))
}

func TestShortTerm_GetReturnsCopy(t *testing.T) {
	m := NewShortTerm(0)
	assert.Equal(t, DefaultCapacity, m.Capacity())
	m.Add("s", domain.RoleUser, "hello")

	turns := m.Get("s")
	turns[0].Content = "changed"
	assert.Equal(t, "hello", m.Get("s")[0].Content)

	m.Clear("s")
	assert.Equal(t, 0, m.Len("s"))
}

func TestShortTerm_SeedOnlyWhenEmpty(t *testing.T) {
	m := NewShortTerm(2)
	seed := []domain.Turn{
		{Role: domain.RoleUser, Content: "a"},
		{Role: domain.RoleAssistant, Content: "b"},
		{Role: domain.RoleUser, Content: "c"},
	}
	assert.True(t, m.Seed("s", seed))
	assert.Equal(t, []string{"b", "c"}, contents(m.Get("s")))
	assert.False(t, m.Seed("s", seed[:1]))
}

func TestShortTerm_ConcurrentSessions(t *testing.T) {
	m := NewShortTerm(50)
	var wg sync.WaitGroup
	for s := 0; s < 4; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Add(fmt.Sprintf("s%d", s), domain.RoleUser, "x")
			}
		}(s)
	}
	wg.Wait()
	for s := 0; s < 4; s++ {
		assert.Equal(t, 50, m.Len(fmt.Sprintf("s%d", s)))
	}
}

func TestLongTerm_AddAndRecent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "memory.sqlite3")
	lt, err := OpenLongTerm(path, 1000, logger.Nop())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, lt.Add(ctx, "s1", domain.RoleUser, fmt.Sprintf("q%d", i)))
		require.NoError(t, lt.Add(ctx, "s1", domain.RoleAssistant, fmt.Sprintf("a%d", i)))
	}
	require.NoError(t, lt.Add(ctx, "s2", domain.RoleUser, "elsewhere"))

	recent, err := lt.Recent(ctx, "s1", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a3", "q4", "a4"}, contents(recent))
	assert.Equal(t, domain.RoleAssistant, recent[2].Role)
	assert.False(t, recent[0].At.IsZero())

	all, err := lt.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 10)
	require.NoError(t, lt.Close())

	reopened, err := OpenLongTerm(path, 1000, logger.Nop())
	require.NoError(t, err)
	defer reopened.Close()
	other, err := reopened.Recent(ctx, "s2", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"elsewhere"}, contents(other))
}

func contents(turns []domain.Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Content
	}
	return out
}
