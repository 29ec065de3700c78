package memory_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/memory"
)

func turn(role memory.Role, content string) memory.Turn {
	return memory.Turn{Role: role, Content: content, Timestamp: time.Now()}
}

func TestHistoryUnknownSessionIsEmpty(t *testing.T) {
	store := memory.NewStore(memory.Config{Window: 3}, nil)

	assert.Empty(t, store.History("nope"))
	// Reading must not create the session.
	assert.Equal(t, 0, store.Len())
}

func TestAppendExchangeAndHistory(t *testing.T) {
	store := memory.NewStore(memory.Config{Window: 3}, nil)

	store.AppendExchange("s1", turn(memory.RoleUser, "hello"), turn(memory.RoleAssistant, "hi there"))

	history := store.History("s1")
	require.Len(t, history, 2)
	assert.Equal(t, memory.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, memory.RoleAssistant, history[1].Role)
	assert.Equal(t, "hi there", history[1].Content)
}

func TestMaxTurnsDropsOldest(t *testing.T) {
	store := memory.NewStore(memory.Config{Window: 3, MaxTurns: 4}, nil)

	for i := 0; i < 5; i++ {
		store.AppendExchange("s1",
			turn(memory.RoleUser, fmt.Sprintf("q%d", i)),
			turn(memory.RoleAssistant, fmt.Sprintf("a%d", i)))
	}

	history := store.History("s1")
	require.Len(t, history, 4)
	assert.Equal(t, "q3", history[0].Content)
	assert.Equal(t, "a4", history[3].Content)
}

func TestWindowLimitsExchanges(t *testing.T) {
	store := memory.NewStore(memory.Config{Window: 2}, nil)

	for i := 0; i < 5; i++ {
		store.AppendExchange("s1",
			turn(memory.RoleUser, fmt.Sprintf("q%d", i)),
			turn(memory.RoleAssistant, fmt.Sprintf("a%d", i)))
	}

	window := store.Window("s1")
	require.Len(t, window, 4)
	assert.Equal(t, "q3", window[0].Content)
	assert.Equal(t, "a4", window[3].Content)
}

func TestRecentContextFormatting(t *testing.T) {
	store := memory.NewStore(memory.Config{Window: 3}, nil)

	assert.Equal(t, "", store.RecentContext("empty"))

	store.AppendExchange("s1", turn(memory.RoleUser, "what is Go?"), turn(memory.RoleAssistant, "a language"))

	want := "Human: what is Go?\nAssistant: a language"
	assert.Equal(t, want, store.RecentContext("s1"))
}

func TestClear(t *testing.T) {
	store := memory.NewStore(memory.Config{Window: 3}, nil)

	store.AppendExchange("s1", turn(memory.RoleUser, "q"), turn(memory.RoleAssistant, "a"))

	assert.True(t, store.Clear("s1"))
	assert.False(t, store.Clear("s1"))
	assert.Empty(t, store.History("s1"))
}

func TestClearAllAndListActive(t *testing.T) {
	store := memory.NewStore(memory.Config{Window: 3}, nil)

	store.AppendExchange("s1", turn(memory.RoleUser, "q"), turn(memory.RoleAssistant, "a"))
	store.AppendExchange("s2", turn(memory.RoleUser, "q"), turn(memory.RoleAssistant, "a"))

	assert.ElementsMatch(t, []string{"s1", "s2"}, store.ListActive())
	assert.Equal(t, 2, store.ClearAll())
	assert.Equal(t, 0, store.Len())
}

func TestHistoryIsACopy(t *testing.T) {
	store := memory.NewStore(memory.Config{Window: 3}, nil)
	store.AppendExchange("s1", turn(memory.RoleUser, "q"), turn(memory.RoleAssistant, "a"))

	history := store.History("s1")
	history[0].Content = "mutated"

	assert.Equal(t, "q", store.History("s1")[0].Content)
}

func TestConcurrentAppendsKeepPairsAdjacent(t *testing.T) {
	store := memory.NewStore(memory.Config{Window: 3}, nil)

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("x%d", i)
			store.AppendExchange("shared", turn(memory.RoleUser, id), turn(memory.RoleAssistant, id))
		}(i)
	}
	wg.Wait()

	history := store.History("shared")
	require.Len(t, history, workers*2)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, memory.RoleUser, history[i].Role)
		assert.Equal(t, memory.RoleAssistant, history[i+1].Role)
		// Each exchange commits atomically, so the pair shares content.
		assert.Equal(t, history[i].Content, history[i+1].Content)
	}
}

func TestEvictIdleSessions(t *testing.T) {
	store := memory.NewStore(memory.Config{Window: 3, IdleTTL: time.Minute}, nil)

	store.AppendExchange("old", turn(memory.RoleUser, "q"), turn(memory.RoleAssistant, "a"))

	// Nothing is older than the TTL yet.
	assert.Equal(t, 0, store.EvictIdleAt(time.Now()))

	future := time.Now().Add(2 * time.Minute)
	require.Equal(t, 1, store.EvictIdleAt(future))
	assert.Equal(t, 0, store.Len())
}
