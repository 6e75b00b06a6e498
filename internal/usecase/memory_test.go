package usecase_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"news-rag/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationMemory_WindowEvictsOldestTurn(t *testing.T) {
	memory := usecase.NewConversationMemory(3)

	for i := 1; i <= 5; i++ {
		memory.Append("conv-1", usecase.Turn{Query: fmt.Sprintf("q%d", i)})
	}

	turns := memory.History("conv-1")
	require.Len(t, turns, 3)
	assert.Equal(t, "q3", turns[0].Query)
	assert.Equal(t, "q5", turns[2].Query)
}

func TestConversationMemory_SessionsAreIsolated(t *testing.T) {
	memory := usecase.NewConversationMemory(10)

	memory.Append("conv-a", usecase.Turn{Query: "about chips"})
	memory.Append("conv-b", usecase.Turn{Query: "about energy"})

	require.Len(t, memory.History("conv-a"), 1)
	require.Len(t, memory.History("conv-b"), 1)
	assert.Equal(t, "about chips", memory.History("conv-a")[0].Query)
	assert.Nil(t, memory.History("conv-unknown"))
}

func TestConversationMemory_ClearDropsSession(t *testing.T) {
	memory := usecase.NewConversationMemory(10)
	memory.Append("conv-a", usecase.Turn{Query: "q"})

	memory.Clear("conv-a")

	assert.Nil(t, memory.History("conv-a"))
	assert.Equal(t, 0, memory.Sessions())
}

func TestConversationMemory_EmptyIDIsIgnored(t *testing.T) {
	memory := usecase.NewConversationMemory(10)
	memory.Append("", usecase.Turn{Query: "q"})

	assert.Equal(t, 0, memory.Sessions())
}

func TestConversationMemory_SweepIdleDropsStaleSessions(t *testing.T) {
	memory := usecase.NewConversationMemory(10)
	memory.Append("conv-a", usecase.Turn{Query: "q"})

	// A zero idle window makes every session stale immediately.
	removed := memory.SweepIdle(0)

	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, memory.Sessions())
}

func TestConversationMemory_SweepIdleKeepsActiveSessions(t *testing.T) {
	memory := usecase.NewConversationMemory(10)
	memory.Append("conv-a", usecase.Turn{Query: "q"})

	removed := memory.SweepIdle(time.Hour)

	assert.Equal(t, 0, removed)
	assert.Len(t, memory.History("conv-a"), 1)
}

func TestConversationMemory_ConcurrentAppends(t *testing.T) {
	memory := usecase.NewConversationMemory(100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			memory.Append("conv-1", usecase.Turn{Query: "q"})
			_ = memory.History("conv-1")
		}()
	}
	wg.Wait()

	assert.Len(t, memory.History("conv-1"), 50)
}
