package idx

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewIsSortableAndUnique(t *testing.T) {
	t.Parallel()

	const n = 1000
	ids := make([]string, n)
	for i := range ids {
		ids[i] = New().String()
	}

	seen := make(map[string]bool, n)
	for _, id := range ids {
		require.Len(t, id, 26)
		require.False(t, seen[id])
		seen[id] = true
	}

	require.True(t, sort.StringsAreSorted(ids), "ids minted in order must sort in order")
}

func TestNewAtEmbedsTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	id := NewAt(at)
	require.Equal(t, at, id.Time())
}

func TestParse(t *testing.T) {
	t.Parallel()

	id := New()
	parsed, err := Parse("  " + id.String() + " ")
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = Parse("")
	require.ErrorIs(t, err, ErrInvalid)

	_, err = Parse("not-a-ulid")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestConcurrentGeneration(t *testing.T) {
	t.Parallel()

	const workers, perWorker = 8, 200

	var mu sync.Mutex
	seen := make(map[ID]bool, workers*perWorker)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				id := New()
				mu.Lock()
				require.False(t, seen[id])
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}
