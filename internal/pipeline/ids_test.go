package pipeline

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_Format(t *testing.T) {
	gen := UUIDv7Generator{}

	id := gen.Generate()
	assert.Len(t, id, 36)

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestUUIDv7Generator_Sortable(t *testing.T) {
	gen := UUIDv7Generator{}

	prev := gen.Generate()
	for i := 0; i < 100; i++ {
		next := gen.Generate()
		assert.NotEqual(t, prev, next)
		assert.LessOrEqual(t, prev[:13], next[:13], "timestamp prefix must not decrease")
		prev = next
	}
}

func TestFixedGenerator_Sequence(t *testing.T) {
	gen := NewFixedGenerator("run-1", "item-1")

	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "item-1", gen.Generate())
	assert.PanicsWithValue(t, "FixedGenerator: all ids exhausted", func() { gen.Generate() })
}

func TestFixedGenerator_ThreadSafe(t *testing.T) {
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	gen := NewFixedGenerator(ids...)

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				id := gen.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 100)
}
