package pipeline

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionContext(t *testing.T) {
	t.Run("seeded values are readable", func(t *testing.T) {
		ec := NewExecutionContext(map[string]interface{}{"batch": "2025-11-03"})

		v, ok := ec.Get("batch")
		assert.True(t, ok)
		assert.Equal(t, "2025-11-03", v)
	})

	t.Run("seed map is copied not retained", func(t *testing.T) {
		seed := map[string]interface{}{"k": 1}
		ec := NewExecutionContext(seed)
		seed["k"] = 2

		v, _ := ec.Get("k")
		assert.Equal(t, 1, v)
	})

	t.Run("set overwrites", func(t *testing.T) {
		ec := NewExecutionContext(nil)
		ec.Set("k", 1)
		ec.Set("k", 2)

		v, _ := ec.Get("k")
		assert.Equal(t, 2, v)
		assert.Equal(t, 1, ec.Len())
	})

	t.Run("snapshot is detached", func(t *testing.T) {
		ec := NewExecutionContext(map[string]interface{}{"k": 1})
		snap := ec.Snapshot()
		ec.Set("k", 2)

		assert.Equal(t, 1, snap["k"])
	})

	t.Run("concurrent access is serialized", func(t *testing.T) {
		ec := NewExecutionContext(nil)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ec.Set(fmt.Sprintf("key-%d", i), i)
				ec.Snapshot()
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 50, ec.Len())
	})
}
