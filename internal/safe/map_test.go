package safe_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/autom8ter/masedb/internal/safe"
	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
)

func Test(t *testing.T) {
	m := safe.NewMap[map[string]any](nil)
	assert.False(t, m.Exists("1"))
	for i := 0; i < 10; i++ {
		m.Set(fmt.Sprint(i), map[string]any{
			"value": i,
		})
	}
	assert.Equal(t, 10, m.Len())
	for i := 0; i < 10; i++ {
		assert.True(t, m.Exists(fmt.Sprint(i)))
		entry, ok := m.Get(fmt.Sprint(i))
		assert.True(t, ok)
		assert.Equal(t, entry["value"], i)
	}
	m.Range(func(key string, entry map[string]any) bool {
		assert.Equal(t, entry["value"], cast.ToInt(key))
		return true
	})
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}, m.Keys())
	for i := 0; i < 10; i++ {
		m.Del(fmt.Sprint(i))
	}
	for i := 0; i < 10; i++ {
		assert.False(t, m.Exists(fmt.Sprint(i)))
	}
	_, ok := m.Get("missing")
	assert.False(t, ok)
}

func TestSetNX(t *testing.T) {
	m := safe.NewMap[int](nil)
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if m.SetNX("key", i) {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, won)
}

func TestDelFunc(t *testing.T) {
	m := safe.NewMap(map[string]int{"a": 1, "b": 2})
	assert.False(t, m.DelFunc("a", func(v int) bool { return v > 1 }))
	assert.True(t, m.DelFunc("b", func(v int) bool { return v > 1 }))
	assert.False(t, m.DelFunc("c", func(v int) bool { return true }))
	assert.Equal(t, []string{"a"}, m.Keys())
}
