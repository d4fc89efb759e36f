package kv

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStore_GetSet(t *testing.T) {
	s := New[string, int]()

	s.Set("foo", 42)
	val, ok := s.Get("foo")
	assert.True(t, ok)
	assert.Equal(t, 42, val)

	_, ok = s.Get("bar")
	assert.False(t, ok)
}

func TestStore_Delete(t *testing.T) {
	s := New[string, string]()
	s.Set("key", "value")

	s.Delete("key")

	_, ok := s.Get("key")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestStore_Upsert(t *testing.T) {
	s := New[string, int]()

	got := s.Upsert("n", func(old int, exists bool) int {
		assert.False(t, exists)
		return old + 1
	})
	assert.Equal(t, 1, got)

	got = s.Upsert("n", func(old int, exists bool) int {
		assert.True(t, exists)
		return old + 1
	})
	assert.Equal(t, 2, got)
}

func TestStore_Range(t *testing.T) {
	s := New[string, int]()
	s.Set("a", 1)
	s.Set("b", 2)
	s.Set("c", 3)

	sum := 0
	s.Range(func(_ string, v int) bool {
		sum += v
		return true
	})
	assert.Equal(t, 6, sum)

	visited := 0
	s.Range(func(string, int) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
}

func TestStore_ConcurrentUpserts(t *testing.T) {
	s := New[string, int]()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Upsert("k", func(old int, _ bool) int { return old + 1 })
		}()
	}
	wg.Wait()

	v, _ := s.Get("k")
	assert.Equal(t, 50, v)
}
