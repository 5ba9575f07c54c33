package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUSetGet(t *testing.T) {
	c := NewLRUCache(4)
	c.Set("a", []byte("1"), time.Minute)

	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache(2)
	c.Set("a", []byte("1"), time.Minute)
	c.Set("b", []byte("2"), time.Minute)

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Set("c", []byte("3"), time.Minute)

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRUCache(4)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("a", []byte("1"), 10*time.Second)

	now = now.Add(5 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	now = now.Add(6 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUReplaceKeepsCapacity(t *testing.T) {
	c := NewLRUCache(2)
	c.Set("a", []byte("1"), time.Minute)
	c.Set("a", []byte("2"), time.Minute)
	c.Set("b", []byte("3"), time.Minute)

	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []byte("2"), got)
	assert.Equal(t, 2, c.Len())
}

func TestLRUDelete(t *testing.T) {
	c := NewLRUCache(2)
	c.Set("a", []byte("1"), time.Minute)
	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	c.Delete("a") // absent key is a no-op
}
