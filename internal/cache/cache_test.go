package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetAndGet(t *testing.T) {
	c := New()
	c.Set("k", 42, time.Minute)

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestGetMissing(t *testing.T) {
	c := New()
	_, ok := c.Get("absent")
	assert.False(t, ok)
}

func TestExpiredEntryIsEvicted(t *testing.T) {
	c := New()
	c.Set("k", "v", -time.Second) // already expired

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestNilValuesAreCacheable(t *testing.T) {
	c := New()
	c.Set("miss", nil, time.Minute)

	v, ok := c.Get("miss")
	assert.True(t, ok, "cached misses must count as hits")
	assert.Nil(t, v)
}

func TestDeleteAndClear(t *testing.T) {
	c := New()
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestOverwriteRefreshesValue(t *testing.T) {
	c := New()
	c.Set("k", 1, time.Minute)
	c.Set("k", 2, time.Minute)

	v, _ := c.Get("k")
	assert.Equal(t, 2, v)
}
