package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoExpiry(t *testing.T) {
	m := NewMemo[string](0)
	defer m.Stop()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Set("k", "v", time.Minute)
	v, ok := m.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	now = now.Add(2 * time.Minute)
	_, ok = m.Get("k")
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestMemoCleanup(t *testing.T) {
	m := NewMemo[int](0)
	defer m.Stop()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	m.Set("a", 1, time.Minute)
	m.Set("b", 2, time.Hour)

	now = now.Add(10 * time.Minute)
	m.cleanup()
	assert.Equal(t, 1, m.Len())
}

func TestKeyIsStable(t *testing.T) {
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
	assert.NotEqual(t, Key("ab", ""), Key("a", "b"))
}
