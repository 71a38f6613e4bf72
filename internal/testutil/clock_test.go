package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_FrozenUntilAdvanced(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start, c.Now(), "reading the clock must not advance it")

	c.Advance(15 * time.Minute)
	assert.Equal(t, start.Add(15*time.Minute), c.Now())
}

func TestFakeClock_Set(t *testing.T) {
	c := NewFakeClock(time.Unix(0, 0))
	target := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	c.Set(target)
	assert.Equal(t, target, c.Now())
}

func TestFixedIDGenerator_Sequential(t *testing.T) {
	g := NewFixedIDGenerator("entry")

	assert.Equal(t, "entry-1", g.Generate())
	assert.Equal(t, "entry-2", g.Generate())
	assert.Equal(t, "entry-3", g.Generate())
}

func TestFixedIDGenerator_DefaultPrefix(t *testing.T) {
	g := NewFixedIDGenerator("")
	assert.Equal(t, "entry-1", g.Generate())
}
