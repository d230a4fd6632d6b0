package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameCacheWriteOnce(t *testing.T) {
	c := newFrameCache(10)

	first := &Frame{Index: 3, Timestamp: 100}
	assert.True(t, c.put(first))
	assert.False(t, c.put(&Frame{Index: 3, Timestamp: 999}), "second insert dropped")
	assert.Same(t, first, c.get(3))
	assert.Equal(t, 1, c.len())
}

func TestFrameCacheFrontier(t *testing.T) {
	c := newFrameCache(5)
	assert.Equal(t, -1, c.frontier())

	c.put(&Frame{Index: 0})
	c.put(&Frame{Index: 1})
	c.put(&Frame{Index: 3})
	assert.Equal(t, 1, c.frontier(), "gap at 2 stops the frontier")

	c.put(&Frame{Index: 2})
	assert.Equal(t, 3, c.frontier())

	c.put(&Frame{Index: 4})
	assert.Equal(t, 4, c.frontier())

	c.reset()
	assert.Equal(t, -1, c.frontier())
	assert.Equal(t, 0, c.len())
	assert.Nil(t, c.get(0))
}
