package blockcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResizeGrowKeepsExistingBlocks(t *testing.T) {
	c := New(4)
	c.Resize(2)
	c.SetBlock(0, []byte{1, 2, 3, 4})

	c.Resize(3)
	assert.Equal(t, 3, c.NumBlocks())
	assert.Equal(t, []byte{1, 2, 3, 4}, c.BlockAt(0))
	assert.Nil(t, c.BlockAt(1))
	assert.Nil(t, c.BlockAt(2))
}

func TestResizeShrinkDropsTrailingBlocks(t *testing.T) {
	c := New(4)
	c.Resize(3)
	c.SetBlock(0, []byte{1, 2, 3, 4})
	c.SetBlock(2, []byte{5, 6, 7, 8})

	c.Resize(1)
	assert.Equal(t, 1, c.NumBlocks())
	assert.Equal(t, []byte{1, 2, 3, 4}, c.BlockAt(0))
}

func TestClearBlockMarksAbsent(t *testing.T) {
	c := New(4)
	c.Resize(1)
	c.SetBlock(0, []byte{1, 2, 3, 4})
	assert.False(t, c.IsSynced())

	c.ClearBlock(0)
	assert.Nil(t, c.BlockAt(0))
	assert.True(t, c.IsSynced())
}

func TestResetDropsAllBlocks(t *testing.T) {
	c := New(4)
	c.Resize(2)
	c.SetBlock(0, []byte{1, 2, 3, 4})
	c.Reset()
	assert.Equal(t, 0, c.NumBlocks())
	assert.True(t, c.IsSynced())
}

func TestAllocBlockIsZeroedAndSized(t *testing.T) {
	c := New(8)
	b := c.AllocBlock()
	assert.Len(t, b, 8)
	for _, v := range b {
		assert.Equal(t, byte(0), v)
	}
}
