package buf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sysprog21/simplefs-go/buf"
	"github.com/sysprog21/simplefs-go/disk"
)

func TestReadBufIdentity(t *testing.T) {
	d := disk.NewMemDisk(16)
	c := buf.MkCache(d)
	a, err := c.ReadBuf(3)
	assert.Nil(t, err)
	b, err := c.ReadBuf(3)
	assert.Nil(t, err)
	assert.True(t, a == b)
	assert.False(t, a.IsDirty())
}

func TestDirtyWriteBack(t *testing.T) {
	d := disk.NewMemDisk(16)
	c := buf.MkCache(d)
	b, err := c.ReadBuf(5)
	assert.Nil(t, err)
	b.Data[0] = 0xab
	b.SetDirty()
	assert.Equal(t, uint64(1), c.NDirty())
	err = c.Flush()
	assert.Nil(t, err)
	assert.Equal(t, uint64(0), c.NDirty())

	c2 := buf.MkCache(d)
	b2, err := c2.ReadBuf(5)
	assert.Nil(t, err)
	assert.Equal(t, byte(0xab), b2.Data[0])
}

func TestDirtyNotVisibleBeforeFlush(t *testing.T) {
	d := disk.NewMemDisk(16)
	c := buf.MkCache(d)
	b, err := c.ReadBuf(5)
	assert.Nil(t, err)
	b.Data[0] = 0xab
	b.SetDirty()

	c2 := buf.MkCache(d)
	b2, err := c2.ReadBuf(5)
	assert.Nil(t, err)
	assert.Equal(t, byte(0), b2.Data[0])
}

func TestZeroBuf(t *testing.T) {
	d := disk.NewMemDisk(16)
	c := buf.MkCache(d)
	b, err := c.ReadBuf(2)
	assert.Nil(t, err)
	b.Data[7] = 0xff
	b.SetDirty()

	z := c.ZeroBuf(2)
	assert.True(t, z == b)
	assert.Equal(t, byte(0), z.Data[7])
	assert.True(t, z.IsDirty())
}

func TestFlushBlock(t *testing.T) {
	d := disk.NewMemDisk(16)
	c := buf.MkCache(d)
	b := c.ZeroBuf(4)
	b.Data[0] = 1
	err := c.FlushBlock(4)
	assert.Nil(t, err)
	assert.False(t, b.IsDirty())
	assert.Equal(t, uint64(0), c.NDirty())

	// flushing a clean or uncached block is a no-op
	err = c.FlushBlock(4)
	assert.Nil(t, err)
	err = c.FlushBlock(9)
	assert.Nil(t, err)
}

func TestReadBufOutOfRange(t *testing.T) {
	d := disk.NewMemDisk(16)
	c := buf.MkCache(d)
	_, err := c.ReadBuf(16)
	assert.NotNil(t, err)
}
