package extent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sysprog21/simplefs-go/buf"
	"github.com/sysprog21/simplefs-go/common"
	"github.com/sysprog21/simplefs-go/disk"
	"github.com/sysprog21/simplefs-go/extent"
)

func TestEncodeDecode(t *testing.T) {
	idx := &extent.Index{Bno: 9, NrFiles: 17}
	idx.Extents[0] = extent.Extent{EeBlock: 0, EeLen: 8, EeStart: 100, NrFiles: 15}
	idx.Extents[1] = extent.Extent{EeBlock: 8, EeLen: 8, EeStart: 200, NrFiles: 2}

	blk := make([]byte, common.BlockSize)
	idx.Encode(blk)
	idx2 := extent.Decode(9, blk)
	assert.Equal(t, idx, idx2)
}

func TestLoadStore(t *testing.T) {
	d := disk.NewMemDisk(16)
	c := buf.MkCache(d)
	idx, err := extent.Load(c, 3)
	assert.Nil(t, err)
	assert.Equal(t, uint32(0), idx.NrFiles)

	idx.NrFiles = 5
	idx.Extents[0] = extent.Extent{EeLen: 8, EeStart: 8, NrFiles: 5}
	err = idx.Store(c)
	assert.Nil(t, err)

	idx2, err := extent.Load(c, 3)
	assert.Nil(t, err)
	assert.Equal(t, idx, idx2)

	_, err = extent.Load(c, common.NULLBNUM)
	assert.ErrorIs(t, err, common.ErrInval)
}

func TestSearch(t *testing.T) {
	idx := &extent.Index{}
	idx.Extents[0] = extent.Extent{EeBlock: 0, EeLen: 8, EeStart: 100}
	idx.Extents[1] = extent.Extent{EeBlock: 8, EeLen: 4, EeStart: 200}

	assert.Equal(t, uint32(0), idx.Search(0))
	assert.Equal(t, uint32(0), idx.Search(7))
	assert.Equal(t, uint32(1), idx.Search(8))
	assert.Equal(t, uint32(1), idx.Search(11))
	assert.Equal(t, extent.NoExtent, idx.Search(12))
}

func TestAvailableIdxEmpty(t *testing.T) {
	idx := &extent.Index{}
	assert.Equal(t, uint32(0), idx.AvailableIdx(0))
}

func TestAvailableIdxPartial(t *testing.T) {
	idx := &extent.Index{NrFiles: 10}
	idx.Extents[0] = extent.Extent{EeLen: 8, EeStart: 100, NrFiles: 10}
	assert.Equal(t, uint32(0), idx.AvailableIdx(idx.NrFiles))
}

func TestAvailableIdxFullExtent(t *testing.T) {
	idx := &extent.Index{NrFiles: common.FilesPerExtent}
	idx.Extents[0] = extent.Extent{EeLen: 8, EeStart: 100, NrFiles: common.FilesPerExtent}
	assert.Equal(t, uint32(1), idx.AvailableIdx(idx.NrFiles))
}

func TestAvailableIdxSkipsFull(t *testing.T) {
	idx := &extent.Index{NrFiles: common.FilesPerExtent + 3}
	idx.Extents[0] = extent.Extent{EeLen: 8, EeStart: 100, NrFiles: common.FilesPerExtent}
	idx.Extents[1] = extent.Extent{EeBlock: 8, EeLen: 8, EeStart: 200, NrFiles: 3}
	assert.Equal(t, uint32(1), idx.AvailableIdx(idx.NrFiles))
}

func TestLastLogical(t *testing.T) {
	idx := &extent.Index{}
	assert.Equal(t, uint32(0), idx.LastLogical(0))
	idx.Extents[0] = extent.Extent{EeBlock: 0, EeLen: 8, EeStart: 100}
	assert.Equal(t, uint32(8), idx.LastLogical(1))
}
