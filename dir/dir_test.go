package dir_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysprog21/simplefs-go/buf"
	"github.com/sysprog21/simplefs-go/common"
	"github.com/sysprog21/simplefs-go/dir"
	"github.com/sysprog21/simplefs-go/disk"
	"github.com/sysprog21/simplefs-go/extent"
	"github.com/sysprog21/simplefs-go/mkfs"
	"github.com/sysprog21/simplefs-go/super"
)

// mkDir formats a small image and hands back a fresh directory index.
func mkDir(t *testing.T) (*buf.Cache, *super.Superblock, *extent.Index) {
	d := disk.NewMemDisk(4096)
	sb, err := mkfs.Format(d, 0)
	assert.Nil(t, err)
	c := buf.MkCache(d)
	bno, err := sb.GetFreeBlocks(c, 1)
	assert.Nil(t, err)
	c.ZeroBuf(bno)
	idx, err := extent.Load(c, bno)
	assert.Nil(t, err)
	return c, sb, idx
}

// checkGapSums decodes every directory block under idx and verifies that
// the run lengths visited by gap traversal cover the block exactly.
func checkGapSums(t *testing.T, c *buf.Cache, idx *extent.Index) {
	for ei := range idx.Extents {
		e := &idx.Extents[ei]
		if e.Empty() {
			break
		}
		for bi := uint32(0); bi < e.EeLen; bi++ {
			b, err := c.ReadBuf(e.EeStart + bi)
			assert.Nil(t, err)
			db := dir.DecodeBlock(b.Blkno, b.Data)
			var sum, live uint32
			for fi := uint32(0); fi < common.FilesPerBlock; {
				f := &db.Files[fi]
				assert.NotEqual(t, uint32(0), f.NrBlk, "zero run length at slot %d", fi)
				sum += f.NrBlk
				if f.Inode != common.NULLINUM {
					live++
				}
				fi += f.NrBlk
			}
			assert.Equal(t, common.FilesPerBlock, sum)
			assert.Equal(t, db.NrFiles, live)
		}
	}
}

func TestInsertLookup(t *testing.T) {
	c, sb, idx := mkDir(t)
	err := dir.Insert(c, sb, idx, "a.txt", 7)
	assert.Nil(t, err)
	assert.Equal(t, uint32(1), idx.NrFiles)
	assert.Equal(t, uint32(1), idx.Extents[0].NrFiles)

	ino, err := dir.Lookup(c, idx, "a.txt")
	assert.Nil(t, err)
	assert.Equal(t, common.Inum(7), ino)

	_, err = dir.Lookup(c, idx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
	checkGapSums(t, c, idx)
}

func TestInsertFillsBlockThenSpills(t *testing.T) {
	c, sb, idx := mkDir(t)
	for i := uint32(0); i < common.FilesPerBlock+1; i++ {
		err := dir.Insert(c, sb, idx, fmt.Sprintf("f%02d", i), 10+i)
		assert.Nil(t, err)
	}
	assert.Equal(t, common.FilesPerBlock+1, idx.NrFiles)
	assert.Equal(t, common.FilesPerBlock+1, idx.Extents[0].NrFiles)

	// first block holds FPB entries, the spill lands in block 1
	b0, err := c.ReadBuf(idx.Extents[0].EeStart)
	assert.Nil(t, err)
	assert.Equal(t, common.FilesPerBlock, dir.DecodeBlock(b0.Blkno, b0.Data).NrFiles)
	b1, err := c.ReadBuf(idx.Extents[0].EeStart + 1)
	assert.Nil(t, err)
	assert.Equal(t, uint32(1), dir.DecodeBlock(b1.Blkno, b1.Data).NrFiles)

	for i := uint32(0); i < common.FilesPerBlock+1; i++ {
		ino, err := dir.Lookup(c, idx, fmt.Sprintf("f%02d", i))
		assert.Nil(t, err)
		assert.Equal(t, common.Inum(10+i), ino)
	}
	checkGapSums(t, c, idx)
}

func TestRemoveMergesGap(t *testing.T) {
	c, sb, idx := mkDir(t)
	for i := uint32(0); i < 5; i++ {
		err := dir.Insert(c, sb, idx, fmt.Sprintf("f%d", i), 10+i)
		assert.Nil(t, err)
	}
	err := dir.Remove(c, sb, idx, "f2", 12)
	assert.Nil(t, err)
	assert.Equal(t, uint32(4), idx.NrFiles)
	_, err = dir.Lookup(c, idx, "f2")
	assert.ErrorIs(t, err, common.ErrNotFound)
	checkGapSums(t, c, idx)

	// the freed slot is reused
	err = dir.Insert(c, sb, idx, "again", 99)
	assert.Nil(t, err)
	ino, err := dir.Lookup(c, idx, "again")
	assert.Nil(t, err)
	assert.Equal(t, common.Inum(99), ino)
	checkGapSums(t, c, idx)

	for _, want := range []struct {
		name string
		ino  common.Inum
	}{{"f0", 10}, {"f1", 11}, {"f3", 13}, {"f4", 14}} {
		ino, err := dir.Lookup(c, idx, want.name)
		assert.Nil(t, err)
		assert.Equal(t, want.ino, ino)
	}
}

func TestRemoveFirstSlot(t *testing.T) {
	c, sb, idx := mkDir(t)
	for i := uint32(0); i < 3; i++ {
		err := dir.Insert(c, sb, idx, fmt.Sprintf("f%d", i), 10+i)
		assert.Nil(t, err)
	}
	err := dir.Remove(c, sb, idx, "f0", 10)
	assert.Nil(t, err)
	checkGapSums(t, c, idx)

	err = dir.Insert(c, sb, idx, "head", 50)
	assert.Nil(t, err)
	ino, err := dir.Lookup(c, idx, "head")
	assert.Nil(t, err)
	assert.Equal(t, common.Inum(50), ino)
	checkGapSums(t, c, idx)
}

func TestRemoveMissing(t *testing.T) {
	c, sb, idx := mkDir(t)
	err := dir.Insert(c, sb, idx, "a", 7)
	assert.Nil(t, err)
	err = dir.Remove(c, sb, idx, "b", 8)
	assert.ErrorIs(t, err, common.ErrNotFound)
	err = dir.Remove(c, sb, idx, "a", 9)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRemoveAllThenReuse(t *testing.T) {
	c, sb, idx := mkDir(t)
	for i := uint32(0); i < 4; i++ {
		err := dir.Insert(c, sb, idx, fmt.Sprintf("f%d", i), 10+i)
		assert.Nil(t, err)
	}
	for i := uint32(0); i < 4; i++ {
		err := dir.Remove(c, sb, idx, fmt.Sprintf("f%d", i), 10+i)
		assert.Nil(t, err)
	}
	assert.Equal(t, uint32(0), idx.NrFiles)
	checkGapSums(t, c, idx)

	err := dir.Insert(c, sb, idx, "fresh", 77)
	assert.Nil(t, err)
	ino, err := dir.Lookup(c, idx, "fresh")
	assert.Nil(t, err)
	assert.Equal(t, common.Inum(77), ino)
	checkGapSums(t, c, idx)
}

func TestProvisionOnSecondExtent(t *testing.T) {
	c, sb, idx := mkDir(t)
	freeBefore := sb.NrFreeBlocks
	for i := uint32(0); i < common.FilesPerExtent; i++ {
		err := dir.Insert(c, sb, idx, fmt.Sprintf("f%03d", i), 10+i)
		assert.Nil(t, err)
	}
	assert.Equal(t, freeBefore-common.MaxBlocksPerExtent, sb.NrFreeBlocks)
	assert.True(t, idx.Extents[1].Empty())

	err := dir.Insert(c, sb, idx, "overflow", 999)
	assert.Nil(t, err)
	assert.False(t, idx.Extents[1].Empty())
	assert.Equal(t, common.MaxBlocksPerExtent, idx.Extents[1].EeBlock)
	assert.Equal(t, uint32(1), idx.Extents[1].NrFiles)
	assert.Equal(t, freeBefore-2*common.MaxBlocksPerExtent, sb.NrFreeBlocks)

	ino, err := dir.Lookup(c, idx, "overflow")
	assert.Nil(t, err)
	assert.Equal(t, common.Inum(999), ino)
	checkGapSums(t, c, idx)
}

func TestInsertAtCapacity(t *testing.T) {
	c, sb, idx := mkDir(t)
	for i := uint32(0); i < common.MaxSubfiles; i++ {
		err := dir.Insert(c, sb, idx, fmt.Sprintf("f%05d", i), common.Inum(2+i))
		require.Nil(t, err, "insert %d", i)
	}
	assert.Equal(t, common.MaxSubfiles, idx.NrFiles)
	for ei := range idx.Extents {
		assert.Equal(t, common.FilesPerExtent, idx.Extents[ei].NrFiles)
	}

	err := dir.Insert(c, sb, idx, "overflow", 999999)
	assert.ErrorIs(t, err, common.ErrLinkLimit)
	checkGapSums(t, c, idx)

	// removing one entry makes room again
	err = dir.Remove(c, sb, idx, "f00000", 2)
	assert.Nil(t, err)
	err = dir.Insert(c, sb, idx, "overflow", 999999)
	assert.Nil(t, err)
	assert.Equal(t, common.MaxSubfiles, idx.NrFiles)
}

func TestRenameInPlace(t *testing.T) {
	c, sb, idx := mkDir(t)
	err := dir.Insert(c, sb, idx, "old", 7)
	assert.Nil(t, err)
	err = dir.RenameInPlace(c, idx, "old", "new", 7)
	assert.Nil(t, err)
	_, err = dir.Lookup(c, idx, "old")
	assert.ErrorIs(t, err, common.ErrNotFound)
	ino, err := dir.Lookup(c, idx, "new")
	assert.Nil(t, err)
	assert.Equal(t, common.Inum(7), ino)
	assert.Equal(t, uint32(1), idx.NrFiles)
}

func TestReaddir(t *testing.T) {
	c, sb, idx := mkDir(t)
	names := []string{"c", "a", "b"}
	for i, n := range names {
		err := dir.Insert(c, sb, idx, n, common.Inum(10+i))
		assert.Nil(t, err)
	}
	ents, err := dir.Readdir(c, idx)
	assert.Nil(t, err)
	assert.Equal(t, 3, len(ents))
	assert.Equal(t, "c", ents[0].Name)
	assert.Equal(t, "a", ents[1].Name)
	assert.Equal(t, "b", ents[2].Name)
}
