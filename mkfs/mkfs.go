// Package mkfs formats a block device: superblock, zeroed inode store,
// free bitmaps with every metadata block reserved, and an empty root
// directory at inode 1.
package mkfs

import (
	"fmt"
	"time"

	"github.com/sysprog21/simplefs-go/buf"
	"github.com/sysprog21/simplefs-go/common"
	"github.com/sysprog21/simplefs-go/disk"
	"github.com/sysprog21/simplefs-go/inode"
	"github.com/sysprog21/simplefs-go/super"
	"github.com/sysprog21/simplefs-go/util"
)

// DefaultInodeRatio is one inode per this many partition blocks when the
// caller does not pick a count.
const DefaultInodeRatio uint32 = 4

// InodeCountFor derives the default inode count for a partition size.
func InodeCountFor(nrBlocks uint32) uint32 {
	n := nrBlocks / DefaultInodeRatio
	if n < common.INODEBLK {
		n = common.INODEBLK
	}
	return n
}

// Format writes a fresh filesystem covering the whole device. nrInodes of
// 0 picks a default from the partition size.
func Format(d disk.Disk, nrInodes uint32) (*super.Superblock, error) {
	sz, err := d.Size()
	if err != nil {
		return nil, err
	}
	nrBlocks := uint32(sz)
	if nrInodes == 0 {
		nrInodes = InodeCountFor(nrBlocks)
	}
	sb := super.MkSuperblock(nrBlocks, nrInodes)
	if sb.DataStart()+1 >= nrBlocks {
		return nil, fmt.Errorf("%w: %d blocks leave no data region", common.ErrInval, nrBlocks)
	}

	c := buf.MkCache(d)
	for bno := sb.IstoreStart(); bno < sb.DataStart(); bno++ {
		c.ZeroBuf(bno)
	}
	for bno := common.Bnum(0); bno < sb.DataStart(); bno++ {
		if err := sb.Bfree.MarkUsed(c, bno); err != nil {
			return nil, err
		}
	}
	if err := sb.Ifree.MarkUsed(c, common.NULLINUM); err != nil {
		return nil, err
	}
	if err := sb.Ifree.MarkUsed(c, common.ROOTINUM); err != nil {
		return nil, err
	}

	rootEi := sb.DataStart()
	if err := sb.Bfree.MarkUsed(c, rootEi); err != nil {
		return nil, err
	}
	c.ZeroBuf(rootEi)
	root := &inode.Inode{
		Ino:     common.ROOTINUM,
		Mode:    common.ModeDir | 0o755,
		Size:    common.BlockSize,
		Blocks:  1,
		Nlink:   2,
		EiBlock: rootEi,
	}
	root.SetTimes(uint32(time.Now().Unix()), true)
	if err := inode.WriteInode(sb, c, root); err != nil {
		return nil, err
	}

	sb.NrFreeInodes = nrInodes - 2
	sb.NrFreeBlocks = nrBlocks - sb.DataStart() - 1
	b := c.ZeroBuf(common.NULLBNUM)
	sb.Encode(b.Data)
	if err := c.Flush(); err != nil {
		return nil, err
	}
	util.DPrintf(1, "Format: %d blocks, %d inodes, data at %d",
		nrBlocks, nrInodes, sb.DataStart())
	return sb, nil
}
