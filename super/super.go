// Package super owns the superblock and the two free bitmaps behind it.
//
// Partition layout, in block order: superblock, inode store, inode-free
// bitmap, block-free bitmap, data region.
package super

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/sysprog21/simplefs-go/alloc"
	"github.com/sysprog21/simplefs-go/buf"
	"github.com/sysprog21/simplefs-go/common"
	"github.com/sysprog21/simplefs-go/util"
)

type Superblock struct {
	Magic          uint32
	NrBlocks       uint32
	NrInodes       uint32
	NrIstoreBlocks uint32
	NrIfreeBlocks  uint32
	NrBfreeBlocks  uint32
	NrFreeInodes   uint32
	NrFreeBlocks   uint32

	Ifree *alloc.Alloc
	Bfree *alloc.Alloc
}

func (sb *Superblock) IstoreStart() common.Bnum { return 1 }
func (sb *Superblock) IfreeStart() common.Bnum  { return 1 + sb.NrIstoreBlocks }
func (sb *Superblock) BfreeStart() common.Bnum {
	return sb.IfreeStart() + sb.NrIfreeBlocks
}
func (sb *Superblock) DataStart() common.Bnum {
	return sb.BfreeStart() + sb.NrBfreeBlocks
}

// InodeBlock returns the inode-store block holding ino's record and the
// record index within it.
func (sb *Superblock) InodeBlock(ino common.Inum) (common.Bnum, uint32) {
	return ino/common.INODEBLK + 1, ino % common.INODEBLK
}

// MkSuperblock derives the full layout from the partition size and inode
// count, for the formatter.
func MkSuperblock(nrBlocks uint32, nrInodes uint32) *Superblock {
	sb := &Superblock{
		Magic:          common.Magic,
		NrBlocks:       nrBlocks,
		NrInodes:       nrInodes,
		NrIstoreBlocks: util.RoundUp(nrInodes*common.INODESZ, common.BlockSize),
		NrIfreeBlocks:  util.RoundUp(nrInodes, common.NBITBLOCK),
		NrBfreeBlocks:  util.RoundUp(nrBlocks, common.NBITBLOCK),
	}
	sb.Ifree = alloc.MkAlloc(sb.IfreeStart(), sb.NrInodes)
	sb.Bfree = alloc.MkAlloc(sb.BfreeStart(), sb.NrBlocks)
	return sb
}

func (sb *Superblock) Encode(blk []byte) {
	enc := marshal.NewEnc(uint64(common.BlockSize))
	enc.PutInt32(sb.Magic)
	enc.PutInt32(sb.NrBlocks)
	enc.PutInt32(sb.NrInodes)
	enc.PutInt32(sb.NrIstoreBlocks)
	enc.PutInt32(sb.NrIfreeBlocks)
	enc.PutInt32(sb.NrBfreeBlocks)
	enc.PutInt32(sb.NrFreeInodes)
	enc.PutInt32(sb.NrFreeBlocks)
	copy(blk, enc.Finish())
}

func decode(blk []byte) *Superblock {
	dec := marshal.NewDec(blk)
	sb := &Superblock{}
	sb.Magic = dec.GetInt32()
	sb.NrBlocks = dec.GetInt32()
	sb.NrInodes = dec.GetInt32()
	sb.NrIstoreBlocks = dec.GetInt32()
	sb.NrIfreeBlocks = dec.GetInt32()
	sb.NrBfreeBlocks = dec.GetInt32()
	sb.NrFreeInodes = dec.GetInt32()
	sb.NrFreeBlocks = dec.GetInt32()
	return sb
}

// Load reads and validates the superblock from block 0 and attaches the
// bitmap allocators.
func Load(c *buf.Cache) (*Superblock, error) {
	b, err := c.ReadBuf(common.NULLBNUM)
	if err != nil {
		return nil, err
	}
	sb := decode(b.Data)
	if sb.Magic != common.Magic {
		return nil, fmt.Errorf("%w: bad magic %#x", common.ErrInval, sb.Magic)
	}
	if sb.NrIstoreBlocks != util.RoundUp(sb.NrInodes*common.INODESZ, common.BlockSize) ||
		sb.NrIfreeBlocks != util.RoundUp(sb.NrInodes, common.NBITBLOCK) ||
		sb.NrBfreeBlocks != util.RoundUp(sb.NrBlocks, common.NBITBLOCK) {
		return nil, fmt.Errorf("%w: inconsistent layout counts", common.ErrInval)
	}
	if 1+sb.NrIstoreBlocks+sb.NrIfreeBlocks+sb.NrBfreeBlocks >= sb.NrBlocks {
		return nil, fmt.Errorf("%w: no data region", common.ErrInval)
	}
	sb.Ifree = alloc.MkAlloc(sb.IfreeStart(), sb.NrInodes)
	sb.Bfree = alloc.MkAlloc(sb.BfreeStart(), sb.NrBlocks)
	util.DPrintf(1, "Load: %d blocks, %d inodes, %d/%d free",
		sb.NrBlocks, sb.NrInodes, sb.NrFreeBlocks, sb.NrFreeInodes)
	return sb, nil
}

// Sync re-encodes the superblock into its cached block.
func (sb *Superblock) Sync(c *buf.Cache) error {
	b, err := c.ReadBuf(common.NULLBNUM)
	if err != nil {
		return err
	}
	sb.Encode(b.Data)
	b.SetDirty()
	return nil
}

// GetFreeInode reserves a free inode number, or 0 when none are left.
func (sb *Superblock) GetFreeInode(c *buf.Cache) (common.Inum, error) {
	if sb.NrFreeInodes == 0 {
		return common.NULLINUM, nil
	}
	ino, err := sb.Ifree.AllocNum(c)
	if err != nil {
		return common.NULLINUM, err
	}
	if ino == 0 {
		return common.NULLINUM, nil
	}
	sb.NrFreeInodes--
	return ino, nil
}

// GetFreeBlocks reserves n contiguous data blocks, or 0 when no run fits.
func (sb *Superblock) GetFreeBlocks(c *buf.Cache, n uint32) (common.Bnum, error) {
	if sb.NrFreeBlocks < n {
		return common.NULLBNUM, nil
	}
	var bno common.Bnum
	var err error
	if n == 1 {
		bno, err = sb.Bfree.AllocNum(c)
	} else {
		bno, err = sb.Bfree.AllocRun(c, n)
	}
	if err != nil {
		return common.NULLBNUM, err
	}
	if bno == 0 {
		return common.NULLBNUM, nil
	}
	sb.NrFreeBlocks -= n
	return bno, nil
}

// PutInode releases ino back to the bitmap.
func (sb *Superblock) PutInode(c *buf.Cache, ino common.Inum) error {
	if err := sb.Ifree.FreeNum(c, ino); err != nil {
		return err
	}
	sb.NrFreeInodes++
	return nil
}

// PutBlocks releases n blocks starting at bno.
func (sb *Superblock) PutBlocks(c *buf.Cache, bno common.Bnum, n uint32) error {
	if err := sb.Bfree.FreeRun(c, bno, n); err != nil {
		return err
	}
	sb.NrFreeBlocks += n
	return nil
}
