// Package extent implements the per-object extent-index block.
//
// Every file and directory owns exactly one index block: a 32-bit entry
// count followed by MaxExtents fixed-size extent records. Empty records
// (EeStart == 0) form a contiguous suffix, and logical ranges are ordered
// and non-overlapping.
package extent

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/sysprog21/simplefs-go/buf"
	"github.com/sysprog21/simplefs-go/common"
)

// NoExtent is returned by searches that find no slot.
const NoExtent uint32 = ^uint32(0)

type Extent struct {
	EeBlock uint32      // first logical block covered
	EeLen   uint32      // blocks covered, 1..MaxBlocksPerExtent
	EeStart common.Bnum // first physical block, 0 when empty
	NrFiles uint32      // live directory entries in this extent
}

func (e *Extent) Empty() bool {
	return e.EeStart == common.NULLBNUM
}

// Index is the decoded form of one extent-index block. Bno remembers which
// block it came from so Store can write it back.
type Index struct {
	Bno     common.Bnum
	NrFiles uint32
	Extents [common.MaxExtents]Extent
}

func Decode(bno common.Bnum, blk []byte) *Index {
	dec := marshal.NewDec(blk)
	idx := &Index{Bno: bno}
	idx.NrFiles = dec.GetInt32()
	for i := range idx.Extents {
		idx.Extents[i].EeBlock = dec.GetInt32()
		idx.Extents[i].EeLen = dec.GetInt32()
		idx.Extents[i].EeStart = dec.GetInt32()
		idx.Extents[i].NrFiles = dec.GetInt32()
	}
	return idx
}

func (idx *Index) Encode(blk []byte) {
	enc := marshal.NewEnc(uint64(common.BlockSize))
	enc.PutInt32(idx.NrFiles)
	for i := range idx.Extents {
		enc.PutInt32(idx.Extents[i].EeBlock)
		enc.PutInt32(idx.Extents[i].EeLen)
		enc.PutInt32(idx.Extents[i].EeStart)
		enc.PutInt32(idx.Extents[i].NrFiles)
	}
	copy(blk, enc.Finish())
}

// Load reads and decodes the index block at bno.
func Load(c *buf.Cache, bno common.Bnum) (*Index, error) {
	if bno == common.NULLBNUM {
		return nil, fmt.Errorf("%w: no extent index block", common.ErrInval)
	}
	b, err := c.ReadBuf(bno)
	if err != nil {
		return nil, err
	}
	return Decode(bno, b.Data), nil
}

// Store encodes the index back into its cached block and marks it dirty.
func (idx *Index) Store(c *buf.Cache) error {
	b, err := c.ReadBuf(idx.Bno)
	if err != nil {
		return err
	}
	idx.Encode(b.Data)
	b.SetDirty()
	return nil
}

// Search returns the extent covering logical block lblk, or NoExtent.
func (idx *Index) Search(lblk uint32) uint32 {
	for i := range idx.Extents {
		e := &idx.Extents[i]
		if e.Empty() {
			break
		}
		if e.EeBlock <= lblk && lblk < e.EeBlock+e.EeLen {
			return uint32(i)
		}
	}
	return NoExtent
}

// AvailableIdx picks the extent slot a new directory entry should go to:
// the first non-empty extent with room, else the first empty slot, else the
// slot after the last live entry. liveCount is the directory's total entry
// count. Returns NoExtent when the index is full.
func (idx *Index) AvailableIdx(liveCount uint32) uint32 {
	remaining := int64(liveCount)
	avail := NoExtent
	for i := uint32(0); i < common.MaxExtents; i++ {
		e := &idx.Extents[i]
		if !e.Empty() && e.NrFiles != common.FilesPerExtent {
			avail = i
			break
		} else if e.Empty() {
			if avail == NoExtent {
				avail = i
			}
		} else {
			remaining -= int64(e.NrFiles)
			if avail == NoExtent && remaining == 0 {
				avail = i + 1
			}
		}
		if remaining == 0 {
			break
		}
	}
	if avail >= common.MaxExtents {
		return NoExtent
	}
	return avail
}

// LastLogical returns the logical block just past the extent before slot i,
// which is where a freshly provisioned extent at i begins.
func (idx *Index) LastLogical(i uint32) uint32 {
	if i == 0 {
		return 0
	}
	prev := &idx.Extents[i-1]
	return prev.EeBlock + prev.EeLen
}
