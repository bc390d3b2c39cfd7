// Package alloc implements the free bitmaps. An Alloc covers a range of
// bitmap backing blocks; bit n lives in block start+n/NBITBLOCK at bit
// offset n%NBITBLOCK. Allocation is first-fit: the lowest free index wins.
package alloc

import (
	"math/bits"

	"github.com/sysprog21/simplefs-go/buf"
	"github.com/sysprog21/simplefs-go/common"
	"github.com/sysprog21/simplefs-go/util"
)

const NBITBLOCK uint32 = common.NBITBLOCK

type Alloc struct {
	start common.Bnum // first bitmap backing block
	nbits uint32      // number of valid bits
}

func MkAlloc(start common.Bnum, nbits uint32) *Alloc {
	return &Alloc{
		start: start,
		nbits: nbits,
	}
}

// NBlocks is the number of bitmap backing blocks.
func (a *Alloc) NBlocks() uint32 {
	return util.RoundUp(a.nbits, NBITBLOCK)
}

func bitIsSet(blk []byte, bit uint32) bool {
	return blk[bit/8]&(1<<(bit%8)) != 0
}

func setBit(b *buf.Buf, bit uint32) {
	b.Data[bit/8] |= 1 << (bit % 8)
	b.SetDirty()
}

// Free bit n in b
func freeBit(b *buf.Buf, bit uint32) {
	if b.Data[bit/8]&(1<<(bit%8)) == 0 {
		panic("freeBit: bit already free")
	}
	b.Data[bit/8] &= ^byte(1 << (bit % 8))
	b.SetDirty()
}

func (a *Alloc) blockFor(n uint32) common.Bnum {
	return a.start + n/NBITBLOCK
}

// AllocNum returns the first free bit, marking it used. Returns 0 when the
// bitmap is exhausted; callers must have bit 0 permanently reserved so 0
// can mean "none".
func (a *Alloc) AllocNum(c *buf.Cache) (uint32, error) {
	for i := uint32(0); i < a.NBlocks(); i++ {
		b, err := c.ReadBuf(a.start + i)
		if err != nil {
			return 0, err
		}
		for bit := uint32(0); bit < NBITBLOCK; bit++ {
			n := i*NBITBLOCK + bit
			if n >= a.nbits {
				return 0, nil
			}
			if !bitIsSet(b.Data, bit) {
				setBit(b, bit)
				util.DPrintf(10, "AllocNum: %d", n)
				return n, nil
			}
		}
	}
	return 0, nil
}

// AllocRun returns the first run of n consecutive free bits, marking them
// used. Runs may span backing blocks. Returns 0 when no run fits.
func (a *Alloc) AllocRun(c *buf.Cache, n uint32) (uint32, error) {
	if n == 0 {
		panic("AllocRun: zero-length run")
	}
	var runStart uint32
	var runLen uint32
	for num := uint32(0); num < a.nbits; num++ {
		b, err := c.ReadBuf(a.blockFor(num))
		if err != nil {
			return 0, err
		}
		if bitIsSet(b.Data, num%NBITBLOCK) {
			runLen = 0
			continue
		}
		if runLen == 0 {
			runStart = num
		}
		runLen++
		if runLen == n {
			if err := a.markRun(c, runStart, n); err != nil {
				return 0, err
			}
			util.DPrintf(10, "AllocRun: %d+%d", runStart, n)
			return runStart, nil
		}
	}
	return 0, nil
}

func (a *Alloc) markRun(c *buf.Cache, start uint32, n uint32) error {
	for num := start; num < start+n; num++ {
		b, err := c.ReadBuf(a.blockFor(num))
		if err != nil {
			return err
		}
		setBit(b, num%NBITBLOCK)
	}
	return nil
}

// MarkUsed sets bit n unconditionally, for reserving metadata at format
// time.
func (a *Alloc) MarkUsed(c *buf.Cache, n uint32) error {
	if n >= a.nbits {
		panic("MarkUsed: out of range")
	}
	b, err := c.ReadBuf(a.blockFor(n))
	if err != nil {
		return err
	}
	setBit(b, n%NBITBLOCK)
	return nil
}

// FreeNum clears bit n. Freeing a free bit is a bug in the caller.
func (a *Alloc) FreeNum(c *buf.Cache, n uint32) error {
	if n >= a.nbits {
		panic("FreeNum: out of range")
	}
	b, err := c.ReadBuf(a.blockFor(n))
	if err != nil {
		return err
	}
	freeBit(b, n%NBITBLOCK)
	return nil
}

// FreeRun clears n bits starting at start.
func (a *Alloc) FreeRun(c *buf.Cache, start uint32, n uint32) error {
	for num := start; num < start+n; num++ {
		if err := a.FreeNum(c, num); err != nil {
			return err
		}
	}
	return nil
}

func popCnt(b byte) uint32 {
	return uint32(bits.OnesCount8(b))
}

// NumFree counts zero bits over the valid range.
func (a *Alloc) NumFree(c *buf.Cache) (uint32, error) {
	var free uint32
	num := uint32(0)
	for num < a.nbits {
		b, err := c.ReadBuf(a.blockFor(num))
		if err != nil {
			return 0, err
		}
		if num%8 == 0 && num+8 <= a.nbits {
			free += 8 - popCnt(b.Data[(num%NBITBLOCK)/8])
			num += 8
			continue
		}
		if !bitIsSet(b.Data, num%NBITBLOCK) {
			free++
		}
		num++
	}
	return free, nil
}
