package fs

import (
	"fmt"

	"github.com/sysprog21/simplefs-go/buf"
	"github.com/sysprog21/simplefs-go/common"
	"github.com/sysprog21/simplefs-go/extent"
	"github.com/sysprog21/simplefs-go/inode"
	"github.com/sysprog21/simplefs-go/util"
)

// mapBlock translates a logical file block to a physical block. With alloc
// set, a missing mapping is backed by a fresh extent of MaxBlocksPerExtent
// contiguous blocks appended after the file's last extent. Without alloc,
// holes map to NULLBNUM. Caller holds the inode lock.
func (fs *Fs) mapBlock(ip *inode.Inode, lblk uint32, alloc bool) (common.Bnum, error) {
	if lblk >= common.MaxExtents*common.MaxBlocksPerExtent {
		return common.NULLBNUM, fmt.Errorf("%w: block %d past file size cap", common.ErrInval, lblk)
	}
	idx, err := extent.Load(fs.c, ip.EiBlock)
	if err != nil {
		return common.NULLBNUM, err
	}
	if i := idx.Search(lblk); i != extent.NoExtent {
		e := &idx.Extents[i]
		return e.EeStart + (lblk - e.EeBlock), nil
	}
	if !alloc {
		return common.NULLBNUM, nil
	}
	ei := uint32(0)
	for ei < common.MaxExtents && !idx.Extents[ei].Empty() {
		ei++
	}
	if ei == common.MaxExtents {
		return common.NULLBNUM, common.ErrNoSpace
	}
	start := idx.LastLogical(ei)
	if lblk < start || lblk >= start+common.MaxBlocksPerExtent {
		return common.NULLBNUM, fmt.Errorf("%w: sparse write at block %d", common.ErrInval, lblk)
	}
	bno, err := fs.sb.GetFreeBlocks(fs.c, common.MaxBlocksPerExtent)
	if err != nil {
		return common.NULLBNUM, err
	}
	if bno == common.NULLBNUM {
		return common.NULLBNUM, common.ErrNoSpace
	}
	e := &idx.Extents[ei]
	e.EeStart = bno
	e.EeLen = common.MaxBlocksPerExtent
	e.EeBlock = start
	e.NrFiles = 0
	for bi := uint32(0); bi < e.EeLen; bi++ {
		fs.c.ZeroBuf(e.EeStart + bi)
	}
	if err := idx.Store(fs.c); err != nil {
		return common.NULLBNUM, err
	}
	ip.Blocks += common.MaxBlocksPerExtent
	if err := inode.WriteInode(fs.sb, fs.c, ip); err != nil {
		return common.NULLBNUM, err
	}
	util.DPrintf(5, "mapBlock: ino %d extent %d at %d", ip.Ino, ei, bno)
	return e.EeStart + (lblk - e.EeBlock), nil
}

// GetBlock maps logical block lblk of a regular file, allocating backing
// blocks when alloc is set. NULLBNUM means a hole.
func (fs *Fs) GetBlock(ino common.Inum, lblk uint32, alloc bool) (common.Bnum, error) {
	fs.locks.Acquire(ino)
	defer fs.locks.Release(ino)
	ip, err := fs.itab.Iget(fs.sb, fs.c, ino)
	if err != nil {
		return common.NULLBNUM, err
	}
	if !common.IsReg(ip.Mode) {
		return common.NULLBNUM, fmt.Errorf("%w: inode %d is not a regular file", common.ErrInval, ino)
	}
	return fs.mapBlock(ip, lblk, alloc)
}

// WriteAt writes p at byte offset off, growing the file as needed. Writes
// past the file size cap are truncated to it.
func (fs *Fs) WriteAt(ino common.Inum, off uint64, p []byte) (int, error) {
	fs.locks.Acquire(ino)
	defer fs.locks.Release(ino)
	ip, err := fs.itab.Iget(fs.sb, fs.c, ino)
	if err != nil {
		return 0, err
	}
	if !common.IsReg(ip.Mode) {
		return 0, fmt.Errorf("%w: inode %d is not a regular file", common.ErrInval, ino)
	}
	if off >= common.MaxFilesize {
		return 0, common.ErrNoSpace
	}
	if off+uint64(len(p)) > common.MaxFilesize {
		p = p[:common.MaxFilesize-off]
	}
	n := 0
	var werr error
	for n < len(p) {
		lblk := uint32(off / uint64(common.BlockSize))
		boff := uint32(off % uint64(common.BlockSize))
		var bno common.Bnum
		bno, werr = fs.mapBlock(ip, lblk, true)
		if werr != nil {
			break
		}
		var b *buf.Buf
		b, werr = fs.c.ReadBuf(bno)
		if werr != nil {
			break
		}
		cnt := copy(b.Data[boff:], p[n:])
		b.SetDirty()
		n += cnt
		off += uint64(cnt)
	}
	if n > 0 {
		if uint32(off) > ip.Size {
			ip.Size = uint32(off)
		}
		ip.SetTimes(fs.clock(), false)
		if err := inode.WriteInode(fs.sb, fs.c, ip); err != nil {
			return n, err
		}
		if err := fs.sb.Sync(fs.c); err != nil {
			return n, err
		}
	}
	if n < len(p) {
		return n, werr
	}
	return n, nil
}

// ReadAt reads up to len(p) bytes at byte offset off. Holes read as
// zeroes; reads past the file size are clipped.
func (fs *Fs) ReadAt(ino common.Inum, off uint64, p []byte) (int, error) {
	fs.locks.Acquire(ino)
	defer fs.locks.Release(ino)
	ip, err := fs.itab.Iget(fs.sb, fs.c, ino)
	if err != nil {
		return 0, err
	}
	if !common.IsReg(ip.Mode) {
		return 0, fmt.Errorf("%w: inode %d is not a regular file", common.ErrInval, ino)
	}
	size := uint64(ip.Size)
	if off >= size {
		return 0, nil
	}
	if off+uint64(len(p)) > size {
		p = p[:size-off]
	}
	n := 0
	for n < len(p) {
		lblk := uint32(off / uint64(common.BlockSize))
		boff := uint32(off % uint64(common.BlockSize))
		bno, err := fs.mapBlock(ip, lblk, false)
		if err != nil {
			return n, err
		}
		var cnt int
		if bno == common.NULLBNUM {
			end := uint64(common.BlockSize - boff)
			if end > uint64(len(p)-n) {
				end = uint64(len(p) - n)
			}
			for i := 0; i < int(end); i++ {
				p[n+i] = 0
			}
			cnt = int(end)
		} else {
			b, err := fs.c.ReadBuf(bno)
			if err != nil {
				return n, err
			}
			cnt = copy(p[n:], b.Data[boff:])
		}
		n += cnt
		off += uint64(cnt)
	}
	return n, nil
}
