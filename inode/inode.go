// Package inode reads and writes the inode store.
//
// Records are INODESZ bytes, INODEBLK per block, starting at the block
// after the superblock. Inode 0 is reserved; the root directory is inode 1.
// In-memory inodes are identity-mapped: Iget returns the same *Inode for
// the same ino until Forget drops it, so field updates by concurrent
// operations land on one object.
package inode

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/sysprog21/simplefs-go/buf"
	"github.com/sysprog21/simplefs-go/common"
	"github.com/sysprog21/simplefs-go/super"
	"github.com/sysprog21/simplefs-go/util"
)

type Inode struct {
	Ino common.Inum

	Mode    common.Mode
	Uid     uint32
	Gid     uint32
	Size    uint32
	Ctime   uint32
	Atime   uint32
	Mtime   uint32
	Blocks  uint32
	Nlink   uint32
	EiBlock common.Bnum
	Data    [common.SymlinkLen]byte
}

// reserved pad bytes after Data, up to INODESZ
const padLen = common.INODESZ - 10*4 - common.SymlinkLen

func (ip *Inode) Encode() []byte {
	enc := marshal.NewEnc(uint64(common.INODESZ))
	enc.PutInt32(ip.Mode)
	enc.PutInt32(ip.Uid)
	enc.PutInt32(ip.Gid)
	enc.PutInt32(ip.Size)
	enc.PutInt32(ip.Ctime)
	enc.PutInt32(ip.Atime)
	enc.PutInt32(ip.Mtime)
	enc.PutInt32(ip.Blocks)
	enc.PutInt32(ip.Nlink)
	enc.PutInt32(ip.EiBlock)
	enc.PutBytes(ip.Data[:])
	enc.PutBytes(make([]byte, padLen))
	return enc.Finish()
}

func Decode(ino common.Inum, rec []byte) *Inode {
	dec := marshal.NewDec(rec)
	ip := &Inode{Ino: ino}
	ip.Mode = dec.GetInt32()
	ip.Uid = dec.GetInt32()
	ip.Gid = dec.GetInt32()
	ip.Size = dec.GetInt32()
	ip.Ctime = dec.GetInt32()
	ip.Atime = dec.GetInt32()
	ip.Mtime = dec.GetInt32()
	ip.Blocks = dec.GetInt32()
	ip.Nlink = dec.GetInt32()
	ip.EiBlock = dec.GetInt32()
	copy(ip.Data[:], dec.GetBytes(uint64(common.SymlinkLen)))
	return ip
}

// SetTimes stamps ctime/mtime and optionally atime with now.
func (ip *Inode) SetTimes(now uint32, atime bool) {
	ip.Ctime = now
	ip.Mtime = now
	if atime {
		ip.Atime = now
	}
}

// Symlink returns the target path stored inline, without trailing NULs.
func (ip *Inode) Symlink() string {
	n := 0
	for n < len(ip.Data) && ip.Data[n] != 0 {
		n++
	}
	return string(ip.Data[:n])
}

// SetSymlink stores target inline. The caller checks the length bound.
func (ip *Inode) SetSymlink(target string) {
	if uint32(len(target)) >= common.SymlinkLen {
		panic("SetSymlink: target too long")
	}
	for i := range ip.Data {
		ip.Data[i] = 0
	}
	copy(ip.Data[:], target)
}

// ReadInode decodes ino's record straight from the inode store.
func ReadInode(sb *super.Superblock, c *buf.Cache, ino common.Inum) (*Inode, error) {
	if ino == common.NULLINUM || ino >= sb.NrInodes {
		return nil, fmt.Errorf("%w: inode %d out of range", common.ErrInval, ino)
	}
	bno, off := sb.InodeBlock(ino)
	b, err := c.ReadBuf(bno)
	if err != nil {
		return nil, err
	}
	rec := b.Data[off*common.INODESZ : (off+1)*common.INODESZ]
	return Decode(ino, rec), nil
}

// WriteInode encodes ip back into its inode-store block.
func WriteInode(sb *super.Superblock, c *buf.Cache, ip *Inode) error {
	bno, off := sb.InodeBlock(ip.Ino)
	b, err := c.ReadBuf(bno)
	if err != nil {
		return err
	}
	copy(b.Data[off*common.INODESZ:(off+1)*common.INODESZ], ip.Encode())
	b.SetDirty()
	util.DPrintf(5, "WriteInode: %d nlink %d size %d", ip.Ino, ip.Nlink, ip.Size)
	return nil
}
