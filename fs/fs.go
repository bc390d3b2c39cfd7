// Package fs ties the on-disk structures together into the filesystem
// proper: mount, namespace operations, and the file data path.
//
// Concurrency contract: namespace operations lock the directories they
// change through the per-inode lock map, both of them in ascending inode
// order for a cross-directory rename; the inode a name refers to is not
// locked separately. Stat, SetAttr, ReadLink and the file data path lock
// the inode they work on. Under those locks the extent index and
// directory blocks of a directory are accessed exclusively.
package fs

import (
	"fmt"
	"time"

	"github.com/sysprog21/simplefs-go/buf"
	"github.com/sysprog21/simplefs-go/common"
	"github.com/sysprog21/simplefs-go/disk"
	"github.com/sysprog21/simplefs-go/extent"
	"github.com/sysprog21/simplefs-go/inode"
	"github.com/sysprog21/simplefs-go/lockmap"
	"github.com/sysprog21/simplefs-go/super"
	"github.com/sysprog21/simplefs-go/util"
)

type Fs struct {
	d     disk.Disk
	c     *buf.Cache
	sb    *super.Superblock
	itab  *inode.Itable
	locks *lockmap.LockMap
	clock func() uint32
}

// Mount loads and validates the superblock from d.
func Mount(d disk.Disk) (*Fs, error) {
	c := buf.MkCache(d)
	sb, err := super.Load(c)
	if err != nil {
		return nil, err
	}
	fs := &Fs{
		d:     d,
		c:     c,
		sb:    sb,
		itab:  inode.MkItable(),
		locks: lockmap.MkLockMap(),
		clock: func() uint32 { return uint32(time.Now().Unix()) },
	}
	util.DPrintf(1, "Mount: %d blocks, %d inodes", sb.NrBlocks, sb.NrInodes)
	return fs, nil
}

// Super exposes the mounted superblock for inspection tools.
func (fs *Fs) Super() *super.Superblock {
	return fs.sb
}

// Flush writes the superblock and all dirty cached blocks to the device.
func (fs *Fs) Flush() error {
	if err := fs.sb.Sync(fs.c); err != nil {
		return err
	}
	return fs.c.Flush()
}

// Close flushes and releases the device.
func (fs *Fs) Close() error {
	if err := fs.Flush(); err != nil {
		return err
	}
	return fs.d.Close()
}

// Stat returns a copy of ino's in-memory inode.
func (fs *Fs) Stat(ino common.Inum) (inode.Inode, error) {
	fs.locks.Acquire(ino)
	defer fs.locks.Release(ino)
	ip, err := fs.itab.Iget(fs.sb, fs.c, ino)
	if err != nil {
		return inode.Inode{}, err
	}
	return *ip, nil
}

// Statfs reports total and free counts for blocks and inodes.
func (fs *Fs) Statfs() (nrBlocks, freeBlocks, nrInodes, freeInodes uint32) {
	return fs.sb.NrBlocks, fs.sb.NrFreeBlocks, fs.sb.NrInodes, fs.sb.NrFreeInodes
}

func (fs *Fs) getDir(ino common.Inum) (*inode.Inode, *extent.Index, error) {
	ip, err := fs.itab.Iget(fs.sb, fs.c, ino)
	if err != nil {
		return nil, nil, err
	}
	if !common.IsDir(ip.Mode) {
		return nil, nil, fmt.Errorf("%w: inode %d", common.ErrNotDir, ino)
	}
	idx, err := extent.Load(fs.c, ip.EiBlock)
	if err != nil {
		return nil, nil, err
	}
	return ip, idx, nil
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", common.ErrInval)
	}
	if uint32(len(name)) > common.FilenameLen {
		return common.ErrNameTooLong
	}
	return nil
}

// dirLocks returns the sorted lock set for a pair of directories.
func dirLocks(a, b common.Inum) []common.Inum {
	if a > b {
		a, b = b, a
	}
	if a == b {
		return []common.Inum{a}
	}
	return []common.Inum{a, b}
}
