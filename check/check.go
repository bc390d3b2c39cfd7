// Package check verifies the structural invariants of an unmounted image:
// bitmap/count agreement, exclusive block ownership, extent ordering, the
// directory gap encoding, and link counts.
package check

import (
	"fmt"

	"github.com/sysprog21/simplefs-go/buf"
	"github.com/sysprog21/simplefs-go/common"
	"github.com/sysprog21/simplefs-go/dir"
	"github.com/sysprog21/simplefs-go/disk"
	"github.com/sysprog21/simplefs-go/extent"
	"github.com/sysprog21/simplefs-go/inode"
	"github.com/sysprog21/simplefs-go/super"
)

type checker struct {
	c  *buf.Cache
	sb *super.Superblock

	problems []string
	owned    map[common.Bnum]common.Inum // data block -> owning inode
	links    map[common.Inum]uint32      // observed directory references
	subdirs  map[common.Inum]uint32      // child directories per directory
	visited  map[common.Inum]bool
}

func (ck *checker) errf(format string, a ...interface{}) {
	ck.problems = append(ck.problems, fmt.Sprintf(format, a...))
}

// claim records that ino owns blocks [bno, bno+n), flagging double use and
// blocks outside the data region.
func (ck *checker) claim(ino common.Inum, bno common.Bnum, n uint32) {
	for b := bno; b < bno+n; b++ {
		if b < ck.sb.DataStart() || b >= ck.sb.NrBlocks {
			ck.errf("inode %d references block %d outside the data region", ino, b)
			continue
		}
		if owner, ok := ck.owned[b]; ok {
			ck.errf("block %d owned by both inode %d and inode %d", b, owner, ino)
			continue
		}
		ck.owned[b] = ino
	}
}

func (ck *checker) checkIndex(ino common.Inum, idx *extent.Index, isDir bool) {
	seenEmpty := false
	next := uint32(0)
	var sum uint32
	for ei := range idx.Extents {
		e := &idx.Extents[ei]
		if e.Empty() {
			seenEmpty = true
			if e.NrFiles != 0 {
				ck.errf("inode %d extent %d is empty but counts %d entries", ino, ei, e.NrFiles)
			}
			continue
		}
		if seenEmpty {
			ck.errf("inode %d extent %d follows an empty slot", ino, ei)
		}
		if e.EeLen == 0 || e.EeLen > common.MaxBlocksPerExtent {
			ck.errf("inode %d extent %d has bad length %d", ino, ei, e.EeLen)
		}
		if e.EeBlock < next {
			ck.errf("inode %d extent %d overlaps logical block %d", ino, ei, e.EeBlock)
		}
		next = e.EeBlock + e.EeLen
		ck.claim(ino, e.EeStart, e.EeLen)
		if !isDir && e.NrFiles != 0 {
			ck.errf("inode %d is a file but extent %d counts %d entries", ino, ei, e.NrFiles)
		}
		sum += e.NrFiles
	}
	if isDir && sum != idx.NrFiles {
		ck.errf("inode %d entry counts disagree: extents sum %d, index says %d", ino, sum, idx.NrFiles)
	}
}

// checkDirBlock verifies the gap encoding of one directory block and
// returns its live entries.
func (ck *checker) checkDirBlock(ino common.Inum, db *dir.Block) []dir.File {
	var live []dir.File
	var sum uint32
	for fi := uint32(0); fi < common.FilesPerBlock; {
		f := &db.Files[fi]
		if f.NrBlk == 0 {
			ck.errf("inode %d dir block %d slot %d has zero run length", ino, db.Bno, fi)
			break
		}
		sum += f.NrBlk
		if f.Inode != common.NULLINUM {
			live = append(live, *f)
		}
		fi += f.NrBlk
	}
	if sum != common.FilesPerBlock {
		ck.errf("inode %d dir block %d run lengths sum to %d, want %d",
			ino, db.Bno, sum, common.FilesPerBlock)
	}
	if uint32(len(live)) != db.NrFiles {
		ck.errf("inode %d dir block %d has %d live entries, header says %d",
			ino, db.Bno, len(live), db.NrFiles)
	}
	return live
}

func (ck *checker) walkDir(ino common.Inum) {
	if ck.visited[ino] {
		ck.errf("directory %d reachable twice", ino)
		return
	}
	ck.visited[ino] = true
	ip, err := inode.ReadInode(ck.sb, ck.c, ino)
	if err != nil {
		ck.errf("directory %d: %v", ino, err)
		return
	}
	if !common.IsDir(ip.Mode) {
		ck.errf("inode %d referenced as directory but mode is %#x", ino, ip.Mode)
		return
	}
	if ip.EiBlock == common.NULLBNUM {
		ck.errf("directory %d has no extent index block", ino)
		return
	}
	ck.claim(ino, ip.EiBlock, 1)
	idx, err := extent.Load(ck.c, ip.EiBlock)
	if err != nil {
		ck.errf("directory %d index: %v", ino, err)
		return
	}
	ck.checkIndex(ino, idx, true)

	for ei := range idx.Extents {
		e := &idx.Extents[ei]
		if e.Empty() {
			break
		}
		var extLive uint32
		for bi := uint32(0); bi < e.EeLen; bi++ {
			b, err := ck.c.ReadBuf(e.EeStart + bi)
			if err != nil {
				ck.errf("directory %d block %d: %v", ino, e.EeStart+bi, err)
				continue
			}
			db := dir.DecodeBlock(b.Blkno, b.Data)
			live := ck.checkDirBlock(ino, db)
			extLive += uint32(len(live))
			for _, f := range live {
				if f.Inode >= ck.sb.NrInodes {
					ck.errf("directory %d entry %q points past the inode table (%d)",
						ino, f.Filename, f.Inode)
					continue
				}
				ck.links[f.Inode]++
				child, err := inode.ReadInode(ck.sb, ck.c, f.Inode)
				if err != nil {
					ck.errf("directory %d entry %q: %v", ino, f.Filename, err)
					continue
				}
				if common.IsDir(child.Mode) {
					ck.subdirs[ino]++
					ck.walkDir(f.Inode)
				} else if common.IsReg(child.Mode) {
					if ck.links[f.Inode] == 1 {
						ck.checkFile(f.Inode, child)
					}
				} else if !common.IsLink(child.Mode) {
					ck.errf("inode %d has unsupported mode %#x", f.Inode, child.Mode)
				}
			}
		}
		if extLive != e.NrFiles {
			ck.errf("directory %d extent %d has %d live entries, record says %d",
				ino, ei, extLive, e.NrFiles)
		}
	}
}

func (ck *checker) checkFile(ino common.Inum, ip *inode.Inode) {
	if ip.EiBlock == common.NULLBNUM {
		ck.errf("file %d has no extent index block", ino)
		return
	}
	ck.claim(ino, ip.EiBlock, 1)
	idx, err := extent.Load(ck.c, ip.EiBlock)
	if err != nil {
		ck.errf("file %d index: %v", ino, err)
		return
	}
	ck.checkIndex(ino, idx, false)
	var blocks uint32 = 1
	var span uint32
	for ei := range idx.Extents {
		e := &idx.Extents[ei]
		if e.Empty() {
			break
		}
		blocks += e.EeLen
		span = e.EeBlock + e.EeLen
	}
	if ip.Blocks != blocks {
		ck.errf("file %d counts %d blocks but owns %d", ino, ip.Blocks, blocks)
	}
	if uint64(ip.Size) > uint64(span)*uint64(common.BlockSize) {
		ck.errf("file %d size %d exceeds its %d mapped blocks", ino, ip.Size, span)
	}
}

func (ck *checker) checkCounts() {
	ifree, err := ck.sb.Ifree.NumFree(ck.c)
	if err != nil {
		ck.errf("inode bitmap: %v", err)
	} else if ifree != ck.sb.NrFreeInodes {
		ck.errf("superblock says %d free inodes, bitmap says %d", ck.sb.NrFreeInodes, ifree)
	}
	bfree, err := ck.sb.Bfree.NumFree(ck.c)
	if err != nil {
		ck.errf("block bitmap: %v", err)
	} else if bfree != ck.sb.NrFreeBlocks {
		ck.errf("superblock says %d free blocks, bitmap says %d", ck.sb.NrFreeBlocks, bfree)
	}
}

func (ck *checker) checkLinks() {
	for ino, refs := range ck.links {
		ip, err := inode.ReadInode(ck.sb, ck.c, ino)
		if err != nil {
			continue
		}
		want := refs
		if common.IsDir(ip.Mode) {
			want = 2 + ck.subdirs[ino]
		}
		if ip.Nlink != want {
			ck.errf("inode %d has nlink %d, expected %d", ino, ip.Nlink, want)
		}
	}
	root, err := inode.ReadInode(ck.sb, ck.c, common.ROOTINUM)
	if err != nil {
		ck.errf("root inode: %v", err)
		return
	}
	if want := 2 + ck.subdirs[common.ROOTINUM]; root.Nlink != want {
		ck.errf("root has nlink %d, expected %d", root.Nlink, want)
	}
}

// Check validates the image on d and returns one message per violation.
// An empty slice means the image is consistent.
func Check(d disk.Disk) ([]string, error) {
	c := buf.MkCache(d)
	sb, err := super.Load(c)
	if err != nil {
		return nil, err
	}
	ck := &checker{
		c:       c,
		sb:      sb,
		owned:   make(map[common.Bnum]common.Inum),
		links:   make(map[common.Inum]uint32),
		subdirs: make(map[common.Inum]uint32),
		visited: make(map[common.Inum]bool),
	}
	ck.walkDir(common.ROOTINUM)
	ck.checkCounts()
	ck.checkLinks()
	return ck.problems, nil
}
