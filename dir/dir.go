// Package dir implements directory blocks and the three mutation
// primitives over them: insert, remove, and lookup.
//
// A directory block is a 32-bit live-entry count followed by FilesPerBlock
// fixed-size records. Free space is run-length encoded: a record whose
// inode is 0 heads a gap, and NrBlk on the record before a gap counts the
// gap plus itself, so traversal skips free runs with fi += Files[fi].NrBlk.
// Over any well-formed block the NrBlk values visited by that traversal sum
// to FilesPerBlock.
package dir

import (
	"github.com/tchajed/marshal"

	"github.com/sysprog21/simplefs-go/buf"
	"github.com/sysprog21/simplefs-go/common"
	"github.com/sysprog21/simplefs-go/extent"
	"github.com/sysprog21/simplefs-go/super"
	"github.com/sysprog21/simplefs-go/util"
)

// File is one directory record.
type File struct {
	Inode    common.Inum
	NrBlk    uint32
	Filename string
}

// Block is the decoded form of one directory block.
type Block struct {
	Bno     common.Bnum
	NrFiles uint32
	Files   [common.FilesPerBlock]File
}

func decodeName(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func DecodeBlock(bno common.Bnum, blk []byte) *Block {
	dec := marshal.NewDec(blk)
	db := &Block{Bno: bno}
	db.NrFiles = dec.GetInt32()
	for i := range db.Files {
		db.Files[i].Inode = dec.GetInt32()
		db.Files[i].NrBlk = dec.GetInt32()
		db.Files[i].Filename = decodeName(dec.GetBytes(uint64(common.FilenameLen)))
	}
	return db
}

func (db *Block) Encode(blk []byte) {
	enc := marshal.NewEnc(uint64(common.BlockSize))
	enc.PutInt32(db.NrFiles)
	for i := range db.Files {
		enc.PutInt32(db.Files[i].Inode)
		enc.PutInt32(db.Files[i].NrBlk)
		name := make([]byte, common.FilenameLen)
		copy(name, db.Files[i].Filename)
		enc.PutBytes(name)
	}
	copy(blk, enc.Finish())
}

func readBlock(c *buf.Cache, bno common.Bnum) (*Block, error) {
	b, err := c.ReadBuf(bno)
	if err != nil {
		return nil, err
	}
	return DecodeBlock(bno, b.Data), nil
}

func (db *Block) store(c *buf.Cache) error {
	b, err := c.ReadBuf(db.Bno)
	if err != nil {
		return err
	}
	db.Encode(b.Data)
	b.SetDirty()
	return nil
}

// insertEntry places (ino, name) into db, maintaining the gap encoding.
// The caller guarantees db is not full.
func (db *Block) insertEntry(ino common.Inum, name string) {
	if db.NrFiles == 0 || db.Files[0].Inode == common.NULLINUM {
		// slot 0 is free; it keeps its run length and becomes the carrier
		db.Files[0].Inode = ino
		db.Files[0].Filename = name
		db.NrFiles++
		return
	}
	for fi := uint32(0); fi < common.FilesPerBlock-1; fi++ {
		if db.Files[fi].NrBlk != 1 {
			db.Files[fi+1].Inode = ino
			db.Files[fi+1].NrBlk = db.Files[fi].NrBlk - 1
			db.Files[fi+1].Filename = name
			db.Files[fi].NrBlk = 1
			db.NrFiles++
			return
		}
	}
	// every record is a singleton; reuse the first free slot directly
	for fi := uint32(0); fi < common.FilesPerBlock; fi++ {
		if db.Files[fi].Inode == common.NULLINUM {
			db.Files[fi].Inode = ino
			db.Files[fi].Filename = name
			db.NrFiles++
			return
		}
	}
	panic("insertEntry: block is full")
}

// removeEntry zeroes the record at fi and merges its run backward into the
// nearest live record (or record 0).
func (db *Block) removeEntry(fi uint32) {
	db.Files[fi].Inode = common.NULLINUM
	for i := int(fi) - 1; i >= 0; i-- {
		if db.Files[i].Inode != common.NULLINUM || i == 0 {
			db.Files[i].NrBlk += db.Files[fi].NrBlk
			break
		}
	}
	db.NrFiles--
}

// ProvisionExtent backs extent slot ei with MaxBlocksPerExtent fresh
// contiguous blocks, each seeded as an empty directory block. The caller
// stores the index afterwards.
func ProvisionExtent(c *buf.Cache, sb *super.Superblock, idx *extent.Index, ei uint32) error {
	bno, err := sb.GetFreeBlocks(c, common.MaxBlocksPerExtent)
	if err != nil {
		return err
	}
	if bno == common.NULLBNUM {
		return common.ErrNoSpace
	}
	e := &idx.Extents[ei]
	e.EeStart = bno
	e.EeLen = common.MaxBlocksPerExtent
	e.EeBlock = idx.LastLogical(ei)
	e.NrFiles = 0
	for bi := uint32(0); bi < e.EeLen; bi++ {
		b := c.ZeroBuf(e.EeStart + bi)
		db := &Block{Bno: b.Blkno}
		db.Files[0].NrBlk = common.FilesPerBlock
		db.Encode(b.Data)
	}
	util.DPrintf(5, "ProvisionExtent: slot %d at %d", ei, bno)
	return nil
}

// releaseExtent undoes ProvisionExtent after a failed insert.
func releaseExtent(c *buf.Cache, sb *super.Superblock, idx *extent.Index, ei uint32) {
	e := &idx.Extents[ei]
	if err := sb.PutBlocks(c, e.EeStart, e.EeLen); err != nil {
		util.DPrintf(1, "releaseExtent: %v", err)
	}
	*e = extent.Extent{}
}

// Insert adds (ino, name) to the directory described by idx, provisioning
// a new extent when every existing one is full. The caller has already
// ruled out a duplicate name.
func Insert(c *buf.Cache, sb *super.Superblock, idx *extent.Index, name string, ino common.Inum) error {
	if idx.NrFiles == common.MaxSubfiles {
		return common.ErrLinkLimit
	}
	avail := idx.AvailableIdx(idx.NrFiles)
	if avail == extent.NoExtent {
		return common.ErrLinkLimit
	}
	provisioned := false
	if idx.Extents[avail].Empty() {
		if avail > 0 && idx.Extents[avail-1].Empty() {
			panic("Insert: AvailableIdx chose an empty slot past a hole")
		}
		if err := ProvisionExtent(c, sb, idx, avail); err != nil {
			return err
		}
		provisioned = true
	}
	e := &idx.Extents[avail]
	var db *Block
	for bi := uint32(0); bi < e.EeLen; bi++ {
		cand, err := readBlock(c, e.EeStart+bi)
		if err != nil {
			if provisioned {
				releaseExtent(c, sb, idx, avail)
			}
			return err
		}
		if cand.NrFiles != common.FilesPerBlock {
			db = cand
			break
		}
	}
	if db == nil {
		panic("Insert: extent chosen by AvailableIdx has no free block")
	}
	db.insertEntry(ino, name)
	if err := db.store(c); err != nil {
		if provisioned {
			releaseExtent(c, sb, idx, avail)
		}
		return err
	}
	e.NrFiles++
	idx.NrFiles++
	util.DPrintf(5, "Insert: %q -> %d in dir ei_block %d", name, ino, idx.Bno)
	return idx.Store(c)
}

// Lookup returns the inode number bound to name, or ErrNotFound.
func Lookup(c *buf.Cache, idx *extent.Index, name string) (common.Inum, error) {
	for ei := range idx.Extents {
		e := &idx.Extents[ei]
		if e.Empty() {
			break
		}
		for bi := uint32(0); bi < e.EeLen; bi++ {
			db, err := readBlock(c, e.EeStart+bi)
			if err != nil {
				return common.NULLINUM, err
			}
			live := db.NrFiles
			for fi := uint32(0); live > 0 && fi < common.FilesPerBlock; {
				f := &db.Files[fi]
				if f.Inode != common.NULLINUM {
					if f.Filename == name {
						return f.Inode, nil
					}
					live--
				}
				if f.NrBlk == 0 {
					break
				}
				fi += f.NrBlk
			}
		}
	}
	return common.NULLINUM, common.ErrNotFound
}

// Remove deletes the record binding name to ino, merging the freed slot
// into the preceding run. ErrNotFound when no such record exists.
func Remove(c *buf.Cache, sb *super.Superblock, idx *extent.Index, name string, ino common.Inum) error {
	remaining := idx.NrFiles
	for ei := uint32(0); remaining > 0 && ei < common.MaxExtents; ei++ {
		e := &idx.Extents[ei]
		if e.Empty() {
			continue
		}
		remaining -= e.NrFiles
		for bi := uint32(0); bi < e.EeLen; bi++ {
			db, err := readBlock(c, e.EeStart+bi)
			if err != nil {
				return err
			}
			live := db.NrFiles
			for fi := uint32(0); live > 0 && fi < common.FilesPerBlock; {
				f := &db.Files[fi]
				if f.Inode != common.NULLINUM {
					if f.Inode == ino && f.Filename == name {
						db.removeEntry(fi)
						if err := db.store(c); err != nil {
							return err
						}
						e.NrFiles--
						idx.NrFiles--
						util.DPrintf(5, "Remove: %q (%d) from dir ei_block %d",
							name, ino, idx.Bno)
						return idx.Store(c)
					}
					live--
				}
				if f.NrBlk == 0 {
					break
				}
				fi += f.NrBlk
			}
		}
	}
	return common.ErrNotFound
}

// RenameInPlace rewrites the record binding oldname to ino so it carries
// newname, leaving the slot layout untouched.
func RenameInPlace(c *buf.Cache, idx *extent.Index, oldname string, newname string, ino common.Inum) error {
	for ei := range idx.Extents {
		e := &idx.Extents[ei]
		if e.Empty() {
			break
		}
		for bi := uint32(0); bi < e.EeLen; bi++ {
			db, err := readBlock(c, e.EeStart+bi)
			if err != nil {
				return err
			}
			live := db.NrFiles
			for fi := uint32(0); live > 0 && fi < common.FilesPerBlock; {
				f := &db.Files[fi]
				if f.Inode != common.NULLINUM {
					if f.Inode == ino && f.Filename == oldname {
						f.Filename = newname
						return db.store(c)
					}
					live--
				}
				if f.NrBlk == 0 {
					break
				}
				fi += f.NrBlk
			}
		}
	}
	return common.ErrNotFound
}

// Entry is one name binding reported by Readdir.
type Entry struct {
	Name string
	Ino  common.Inum
}

// Readdir lists every live entry in traversal order.
func Readdir(c *buf.Cache, idx *extent.Index) ([]Entry, error) {
	var out []Entry
	for ei := range idx.Extents {
		e := &idx.Extents[ei]
		if e.Empty() {
			break
		}
		for bi := uint32(0); bi < e.EeLen; bi++ {
			db, err := readBlock(c, e.EeStart+bi)
			if err != nil {
				return nil, err
			}
			live := db.NrFiles
			for fi := uint32(0); live > 0 && fi < common.FilesPerBlock; {
				f := &db.Files[fi]
				if f.Inode != common.NULLINUM {
					out = append(out, Entry{Name: f.Filename, Ino: f.Inode})
					live--
				}
				if f.NrBlk == 0 {
					break
				}
				fi += f.NrBlk
			}
		}
	}
	return out, nil
}
