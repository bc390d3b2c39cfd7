// Package buf caches disk blocks and tracks which ones are dirty.
//
// All metadata mutation goes through here: read a block into a *Buf, edit
// its Data in place, SetDirty, and let Flush write everything back in
// ascending block order. The cache is sharded by block number so unrelated
// lookups don't contend.
package buf

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sysprog21/simplefs-go/common"
	"github.com/sysprog21/simplefs-go/disk"
	"github.com/sysprog21/simplefs-go/util"
)

// A Buf is one cached disk block.
type Buf struct {
	Blkno common.Bnum
	Data  disk.Block
	dirty bool
}

func (b *Buf) IsDirty() bool {
	return b.dirty
}

func (b *Buf) SetDirty() {
	b.dirty = true
}

type cacheShard struct {
	mu   *sync.Mutex
	bufs map[common.Bnum]*Buf
}

func mkCacheShard() *cacheShard {
	return &cacheShard{
		mu:   new(sync.Mutex),
		bufs: make(map[common.Bnum]*Buf),
	}
}

const NSHARD uint32 = 43

type Cache struct {
	d      disk.Disk
	shards []*cacheShard
}

func MkCache(d disk.Disk) *Cache {
	var shards []*cacheShard
	for i := uint32(0); i < NSHARD; i++ {
		shards = append(shards, mkCacheShard())
	}
	return &Cache{
		d:      d,
		shards: shards,
	}
}

func (c *Cache) shard(bno common.Bnum) *cacheShard {
	return c.shards[bno%NSHARD]
}

// ReadBuf returns the cached block for bno, reading through to the device
// on a miss.
func (c *Cache) ReadBuf(bno common.Bnum) (*Buf, error) {
	s := c.shard(bno)
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bufs[bno]; ok {
		return b, nil
	}
	blk, err := c.d.Read(uint64(bno))
	if err != nil {
		return nil, fmt.Errorf("%w: read block %d: %s", common.ErrIO, bno, err)
	}
	b := &Buf{Blkno: bno, Data: blk}
	s.bufs[bno] = b
	util.DPrintf(10, "ReadBuf: miss %d", bno)
	return b, nil
}

// ZeroBuf installs an all-zero dirty block for bno without reading the
// device, for blocks whose prior contents are irrelevant.
func (c *Cache) ZeroBuf(bno common.Bnum) *Buf {
	s := c.shard(bno)
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bufs[bno]
	if !ok {
		b = &Buf{Blkno: bno, Data: make(disk.Block, disk.BlockSize)}
		s.bufs[bno] = b
	} else {
		for i := range b.Data {
			b.Data[i] = 0
		}
	}
	b.dirty = true
	return b
}

// FlushBlock writes one block through to the device immediately.
func (c *Cache) FlushBlock(bno common.Bnum) error {
	s := c.shard(bno)
	s.mu.Lock()
	b, ok := s.bufs[bno]
	s.mu.Unlock()
	if !ok || !b.dirty {
		return nil
	}
	if err := c.d.Write(uint64(bno), b.Data); err != nil {
		return fmt.Errorf("%w: write block %d: %s", common.ErrIO, bno, err)
	}
	b.dirty = false
	return nil
}

// Flush writes all dirty blocks in ascending block order and issues a
// barrier.
func (c *Cache) Flush() error {
	var dirty []*Buf
	for _, s := range c.shards {
		s.mu.Lock()
		for _, b := range s.bufs {
			if b.dirty {
				dirty = append(dirty, b)
			}
		}
		s.mu.Unlock()
	}
	sort.Slice(dirty, func(i, j int) bool { return dirty[i].Blkno < dirty[j].Blkno })
	for _, b := range dirty {
		if err := c.d.Write(uint64(b.Blkno), b.Data); err != nil {
			return fmt.Errorf("%w: write block %d: %s", common.ErrIO, b.Blkno, err)
		}
		b.dirty = false
	}
	if err := c.d.Barrier(); err != nil {
		return fmt.Errorf("%w: barrier: %s", common.ErrIO, err)
	}
	util.DPrintf(5, "Flush: %d blocks", len(dirty))
	return nil
}

// NDirty reports how many cached blocks are waiting to be written.
func (c *Cache) NDirty() uint64 {
	var n uint64
	for _, s := range c.shards {
		s.mu.Lock()
		for _, b := range s.bufs {
			if b.dirty {
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}
