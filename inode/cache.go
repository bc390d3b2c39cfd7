package inode

import (
	"sync"

	"github.com/sysprog21/simplefs-go/buf"
	"github.com/sysprog21/simplefs-go/common"
	"github.com/sysprog21/simplefs-go/super"
	"github.com/sysprog21/simplefs-go/util"
)

type itableShard struct {
	mu     *sync.Mutex
	inodes map[common.Inum]*Inode
}

func mkItableShard() *itableShard {
	return &itableShard{
		mu:     new(sync.Mutex),
		inodes: make(map[common.Inum]*Inode),
	}
}

const NSHARD uint32 = 43

// Itable is the in-memory identity map over the inode store, sharded by
// inode number.
type Itable struct {
	shards []*itableShard
}

func MkItable() *Itable {
	var shards []*itableShard
	for i := uint32(0); i < NSHARD; i++ {
		shards = append(shards, mkItableShard())
	}
	return &Itable{shards: shards}
}

func (t *Itable) shard(ino common.Inum) *itableShard {
	return t.shards[ino%NSHARD]
}

// Iget returns the in-memory inode for ino, decoding it from the store on
// first use. All callers share the returned object.
func (t *Itable) Iget(sb *super.Superblock, c *buf.Cache, ino common.Inum) (*Inode, error) {
	s := t.shard(ino)
	s.mu.Lock()
	defer s.mu.Unlock()
	if ip, ok := s.inodes[ino]; ok {
		return ip, nil
	}
	ip, err := ReadInode(sb, c, ino)
	if err != nil {
		return nil, err
	}
	s.inodes[ino] = ip
	util.DPrintf(10, "Iget: miss %d", ino)
	return ip, nil
}

// Forget drops ino from the table after its last link and open handle are
// gone. The next Iget re-reads the store.
func (t *Itable) Forget(ino common.Inum) {
	s := t.shard(ino)
	s.mu.Lock()
	delete(s.inodes, ino)
	s.mu.Unlock()
}
