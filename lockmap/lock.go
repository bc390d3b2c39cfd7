// Package lockmap serializes operations on individual inodes.
//
// LockMap hands out one mutex per live inode number. An entry exists only
// while somebody holds or waits for it: Acquire pins the entry with a
// reference count before blocking on its mutex, so Release can drop the
// map entry exactly when the last reference goes away. A waiter therefore
// parks on the inode's own mutex, not on shared state.
//
// Namespace operations lock the directories they touch in ascending inode
// order, which is what keeps cross-directory rename deadlock-free.
package lockmap

import (
	"sync"

	"github.com/sysprog21/simplefs-go/common"
)

type entry struct {
	mu   sync.Mutex
	refs uint32
}

type LockMap struct {
	mu      sync.Mutex
	entries map[common.Inum]*entry
}

func MkLockMap() *LockMap {
	return &LockMap{entries: make(map[common.Inum]*entry)}
}

// Acquire blocks until the caller holds ino's lock.
func (lm *LockMap) Acquire(ino common.Inum) {
	lm.mu.Lock()
	e, ok := lm.entries[ino]
	if !ok {
		e = new(entry)
		lm.entries[ino] = e
	}
	e.refs++
	lm.mu.Unlock()
	e.mu.Lock()
}

// Release drops ino's lock. refs reaching zero means no waiter is parked
// on the entry, so it is safe to forget.
func (lm *LockMap) Release(ino common.Inum) {
	lm.mu.Lock()
	e := lm.entries[ino]
	e.refs--
	if e.refs == 0 {
		delete(lm.entries, ino)
	}
	lm.mu.Unlock()
	e.mu.Unlock()
}

// AcquireOrdered locks a sorted slice of inodes in ascending order,
// skipping duplicates. Pass the same slice to ReleaseOrdered.
func (lm *LockMap) AcquireOrdered(inos []common.Inum) {
	for i, ino := range inos {
		if i > 0 && ino == inos[i-1] {
			continue
		}
		lm.Acquire(ino)
	}
}

func (lm *LockMap) ReleaseOrdered(inos []common.Inum) {
	for i := len(inos) - 1; i >= 0; i-- {
		if i > 0 && inos[i] == inos[i-1] {
			continue
		}
		lm.Release(inos[i])
	}
}
