package lockmap_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sysprog21/simplefs-go/common"
	"github.com/sysprog21/simplefs-go/lockmap"
)

func TestMutualExclusion(t *testing.T) {
	lm := lockmap.MkLockMap()
	const workers = 8
	const rounds = 200
	var counter int
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				lm.Acquire(7)
				counter++
				lm.Release(7)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, workers*rounds, counter)
}

func TestIndependentInodes(t *testing.T) {
	lm := lockmap.MkLockMap()
	lm.Acquire(1)
	// a different inode is unaffected by a held lock
	lm.Acquire(2)
	lm.Release(2)
	lm.Release(1)
}

func TestAcquireOrdered(t *testing.T) {
	lm := lockmap.MkLockMap()
	const rounds = 200
	var counter int
	var wg sync.WaitGroup
	pairs := [][]common.Inum{{2, 9}, {2, 9}, {2}, {9}}
	for _, p := range pairs {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				lm.AcquireOrdered(p)
				counter++
				lm.ReleaseOrdered(p)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, len(pairs)*rounds, counter)
}

func TestOrderedDuplicates(t *testing.T) {
	lm := lockmap.MkLockMap()
	inos := []common.Inum{5, 5}
	lm.AcquireOrdered(inos)
	lm.ReleaseOrdered(inos)
	// the single underlying lock is free again
	lm.Acquire(5)
	lm.Release(5)
}
