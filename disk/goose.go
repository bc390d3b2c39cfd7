package disk

import (
	"fmt"

	goosedisk "github.com/tchajed/goose/machine/disk"
)

var _ Disk = (*gooseDisk)(nil)

// gooseDisk adapts a goose machine disk, whose operations panic on failure,
// to the error-returning Disk interface.
type gooseDisk struct {
	d goosedisk.Disk
}

// FromGoose wraps a goose machine disk so goose-backed hosts can mount
// images directly.
func FromGoose(d goosedisk.Disk) Disk {
	return &gooseDisk{d: d}
}

func (g *gooseDisk) Read(a uint64) (Block, error) {
	if a >= g.d.Size() {
		return nil, fmt.Errorf("out-of-bounds read at %v", a)
	}
	return Block(g.d.Read(a)), nil
}

func (g *gooseDisk) ReadTo(a uint64, b Block) error {
	blk, err := g.Read(a)
	if err != nil {
		return err
	}
	copy(b, blk)
	return nil
}

func (g *gooseDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != BlockSize {
		panic(fmt.Errorf("v is not block-sized (%d bytes)", len(v)))
	}
	if a >= g.d.Size() {
		return fmt.Errorf("out-of-bounds write at %v", a)
	}
	g.d.Write(a, goosedisk.Block(v))
	return nil
}

func (g *gooseDisk) Size() (uint64, error) {
	return g.d.Size(), nil
}

func (g *gooseDisk) Barrier() error {
	g.d.Barrier()
	return nil
}

func (g *gooseDisk) Close() error {
	return nil
}
