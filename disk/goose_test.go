package disk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	goosedisk "github.com/tchajed/goose/machine/disk"

	"github.com/sysprog21/simplefs-go/disk"
)

func TestGooseDiskRoundtrip(t *testing.T) {
	d := disk.FromGoose(goosedisk.NewMemDisk(8))
	sz, err := d.Size()
	assert.Nil(t, err)
	assert.Equal(t, uint64(8), sz)

	blk := make(disk.Block, disk.BlockSize)
	blk[5] = 0x3c
	err = d.Write(2, blk)
	assert.Nil(t, err)
	got, err := d.Read(2)
	assert.Nil(t, err)
	assert.Equal(t, byte(0x3c), got[5])

	dst := make(disk.Block, disk.BlockSize)
	err = d.ReadTo(2, dst)
	assert.Nil(t, err)
	assert.Equal(t, byte(0x3c), dst[5])
	assert.Nil(t, d.Barrier())
}

func TestGooseDiskBounds(t *testing.T) {
	d := disk.FromGoose(goosedisk.NewMemDisk(4))
	_, err := d.Read(4)
	assert.NotNil(t, err)
	err = d.Write(9, make(disk.Block, disk.BlockSize))
	assert.NotNil(t, err)
}
