package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sysprog21/simplefs-go/util"
)

func TestRoundUp(t *testing.T) {
	assert.Equal(t, uint32(0), util.RoundUp(0, 8))
	assert.Equal(t, uint32(1), util.RoundUp(1, 8))
	assert.Equal(t, uint32(1), util.RoundUp(8, 8))
	assert.Equal(t, uint32(2), util.RoundUp(9, 8))
}

func TestMin(t *testing.T) {
	assert.Equal(t, uint32(3), util.Min(3, 5))
	assert.Equal(t, uint32(3), util.Min(5, 3))
	assert.Equal(t, uint32(4), util.Min(4, 4))
}
