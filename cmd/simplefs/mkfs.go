package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/sysprog21/simplefs-go/disk"
	"github.com/sysprog21/simplefs-go/mkfs"
)

type mkfsCmd struct {
	blocks uint64
	inodes uint64
}

func (*mkfsCmd) Name() string     { return "mkfs" }
func (*mkfsCmd) Synopsis() string { return "format an image file" }
func (*mkfsCmd) Usage() string {
	return `mkfs -blocks <n> [-inodes <n>] <image>: write a fresh filesystem to <image>.
`
}

func (c *mkfsCmd) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&c.blocks, "blocks", 0, "partition size in blocks")
	f.Uint64Var(&c.inodes, "inodes", 0, "inode count (default derived from size)")
}

func (c *mkfsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 || c.blocks == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	d, err := disk.NewFileDisk(f.Arg(0), c.blocks)
	if err != nil {
		return fail(err)
	}
	defer d.Close()
	sb, err := mkfs.Format(d, uint32(c.inodes))
	if err != nil {
		return fail(err)
	}
	fmt.Printf("%s: %d blocks, %d inodes, data region at block %d\n",
		f.Arg(0), sb.NrBlocks, sb.NrInodes, sb.DataStart())
	return subcommands.ExitSuccess
}
