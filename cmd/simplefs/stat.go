package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/sysprog21/simplefs-go/common"
	"github.com/sysprog21/simplefs-go/fs"
)

type statCmd struct{}

func (*statCmd) Name() string     { return "stat" }
func (*statCmd) Synopsis() string { return "show inode details" }
func (*statCmd) Usage() string {
	return `stat <image> <path>: print the inode backing <path>.
`
}
func (*statCmd) SetFlags(*flag.FlagSet) {}

func (c *statCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	d, err := openImage(f.Arg(0))
	if err != nil {
		return fail(err)
	}
	defer d.Close()
	fsys, err := fs.Mount(d)
	if err != nil {
		return fail(err)
	}
	ino, err := resolve(fsys, f.Arg(1))
	if err != nil {
		return fail(err)
	}
	ip, err := fsys.Stat(ino)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("inode:   %d\n", ip.Ino)
	fmt.Printf("mode:    %s\n", modeString(ip.Mode))
	fmt.Printf("uid/gid: %d/%d\n", ip.Uid, ip.Gid)
	fmt.Printf("size:    %d\n", ip.Size)
	fmt.Printf("blocks:  %d\n", ip.Blocks)
	fmt.Printf("nlink:   %d\n", ip.Nlink)
	fmt.Printf("times:   ctime %d atime %d mtime %d\n", ip.Ctime, ip.Atime, ip.Mtime)
	if common.IsLink(ip.Mode) {
		fmt.Printf("target:  %s\n", ip.Symlink())
	} else {
		fmt.Printf("index:   block %d\n", ip.EiBlock)
	}
	return subcommands.ExitSuccess
}
