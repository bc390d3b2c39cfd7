package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/sysprog21/simplefs-go/fs"
)

type lsCmd struct{}

func (*lsCmd) Name() string     { return "ls" }
func (*lsCmd) Synopsis() string { return "list a directory" }
func (*lsCmd) Usage() string {
	return `ls <image> [path]: list the entries of a directory (default /).
`
}
func (*lsCmd) SetFlags(*flag.FlagSet) {}

func (c *lsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 1 || f.NArg() > 2 {
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
	ents, err := fsys.ReadDir(ino)
	if err != nil {
		return fail(err)
	}
	for _, e := range ents {
		ip, err := fsys.Stat(e.Ino)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("%s %4d %8d %s\n", modeString(ip.Mode), e.Ino, ip.Size, e.Name)
	}
	return subcommands.ExitSuccess
}
