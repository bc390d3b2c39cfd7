package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/sysprog21/simplefs-go/fs"
)

type catCmd struct{}

func (*catCmd) Name() string     { return "cat" }
func (*catCmd) Synopsis() string { return "print file contents" }
func (*catCmd) Usage() string {
	return `cat <image> <path>: write the contents of <path> to stdout.
`
}
func (*catCmd) SetFlags(*flag.FlagSet) {}

func (c *catCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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
	data := make([]byte, ip.Size)
	if _, err := fsys.ReadAt(ino, 0, data); err != nil {
		return fail(err)
	}
	if _, err := os.Stdout.Write(data); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}
