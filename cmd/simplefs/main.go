// Command simplefs manipulates simplefs disk images: formatting,
// consistency checking, and basic inspection.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/sysprog21/simplefs-go/common"
	"github.com/sysprog21/simplefs-go/disk"
	"github.com/sysprog21/simplefs-go/fs"
	"github.com/sysprog21/simplefs-go/util"
)

var debugLevel = flag.Uint64("debug", 0, "debug log verbosity (0 disables)")

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(mkfsCmd), "")
	subcommands.Register(new(checkCmd), "")
	subcommands.Register(new(lsCmd), "")
	subcommands.Register(new(statCmd), "")
	subcommands.Register(new(catCmd), "")

	flag.Parse()
	util.Debug = *debugLevel
	os.Exit(int(subcommands.Execute(context.Background())))
}

// openImage opens an existing image, sizing the device from the file.
func openImage(path string) (disk.Disk, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	nblocks := uint64(fi.Size()) / disk.BlockSize
	if nblocks == 0 {
		return nil, fmt.Errorf("%s: smaller than one block", path)
	}
	return disk.NewFileDisk(path, nblocks)
}

// resolve walks an absolute slash-separated path from the root directory.
func resolve(f *fs.Fs, p string) (common.Inum, error) {
	ino := common.ROOTINUM
	for _, part := range strings.Split(p, "/") {
		if part == "" {
			continue
		}
		child, err := f.Lookup(ino, part)
		if err != nil {
			return common.NULLINUM, fmt.Errorf("%s: %w", p, err)
		}
		ino = child
	}
	return ino, nil
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

func modeString(m common.Mode) string {
	var t byte
	switch {
	case common.IsDir(m):
		t = 'd'
	case common.IsLink(m):
		t = 'l'
	default:
		t = '-'
	}
	return fmt.Sprintf("%c%03o", t, m&^common.ModeFmt)
}
