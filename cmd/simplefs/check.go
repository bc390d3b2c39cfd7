package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/sysprog21/simplefs-go/check"
)

type checkCmd struct{}

func (*checkCmd) Name() string     { return "check" }
func (*checkCmd) Synopsis() string { return "verify image consistency" }
func (*checkCmd) Usage() string {
	return `check <image>: verify structural invariants and report violations.
`
}
func (*checkCmd) SetFlags(*flag.FlagSet) {}

func (c *checkCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	d, err := openImage(f.Arg(0))
	if err != nil {
		return fail(err)
	}
	defer d.Close()
	problems, err := check.Check(d)
	if err != nil {
		return fail(err)
	}
	for _, p := range problems {
		fmt.Println(p)
	}
	if len(problems) > 0 {
		fmt.Printf("%d problems found\n", len(problems))
		return subcommands.ExitFailure
	}
	fmt.Println("clean")
	return subcommands.ExitSuccess
}
