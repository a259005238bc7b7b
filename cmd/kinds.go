package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/etnz/brokerage"
	"github.com/google/subcommands"
)

type kindsCmd struct{}

func (*kindsCmd) Name() string     { return "kinds" }
func (*kindsCmd) Synopsis() string { return "list the report kinds of each broker" }
func (*kindsCmd) Usage() string {
	return `bkr kinds [<broker>...]
`
}

func (*kindsCmd) SetFlags(f *flag.FlagSet) {}

func (*kindsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	brokers := f.Args()
	if len(brokers) == 0 {
		brokers = []string{brokerage.T212.Broker, brokerage.XTB.Broker}
	}
	for _, b := range brokers {
		schema, err := brokerage.SchemaFor(b)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
		var names []string
		for _, k := range schema.Kinds() {
			names = append(names, k.String())
		}
		fmt.Printf("%s\t%s\n", b, strings.Join(names, ","))
	}
	return subcommands.ExitSuccess
}
