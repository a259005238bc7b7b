package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/etnz/brokerage"
	"github.com/etnz/brokerage/rates"
	"github.com/google/subcommands"
)

type ratesCmd struct{}

func (*ratesCmd) Name() string     { return "rates" }
func (*ratesCmd) Synopsis() string { return "display the rates converting currencies into the reporting currency" }
func (*ratesCmd) Usage() string {
	return `bkr [-currency <code>] rates <code>...

  Displays the ECB reference rate of each currency into the reporting currency,
  as used to value enriched reports.
`
}

func (*ratesCmd) SetFlags(f *flag.FlagSet) {}

func (*ratesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one currency code is required")
		return subcommands.ExitUsageError
	}
	codes := make([]string, f.NArg())
	for i, a := range f.Args() {
		codes[i] = strings.ToUpper(a)
	}

	conv := brokerage.NewConverter(*reportingCurrency, rates.NewFrankfurter())
	table, err := conv.Rates(ctx, codes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	for _, c := range codes {
		fmt.Printf("%s/%s\t%s\n", c, conv.Reporting, table[c])
	}
	return subcommands.ExitSuccess
}
