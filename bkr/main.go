// Command bkr retrieves account reports from Trading 212 and XTB and normalises them
// into tables.
//
// Shell completion is installed with COMP_INSTALL=1 bkr.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/etnz/brokerage/cmd"
	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

var completion = &complete.Command{
	Flags: map[string]complete.Predictor{
		"references": predict.Files("*.csv"),
		"pie-labels": predict.Files("*.json"),
		"currency":   predict.Set{"EUR", "USD", "GBP", "CHF", "PLN"},
		"env":        predict.Files("*"),
	},
	Sub: map[string]*complete.Command{
		"report": {
			Flags: map[string]complete.Predictor{
				"b":      predict.Set{"t212", "xtb"},
				"k":      predict.Set{"cash", "portfolio", "instruments", "pies"},
				"f":      predict.Set{"json", "csv", "md"},
				"o":      predict.Dirs("*"),
				"config": predict.Files("*.json"),
				"url":    predict.Something,
				"raw":    predict.Nothing,
				"flat":   predict.Nothing,
			},
		},
		"kinds": {Args: predict.Set{"t212", "xtb"}},
		"rates": {Args: predict.Something},
		"help":  {Args: predict.Set{"report", "kinds", "rates"}},
	},
}

func main() {
	completion.Complete(path.Base(os.Args[0]))

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	cmd.Register(commander)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
