package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/etnz/brokerage"
	"github.com/etnz/brokerage/t212"
	"github.com/etnz/brokerage/xtb"
	"github.com/goccy/go-json"
	"github.com/google/subcommands"
)

type reportCmd struct {
	broker string
	kinds  string
	raw    bool
	flat   bool
	format string
	out    string
	config string
	url    string
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "retrieve and normalise account reports from a broker" }
func (*reportCmd) Usage() string {
	return `bkr report -b <broker> [-k <kinds>] [-raw | -flat] [-f <format>] [-o <dir>]

  Retrieves the account reports (cash, portfolio, instruments, pies) of a broker.

  By default reports are enriched: positions are labelled with the reference data
  and valued in the reporting currency. Use -flat to only flatten the broker
  payloads, or -raw to keep them as received.

  Credentials are read from the environment (or the -env file):
    t212: T212_API_KEY, unless -config names a t212_config.json file
    xtb:  XTB_USER_ID and XTB_PASSWORD, unless -config names a commands file
          with a "login" template
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.broker, "b", "t212", "Broker to query (t212, xtb)")
	f.StringVar(&c.kinds, "k", "", "Comma separated report kinds (cash, portfolio, instruments, pies). Defaults to all the broker supports.")
	f.BoolVar(&c.raw, "raw", false, "Keep the payloads as received")
	f.BoolVar(&c.flat, "flat", false, "Flatten the payloads without enrichment")
	f.StringVar(&c.format, "f", "md", "Output format (json, csv, md)")
	f.StringVar(&c.out, "o", "", "Directory to save one file per report. Prints to stdout if empty.")
	f.StringVar(&c.config, "config", "", "Broker configuration file (t212 endpoints and headers, or xtb command templates)")
	f.StringVar(&c.url, "url", "", "Broker API URL, overrides the default live endpoint")
}

func (c *reportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	format, err := brokerage.ParseFormat(c.format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	normalizer, err := NewNormalizer(c.broker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	kinds := normalizer.Schema.Kinds()
	if c.kinds != "" {
		if kinds, err = brokerage.ParseKinds(c.kinds); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
	}

	LoadEnv()
	fetcher, parallelism, done, err := c.open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to %s: %v\n", c.broker, err)
		return subcommands.ExitFailure
	}
	defer done()

	agg := brokerage.Aggregator{Fetcher: fetcher, Normalizer: normalizer, Parallelism: parallelism}
	result, err := agg.Run(ctx, kinds, brokerage.Options{Parse: !c.raw, Enrich: !c.flat})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	if c.out != "" {
		paths, err := brokerage.SaveResult(c.out, c.broker, result, format)
		for _, p := range paths {
			fmt.Println(p)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error saving reports: %v\n", err)
			return subcommands.ExitFailure
		}
	} else if err := printResult(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Error printing reports: %v\n", err)
		return subcommands.ExitFailure
	}

	if err := result.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Some reports failed:\n%v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// open returns the fetcher of the broker, the number of kinds it can fetch
// concurrently, and the function releasing it.
func (c *reportCmd) open(ctx context.Context) (brokerage.Fetcher, int, func(), error) {
	switch c.broker {
	case "t212":
		var config *t212.Config
		if c.config != "" {
			var err error
			if config, err = t212.LoadConfig(c.config); err != nil {
				return nil, 0, nil, err
			}
		} else {
			key, err := getenv(EnvT212APIKey)
			if err != nil {
				return nil, 0, nil, err
			}
			base := c.url
			if base == "" {
				base = t212.DefaultBaseURL
			}
			config = t212.NewConfig(base, key)
		}
		return t212.New(config), len(brokerage.Kinds()), func() {}, nil

	case "xtb":
		commands := xtb.DefaultCommands
		if c.config != "" {
			var err error
			if commands, err = xtb.LoadCommands(c.config); err != nil {
				return nil, 0, nil, err
			}
		}
		url := c.url
		if url == "" {
			url = xtb.RealURL
		}
		s, err := xtb.Dial(ctx, url, commands)
		if err != nil {
			return nil, 0, nil, err
		}
		if err := s.Login(ctx, os.Getenv(EnvXTBUser), os.Getenv(EnvXTBPassword)); err != nil {
			s.Close()
			return nil, 0, nil, err
		}
		// the session serialises commands anyway
		return s, 1, func() {
			if err := s.Close(); err != nil {
				log.Printf("xtb: %v", err)
			}
		}, nil
	}
	return nil, 0, nil, fmt.Errorf("unknown broker %q", c.broker)
}

// printResult writes every report to w: JSON as a single object keyed by kind,
// other formats as one titled section per kind.
func printResult(w io.Writer, result brokerage.Result, format brokerage.Format) error {
	if format == brokerage.JSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	}
	var errs []error
	for i, k := range result.Kinds() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		r := result[k]
		fmt.Fprintf(w, "# %s\n\n", strings.ToUpper(k.String()[:1])+k.String()[1:])
		switch {
		case r.Err != nil:
			fmt.Fprintf(w, "error: %v\n", r.Err)
		case r.Table == nil:
			data, err := json.MarshalIndent(r.Raw, "", "  ")
			if err != nil {
				errs = append(errs, err)
				continue
			}
			fmt.Fprintf(w, "%s\n", data)
		default:
			if err := brokerage.EncodeTable(w, r.Table, format); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
