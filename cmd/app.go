// Package cmd implements the CLI application to retrieve broker reports.
package cmd

import (
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"

	"github.com/etnz/brokerage"
	"github.com/etnz/brokerage/rates"
	"github.com/google/subcommands"
	"github.com/joho/godotenv"
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&reportCmd{}, "reports")
	c.Register(&kindsCmd{}, "reports")
	c.Register(&ratesCmd{}, "currencies")
}

// Environment variables holding the broker credentials.
const (
	EnvT212APIKey  = "T212_API_KEY"
	EnvXTBUser     = "XTB_USER_ID"
	EnvXTBPassword = "XTB_PASSWORD"
)

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var referencesFile = flag.String("references", "references.csv", "Path to the reference data CSV (ticker, name, currencyCode)")
var pieLabelsFile = flag.String("pie-labels", "pie_labels.json", "Path to the JSON file labelling pies by id")
var reportingCurrency = flag.String("currency", "EUR", "Reporting currency of the enriched reports")
var envFile = flag.String("env", ".env", "Path to a .env file holding broker credentials")

// LoadEnv loads the .env file into the process environment. Variables already set
// are not overridden, and a missing file is not an error.
func LoadEnv() {
	err := godotenv.Load(*envFile)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		log.Printf("warning, cannot load %s: %v", *envFile, err)
	}
}

// NewNormalizer returns the normalizer of a broker configured from the global flags.
func NewNormalizer(broker string) (*brokerage.Normalizer, error) {
	schema, err := brokerage.SchemaFor(broker)
	if err != nil {
		return nil, err
	}
	return &brokerage.Normalizer{
		Schema:     schema,
		References: brokerage.ReferencesFromCSV(*referencesFile),
		PieLabels:  brokerage.PieLabelsFromJSON(*pieLabelsFile),
		Converter:  brokerage.NewConverter(*reportingCurrency, rates.NewFrankfurter()),
	}, nil
}

// getenv returns the value of an environment variable or an error naming it.
func getenv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", errors.New(key + " is not set")
	}
	return v, nil
}
