package brokerage

import (
	"fmt"
	"strings"
)

// Kind identifies a report type returned by a broker.
type Kind int

const (
	Cash Kind = iota + 1
	Portfolio
	Instruments
	Pies
)

var kindNames = map[Kind]string{
	Cash:        "cash",
	Portfolio:   "portfolio",
	Instruments: "instruments",
	Pies:        "pies",
}

// kindAliases maps the XTB command names onto the kind they report.
var kindAliases = map[string]Kind{
	"margin":  Cash,
	"trades":  Portfolio,
	"symbols": Instruments,
}

// Kinds returns all kinds in their canonical order.
func Kinds() []Kind { return []Kind{Cash, Portfolio, Instruments, Pies} }

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind parses a kind name, case insensitive. XTB command names (margin, trades,
// symbols) are accepted as aliases.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	if k, ok := kindAliases[name]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownReportKind, s)
}

// ParseKinds parses a comma separated list of kinds.
func ParseKinds(s string) ([]Kind, error) {
	var kinds []Kind
	for _, name := range strings.Split(s, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownReportKind, int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
