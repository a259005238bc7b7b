package brokerage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/Rhymond/go-money"
	"github.com/goccy/go-json"
)

// Reference describes an instrument: its label and the currency it is quoted in.
type Reference struct {
	Ticker   string
	Name     string
	Currency string
}

// References is the reference dataset positions are joined with. It is loaded at
// most once, on first use, and is read-only afterwards.
type References struct {
	load func() (map[string]Reference, error)
}

// NewReferences returns a store that calls load on first use. Loading fails with
// ErrResourceUnavailable if load fails, if a ticker appears twice or if a currency is
// not an ISO 4217 code.
func NewReferences(load func() ([]Reference, error)) *References {
	return &References{load: sync.OnceValues(func() (map[string]Reference, error) {
		list, err := load()
		if err != nil {
			return nil, unavailable("references", err)
		}
		index := make(map[string]Reference, len(list))
		for _, ref := range list {
			if ref.Ticker == "" {
				return nil, unavailable("references", errors.New("empty ticker"))
			}
			if _, exists := index[ref.Ticker]; exists {
				return nil, unavailable("references", fmt.Errorf("duplicate ticker %q", ref.Ticker))
			}
			ref.Currency = strings.ToUpper(strings.TrimSpace(ref.Currency))
			if money.GetCurrency(ref.Currency) == nil {
				return nil, unavailable("references", fmt.Errorf("ticker %q: invalid currency %q", ref.Ticker, ref.Currency))
			}
			index[ref.Ticker] = ref
		}
		return index, nil
	})}
}

// ReferencesFromCSV reads references from a CSV file whose header contains the
// columns "ticker" (or "symbol"), "name" (or "description") and either
// "currencyCode" or "currency".
func ReferencesFromCSV(path string) *References {
	return NewReferences(func() ([]Reference, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return DecodeReferences(f)
	})
}

// DecodeReferences decodes references from CSV.
func DecodeReferences(r io.Reader) ([]Reference, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("cannot read header: %w", err)
	}
	// col returns the first of names found in the header, in the order of names.
	col := func(names ...string) int {
		for _, n := range names {
			for i, h := range header {
				if strings.EqualFold(strings.TrimSpace(h), n) {
					return i
				}
			}
		}
		return -1
	}
	iTicker, iName, iCur := col("ticker", "symbol"), col("name", "description"), col("currencyCode", "currency")
	if iTicker < 0 || iName < 0 || iCur < 0 {
		return nil, fmt.Errorf("header %q must contain ticker (or symbol), name (or description) and currencyCode", header)
	}

	var refs []Reference
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if max(iTicker, iName, iCur) >= len(rec) {
			return nil, fmt.Errorf("line %d: expected at least %d columns, got %d", line, max(iTicker, iName, iCur)+1, len(rec))
		}
		refs = append(refs, Reference{
			Ticker:   strings.TrimSpace(rec[iTicker]),
			Name:     strings.TrimSpace(rec[iName]),
			Currency: strings.TrimSpace(rec[iCur]),
		})
	}
	return refs, nil
}

// Load returns the reference index by ticker. The map is shared, do not modify it.
func (r *References) Load() (map[string]Reference, error) {
	if r == nil || r.load == nil {
		return nil, fmt.Errorf("%w: no references configured", ErrResourceUnavailable)
	}
	return r.load()
}

// PieLabel is the label of a pie: the asset class it is reported under and its name.
type PieLabel struct {
	ID    int64
	Asset string
	Name  string
}

// PieLabels is the reference dataset pies are joined with. Like References it is
// loaded at most once.
type PieLabels struct {
	load func() (map[int64]PieLabel, error)
}

// NewPieLabels returns a store that calls load on first use.
func NewPieLabels(load func() ([]PieLabel, error)) *PieLabels {
	return &PieLabels{load: sync.OnceValues(func() (map[int64]PieLabel, error) {
		list, err := load()
		if err != nil {
			return nil, unavailable("pie labels", err)
		}
		index := make(map[int64]PieLabel, len(list))
		for _, l := range list {
			if _, exists := index[l.ID]; exists {
				return nil, unavailable("pie labels", fmt.Errorf("duplicate pie id %d", l.ID))
			}
			index[l.ID] = l
		}
		return index, nil
	})}
}

// PieLabelsFromJSON reads pie labels from a JSON file, see DecodePieLabels.
func PieLabelsFromJSON(path string) *PieLabels {
	return NewPieLabels(func() ([]PieLabel, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return DecodePieLabels(data)
	})
}

// DecodePieLabels decodes a JSON object keyed by pie id. Values are either a pair
// ["asset", "name"] or an object {"asset": ..., "name": ...}.
func DecodePieLabels(data []byte) ([]PieLabel, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("could not decode pie labels json: %w", err)
	}
	labels := make([]PieLabel, 0, len(raw))
	for key, value := range raw {
		id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("pie id %q is not an integer", key)
		}
		l := PieLabel{ID: id}
		var pair []string
		var obj struct {
			Asset string `json:"asset"`
			Name  string `json:"name"`
		}
		switch {
		case json.Unmarshal(value, &pair) == nil:
			if len(pair) != 2 {
				return nil, fmt.Errorf("pie %d: expected [asset, name], got %d values", id, len(pair))
			}
			l.Asset, l.Name = pair[0], pair[1]
		case json.Unmarshal(value, &obj) == nil:
			l.Asset, l.Name = obj.Asset, obj.Name
		default:
			return nil, fmt.Errorf("pie %d: expected [asset, name] or {asset, name}", id)
		}
		labels = append(labels, l)
	}
	return labels, nil
}

// Load returns the labels by pie id. The map is shared, do not modify it.
func (p *PieLabels) Load() (map[int64]PieLabel, error) {
	if p == nil || p.load == nil {
		return nil, fmt.Errorf("%w: no pie labels configured", ErrResourceUnavailable)
	}
	return p.load()
}

func unavailable(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrResourceUnavailable, what, err)
}
