package brokerage

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Payload is the raw JSON body of a broker response, exactly as received.
// Normalisers decode it on every call and never modify it.
type Payload []byte

// MarshalJSON returns the payload verbatim, so that raw reports can be embedded in a
// JSON document.
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(bytes.TrimSpace(p)) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// IsEmpty returns true if the payload carries no JSON value at all.
func (p Payload) IsEmpty() bool { return len(bytes.TrimSpace(p)) == 0 }

// decode parses the payload keeping numbers as json.Number, so that amounts reach
// decimal.Decimal without a detour through float64.
func (p Payload) decode(kind Kind) (any, error) {
	if p.IsEmpty() {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, malformed(kind, "cannot decode json: %v", err)
	}
	return v, nil
}
