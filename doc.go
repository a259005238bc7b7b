// Package brokerage retrieves account reports from brokers and reshapes their raw
// payloads into flat tables that compare across brokers.
//
// The pipeline is:
//   - Transport: a broker client (see the t212 and xtb packages) returns the raw JSON
//     Payload of one report Kind.
//   - Normalisation: a Normalizer, configured with the broker Schema, flattens the
//     payload into a Table, or enriches it against the reference datasets
//     (References, PieLabels) and converts amounts into the reporting currency with a
//     Converter.
//   - Aggregation: an Aggregator fetches and normalises several kinds at once and
//     returns a Result keyed by Kind, where every kind fails independently.
//
// Tables can be persisted as JSON, CSV or markdown with EncodeTable and SaveResult.
package brokerage
