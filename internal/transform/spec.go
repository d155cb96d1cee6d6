// Package transform turns captured raw feed payloads into normalized rows
// ready for bulk upsert. Each data type implements Spec; a registry maps
// the data-type name stored on the raw payload to its Spec.
//
// Parsing never fails on a bad field: every coercion has a default, so one
// malformed value cannot sink a whole page. Idempotency keys are derived
// from upstream identifiers, making reprocessing a no-op at the database.
package transform

import (
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/tavern-ops/barsync/internal/db"
)

// Spec defines one data type's normalization.
type Spec interface {
	// Name is the data-type identifier stored on raw payloads
	// (e.g. "pos_sales").
	Name() string

	// Upsert describes the target table, column order, and conflict
	// handling for the rows Parse produces.
	Upsert() db.UpsertConfig

	// Parse decodes a raw payload body into rows matching Upsert().Columns.
	// refDate is the capture's reference date, for feeds whose records do
	// not carry their own. It returns an error only for undecodable
	// envelopes; individual field problems coerce to defaults.
	Parse(venueID int64, refDate string, body []byte) ([][]any, error)
}

var registry = map[string]Spec{}

// Register adds a Spec to the registry. Panics on duplicate names;
// called from init only.
func Register(s Spec) {
	if _, dup := registry[s.Name()]; dup {
		panic("transform: duplicate spec " + s.Name())
	}
	registry[s.Name()] = s
}

// Get returns the Spec for a data-type name.
func Get(name string) (Spec, error) {
	s, ok := registry[name]
	if !ok {
		return nil, eris.Errorf("transform: unknown data type %q", name)
	}
	return s, nil
}

// Names returns all registered data-type names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// envelope covers both feed dialects: the POS feed wraps records in
// "list", the ledger feed in "items".
type envelope struct {
	List  []map[string]any `json:"list"`
	Items []map[string]any `json:"items"`
}

// decodeRecords unwraps a feed envelope into its record maps.
func decodeRecords(body []byte) ([]map[string]any, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, eris.Wrap(err, "transform: decode envelope")
	}
	if env.List != nil {
		return env.List, nil
	}
	return env.Items, nil
}
