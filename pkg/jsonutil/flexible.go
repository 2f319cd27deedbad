package jsonutil

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexibleStringValue converts a JSON scalar to the text form an import cell
// would have in a spreadsheet. Numbers keep their literal digits, booleans
// become "true"/"false" and null/empty becomes "".
func FlexibleStringValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	// json.Number preserves digits that a float64 round trip would lose
	// (long identifiers, trailing zeros in amounts).
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err == nil {
		switch n := v.(type) {
		case json.Number:
			return n.String()
		case bool:
			return strconv.FormatBool(n)
		}
	}

	// Objects and arrays pass through as their JSON text.
	return string(raw)
}

// RowValues projects a JSON import row onto headers, in header order.
// Missing keys produce "".
func RowValues(row map[string]json.RawMessage, headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = FlexibleStringValue(row[h])
	}
	return out
}
