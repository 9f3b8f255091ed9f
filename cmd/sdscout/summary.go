package main

import (
	"encoding/json"
	"os"
)

// summarySchemaVersion versions the JSON summary lines.
const summarySchemaVersion = 1

// writeJSONSummary emits one summary object as a JSON line on stderr,
// keeping stdout reserved for record output.
func writeJSONSummary(fields map[string]any) {
	enc := json.NewEncoder(os.Stderr)
	_ = enc.Encode(fields)
}
