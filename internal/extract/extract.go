// Package extract pulls named fields out of connector responses using
// JSON-path expressions of the form $.a.b.
package extract

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Extract applies every mapping (output name → JSON-path) to the document.
// A path that matches nothing yields a nil entry rather than an error, so a
// workflow's validation clause decides whether absence is fatal.
func Extract(doc []byte, mappings map[string]string) (map[string]any, error) {
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	out := make(map[string]any, len(mappings))
	for name, expr := range mappings {
		path, err := toGJSONPath(expr)
		if err != nil {
			return nil, fmt.Errorf("extracting %q with path %q: %w", name, expr, err)
		}
		res := gjson.GetBytes(doc, path)
		if !res.Exists() {
			out[name] = nil
			continue
		}
		out[name] = res.Value()
	}
	return out, nil
}

// Single extracts one path, reporting whether it matched.
func Single(doc []byte, expr string) (any, bool) {
	path, err := toGJSONPath(expr)
	if err != nil {
		return nil, false
	}
	res := gjson.GetBytes(doc, path)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// toGJSONPath converts the $.a.b form to a gjson path. A bare "$" selects
// the whole document, which has no gjson equivalent and is rejected.
func toGJSONPath(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	switch {
	case expr == "" || expr == "$":
		return "", fmt.Errorf("empty path")
	case strings.HasPrefix(expr, "$."):
		return expr[2:], nil
	case strings.HasPrefix(expr, "$"):
		return expr[1:], nil
	default:
		return expr, nil
	}
}
