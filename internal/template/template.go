// Package template implements the deliberately narrow placeholder language
// used by workflow content templates: single-brace {name} or {name.sub},
// no control flow, no escaping, no arithmetic.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholder matches {name} and {name.sub}. Name characters are
// alphanumerics, underscore, dot, and space; segments are trimmed of
// surrounding whitespace before lookup.
var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_. ]+)\}`)

// Render expands every placeholder in tmpl against vars. Values are strings
// or nested string maps; dotted paths traverse the nesting. An unresolvable
// path renders as the literal token {UNDEFINED:name} rather than failing, so
// renderings are always defined strings and missing bindings stay observable
// in the output.
func Render(tmpl string, vars map[string]any) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		path := m[1 : len(m)-1]
		val, found := resolve(path, vars)
		if !found {
			return fmt.Sprintf("{UNDEFINED:%s}", strings.TrimSpace(path))
		}
		return val
	})
}

func resolve(path string, vars map[string]any) (string, bool) {
	segments := strings.Split(path, ".")
	var current any = vars
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		switch node := current.(type) {
		case map[string]any:
			next, found := node[seg]
			if !found {
				return "", false
			}
			current = next
		case map[string]string:
			next, found := node[seg]
			if !found {
				return "", false
			}
			current = next
		default:
			return "", false
		}
	}
	switch v := current.(type) {
	case string:
		return v, true
	case map[string]any, map[string]string:
		// A bare reference to a nested mapping has no string form.
		return "", false
	default:
		return fmt.Sprintf("%v", v), true
	}
}

// Undefined reports whether a rendered string still carries unresolved
// placeholder sentinels.
func Undefined(rendered string) bool {
	return strings.Contains(rendered, "{UNDEFINED:")
}

// Refs returns the distinct top-level variable names tmpl references, in
// order of first appearance. Dotted paths contribute their first segment.
func Refs(tmpl string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholder.FindAllStringSubmatch(tmpl, -1) {
		name := strings.TrimSpace(strings.SplitN(m[1], ".", 2)[0])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
