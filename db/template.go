package db

import (
	"fmt"
	"regexp"
	"strings"
)

// templateRef matches a `${name}` placeholder. Names are restricted to the
// characters a JSON object key in this schema format would realistically
// use.
var templateRef = regexp.MustCompile(`\$\{([A-Za-z0-9_.]+)\}`)

// renderTemplate substitutes every `${name}` in tmpl with the stringified
// value of props[name], per spec.md §4.3 step 8 and the GLOSSARY's
// Template entry. A name absent from props is left untouched (literal
// `${name}` survives) — this is what lets an unresolved sort-key template
// fall through to the prefix-scan path in step 11 rather than silently
// rendering garbage.
func renderTemplate(tmpl string, props map[string]any) string {
	return templateRef.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := templateRef.FindStringSubmatch(match)[1]

		v, ok := props[name]
		if !ok {
			return match
		}

		return stringifyTemplateValue(v)
	})
}

func stringifyTemplateValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// hasUnresolvedTemplate reports whether s still contains a `${` after
// rendering.
func hasUnresolvedTemplate(s string) bool {
	return strings.Contains(s, "${")
}

// truncateAtTemplate returns the prefix of s up to (not including) its
// first `${`, for use as a begins-with prefix-scan key per spec.md §4.3
// step 11.
func truncateAtTemplate(s string) string {
	if idx := strings.Index(s, "${"); idx >= 0 {
		return s[:idx]
	}

	return s
}
