package executor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenPattern = regexp.MustCompile(`{(\$[^}]*)}`)

// ResolveConfigParams substitutes {$.node.output.field} references in a
// node's config with values looked up from upstream outputs, recursing
// through nested maps and lists. Non-string values pass through untouched.
func ResolveConfigParams(config map[string]any, upstreamOutputs map[string]any) map[string]any {
	resolved := make(map[string]any, len(config))
	for k, v := range config {
		resolved[k] = resolveValue(v, upstreamOutputs)
	}
	return resolved
}

func resolveValue(value any, scope map[string]any) any {
	switch v := value.(type) {
	case string:
		return resolveString(v, scope)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[k] = resolveValue(inner, scope)
		}
		return out
	case []any:
		out := make([]any, 0, len(v))
		for _, inner := range v {
			out = append(out, resolveValue(inner, scope))
		}
		return out
	default:
		return v
	}
}

func resolveString(s string, scope map[string]any) any {
	tokens := tokenPattern.FindAllStringSubmatch(s, -1)
	if len(tokens) == 0 {
		return s
	}
	// a string that is exactly one token keeps the looked-up value's type
	if len(tokens) == 1 && s == tokens[0][0] {
		value, err := jsonpath.JsonPathLookup(scope, tokens[0][1])
		if err != nil {
			return s
		}
		return value
	}
	resolved := s
	for _, token := range tokens {
		value, err := jsonpath.JsonPathLookup(scope, token[1])
		if err != nil {
			continue
		}
		resolved = strings.ReplaceAll(resolved, token[0], fmt.Sprintf("%v", value))
	}
	return resolved
}
