package storage

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/curanet/fhird/internal/service/fhir/model"
)

// Search parameter aliases. Everything else is matched as a dotted path into
// the resource body.
var searchAliases = map[string]string{
	"_id":        "id",
	"identifier": "identifier.value",
	"tag":        "meta.tag.code",
}

// matchQuery reports whether every query parameter matches the resource.
// Result-shaping parameters (_count, _sort, ...) are ignored.
func matchQuery(res model.Resource, query url.Values) bool {
	for key, vals := range query {
		if strings.HasPrefix(key, "_") && key != "_id" {
			continue
		}
		path := key
		if alias, ok := searchAliases[key]; ok {
			path = alias
		}
		for _, want := range vals {
			if !matchPath(map[string]any(res), strings.Split(path, "."), want) {
				return false
			}
		}
	}
	return true
}

// matchPath descends the resource tree along path; list elements match when
// any element does. The final value is compared as a string.
func matchPath(node any, path []string, want string) bool {
	switch v := node.(type) {
	case []any:
		for _, el := range v {
			if matchPath(el, path, want) {
				return true
			}
		}
		return false
	case map[string]any:
		if len(path) == 0 {
			return false
		}
		return matchPath(v[path[0]], path[1:], want)
	case nil:
		return false
	default:
		if len(path) != 0 {
			return false
		}
		return scalarString(v) == want
	}
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return fmt.Sprint(s)
	case float64:
		// JSON numbers decode as float64; print integers without a fraction
		if s == float64(int64(s)) {
			return fmt.Sprint(int64(s))
		}
		return fmt.Sprint(s)
	default:
		return fmt.Sprint(s)
	}
}
