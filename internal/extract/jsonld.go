package extract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/siteintent/internal/model"
)

var businessTypes = map[string]bool{
	"organization":                true,
	"localbusiness":               true,
	"professionalservice":         true,
	"homeandconstructionbusiness": true,
	"plumber":                     true,
	"electrician":                 true,
	"locksmith":                   true,
	"roofingcontractor":           true,
	"generalcontractor":           true,
	"housepainter":                true,
	"movingcompany":               true,
	"hvacbusiness":                true,
	"autorepair":                  true,
	"dentist":                     true,
	"store":                       true,
	"restaurant":                  true,
}

// entities flattens JSON-LD objects (including @graph members) and puts
// business-typed objects first, keeping document order otherwise.
func entities(facts model.RawFacts) []map[string]any {
	var flat []map[string]any
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case map[string]any:
			flat = append(flat, t)
			if g, ok := t["@graph"]; ok {
				walk(g)
			}
		case []any:
			for _, item := range t {
				walk(item)
			}
		}
	}
	for _, obj := range facts.JSONLD {
		walk(obj)
	}

	sort.SliceStable(flat, func(i, j int) bool {
		return isBusiness(flat[i]) && !isBusiness(flat[j])
	})
	return flat
}

func isBusiness(obj map[string]any) bool {
	for _, t := range typesOf(obj) {
		t = strings.ToLower(t)
		if businessTypes[t] || strings.HasSuffix(t, "business") {
			return true
		}
	}
	return false
}

func typesOf(obj map[string]any) []string {
	switch t := obj["@type"].(type) {
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// stringField reads key as a string, looking through single-item arrays
// and {url|name|@id} objects.
func stringField(obj map[string]any, key string) string {
	return asString(obj[key])
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%.0f", t))
	case []any:
		for _, item := range t {
			if s := asString(item); s != "" {
				return s
			}
		}
	case map[string]any:
		for _, k := range []string{"url", "contentUrl", "name", "@id"} {
			if s, ok := t[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// stringList reads key as a list of strings
func stringList(obj map[string]any, key string) []string {
	switch t := obj[key].(type) {
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, item := range t {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
