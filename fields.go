package graphview

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Field names used by the Gremlin result dialects.
const (
	keyID         = "id"
	keyLegacyID   = "_id"
	keyLabel      = "label"
	keyType       = "type"
	keyTypeTag    = "@type"
	keyValue      = "@value"
	keyProperties = "properties"
	keyInV        = "inV"
	keyOutV       = "outV"
	keyInVLabel   = "inVLabel"
	keyOutVLabel  = "outVLabel"
)

// GraphSON type tags.
const (
	tagVertex         = "g:Vertex"
	tagEdge           = "g:Edge"
	tagVertexProperty = "g:VertexProperty"
	tagProperty       = "g:Property"
	tagList           = "g:List"
	tagSet            = "g:Set"
)

// reservedKeys are never copied into a property bag.
var reservedKeys = map[string]struct{}{
	keyID: {}, keyLegacyID: {}, keyLabel: {}, keyType: {}, keyTypeTag: {}, keyValue: {},
	keyProperties: {}, keyInV: {}, keyOutV: {}, keyInVLabel: {}, keyOutVLabel: {},
}

// present reports whether v counts as a populated field. Numbers, including
// zero, are present since TinkerGraph hands out 0 as a legitimate id.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	}
	return true
}

func has(rec map[string]any, key string) bool {
	return present(rec[key])
}

func absent(rec map[string]any, key string) bool {
	_, ok := rec[key]
	return !ok
}

func nested(rec map[string]any) map[string]any {
	inner, _ := rec[keyValue].(map[string]any)
	return inner
}

// lookup resolves key on the record itself first and on its @value container
// second.
func lookup(rec map[string]any, key string) any {
	if v := rec[key]; present(v) {
		return v
	}
	if inner := nested(rec); inner != nil {
		if v := inner[key]; present(v) {
			return v
		}
	}
	return nil
}

// identity resolves the record id: direct, then @value, then _id.
func identity(rec map[string]any) string {
	if id := scalarString(lookup(rec, keyID)); id != "" {
		return id
	}
	return scalarString(rec[keyLegacyID])
}

func lookupString(rec map[string]any, key string) string {
	return scalarString(lookup(rec, key))
}

// scalarString renders ids and labels as strings. Typed GraphSON scalars are
// unwrapped; values that have no sensible string form yield "".
func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", t)
	case map[string]any:
		inner, ok := t[keyValue]
		if !ok {
			return ""
		}
		// JanusGraph edge ids: {"@type":"janusgraph:RelationIdentifier","@value":{"relationId":"..."}}
		if m, ok := inner.(map[string]any); ok {
			return scalarString(m["relationId"])
		}
		return scalarString(inner)
	}
	return ""
}

// propertyBag copies the record's properties map, direct first then @value.
func propertyBag(rec map[string]any, flatten bool) map[string]any {
	props := make(map[string]any)
	bag, _ := lookup(rec, keyProperties).(map[string]any)
	for k, v := range bag {
		if flatten {
			v = flattenValue(v)
		}
		props[k] = v
	}
	return props
}

// looseProperties collects every non-reserved top-level field. Flat TinkerPop
// records carry their properties this way.
func looseProperties(rec map[string]any, flatten bool) map[string]any {
	props := make(map[string]any)
	for k, v := range rec {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		if flatten {
			v = flattenValue(v)
		}
		props[k] = v
	}
	return props
}

// flattenValue unwraps GraphSON property structures into plain values:
// vertex property lists ([{"id":..,"value":v}]) collapse to v when single,
// and typed values ({"@type":..,"@value":v}) become v.
func flattenValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		entries := len(t) > 0
		for i, e := range t {
			val, ok := propertyEntryValue(e)
			if !ok {
				entries = false
				val = flattenValue(e)
			}
			out[i] = val
		}
		if entries && len(out) == 1 {
			return out[0]
		}
		return out
	case map[string]any:
		if val, ok := propertyEntryValue(t); ok {
			return val
		}
		if _, tagged := t[keyTypeTag].(string); tagged {
			if inner, ok := t[keyValue]; ok {
				return flattenValue(inner)
			}
		}
		return t
	}
	return v
}

func propertyEntryValue(e any) (any, bool) {
	m, ok := e.(map[string]any)
	if !ok {
		return nil, false
	}
	switch m[keyTypeTag] {
	case tagVertexProperty, tagProperty:
		inner, _ := m[keyValue].(map[string]any)
		return flattenValue(inner["value"]), true
	}
	_, hasValue := m["value"]
	_, hasID := m[keyID]
	if hasValue && hasID {
		return flattenValue(m["value"]), true
	}
	return nil, false
}
