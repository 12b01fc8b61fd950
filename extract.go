package graphview

// extractRecords finds the record sequence inside a query payload. The first
// matching envelope wins:
//
//  1. the payload is itself a sequence
//  2. an "_items" sequence (driver result sets)
//  3. a "result.data" sequence (raw Gremlin Server responses)
//  4. a "result" sequence
//
// Anything else, including a "result" that is not a sequence, yields no
// records. Missing data is never an error.
func extractRecords(payload any) []any {
	if items, ok := sequence(payload); ok {
		return items
	}

	env, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	if items, ok := sequence(env["_items"]); ok {
		return items
	}
	if result, ok := env["result"].(map[string]any); ok {
		if items, ok := sequence(result["data"]); ok {
			return items
		}
	}
	if items, ok := sequence(env["result"]); ok {
		return items
	}
	return nil
}

// sequence reports whether v is a list of records. GraphSON v3 list and set
// wrappers are unwrapped.
func sequence(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []map[string]any:
		items := make([]any, len(t))
		for i, m := range t {
			items[i] = m
		}
		return items, true
	case map[string]any:
		switch t[keyTypeTag] {
		case tagList, tagSet:
			items, ok := t[keyValue].([]any)
			return items, ok
		}
	}
	return nil, false
}
