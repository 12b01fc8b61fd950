package graphview

// Kind is the classification of a raw result record.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindVertex
	KindEdge
)

func (k Kind) String() string {
	switch k {
	case KindVertex:
		return "vertex"
	case KindEdge:
		return "edge"
	}
	return "unrecognized"
}

// recognizer matches one record shape emitted by one family of Gremlin
// servers. Recognizers are evaluated in order and the first match wins, so a
// record is never classified twice. Support for a new server dialect is added
// by inserting a recognizer, not by editing the existing predicates.
type recognizer struct {
	// Name identifies the dialect shape, used in logs and metrics.
	Name string
	Kind Kind
	// Loose shapes carry their properties as top-level fields instead of a
	// properties bag.
	Loose bool
	Match func(rec map[string]any) bool
}

var recognizers = []recognizer{
	// Cosmos DB and GraphSON servers: explicit type tags, possibly wrapped
	// under @value, or an untagged record with a properties bag.
	{Name: "graphson-vertex", Kind: KindVertex, Match: isGraphSONVertex},
	{Name: "graphson-edge", Kind: KindEdge, Match: isGraphSONEdge},
	// Local TinkerPop servers emitting flat objects without type tags.
	{Name: "tinkerpop-vertex", Kind: KindVertex, Loose: true, Match: isTinkerPopVertex},
	{Name: "tinkerpop-edge", Kind: KindEdge, Loose: true, Match: isTinkerPopEdge},
}

func isGraphSONVertex(rec map[string]any) bool {
	if rec[keyType] == "vertex" || rec[keyTypeTag] == tagVertex {
		return true
	}
	return has(rec, keyID) && has(rec, keyLabel) && has(rec, keyProperties) &&
		!has(rec, keyInV) && !has(rec, keyOutV)
}

func isGraphSONEdge(rec map[string]any) bool {
	if rec[keyType] == "edge" || rec[keyTypeTag] == tagEdge {
		return true
	}
	return has(rec, keyID) && has(rec, keyLabel) && has(rec, keyInV) && has(rec, keyOutV)
}

func isTinkerPopVertex(rec map[string]any) bool {
	return has(rec, keyID) && has(rec, keyLabel) &&
		absent(rec, keyType) && absent(rec, keyInV) && absent(rec, keyOutV)
}

func isTinkerPopEdge(rec map[string]any) bool {
	return has(rec, keyID) && has(rec, keyLabel) && has(rec, keyInV) && has(rec, keyOutV)
}

// classify returns the record as a map together with the recognizer that
// matched it. A nil recognizer means the record is unrecognized.
func classify(item any) (map[string]any, *recognizer) {
	rec, ok := item.(map[string]any)
	if !ok {
		return nil, nil
	}
	for i := range recognizers {
		if recognizers[i].Match(rec) {
			return rec, &recognizers[i]
		}
	}
	return rec, nil
}

// Classify reports how a single raw record would be classified.
func Classify(item any) Kind {
	if _, r := classify(item); r != nil {
		return r.Kind
	}
	return KindUnrecognized
}
