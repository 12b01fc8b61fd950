package graphview

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// entityMetadata holds the parsed `graph` tag information for a specific struct type.
// It is cached per type to avoid costly reflection on every bind.
type entityMetadata struct {
	// Name is the struct's type name, used in error messages.
	Name string
	// IDField, LabelField, SourceField and TargetField name the struct fields
	// receiving the entity's identity. Empty when the struct has no such field.
	IDField     string
	LabelField  string
	SourceField string
	TargetField string
	// Mappings maps struct field names to their corresponding property names.
	Mappings map[string]string
}

// metaCache stores parsed entityMetadata keyed by reflect.Type.
var metaCache sync.Map

// parseTagsFromType inspects a reflect.Type and extracts binding metadata from
// `graph` struct tags. Recognized tags are:
//
//	graph:"id"              the entity id
//	graph:"label"           the entity label
//	graph:"source"          the edge's out vertex id
//	graph:"target"          the edge's in vertex id
//	graph:"property:<name>" the property <name>
func parseTagsFromType(typ reflect.Type) (*entityMetadata, error) {
	// If the type is a pointer, get the underlying element's type.
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type %s is not a struct", typ)
	}

	if cached, ok := metaCache.Load(typ); ok {
		return cached.(*entityMetadata), nil
	}

	meta := &entityMetadata{
		Name:     typ.Name(),
		Mappings: make(map[string]string),
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag, ok := field.Tag.Lookup("graph")
		if !ok || tag == "" || tag == "-" {
			continue
		}
		if !field.IsExported() {
			return nil, fmt.Errorf("field %s.%s is tagged but not exported", typ.Name(), field.Name)
		}

		switch {
		case tag == "id":
			meta.IDField = field.Name
		case tag == "label":
			meta.LabelField = field.Name
		case tag == "source":
			meta.SourceField = field.Name
		case tag == "target":
			meta.TargetField = field.Name
		case strings.HasPrefix(tag, "property:"):
			propName := strings.TrimPrefix(tag, "property:")
			if propName == "" {
				return nil, fmt.Errorf("field %s has an empty 'property' tag component", field.Name)
			}
			meta.Mappings[field.Name] = propName
		default:
			return nil, fmt.Errorf("field %s has unknown graph tag %q", field.Name, tag)
		}
	}

	if meta.IDField == "" && meta.LabelField == "" && meta.SourceField == "" &&
		meta.TargetField == "" && len(meta.Mappings) == 0 {
		return nil, fmt.Errorf("no graph tags defined for struct %s", typ.Name())
	}

	metaCache.Store(typ, meta)
	return meta, nil
}

// parseTags is a generic convenience wrapper around parseTagsFromType.
func parseTags[T any]() (*entityMetadata, error) {
	var instance T
	return parseTagsFromType(reflect.TypeOf(instance))
}
