package graphview

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/saulfrancisco-ruizacevedo/go-graphview/models"
)

// BindNode populates the struct pointed to by dst from a normalized node,
// following its `graph` struct tags. Properties missing from the node leave
// their field untouched.
//
// Parameters:
//   - node: The node to read.
//   - dst: A non-nil pointer to a struct with `graph` tags.
//
// Returns:
//
//	An error if dst is not a tagged struct pointer or a property cannot be
//	converted to its field's type.
func BindNode(node *models.Node, dst any) error {
	if node == nil {
		return fmt.Errorf("node is nil")
	}
	val, meta, err := bindTarget(dst)
	if err != nil {
		return err
	}
	if err := setIdentity(val, meta.IDField, node.ID); err != nil {
		return err
	}
	if err := setIdentity(val, meta.LabelField, node.Label); err != nil {
		return err
	}
	return mapProperties(val, meta, node.Properties)
}

// BindEdge populates the struct pointed to by dst from a normalized edge.
// It behaves like BindNode and also fills the `source` and `target` fields.
func BindEdge(edge *models.Edge, dst any) error {
	if edge == nil {
		return fmt.Errorf("edge is nil")
	}
	val, meta, err := bindTarget(dst)
	if err != nil {
		return err
	}
	identity := [][2]string{
		{meta.IDField, edge.ID},
		{meta.LabelField, edge.Label},
		{meta.SourceField, edge.Source},
		{meta.TargetField, edge.Target},
	}
	for _, pair := range identity {
		if err := setIdentity(val, pair[0], pair[1]); err != nil {
			return err
		}
	}
	return mapProperties(val, meta, edge.Properties)
}

// NodesAs binds every node of the graph whose label equals label into a new
// T, in graph order. An empty label selects every node.
func NodesAs[T any](g *models.GraphResult, label string) ([]T, error) {
	if _, err := parseTags[T](); err != nil {
		return nil, err
	}
	out := make([]T, 0)
	for _, n := range g.Nodes {
		if label != "" && n.Label != label {
			continue
		}
		var entity T
		if err := BindNode(n, &entity); err != nil {
			return nil, fmt.Errorf("could not bind node %s: %w", n.ID, err)
		}
		out = append(out, entity)
	}
	return out, nil
}

// EdgesAs binds every edge of the graph whose label equals label into a new
// T. An empty label selects every edge.
func EdgesAs[T any](g *models.GraphResult, label string) ([]T, error) {
	if _, err := parseTags[T](); err != nil {
		return nil, err
	}
	out := make([]T, 0)
	for _, e := range g.Edges {
		if label != "" && e.Label != label {
			continue
		}
		var entity T
		if err := BindEdge(e, &entity); err != nil {
			return nil, fmt.Errorf("could not bind edge %s: %w", e.ID, err)
		}
		out = append(out, entity)
	}
	return out, nil
}

func bindTarget(dst any) (reflect.Value, *entityMetadata, error) {
	val := reflect.ValueOf(dst)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return reflect.Value{}, nil, fmt.Errorf("destination must be a non-nil pointer")
	}
	meta, err := parseTagsFromType(val.Type())
	if err != nil {
		return reflect.Value{}, nil, err
	}
	return val.Elem(), meta, nil
}

func setIdentity(val reflect.Value, fieldName, value string) error {
	if fieldName == "" {
		return nil
	}
	return assign(val.FieldByName(fieldName), value, fieldName)
}

// mapProperties populates a struct's fields from a property bag, based on the
// parsed metadata.
func mapProperties(val reflect.Value, meta *entityMetadata, props map[string]interface{}) error {
	for fieldName, propName := range meta.Mappings {
		propValue, ok := props[propName]
		if !ok || propValue == nil {
			continue
		}
		if err := assign(val.FieldByName(fieldName), propValue, fieldName); err != nil {
			return err
		}
	}
	return nil
}

// assign stores v into field, converting between scalar kinds where Go would
// allow an explicit conversion. Slices are converted element by element.
func assign(field reflect.Value, v any, name string) error {
	if !field.IsValid() || !field.CanSet() {
		return nil
	}
	if n, ok := v.(json.Number); ok {
		return assignNumber(field, n, name)
	}

	rv := reflect.ValueOf(v)
	ft := field.Type()
	switch {
	case rv.Type().AssignableTo(ft):
		field.Set(rv)
	case ft.Kind() == reflect.String && isNumeric(rv.Kind()):
		field.SetString(fmt.Sprint(v))
	case isNumeric(ft.Kind()) && isNumeric(rv.Kind()), rv.Kind() == reflect.String && ft.Kind() == reflect.String:
		field.Set(rv.Convert(ft))
	case ft.Kind() == reflect.Slice && rv.Kind() == reflect.Slice:
		out := reflect.MakeSlice(ft, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			if err := assign(out.Index(i), rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", name, i)); err != nil {
				return err
			}
		}
		field.Set(out)
	default:
		return fmt.Errorf("cannot assign %T to field %s of type %s", v, name, ft)
	}
	return nil
}

func assignNumber(field reflect.Value, n json.Number, name string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(n.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return fmt.Errorf("field %s: %w", name, err)
			}
			i = int64(f)
		}
		field.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, err := n.Int64()
		if err != nil || i < 0 {
			return fmt.Errorf("field %s: %s is not an unsigned integer", name, n)
		}
		field.SetUint(uint64(i))
	case reflect.Float32, reflect.Float64:
		f, err := n.Float64()
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		field.SetFloat(f)
	case reflect.Interface:
		field.Set(reflect.ValueOf(n))
	default:
		return fmt.Errorf("cannot assign number %s to field %s of type %s", n, name, field.Type())
	}
	return nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
