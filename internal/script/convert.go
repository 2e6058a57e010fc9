package script

import (
	"fmt"
	"sort"
	"time"

	"github.com/risor-io/risor/object"
)

// ToGo converts a risor value into plain Go data: strings, numbers, bools,
// []any and map[string]any. Unknown objects fall back to their inspected form.
func ToGo(obj object.Object) any {
	switch o := obj.(type) {
	case nil:
		return nil
	case *object.NilType:
		return nil
	case *object.String:
		return o.Value()
	case *object.Int:
		return o.Value()
	case *object.Float:
		return o.Value()
	case *object.Bool:
		return o.Value()
	case *object.Time:
		return o.Value().Format(time.RFC3339Nano)
	case *object.List:
		items := o.Value()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, ToGo(item))
		}
		return out
	case *object.Set:
		items := o.Value()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, ToGo(item))
		}
		return out
	case *object.Map:
		out := make(map[string]any, len(o.Value()))
		for key, value := range o.Value() {
			out[key] = ToGo(value)
		}
		return out
	default:
		return obj.Inspect()
	}
}

// FromGo converts plain Go data into risor values.
func FromGo(v any) object.Object {
	switch val := v.(type) {
	case nil:
		return object.Nil
	case object.Object:
		return val
	case string:
		return object.NewString(val)
	case bool:
		return object.NewBool(val)
	case int:
		return object.NewInt(int64(val))
	case int64:
		return object.NewInt(val)
	case float64:
		return object.NewFloat(val)
	case []string:
		items := make([]object.Object, len(val))
		for i, s := range val {
			items[i] = object.NewString(s)
		}
		return object.NewList(items)
	case []any:
		items := make([]object.Object, len(val))
		for i, item := range val {
			items[i] = FromGo(item)
		}
		return object.NewList(items)
	case map[string]string:
		out := make(map[string]object.Object, len(val))
		for k, s := range val {
			out[k] = object.NewString(s)
		}
		return object.NewMap(out)
	case map[string]any:
		out := make(map[string]object.Object, len(val))
		for k, item := range val {
			out[k] = FromGo(item)
		}
		return object.NewMap(out)
	default:
		return object.FromGoType(v)
	}
}

func isCallable(obj object.Object) bool {
	switch obj.Type() {
	case object.FUNCTION, object.BUILTIN:
		return true
	}
	return false
}

func sortedNames(globals map[string]any) []string {
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func argError(name string, want string, got object.Object) *object.Error {
	return object.NewError(fmt.Errorf("type error: %s() expected %s (got %s)", name, want, got.Type()))
}
