package interpret

import (
	"sort"
	"strings"
)

// fields is a read-only view of a decoded object with its keys in order.
// Objects keep document order; plain maps from callers are walked in sorted order.
type fields struct {
	keys []string
	vals map[string]any
}

// asFields returns the object view of v, decoding string-encoded JSON first.
func asFields(v any) (fields, bool) {
	switch t := asContainer(v).(type) {
	case *Object:
		if t == nil {
			return fields{}, false
		}
		f := fields{keys: make([]string, 0, t.Len()), vals: make(map[string]any, t.Len())}
		for p := t.Oldest(); p != nil; p = p.Next() {
			f.keys = append(f.keys, p.Key)
			f.vals[p.Key] = p.Value
		}
		return f, true
	case map[string]any:
		return fields{keys: sortedKeys(t), vals: t}, true
	}
	return fields{}, false
}

// lookup finds the first key equal to, or starting with, one of names.
// Prefix matching covers keys like "动作指令（whatCanIDo选一个）".
func (f fields) lookup(names []string) (string, any, bool) {
	for _, name := range names {
		if v, ok := f.vals[name]; ok {
			return name, v, true
		}
	}
	for _, k := range f.keys {
		for _, name := range names {
			if strings.HasPrefix(k, name) || strings.EqualFold(k, name) {
				return k, f.vals[k], true
			}
		}
	}
	return "", nil, false
}

// hasFold reports whether a key matching key case-insensitively holds a non-null value.
func (f fields) hasFold(key string) bool {
	for _, k := range f.keys {
		if strings.EqualFold(k, key) && f.vals[k] != nil {
			return true
		}
	}
	return false
}

// without returns the view minus the named keys.
func (f fields) without(names ...string) fields {
	out := fields{vals: make(map[string]any, len(f.vals))}
	for _, k := range f.keys {
		skip := false
		for _, n := range names {
			if k == n {
				skip = true
				break
			}
		}
		if !skip {
			out.keys = append(out.keys, k)
			out.vals[k] = f.vals[k]
		}
	}
	return out
}

// object rebuilds the view as an Object.
func (f fields) object() *Object {
	obj := newObject(len(f.keys))
	for _, k := range f.keys {
		obj.Set(k, f.vals[k])
	}
	return obj
}

// plainMap returns the view as a map with nested Objects converted to maps.
func (f fields) plainMap() map[string]any {
	out := make(map[string]any, len(f.vals))
	for k, v := range f.vals {
		out[k] = plain(v)
	}
	return out
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
