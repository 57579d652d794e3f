package template

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Value is a template variable value. It is one of String, Bool, Sequence
// or *Mapping.
type Value interface {
	isValue()
}

// String is a text value.
type String string

// Bool is a boolean flag.
type Bool bool

// Sequence is a list of values. As a variable default it offers a choice
// whose first element is the default.
type Sequence []Value

// Mapping is a dictionary that keeps its keys in insertion order.
type Mapping struct {
	entries *orderedmap.OrderedMap[string, Value]
}

func (String) isValue()   {}
func (Bool) isValue()     {}
func (Sequence) isValue() {}
func (*Mapping) isValue() {}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{entries: orderedmap.New[string, Value]()}
}

// Set adds or replaces key, keeping its original position.
func (m *Mapping) Set(key string, value Value) {
	m.entries.Set(key, value)
}

// Get returns the value for key.
func (m *Mapping) Get(key string) (Value, bool) {
	return m.entries.Get(key)
}

// Keys returns the keys in insertion order.
func (m *Mapping) Keys() []string {
	keys := make([]string, 0, m.entries.Len())
	for pair := m.entries.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len is the number of entries.
func (m *Mapping) Len() int {
	return m.entries.Len()
}

// Binding is a variable name bound to a value.
type Binding struct {
	Name  string
	Value Value
}

// ParseBinding parses a "name=value" command-line binding into a String
// value.
func ParseBinding(s string) (Binding, error) {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Binding{}, fmt.Errorf("invalid binding %q (want name=value)", s)
	}
	return Binding{Name: name, Value: String(value)}, nil
}

// FromJSON converts a parsed JSON value. Numbers keep their literal text and
// null becomes the empty string.
func FromJSON(r gjson.Result) Value {
	switch {
	case r.IsObject():
		m := NewMapping()
		r.ForEach(func(key, value gjson.Result) bool {
			m.Set(key.String(), FromJSON(value))
			return true
		})
		return m
	case r.IsArray():
		var seq Sequence
		r.ForEach(func(_, value gjson.Result) bool {
			seq = append(seq, FromJSON(value))
			return true
		})
		return seq
	case r.IsBool():
		return Bool(r.Bool())
	case r.Type == gjson.Number:
		return String(r.Raw)
	case r.Type == gjson.Null:
		return String("")
	default:
		return String(r.String())
	}
}

// JSON converts v to a value encoding/json marshals faithfully, with
// mappings in insertion order.
func JSON(v Value) any {
	switch v := v.(type) {
	case String:
		return string(v)
	case Bool:
		return bool(v)
	case Sequence:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = JSON(item)
		}
		return items
	case *Mapping:
		out := orderedmap.New[string, any]()
		for pair := v.entries.Oldest(); pair != nil; pair = pair.Next() {
			out.Set(pair.Key, JSON(pair.Value))
		}
		return out
	default:
		return nil
	}
}

// contextValue converts v for the rendering context.
func contextValue(v Value) any {
	switch v := v.(type) {
	case String:
		return string(v)
	case Bool:
		return bool(v)
	case Sequence:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = contextValue(item)
		}
		return items
	case *Mapping:
		out := make(map[string]any, v.Len())
		for pair := v.entries.Oldest(); pair != nil; pair = pair.Next() {
			out[pair.Key] = contextValue(pair.Value)
		}
		return out
	default:
		return nil
	}
}

// coerce converts a command-line string override to the type of the
// variable's default.
func coerce(override Value, def Value) Value {
	s, ok := override.(String)
	if !ok {
		return override
	}
	if _, isBool := def.(Bool); isBool {
		switch strings.ToLower(strings.TrimSpace(string(s))) {
		case "1", "true", "t", "yes", "y", "on":
			return Bool(true)
		case "0", "false", "f", "no", "n", "off":
			return Bool(false)
		}
	}
	return override
}
