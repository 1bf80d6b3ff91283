// Package entity models concrete entity instances and their attribute
// values, and validates them structurally against a declared schema.
// Instances are per-request data: constructed, validated, used for one
// decision, and discarded.
package entity

import (
	"fmt"
	"math"
	"net/netip"
	"sort"
)

// ValueKind discriminates the runtime forms an attribute value can take.
type ValueKind int

const (
	ValueString ValueKind = iota + 1
	ValueLong
	ValueBool
	ValueIPAddr
	ValueSet
	ValueRecord
	ValueRef
)

// String names the variant for error messages.
func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueLong:
		return "long"
	case ValueBool:
		return "bool"
	case ValueIPAddr:
		return "ipaddr"
	case ValueSet:
		return "set"
	case ValueRecord:
		return "record"
	case ValueRef:
		return "entity reference"
	default:
		return "invalid"
	}
}

// Value is a tagged variant for attribute values. Loosely typed attribute
// maps are converted to Values at the validation boundary; untyped maps
// never travel deeper into the system.
type Value struct {
	kind ValueKind
	str  string
	long int64
	b    bool
	ip   netip.Addr
	set  []Value
	rec  map[string]Value
	ref  UID
}

// String wraps a string value.
func String(s string) Value { return Value{kind: ValueString, str: s} }

// Long wraps a 64-bit integer value.
func Long(v int64) Value { return Value{kind: ValueLong, long: v} }

// Bool wraps a boolean value.
func Bool(v bool) Value { return Value{kind: ValueBool, b: v} }

// IPAddr wraps an IP address value.
func IPAddr(a netip.Addr) Value { return Value{kind: ValueIPAddr, ip: a} }

// Set wraps the given elements as a set. Duplicate elements (by structural
// equality) collapse; element order carries no meaning.
func Set(elems ...Value) Value {
	deduped := make([]Value, 0, len(elems))
	for _, e := range elems {
		dup := false
		for _, kept := range deduped {
			if kept.Equal(e) {
				dup = true
				break
			}
		}
		if !dup {
			deduped = append(deduped, e)
		}
	}
	return Value{kind: ValueSet, set: deduped}
}

// StringSet wraps a slice of strings as a set value.
func StringSet(elems ...string) Value {
	vs := make([]Value, len(elems))
	for i, s := range elems {
		vs[i] = String(s)
	}
	return Set(vs...)
}

// Record wraps a field map as a compound value. The map is copied.
func Record(fields map[string]Value) Value {
	rec := make(map[string]Value, len(fields))
	for k, v := range fields {
		rec[k] = v
	}
	return Value{kind: ValueRecord, rec: rec}
}

// Ref wraps a reference to another entity.
func Ref(uid UID) Value { return Value{kind: ValueRef, ref: uid} }

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// AsString returns the string payload.
func (v Value) AsString() (string, bool) { return v.str, v.kind == ValueString }

// AsLong returns the integer payload.
func (v Value) AsLong() (int64, bool) { return v.long, v.kind == ValueLong }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == ValueBool }

// AsIPAddr returns the IP address payload.
func (v Value) AsIPAddr() (netip.Addr, bool) { return v.ip, v.kind == ValueIPAddr }

// AsSet returns the set elements. The returned slice is a copy.
func (v Value) AsSet() ([]Value, bool) {
	if v.kind != ValueSet {
		return nil, false
	}
	out := make([]Value, len(v.set))
	copy(out, v.set)
	return out, true
}

// AsStringSet returns the set elements as strings; ok is false if the
// value is not a set or any element is not a string.
func (v Value) AsStringSet() ([]string, bool) {
	if v.kind != ValueSet {
		return nil, false
	}
	out := make([]string, 0, len(v.set))
	for _, e := range v.set {
		s, ok := e.AsString()
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, true
}

// AsRecord returns the record fields. The returned map is a copy.
func (v Value) AsRecord() (map[string]Value, bool) {
	if v.kind != ValueRecord {
		return nil, false
	}
	out := make(map[string]Value, len(v.rec))
	for k, e := range v.rec {
		out[k] = e
	}
	return out, true
}

// AsRef returns the referenced entity UID.
func (v Value) AsRef() (UID, bool) { return v.ref, v.kind == ValueRef }

// Equal reports structural equality. Strings compare byte-for-byte
// (case-sensitive); sets compare as sets, ignoring order.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case ValueString:
		return v.str == other.str
	case ValueLong:
		return v.long == other.long
	case ValueBool:
		return v.b == other.b
	case ValueIPAddr:
		return v.ip == other.ip
	case ValueSet:
		if len(v.set) != len(other.set) {
			return false
		}
		for _, e := range v.set {
			found := false
			for _, o := range other.set {
				if e.Equal(o) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case ValueRecord:
		if len(v.rec) != len(other.rec) {
			return false
		}
		for k, e := range v.rec {
			o, ok := other.rec[k]
			if !ok || !e.Equal(o) {
				return false
			}
		}
		return true
	case ValueRef:
		return v.ref == other.ref
	default:
		return false
	}
}

// FromJSON converts a decoded JSON value (the shapes produced by
// encoding/json into any) to a Value. Numbers must be integral; nulls are
// rejected. An object of the form {"__entity": {"type": ..., "id": ...}}
// becomes an entity reference, any other object becomes a record.
func FromJSON(v any) (Value, error) {
	switch x := v.(type) {
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Long(int64(x)), nil
	case int64:
		return Long(x), nil
	case float64:
		if x != math.Trunc(x) {
			return Value{}, fmt.Errorf("%w: non-integral number %v", ErrInvalidValue, x)
		}
		return Long(int64(x)), nil
	case []any:
		elems := make([]Value, 0, len(x))
		for i, raw := range x {
			e, err := FromJSON(raw)
			if err != nil {
				return Value{}, fmt.Errorf("%w (set element %d)", err, i)
			}
			elems = append(elems, e)
		}
		return Set(elems...), nil
	case map[string]any:
		if ref, ok := refFromJSON(x); ok {
			return Ref(ref), nil
		}
		fields := make(map[string]Value, len(x))
		for k, raw := range x {
			e, err := FromJSON(raw)
			if err != nil {
				return Value{}, fmt.Errorf("%w (field %s)", err, k)
			}
			fields[k] = e
		}
		return Value{kind: ValueRecord, rec: fields}, nil
	case nil:
		return Value{}, fmt.Errorf("%w: null", ErrInvalidValue)
	default:
		return Value{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidValue, v)
	}
}

func refFromJSON(obj map[string]any) (UID, bool) {
	if len(obj) != 1 {
		return UID{}, false
	}
	inner, ok := obj["__entity"].(map[string]any)
	if !ok {
		return UID{}, false
	}
	typ, ok := inner["type"].(string)
	if !ok {
		return UID{}, false
	}
	id, ok := inner["id"].(string)
	if !ok {
		return UID{}, false
	}
	return NewUID(typ, id), true
}
