// Package schema holds the declarative type system consumed by the
// validation core: compound record types, entity type definitions with
// their membership targets, and action appliesTo contracts. A Schema is
// built once, is immutable afterwards, and is safe for unsynchronized
// concurrent use.
package schema

import "fmt"

// Kind discriminates the structural forms a declared type can take.
type Kind int

const (
	KindString Kind = iota + 1
	KindLong
	KindBool
	KindIPAddr
	KindSet
	KindRecord
	KindEntity
)

// Type describes a declared attribute type. Primitive kinds stand alone;
// KindSet carries an element type, KindRecord and KindEntity carry the
// name of the referenced declaration.
type Type struct {
	Kind Kind
	Elem *Type
	Name string
}

// String returns a primitive string type.
func String() Type { return Type{Kind: KindString} }

// Long returns a primitive 64-bit integer type (also used for epoch seconds).
func Long() Type { return Type{Kind: KindLong} }

// Bool returns a primitive boolean type.
func Bool() Type { return Type{Kind: KindBool} }

// IPAddr returns the IP address primitive type.
func IPAddr() Type { return Type{Kind: KindIPAddr} }

// SetOf returns a set type with the given element type.
func SetOf(elem Type) Type { return Type{Kind: KindSet, Elem: &elem} }

// RecordOf returns a reference to a named compound record type.
func RecordOf(name string) Type { return Type{Kind: KindRecord, Name: name} }

// EntityOf returns a reference to a named entity type.
func EntityOf(name string) Type { return Type{Kind: KindEntity, Name: name} }

// Equal reports structural equality of two type descriptors.
func (t Type) Equal(other Type) bool {
	if t.Kind != other.Kind || t.Name != other.Name {
		return false
	}
	if t.Kind == KindSet {
		return t.Elem.Equal(*other.Elem)
	}
	return true
}

// String renders the type for error messages.
func (t Type) String() string { return t.describe() }

func (t Type) describe() string {
	switch t.Kind {
	case KindString:
		return "string"
	case KindLong:
		return "long"
	case KindBool:
		return "bool"
	case KindIPAddr:
		return "ipaddr"
	case KindSet:
		return fmt.Sprintf("set<%s>", t.Elem.describe())
	case KindRecord:
		return t.Name
	case KindEntity:
		return t.Name
	default:
		return "invalid"
	}
}

// RecordType is a compound value type: a named, closed field map with no
// identity of its own.
type RecordType struct {
	Name   string
	Fields map[string]Type
}

// EntityType declares an entity: a named, closed attribute map plus the
// entity types its instances may be members of.
type EntityType struct {
	Name       string
	Attributes map[string]Type
	MemberOf   []string
}

// Action declares an appliesTo contract: which principal and resource
// entity types a request may carry, and which record type its context
// must conform to.
type Action struct {
	Name           string
	PrincipalTypes []string
	ResourceTypes  []string
	ContextType    string
}
