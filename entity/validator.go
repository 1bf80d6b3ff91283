package entity

import (
	"fmt"
	"net/netip"
	"sort"

	"github.com/olehbozhok/cedar-demo/schema"
)

// Validator checks concrete instances against an immutable schema. It
// holds no mutable state; one Validator may serve any number of
// concurrent validations.
type Validator struct {
	schema   *schema.Schema
	entities *Bag
}

// NewValidator builds a validator over the schema and the request's
// instance bag. Entity-reference attributes are resolved against the bag.
func NewValidator(s *schema.Schema, entities *Bag) *Validator {
	if entities == nil {
		entities = NewBag()
	}
	return &Validator{schema: s, entities: entities}
}

// Validate checks the instance against its declared entity type: every
// declared attribute present, no undeclared attributes, every value
// structurally conformant, every entity reference resolving to a loaded
// instance of the declared type. Cross-field invariants run only after
// structural validation succeeds. On success the (unmodified) instance is
// returned as validated.
func (v *Validator) Validate(inst *Instance) (*Instance, error) {
	if inst == nil {
		return nil, fmt.Errorf("%w: nil instance", ErrInvalidValue)
	}
	ent, err := v.schema.EntityType(inst.UID.Type)
	if err != nil {
		return nil, err
	}

	for _, name := range sortedKeys(ent.Attributes) {
		declared := ent.Attributes[name]
		val, ok := inst.Attrs[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s on %s", ErrMissingAttribute, name, inst.UID)
		}
		if err := v.checkValue(val, declared); err != nil {
			return nil, fmt.Errorf("%w (attribute %s on %s)", err, name, inst.UID)
		}
	}
	for _, name := range sortedKeys(inst.Attrs) {
		if _, ok := ent.Attributes[name]; !ok {
			return nil, fmt.Errorf("%w: %s on %s", ErrUnexpectedAttribute, name, inst.UID)
		}
	}

	if err := v.checkCrossField(inst, ent); err != nil {
		return nil, err
	}
	return inst, nil
}

// ValidateRecord checks a compound value (such as a request context)
// against a named record type.
func (v *Validator) ValidateRecord(val Value, recordType string) error {
	rec, err := v.schema.RecordType(recordType)
	if err != nil {
		return err
	}
	return v.checkRecord(val, rec)
}

func (v *Validator) checkValue(val Value, declared schema.Type) error {
	switch declared.Kind {
	case schema.KindString:
		if val.Kind() != ValueString {
			return mismatch(declared, val)
		}
	case schema.KindLong:
		if val.Kind() != ValueLong {
			return mismatch(declared, val)
		}
	case schema.KindBool:
		if val.Kind() != ValueBool {
			return mismatch(declared, val)
		}
	case schema.KindIPAddr:
		// IP addresses arrive from JSON as strings; a string that parses
		// as an address satisfies the ipaddr primitive.
		if val.Kind() == ValueIPAddr {
			return nil
		}
		s, ok := val.AsString()
		if !ok {
			return mismatch(declared, val)
		}
		if _, err := netip.ParseAddr(s); err != nil {
			return fmt.Errorf("%w: %q is not an IP address", ErrTypeMismatch, s)
		}
	case schema.KindSet:
		elems, ok := val.AsSet()
		if !ok {
			return mismatch(declared, val)
		}
		for _, e := range elems {
			if err := v.checkValue(e, *declared.Elem); err != nil {
				return err
			}
		}
	case schema.KindRecord:
		rec, err := v.schema.RecordType(declared.Name)
		if err != nil {
			return err
		}
		return v.checkRecord(val, rec)
	case schema.KindEntity:
		ref, ok := val.AsRef()
		if !ok {
			return mismatch(declared, val)
		}
		if ref.Type != declared.Name {
			return fmt.Errorf("%w: %s is not a %s", ErrInvalidEntityReference, ref, declared.Name)
		}
		if _, ok := v.entities.Lookup(ref); !ok {
			return fmt.Errorf("%w: %s is not loaded", ErrInvalidEntityReference, ref)
		}
	default:
		return fmt.Errorf("%w: undeclarable kind %d", ErrTypeMismatch, declared.Kind)
	}
	return nil
}

func (v *Validator) checkRecord(val Value, rec schema.RecordType) error {
	fields, ok := val.AsRecord()
	if !ok {
		return fmt.Errorf("%w: expected %s record, got %s", ErrTypeMismatch, rec.Name, val.Kind())
	}
	for _, name := range sortedKeys(rec.Fields) {
		fv, ok := fields[name]
		if !ok {
			return fmt.Errorf("%w: field %s of %s", ErrMissingAttribute, name, rec.Name)
		}
		if err := v.checkValue(fv, rec.Fields[name]); err != nil {
			return fmt.Errorf("%w (field %s of %s)", err, name, rec.Name)
		}
	}
	for _, name := range sortedKeys(fields) {
		if _, ok := rec.Fields[name]; !ok {
			return fmt.Errorf("%w: field %s of %s", ErrUnexpectedAttribute, name, rec.Name)
		}
	}
	return nil
}

// checkCrossField enforces invariants that span attributes. Today that is
// the token expiry rule: any entity type declaring both exp and iat must
// carry exp >= iat.
func (v *Validator) checkCrossField(inst *Instance, ent schema.EntityType) error {
	expType, hasExp := ent.Attributes["exp"]
	iatType, hasIat := ent.Attributes["iat"]
	if !hasExp || !hasIat {
		return nil
	}
	if expType.Kind != schema.KindLong || iatType.Kind != schema.KindLong {
		return nil
	}
	exp, _ := inst.Attrs["exp"].AsLong()
	iat, _ := inst.Attrs["iat"].AsLong()
	if exp < iat {
		return fmt.Errorf("%w: exp %d precedes iat %d on %s", ErrCrossFieldInvariant, exp, iat, inst.UID)
	}
	return nil
}

func mismatch(declared schema.Type, val Value) error {
	return fmt.Errorf("%w: expected %s, got %s", ErrTypeMismatch, declared, val.Kind())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
