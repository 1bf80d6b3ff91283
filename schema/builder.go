package schema

import (
	"fmt"
	"sort"

	"github.com/olehbozhok/cedar-demo/internal/obs"
)

// Schema is the frozen result of a successful Build. All lookups are
// read-only; the maps behind them are never mutated after Build returns.
type Schema struct {
	records  map[string]RecordType
	entities map[string]EntityType
	actions  map[string]Action
}

// Builder accumulates type, entity, and action declarations. Declarations
// may arrive in any order; cross-references are checked once, in Build.
type Builder struct {
	records  map[string]RecordType
	entities map[string]EntityType
	actions  map[string]Action
}

// NewBuilder returns an empty schema builder.
func NewBuilder() *Builder {
	return &Builder{
		records:  make(map[string]RecordType),
		entities: make(map[string]EntityType),
		actions:  make(map[string]Action),
	}
}

// Record declares a compound value type.
func (b *Builder) Record(name string, fields map[string]Type) error {
	if name == "" {
		return fmt.Errorf("%w: empty record type name", ErrUnknownRecordType)
	}
	if _, ok := b.records[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRecordType, name)
	}
	b.records[name] = RecordType{Name: name, Fields: copyFields(fields)}
	return nil
}

// Entity declares an entity type with its attribute map and optional
// membership targets. An entity type with no attributes is legal.
func (b *Builder) Entity(name string, attrs map[string]Type, memberOf ...string) error {
	if name == "" {
		return fmt.Errorf("%w: empty entity type name", ErrUnknownEntityType)
	}
	if _, ok := b.entities[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntityType, name)
	}
	targets := make([]string, len(memberOf))
	copy(targets, memberOf)
	b.entities[name] = EntityType{Name: name, Attributes: copyFields(attrs), MemberOf: targets}
	return nil
}

// Action declares an appliesTo contract.
func (b *Builder) Action(a Action) error {
	if a.Name == "" {
		return fmt.Errorf("%w: empty action name", ErrUnknownAction)
	}
	if _, ok := b.actions[a.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, a.Name)
	}
	a.PrincipalTypes = copyStrings(a.PrincipalTypes)
	a.ResourceTypes = copyStrings(a.ResourceTypes)
	b.actions[a.Name] = a
	return nil
}

// Build verifies every cross-reference and freezes the schema. On any
// failure no schema is returned: a decision engine must never run against
// a partially loaded schema. The returned schema shares nothing with the
// builder; later builder calls cannot reach it.
func (b *Builder) Build() (*Schema, error) {
	records := make(map[string]RecordType, len(b.records))
	for name, rec := range b.records {
		rec.Fields = copyFields(rec.Fields)
		records[name] = rec
	}
	entities := make(map[string]EntityType, len(b.entities))
	for name, ent := range b.entities {
		ent.Attributes = copyFields(ent.Attributes)
		ent.MemberOf = copyStrings(ent.MemberOf)
		entities[name] = ent
	}
	actions := make(map[string]Action, len(b.actions))
	for name, a := range b.actions {
		a.PrincipalTypes = copyStrings(a.PrincipalTypes)
		a.ResourceTypes = copyStrings(a.ResourceTypes)
		actions[name] = a
	}
	s := &Schema{records: records, entities: entities, actions: actions}
	if err := s.checkReferences(); err != nil {
		obs.SchemaBuild("error")
		return nil, err
	}
	if err := s.checkRecordDAG(); err != nil {
		obs.SchemaBuild("error")
		return nil, err
	}
	obs.SchemaBuild("ok")
	obs.LogEvent("schema_build", map[string]any{
		"records":  len(s.records),
		"entities": len(s.entities),
		"actions":  len(s.actions),
	})
	return s, nil
}

func (s *Schema) checkReferences() error {
	for _, rec := range s.records {
		for field, t := range rec.Fields {
			if err := s.checkType(t); err != nil {
				return fmt.Errorf("%w (record %s, field %s)", err, rec.Name, field)
			}
		}
	}
	for _, ent := range s.entities {
		for attr, t := range ent.Attributes {
			if err := s.checkType(t); err != nil {
				return fmt.Errorf("%w (entity %s, attribute %s)", err, ent.Name, attr)
			}
		}
		for _, target := range ent.MemberOf {
			if _, ok := s.entities[target]; !ok {
				return fmt.Errorf("%w: membership target %s of %s", ErrUnknownEntityType, target, ent.Name)
			}
		}
	}
	for _, a := range s.actions {
		for _, p := range a.PrincipalTypes {
			if _, ok := s.entities[p]; !ok {
				return fmt.Errorf("%w: principal type %s of action %s", ErrUnknownEntityType, p, a.Name)
			}
		}
		for _, r := range a.ResourceTypes {
			if _, ok := s.entities[r]; !ok {
				return fmt.Errorf("%w: resource type %s of action %s", ErrUnknownEntityType, r, a.Name)
			}
		}
		if _, ok := s.records[a.ContextType]; !ok {
			return fmt.Errorf("%w: context type %s of action %s", ErrUnknownRecordType, a.ContextType, a.Name)
		}
	}
	return nil
}

func (s *Schema) checkType(t Type) error {
	switch t.Kind {
	case KindString, KindLong, KindBool, KindIPAddr:
		return nil
	case KindSet:
		if t.Elem == nil {
			return fmt.Errorf("%w: set with no element type", ErrUnknownAttributeType)
		}
		return s.checkType(*t.Elem)
	case KindRecord:
		if _, ok := s.records[t.Name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAttributeType, t.Name)
		}
		return nil
	case KindEntity:
		if _, ok := s.entities[t.Name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAttributeType, t.Name)
		}
		return nil
	default:
		return fmt.Errorf("%w: invalid kind %d", ErrUnknownAttributeType, t.Kind)
	}
}

// checkRecordDAG rejects compound types that reference themselves,
// directly or transitively. Structural validation recurses over record
// fields, so a cycle here would mean unbounded recursion at request time.
func (s *Schema) checkRecordDAG() error {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(s.records))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case inStack:
			return fmt.Errorf("%w: involving %s", ErrRecordTypeCycle, name)
		case done:
			return nil
		}
		state[name] = inStack
		for _, ref := range recordRefs(s.records[name].Fields) {
			if _, ok := s.records[ref]; !ok {
				continue // reported by checkReferences
			}
			if err := visit(ref); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

func recordRefs(fields map[string]Type) []string {
	var refs []string
	for _, t := range fields {
		for t.Kind == KindSet && t.Elem != nil {
			t = *t.Elem
		}
		if t.Kind == KindRecord {
			refs = append(refs, t.Name)
		}
	}
	return refs
}

// RecordType looks up a compound value type by name.
func (s *Schema) RecordType(name string) (RecordType, error) {
	rec, ok := s.records[name]
	if !ok {
		return RecordType{}, fmt.Errorf("%w: %s", ErrUnknownRecordType, name)
	}
	return rec, nil
}

// EntityType looks up an entity type by name.
func (s *Schema) EntityType(name string) (EntityType, error) {
	ent, ok := s.entities[name]
	if !ok {
		return EntityType{}, fmt.Errorf("%w: %s", ErrUnknownEntityType, name)
	}
	return ent, nil
}

// ActionFor looks up an action's appliesTo contract by name.
func (s *Schema) ActionFor(name string) (Action, error) {
	a, ok := s.actions[name]
	if !ok {
		return Action{}, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return a, nil
}

func copyFields(fields map[string]Type) map[string]Type {
	out := make(map[string]Type, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
