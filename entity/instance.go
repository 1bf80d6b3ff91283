package entity

import (
	"fmt"
	"sort"
)

// UID identifies an entity instance. Identity is unique within a type;
// instances of different types may share an ID without colliding.
type UID struct {
	Type string
	ID   string
}

// NewUID builds an entity identifier.
func NewUID(typ, id string) UID { return UID{Type: typ, ID: id} }

// String renders the identifier in Type::"id" form.
func (u UID) String() string { return fmt.Sprintf("%s::%q", u.Type, u.ID) }

// Instance is a concrete entity: an identifier, an attribute map, and the
// entities it is a direct member of. Instances are never mutated after
// construction; validation reads them and returns a result.
type Instance struct {
	UID     UID
	Attrs   map[string]Value
	Parents []UID
}

// NewInstance builds an instance. The attribute map is copied.
func NewInstance(uid UID, attrs map[string]Value, parents ...UID) *Instance {
	copied := make(map[string]Value, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	ps := make([]UID, len(parents))
	copy(ps, parents)
	return &Instance{UID: uid, Attrs: copied, Parents: ps}
}

// Bag is the per-request collection of instances, keyed by UID. It backs
// entity-reference resolution and membership traversal for one decision
// and is then discarded.
type Bag struct {
	byUID map[UID]*Instance
}

// NewBag returns an empty instance bag.
func NewBag() *Bag {
	return &Bag{byUID: make(map[UID]*Instance)}
}

// Add inserts an instance, rejecting a second instance with the same UID.
func (b *Bag) Add(inst *Instance) error {
	if inst == nil {
		return fmt.Errorf("%w: nil instance", ErrInvalidValue)
	}
	if _, ok := b.byUID[inst.UID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateInstance, inst.UID)
	}
	b.byUID[inst.UID] = inst
	return nil
}

// Lookup resolves a UID to its instance.
func (b *Bag) Lookup(uid UID) (*Instance, bool) {
	inst, ok := b.byUID[uid]
	return inst, ok
}

// Len reports the number of instances in the bag.
func (b *Bag) Len() int { return len(b.byUID) }

// All returns every instance in the bag, ordered by UID.
func (b *Bag) All() []*Instance {
	out := make([]*Instance, 0, len(b.byUID))
	for _, inst := range b.byUID {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UID.Type != out[j].UID.Type {
			return out[i].UID.Type < out[j].UID.Type
		}
		return out[i].UID.ID < out[j].UID.ID
	})
	return out
}

// OfType returns the instances of the named entity type, ordered by ID.
func (b *Bag) OfType(typ string) []*Instance {
	var out []*Instance
	for _, inst := range b.byUID {
		if inst.UID.Type == typ {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID.ID < out[j].UID.ID })
	return out
}
