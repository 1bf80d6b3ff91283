// Package hierarchy resolves role-membership closures: the transitive set
// of roles a principal belongs to, direct plus inherited. Membership is
// treated as a general directed graph over role identifiers, not a tree;
// cycles are detected, never followed.
package hierarchy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/olehbozhok/cedar-demo/entity"
	"github.com/olehbozhok/cedar-demo/internal/obs"
	"github.com/olehbozhok/cedar-demo/schema"
)

// ErrCyclicHierarchy reports a cycle in the role-membership graph.
var ErrCyclicHierarchy = errors.New("hierarchy: cyclic role membership")

// Closure is the resolved role set. Role identifiers are compared
// case-sensitively, byte-for-byte.
type Closure map[string]struct{}

// Contains reports membership of a role identifier in the closure.
func (c Closure) Contains(roleID string) bool {
	_, ok := c[roleID]
	return ok
}

// Roles returns the closure's role identifiers in sorted order.
func (c Closure) Roles() []string {
	out := make([]string, 0, len(c))
	for id := range c {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Resolver computes closures over a role-membership graph built once from
// the loaded Role instances. The graph is immutable after construction;
// Closure is safe for arbitrarily many concurrent callers.
type Resolver struct {
	// edges maps a role identifier to the roles it is a member of.
	edges map[string][]string

	cacheEnabled bool
	cache        atomic.Pointer[map[string]Closure]
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithoutCache disables closure caching. The resolver stays correct; every
// call recomputes.
func WithoutCache() Option {
	return func(r *Resolver) { r.cacheEnabled = false }
}

// NewResolver builds the role graph from the Role instances in the bag.
// An instance's Parents of type Role become role-to-role membership edges.
func NewResolver(entities *entity.Bag, opts ...Option) *Resolver {
	r := &Resolver{
		edges:        make(map[string][]string),
		cacheEnabled: true,
	}
	if entities != nil {
		for _, role := range entities.OfType(schema.EntityRole) {
			for _, parent := range role.Parents {
				if parent.Type != schema.EntityRole {
					continue
				}
				r.addEdge(role.UID.ID, parent.ID)
			}
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	empty := make(map[string]Closure)
	r.cache.Store(&empty)
	return r
}

func (r *Resolver) addEdge(from, to string) {
	for _, existing := range r.edges[from] {
		if existing == to {
			return
		}
	}
	r.edges[from] = append(r.edges[from], to)
}

// Closure returns the full transitive role set reachable from the user's
// direct role identifiers (the "role" attribute set plus any Role
// parents). An empty direct set yields an empty closure. A reachable
// membership cycle fails with ErrCyclicHierarchy.
func (r *Resolver) Closure(user *entity.Instance) (Closure, error) {
	if user == nil {
		return Closure{}, nil
	}
	direct := directRoles(user)
	if len(direct) == 0 {
		return Closure{}, nil
	}

	key := cacheKey(user.UID, direct)
	if r.cacheEnabled {
		if cached, ok := (*r.cache.Load())[key]; ok {
			obs.ClosureCache("hit")
			return cached.clone(), nil
		}
		obs.ClosureCache("miss")
	}

	closure, err := r.traverse(direct)
	if err != nil {
		return nil, err
	}
	obs.ClosureSize(len(closure))

	if r.cacheEnabled {
		r.insert(key, closure)
	}
	return closure.clone(), nil
}

// traverse walks the membership graph from the root identifiers. The walk
// is iterative with an explicit stack: a cycle must surface as an error,
// not as a hang or an exhausted goroutine stack.
func (r *Resolver) traverse(roots []string) (Closure, error) {
	const (
		unvisited = 0
		onPath    = 1
		finished  = 2
	)
	state := make(map[string]int)
	closure := make(Closure)

	type frame struct {
		role string
		next int
	}

	for _, root := range roots {
		if state[root] == finished {
			continue
		}
		stack := []frame{{role: root}}
		state[root] = onPath
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			parents := r.edges[top.role]
			if top.next < len(parents) {
				next := parents[top.next]
				top.next++
				switch state[next] {
				case onPath:
					return nil, fmt.Errorf("%w: %s is reachable from itself", ErrCyclicHierarchy, next)
				case unvisited:
					state[next] = onPath
					stack = append(stack, frame{role: next})
				}
				continue
			}
			state[top.role] = finished
			closure[top.role] = struct{}{}
			stack = stack[:len(stack)-1]
		}
	}
	return closure, nil
}

// insert publishes the computed closure under key using copy-on-write:
// readers always see a complete, immutable snapshot.
func (r *Resolver) insert(key string, closure Closure) {
	for {
		current := r.cache.Load()
		if _, ok := (*current)[key]; ok {
			return
		}
		next := make(map[string]Closure, len(*current)+1)
		for k, v := range *current {
			next[k] = v
		}
		next[key] = closure
		if r.cache.CompareAndSwap(current, &next) {
			return
		}
	}
}

func (c Closure) clone() Closure {
	out := make(Closure, len(c))
	for k := range c {
		out[k] = struct{}{}
	}
	return out
}

// directRoles collects the instance's direct role identifiers: the "role"
// attribute (a set of string role ids) plus any Role entities the
// instance is a declared member of. A Role instance roots its own
// identifier, so a Role principal's closure contains itself.
func directRoles(user *entity.Instance) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	if user.UID.Type == schema.EntityRole {
		add(user.UID.ID)
	}
	if roleAttr, ok := user.Attrs["role"]; ok {
		if ids, ok := roleAttr.AsStringSet(); ok {
			for _, id := range ids {
				add(id)
			}
		}
	}
	for _, parent := range user.Parents {
		if parent.Type == schema.EntityRole {
			add(parent.ID)
		}
	}
	sort.Strings(out)
	return out
}

func cacheKey(uid entity.UID, direct []string) string {
	return uid.String() + "|" + strings.Join(direct, ",")
}
