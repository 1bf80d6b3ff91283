package hierarchy

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/olehbozhok/cedar-demo/entity"
	"github.com/olehbozhok/cedar-demo/schema"
)

func roleUID(id string) entity.UID { return entity.NewUID(schema.EntityRole, id) }

func role(id string, memberOf ...string) *entity.Instance {
	parents := make([]entity.UID, len(memberOf))
	for i, m := range memberOf {
		parents[i] = roleUID(m)
	}
	return entity.NewInstance(roleUID(id), nil, parents...)
}

func userWithRoles(roles ...string) *entity.Instance {
	return entity.NewInstance(entity.NewUID(schema.EntityUser, "alice"), map[string]entity.Value{
		"role": entity.StringSet(roles...),
	})
}

func bagOf(t *testing.T, instances ...*entity.Instance) *entity.Bag {
	t.Helper()
	bag := entity.NewBag()
	for _, inst := range instances {
		if err := bag.Add(inst); err != nil {
			t.Fatalf("Add(%s): %v", inst.UID, err)
		}
	}
	return bag
}

func TestClosureEmptyDirectRoles(t *testing.T) {
	r := NewResolver(bagOf(t, role("admin")))
	closure, err := r.Closure(userWithRoles())
	if err != nil {
		t.Fatalf("Closure: %v", err)
	}
	if len(closure) != 0 {
		t.Fatalf("empty direct role set must yield empty closure, got %v", closure.Roles())
	}
}

func TestClosureSingleRole(t *testing.T) {
	r := NewResolver(bagOf(t, role("admin")))
	closure, err := r.Closure(userWithRoles("admin"))
	if err != nil {
		t.Fatalf("Closure: %v", err)
	}
	if !reflect.DeepEqual(closure.Roles(), []string{"admin"}) {
		t.Fatalf("expected {admin}, got %v", closure.Roles())
	}
}

func TestClosureTransitive(t *testing.T) {
	// operator -> auditor -> viewer, plus a diamond: operator is also a
	// direct member of viewer. A diamond is not a cycle.
	bag := bagOf(t,
		role("operator", "auditor", "viewer"),
		role("auditor", "viewer"),
		role("viewer"),
		role("unrelated"),
	)
	r := NewResolver(bag)

	closure, err := r.Closure(userWithRoles("operator"))
	if err != nil {
		t.Fatalf("Closure: %v", err)
	}
	want := []string{"auditor", "operator", "viewer"}
	if !reflect.DeepEqual(closure.Roles(), want) {
		t.Fatalf("expected %v, got %v", want, closure.Roles())
	}
	if closure.Contains("unrelated") {
		t.Fatalf("unreachable role leaked into closure")
	}
}

func TestClosureUnknownRoleIDStaysInClosure(t *testing.T) {
	// A direct role identifier with no loaded Role instance has no
	// outgoing edges but is still a member of the closure.
	r := NewResolver(entity.NewBag())
	closure, err := r.Closure(userWithRoles("ghost"))
	if err != nil {
		t.Fatalf("Closure: %v", err)
	}
	if !closure.Contains("ghost") {
		t.Fatalf("direct role id must appear in closure, got %v", closure.Roles())
	}
}

func TestClosureOfRolePrincipal(t *testing.T) {
	bag := bagOf(t,
		role("operator", "auditor"),
		role("auditor"),
	)
	r := NewResolver(bag)
	closure, err := r.Closure(role("operator", "auditor"))
	if err != nil {
		t.Fatalf("Closure: %v", err)
	}
	want := []string{"auditor", "operator"}
	if !reflect.DeepEqual(closure.Roles(), want) {
		t.Fatalf("expected %v, got %v", want, closure.Roles())
	}
}

func TestClosureDetectsCycle(t *testing.T) {
	bag := bagOf(t,
		role("a", "b"),
		role("b", "a"),
	)
	r := NewResolver(bag)
	if _, err := r.Closure(userWithRoles("a")); !errors.Is(err, ErrCyclicHierarchy) {
		t.Fatalf("expected ErrCyclicHierarchy, got %v", err)
	}

	// Self-membership is the degenerate cycle.
	r = NewResolver(bagOf(t, role("self", "self")))
	if _, err := r.Closure(userWithRoles("self")); !errors.Is(err, ErrCyclicHierarchy) {
		t.Fatalf("expected ErrCyclicHierarchy for self edge, got %v", err)
	}
}

func TestClosureCycleNotReachableIsIgnored(t *testing.T) {
	bag := bagOf(t,
		role("a", "b"),
		role("b", "a"),
		role("clean"),
	)
	r := NewResolver(bag)
	closure, err := r.Closure(userWithRoles("clean"))
	if err != nil {
		t.Fatalf("cycle outside the reachable subgraph must not fail: %v", err)
	}
	if !reflect.DeepEqual(closure.Roles(), []string{"clean"}) {
		t.Fatalf("expected {clean}, got %v", closure.Roles())
	}
}

func TestClosureDeterministicAndCached(t *testing.T) {
	bag := bagOf(t,
		role("operator", "auditor"),
		role("auditor", "viewer"),
		role("viewer"),
	)

	for _, opts := range [][]Option{nil, {WithoutCache()}} {
		r := NewResolver(bag, opts...)
		user := userWithRoles("operator", "viewer")
		first, err := r.Closure(user)
		if err != nil {
			t.Fatalf("first Closure: %v", err)
		}
		second, err := r.Closure(user)
		if err != nil {
			t.Fatalf("second Closure: %v", err)
		}
		if !reflect.DeepEqual(first.Roles(), second.Roles()) {
			t.Fatalf("closure not deterministic: %v vs %v", first.Roles(), second.Roles())
		}
		// Mutating the returned closure must not poison later calls.
		first["injected"] = struct{}{}
		third, err := r.Closure(user)
		if err != nil {
			t.Fatalf("third Closure: %v", err)
		}
		if third.Contains("injected") {
			t.Fatalf("returned closure aliases internal state")
		}
	}
}

func TestClosureConcurrentCallers(t *testing.T) {
	bag := bagOf(t,
		role("operator", "auditor"),
		role("auditor", "viewer"),
		role("viewer"),
	)
	r := NewResolver(bag)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			closure, err := r.Closure(userWithRoles("operator"))
			if err != nil {
				t.Errorf("Closure: %v", err)
				return
			}
			if len(closure) != 3 {
				t.Errorf("unexpected closure %v", closure.Roles())
			}
		}()
	}
	wg.Wait()
}
