package request

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/olehbozhok/cedar-demo/entity"
	"github.com/olehbozhok/cedar-demo/hierarchy"
	"github.com/olehbozhok/cedar-demo/schema"
)

var (
	issuerUID = entity.NewUID(schema.EntityTrustedIssuer, "https://idp.example.com")
	clientUID = entity.NewUID(schema.EntityClient, "client-abc")
	appUID    = entity.NewUID(schema.EntityApplication, "client-abc")
	userUID   = entity.NewUID(schema.EntityUser, "alice")
)

func defaultEntities(t *testing.T) *entity.Bag {
	t.Helper()
	bag := entity.NewBag()
	add := func(inst *entity.Instance) {
		if err := bag.Add(inst); err != nil {
			t.Fatalf("Add(%s): %v", inst.UID, err)
		}
	}
	add(entity.NewInstance(issuerUID, map[string]entity.Value{
		"issuer_entity_id": entity.Record(map[string]entity.Value{
			"protocol": entity.String("https"),
			"host":     entity.String("idp.example.com"),
			"path":     entity.String("/"),
		}),
	}))
	add(entity.NewInstance(clientUID, map[string]entity.Value{
		"client_id": entity.String("client-abc"),
		"iss":       entity.Ref(issuerUID),
	}))
	add(entity.NewInstance(appUID, map[string]entity.Value{
		"name":   entity.String("Demo_app"),
		"client": entity.Ref(clientUID),
	}))
	add(entity.NewInstance(entity.NewUID(schema.EntityRole, "admin"),
		nil, entity.NewUID(schema.EntityRole, "viewer")))
	add(entity.NewInstance(entity.NewUID(schema.EntityRole, "viewer"), nil))
	return bag
}

func requestUser() *entity.Instance {
	return entity.NewInstance(userUID, map[string]entity.Value{
		"sub":          entity.String("alice"),
		"username":     entity.String("Alice"),
		"phone_number": entity.String("+15550100"),
		"email": entity.Record(map[string]entity.Value{
			"id":     entity.String("alice"),
			"domain": entity.String("example.com"),
		}),
		"role": entity.StringSet("admin"),
	})
}

func requestContext() entity.Value {
	return entity.Record(map[string]entity.Value{
		"network":          entity.String("10.0.0.7"),
		"network_type":     entity.String("vpn"),
		"user_agent":       entity.String("demo-agent/1.0"),
		"operating_system": entity.String("linux"),
		"device_health":    entity.StringSet("patched", "encrypted"),
		"current_time":     entity.Long(1700000000),
		"geolocation":      entity.StringSet("KZ"),
		"fraud_indicators": entity.StringSet(),
	})
}

func requestBag(t *testing.T, instances ...*entity.Instance) *entity.Bag {
	t.Helper()
	bag := entity.NewBag()
	for _, inst := range instances {
		if err := bag.Add(inst); err != nil {
			t.Fatalf("Add(%s): %v", inst.UID, err)
		}
	}
	return bag
}

func newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(schema.Default(), defaultEntities(t), opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestValidateWellFormedRequest(t *testing.T) {
	svc := newService(t)
	out, err := svc.Validate(context.Background(), Input{
		Principal: userUID,
		Resource:  appUID,
		Action:    schema.ActionExecute,
		Context:   requestContext(),
		Entities:  requestBag(t, requestUser()),
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out.ID == "" {
		t.Fatalf("expected a request id")
	}
	if out.Principal.UID != userUID || out.Resource.UID != appUID {
		t.Fatalf("unexpected tuple: %s, %s", out.Principal.UID, out.Resource.UID)
	}
	want := []string{"admin", "viewer"}
	if !reflect.DeepEqual(out.RoleClosure.Roles(), want) {
		t.Fatalf("expected closure %v, got %v", want, out.RoleClosure.Roles())
	}
}

func TestValidateRolePrincipal(t *testing.T) {
	svc := newService(t)
	out, err := svc.Validate(context.Background(), Input{
		Principal: entity.NewUID(schema.EntityRole, "admin"),
		Resource:  appUID,
		Action:    schema.ActionExecute,
		Context:   requestContext(),
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !out.RoleClosure.Contains("admin") || !out.RoleClosure.Contains("viewer") {
		t.Fatalf("role principal closure incomplete: %v", out.RoleClosure.Roles())
	}
}

func TestValidateUnknownAction(t *testing.T) {
	svc := newService(t)
	_, err := svc.Validate(context.Background(), Input{
		Principal: userUID,
		Resource:  appUID,
		Action:    "View",
		Context:   requestContext(),
		Entities:  requestBag(t, requestUser()),
	})
	if !errors.Is(err, schema.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestValidateUnloadedPrincipal(t *testing.T) {
	svc := newService(t)
	_, err := svc.Validate(context.Background(), Input{
		Principal: userUID, // never loaded
		Resource:  appUID,
		Action:    schema.ActionExecute,
		Context:   requestContext(),
	})
	if !errors.Is(err, entity.ErrInvalidEntityReference) {
		t.Fatalf("expected ErrInvalidEntityReference, got %v", err)
	}
}

func TestValidateStructurallyBrokenPrincipal(t *testing.T) {
	svc := newService(t)
	broken := requestUser()
	delete(broken.Attrs, "email")
	_, err := svc.Validate(context.Background(), Input{
		Principal: userUID,
		Resource:  appUID,
		Action:    schema.ActionExecute,
		Context:   requestContext(),
		Entities:  requestBag(t, broken),
	})
	if !errors.Is(err, entity.ErrMissingAttribute) {
		t.Fatalf("expected ErrMissingAttribute, got %v", err)
	}
}

func TestValidateBrokenContext(t *testing.T) {
	svc := newService(t)
	ctxFields, _ := requestContext().AsRecord()
	delete(ctxFields, "fraud_indicators")
	_, err := svc.Validate(context.Background(), Input{
		Principal: userUID,
		Resource:  appUID,
		Action:    schema.ActionExecute,
		Context:   entity.Record(ctxFields),
		Entities:  requestBag(t, requestUser()),
	})
	if !errors.Is(err, entity.ErrMissingAttribute) {
		t.Fatalf("expected ErrMissingAttribute, got %v", err)
	}
}

func TestValidateWrongPrincipalType(t *testing.T) {
	svc := newService(t)
	// The application is a perfectly valid entity, just not a legal
	// principal for Execute.
	_, err := svc.Validate(context.Background(), Input{
		Principal: appUID,
		Resource:  appUID,
		Action:    schema.ActionExecute,
		Context:   requestContext(),
	})
	if !errors.Is(err, ErrPrincipalTypeMismatch) {
		t.Fatalf("expected ErrPrincipalTypeMismatch, got %v", err)
	}
}

func TestValidateCyclicRoles(t *testing.T) {
	bag := defaultEntities(t)
	roleA := entity.NewInstance(entity.NewUID(schema.EntityRole, "a"), nil, entity.NewUID(schema.EntityRole, "b"))
	roleB := entity.NewInstance(entity.NewUID(schema.EntityRole, "b"), nil, entity.NewUID(schema.EntityRole, "a"))
	for _, inst := range []*entity.Instance{roleA, roleB} {
		if err := bag.Add(inst); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	svc, err := NewService(schema.Default(), bag)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	_, err = svc.Validate(context.Background(), Input{
		Principal: entity.NewUID(schema.EntityRole, "a"),
		Resource:  appUID,
		Action:    schema.ActionExecute,
		Context:   requestContext(),
	})
	if !errors.Is(err, hierarchy.ErrCyclicHierarchy) {
		t.Fatalf("expected ErrCyclicHierarchy, got %v", err)
	}
}

func TestValidateRejectsUIDCollision(t *testing.T) {
	svc := newService(t)
	// Request-supplied instance reuses a load-time UID.
	impostor := entity.NewInstance(appUID, map[string]entity.Value{
		"name":   entity.String("Impostor"),
		"client": entity.Ref(clientUID),
	})
	_, err := svc.Validate(context.Background(), Input{
		Principal: userUID,
		Resource:  appUID,
		Action:    schema.ActionExecute,
		Context:   requestContext(),
		Entities:  requestBag(t, requestUser(), impostor),
	})
	if !errors.Is(err, entity.ErrDuplicateInstance) {
		t.Fatalf("expected ErrDuplicateInstance, got %v", err)
	}
}
