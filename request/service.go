package request

import (
	"context"
	"errors"
	"fmt"

	"github.com/olehbozhok/cedar-demo/entity"
	"github.com/olehbozhok/cedar-demo/hierarchy"
	"github.com/olehbozhok/cedar-demo/internal/ids"
	"github.com/olehbozhok/cedar-demo/internal/obs"
	"github.com/olehbozhok/cedar-demo/schema"
	"github.com/olehbozhok/cedar-demo/token"
)

// Input is the raw request tuple supplied by the decision engine, plus the
// per-request entity instances (typically token-derived) it arrives with.
type Input struct {
	Principal entity.UID
	Resource  entity.UID
	Action    string

	// Context is the request's ambient metadata as a record value. It is
	// validated against ContextType, or against the action's declared
	// context type when ContextType is empty.
	Context     entity.Value
	ContextType string

	// Entities are merged with the service's load-time entities for the
	// duration of this request only.
	Entities *entity.Bag
}

// ValidatedRequest is the typed, fully resolved tuple handed to the
// policy decision engine. Every entity reference inside it has been
// resolved and every attribute structurally checked.
type ValidatedRequest struct {
	ID          string
	Principal   *entity.Instance
	Resource    *entity.Instance
	Action      string
	Context     entity.Value
	RoleClosure hierarchy.Closure
}

// Service runs the full validation pipeline over immutable schema state.
// It holds no per-request mutable state and serves concurrent callers
// without locking.
type Service struct {
	schema   *schema.Schema
	defaults *entity.Bag
	resolver *hierarchy.Resolver
}

// Option configures the Service.
type Option func(*Service)

// WithoutClosureCache disables role-closure caching in the resolver.
func WithoutClosureCache() Option {
	return func(s *Service) {
		s.resolver = hierarchy.NewResolver(s.defaults, hierarchy.WithoutCache())
	}
}

// NewService builds the pipeline over a frozen schema and the entities
// loaded at startup (trusted issuers, roles, and other long-lived
// instances). Both are treated as immutable from here on.
func NewService(s *schema.Schema, defaults *entity.Bag, opts ...Option) (*Service, error) {
	if s == nil {
		return nil, errors.New("request: schema is required")
	}
	if defaults == nil {
		defaults = entity.NewBag()
	}
	obs.Init()
	svc := &Service{
		schema:   s,
		defaults: defaults,
		resolver: hierarchy.NewResolver(defaults),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Validate runs the pipeline: structural validation of principal,
// resource, and context, role-closure resolution, then the action
// contract gate. It returns a ValidatedRequest ready for rule
// evaluation, or the first typed error encountered. Errors are data; a
// decision engine treats any of them as Indeterminate under a
// fail-closed posture. The ctx parameter is accepted for caller
// symmetry; no step blocks.
func (s *Service) Validate(ctx context.Context, in Input) (*ValidatedRequest, error) {
	out, err := s.validate(in)
	if err != nil {
		return nil, s.reject(in.Action, err)
	}
	obs.RequestValidation("ok")
	obs.LogEvent("request_validated", map[string]any{
		"request_id": out.ID,
		"action":     out.Action,
		"principal":  out.Principal.UID.String(),
		"resource":   out.Resource.UID.String(),
		"roles":      len(out.RoleClosure),
	})
	return out, nil
}

// reject records a failed validation and returns err unchanged.
func (s *Service) reject(action string, err error) error {
	obs.RequestValidation(errorKind(err))
	obs.LogEvent("request_rejected", map[string]any{
		"action": action,
		"error":  err.Error(),
	})
	return err
}

func (s *Service) validate(in Input) (*ValidatedRequest, error) {
	action, err := s.schema.ActionFor(in.Action)
	if err != nil {
		return nil, err
	}

	merged, err := s.merge(in.Entities)
	if err != nil {
		return nil, err
	}
	validator := entity.NewValidator(s.schema, merged)

	principal, ok := merged.Lookup(in.Principal)
	if !ok {
		return nil, fmt.Errorf("%w: principal %s is not loaded", entity.ErrInvalidEntityReference, in.Principal)
	}
	if _, err := validator.Validate(principal); err != nil {
		return nil, fmt.Errorf("principal: %w", err)
	}

	resource, ok := merged.Lookup(in.Resource)
	if !ok {
		return nil, fmt.Errorf("%w: resource %s is not loaded", entity.ErrInvalidEntityReference, in.Resource)
	}
	if _, err := validator.Validate(resource); err != nil {
		return nil, fmt.Errorf("resource: %w", err)
	}

	contextType := in.ContextType
	if contextType == "" {
		contextType = action.ContextType
	}
	if err := validator.ValidateRecord(in.Context, contextType); err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}

	closure, err := s.resolver.Closure(principal)
	if err != nil {
		return nil, err
	}

	if err := CheckAction(s.schema, in.Action, principal.UID.Type, resource.UID.Type, contextType); err != nil {
		return nil, err
	}

	return &ValidatedRequest{
		ID:          ids.New(),
		Principal:   principal,
		Resource:    resource,
		Action:      in.Action,
		Context:     in.Context,
		RoleClosure: closure,
	}, nil
}

// merge overlays the per-request instances on the load-time entities. A
// UID collision between the two is a malformed request, not a silent
// override.
func (s *Service) merge(extra *entity.Bag) (*entity.Bag, error) {
	if extra == nil || extra.Len() == 0 {
		return s.defaults, nil
	}
	merged := entity.NewBag()
	for _, inst := range s.defaults.All() {
		if err := merged.Add(inst); err != nil {
			return nil, err
		}
	}
	for _, inst := range extra.All() {
		if err := merged.Add(inst); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, schema.ErrUnknownAction):
		return "unknown_action"
	case errors.Is(err, schema.ErrUnknownEntityType):
		return "unknown_entity_type"
	case errors.Is(err, schema.ErrUnknownRecordType):
		return "unknown_record_type"
	case errors.Is(err, entity.ErrMissingAttribute):
		return "missing_attribute"
	case errors.Is(err, entity.ErrUnexpectedAttribute):
		return "unexpected_attribute"
	case errors.Is(err, entity.ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, entity.ErrInvalidEntityReference):
		return "invalid_entity_reference"
	case errors.Is(err, entity.ErrCrossFieldInvariant):
		return "cross_field_invariant"
	case errors.Is(err, entity.ErrDuplicateInstance):
		return "duplicate_instance"
	case errors.Is(err, hierarchy.ErrCyclicHierarchy):
		return "cyclic_hierarchy"
	case errors.Is(err, ErrPrincipalTypeMismatch):
		return "principal_type_mismatch"
	case errors.Is(err, ErrResourceTypeMismatch):
		return "resource_type_mismatch"
	case errors.Is(err, ErrContextTypeMismatch):
		return "context_type_mismatch"
	case errors.Is(err, token.ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, token.ErrInvalidClaim):
		return "invalid_claim"
	default:
		return "error"
	}
}
