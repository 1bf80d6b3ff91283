// Package request gates concrete authorization requests: it checks that
// the principal, resource, and context of a request satisfy the action's
// appliesTo contract and assembles the fully validated tuple a policy
// decision engine consumes.
package request

import (
	"errors"
	"fmt"

	"github.com/olehbozhok/cedar-demo/schema"
)

var (
	ErrPrincipalTypeMismatch = errors.New("request: principal type not allowed for action")
	ErrResourceTypeMismatch  = errors.New("request: resource type not allowed for action")
	ErrContextTypeMismatch   = errors.New("request: context type not allowed for action")
)

// CheckAction validates the request tuple's types against the action's
// appliesTo contract. Checks run in declared order (principal, resource,
// context) and the first violation wins.
func CheckAction(s *schema.Schema, action, principalType, resourceType, contextType string) error {
	a, err := s.ActionFor(action)
	if err != nil {
		return err
	}
	if !contains(a.PrincipalTypes, principalType) {
		return fmt.Errorf("%w: %s cannot be a principal of %s", ErrPrincipalTypeMismatch, principalType, action)
	}
	if !contains(a.ResourceTypes, resourceType) {
		return fmt.Errorf("%w: %s cannot be a resource of %s", ErrResourceTypeMismatch, resourceType, action)
	}
	if contextType != a.ContextType {
		return fmt.Errorf("%w: %s is not the context of %s", ErrContextTypeMismatch, contextType, action)
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
