package request

import (
	"context"

	"github.com/olehbozhok/cedar-demo/entity"
	"github.com/olehbozhok/cedar-demo/schema"
	"github.com/olehbozhok/cedar-demo/token"
)

// TokenInput is the wire-shaped form of a request: three raw bearer
// tokens plus the action and context. The principal and the per-request
// entities are derived from the tokens.
type TokenInput struct {
	AccessToken   string
	IDToken       string
	UserinfoToken string

	Action  string
	Context entity.Value

	// ApplicationName, when set, materializes an Application instance
	// owned by the access token's client.
	ApplicationName string

	// Resource defaults to that Application when left zero.
	Resource entity.UID
}

// ValidateTokens decodes the token bundle, maps it to entity instances,
// and runs the standard validation pipeline with the token-derived User
// as principal.
func (s *Service) ValidateTokens(ctx context.Context, in TokenInput) (*ValidatedRequest, error) {
	bundle, err := token.DecodeBundle(in.AccessToken, in.IDToken, in.UserinfoToken)
	if err != nil {
		return nil, s.reject(in.Action, err)
	}
	bag, principal, err := bundle.Instances(in.ApplicationName)
	if err != nil {
		return nil, s.reject(in.Action, err)
	}

	resource := in.Resource
	if resource == (entity.UID{}) && in.ApplicationName != "" {
		resource = entity.NewUID(schema.EntityApplication, bundle.Access.Aud)
	}

	return s.Validate(ctx, Input{
		Principal: principal,
		Resource:  resource,
		Action:    in.Action,
		Context:   in.Context,
		Entities:  bag,
	})
}
