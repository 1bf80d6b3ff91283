package token

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/olehbozhok/cedar-demo/entity"
	"github.com/olehbozhok/cedar-demo/schema"
)

// Instances maps the decoded bundle onto typed entity instances: one
// TrustedIssuer per distinct issuer, the Client and (when appName is
// non-empty) Application derived from the access token, the User derived
// from the user-info token, and the three token entities themselves. The
// returned principal UID names the User instance. The caller hands the
// bag to the validator; nothing here is trusted yet.
func (b *Bundle) Instances(appName string) (*entity.Bag, entity.UID, error) {
	bag := entity.NewBag()

	issuers := make(map[string]entity.UID)
	for _, iss := range []string{b.Access.Iss, b.ID.Iss, b.Userinfo.Iss} {
		if _, ok := issuers[iss]; ok {
			continue
		}
		issuer, err := issuerInstance(iss)
		if err != nil {
			return nil, entity.UID{}, err
		}
		if err := bag.Add(issuer); err != nil {
			return nil, entity.UID{}, err
		}
		issuers[iss] = issuer.UID
	}

	clientUID := entity.NewUID(schema.EntityClient, b.Access.Aud)
	if err := bag.Add(entity.NewInstance(clientUID, map[string]entity.Value{
		"client_id": entity.String(b.Access.ClientID),
		"iss":       entity.Ref(issuers[b.Access.Iss]),
	})); err != nil {
		return nil, entity.UID{}, fmt.Errorf("access_token: %w", err)
	}

	if appName != "" {
		appUID := entity.NewUID(schema.EntityApplication, b.Access.Aud)
		if err := bag.Add(entity.NewInstance(appUID, map[string]entity.Value{
			"name":   entity.String(appName),
			"client": entity.Ref(clientUID),
		})); err != nil {
			return nil, entity.UID{}, fmt.Errorf("access_token: %w", err)
		}
	}

	user, err := b.userInstance()
	if err != nil {
		return nil, entity.UID{}, fmt.Errorf("userinfo_token: %w", err)
	}
	if err := bag.Add(user); err != nil {
		return nil, entity.UID{}, fmt.Errorf("userinfo_token: %w", err)
	}

	tokens := []struct {
		name string
		inst *entity.Instance
	}{
		{"access_token", b.accessInstance(issuers)},
		{"id_token", b.idInstance(issuers)},
		{"userinfo_token", b.userinfoInstance(issuers)},
	}
	for _, tok := range tokens {
		if err := bag.Add(tok.inst); err != nil {
			return nil, entity.UID{}, fmt.Errorf("%s: %w", tok.name, err)
		}
	}

	return bag, user.UID, nil
}

func issuerInstance(iss string) (*entity.Instance, error) {
	parsed, err := url.Parse(iss)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: iss %q is not a URL", ErrInvalidClaim, iss)
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}
	uid := entity.NewUID(schema.EntityTrustedIssuer, iss)
	return entity.NewInstance(uid, map[string]entity.Value{
		"issuer_entity_id": entity.Record(map[string]entity.Value{
			"protocol": entity.String(parsed.Scheme),
			"host":     entity.String(parsed.Host),
			"path":     entity.String(path),
		}),
	}), nil
}

func (b *Bundle) userInstance() (*entity.Instance, error) {
	local, domain, ok := strings.Cut(b.Userinfo.Email, "@")
	if !ok || local == "" || domain == "" {
		return nil, fmt.Errorf("%w: email %q is not splittable", ErrInvalidClaim, b.Userinfo.Email)
	}
	parents := make([]entity.UID, 0, len(b.Userinfo.Roles))
	for _, roleID := range b.Userinfo.Roles {
		parents = append(parents, entity.NewUID(schema.EntityRole, roleID))
	}
	uid := entity.NewUID(schema.EntityUser, b.Userinfo.Sub)
	return entity.NewInstance(uid, map[string]entity.Value{
		"sub":          entity.String(b.Userinfo.Sub),
		"username":     entity.String(b.Userinfo.Name),
		"phone_number": entity.String(b.Userinfo.PhoneNumber),
		"email": entity.Record(map[string]entity.Value{
			"id":     entity.String(local),
			"domain": entity.String(domain),
		}),
		"role": entity.StringSet(b.Userinfo.Roles...),
	}, parents...), nil
}

func (b *Bundle) accessInstance(issuers map[string]entity.UID) *entity.Instance {
	return entity.NewInstance(entity.NewUID(schema.EntityAccessToken, b.Access.Jti), map[string]entity.Value{
		"aud":   entity.String(b.Access.Aud),
		"exp":   entity.Long(b.Access.Exp),
		"iat":   entity.Long(b.Access.Iat),
		"iss":   entity.Ref(issuers[b.Access.Iss]),
		"jti":   entity.String(b.Access.Jti),
		"scope": entity.StringSet(b.Access.Scope...),
	})
}

func (b *Bundle) idInstance(issuers map[string]entity.UID) *entity.Instance {
	return entity.NewInstance(entity.NewUID(schema.EntityIDToken, b.ID.Jti), map[string]entity.Value{
		"acr": entity.String(b.ID.Acr),
		"amr": entity.StringSet(b.ID.Amr...),
		"aud": entity.String(b.ID.Aud),
		"exp": entity.Long(b.ID.Exp),
		"iat": entity.Long(b.ID.Iat),
		"iss": entity.Ref(issuers[b.ID.Iss]),
		"jti": entity.String(b.ID.Jti),
		"sub": entity.String(b.ID.Sub),
	})
}

func (b *Bundle) userinfoInstance(issuers map[string]entity.UID) *entity.Instance {
	local, domain, _ := strings.Cut(b.Userinfo.Email, "@")
	return entity.NewInstance(entity.NewUID(schema.EntityUserinfoToken, b.Userinfo.Jti), map[string]entity.Value{
		"aud":       entity.String(b.Userinfo.Aud),
		"birthdate": entity.String(b.Userinfo.Birthdate),
		"email": entity.Record(map[string]entity.Value{
			"id":     entity.String(local),
			"domain": entity.String(domain),
		}),
		"exp":          entity.Long(b.Userinfo.Exp),
		"iat":          entity.Long(b.Userinfo.Iat),
		"iss":          entity.Ref(issuers[b.Userinfo.Iss]),
		"jti":          entity.String(b.Userinfo.Jti),
		"name":         entity.String(b.Userinfo.Name),
		"phone_number": entity.String(b.Userinfo.PhoneNumber),
		"sub":          entity.String(b.Userinfo.Sub),
	})
}
