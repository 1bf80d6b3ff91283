package schema

import "sync"

// Names of the built-in declarations.
const (
	RecordURL          = "Url"
	RecordEmailAddress = "email_address"
	RecordContext      = "Context"

	EntityTrustedIssuer = "TrustedIssuer"
	EntityClient        = "Client"
	EntityApplication   = "Application"
	EntityRole          = "Role"
	EntityUser          = "User"
	EntityAccessToken   = "Access_token"
	EntityIDToken       = "id_token"
	EntityUserinfoToken = "Userinfo_token"

	ActionExecute = "Execute"
)

var (
	defaultOnce   sync.Once
	defaultSchema *Schema
)

// Default returns the built-in schema: the federated-identity entity model
// (trusted issuers, clients, applications, users and roles, bearer-token
// claim bundles) and the Execute action contract. The schema is built once
// and shared; it is immutable.
func Default() *Schema {
	defaultOnce.Do(func() {
		s, err := buildDefault()
		if err != nil {
			// The built-in schema is compiled in; failing to build it is a
			// programming error, not a runtime condition.
			panic("schema: default schema: " + err.Error())
		}
		defaultSchema = s
	})
	return defaultSchema
}

func buildDefault() (*Schema, error) {
	b := NewBuilder()

	declarations := []error{
		b.Record(RecordURL, map[string]Type{
			"protocol": String(),
			"host":     String(),
			"path":     String(),
		}),
		b.Record(RecordEmailAddress, map[string]Type{
			"id":     String(),
			"domain": String(),
		}),
		b.Record(RecordContext, map[string]Type{
			"network":          IPAddr(),
			"network_type":     String(),
			"user_agent":       String(),
			"operating_system": String(),
			"device_health":    SetOf(String()),
			"current_time":     Long(),
			"geolocation":      SetOf(String()),
			"fraud_indicators": SetOf(String()),
		}),

		b.Entity(EntityTrustedIssuer, map[string]Type{
			"issuer_entity_id": RecordOf(RecordURL),
		}),
		b.Entity(EntityClient, map[string]Type{
			"client_id": String(),
			"iss":       EntityOf(EntityTrustedIssuer),
		}),
		b.Entity(EntityApplication, map[string]Type{
			"name":   String(),
			"client": EntityOf(EntityClient),
		}),
		b.Entity(EntityRole, nil),
		b.Entity(EntityUser, map[string]Type{
			"sub":          String(),
			"username":     String(),
			"email":        RecordOf(RecordEmailAddress),
			"phone_number": String(),
			"role":         SetOf(String()),
		}, EntityRole),
		b.Entity(EntityAccessToken, map[string]Type{
			"aud":   String(),
			"exp":   Long(),
			"iat":   Long(),
			"iss":   EntityOf(EntityTrustedIssuer),
			"jti":   String(),
			"scope": SetOf(String()),
		}),
		b.Entity(EntityIDToken, map[string]Type{
			"acr": String(),
			"amr": SetOf(String()),
			"aud": String(),
			"exp": Long(),
			"iat": Long(),
			"iss": EntityOf(EntityTrustedIssuer),
			"jti": String(),
			"sub": String(),
		}),
		b.Entity(EntityUserinfoToken, map[string]Type{
			"aud":          String(),
			"birthdate":    String(),
			"email":        RecordOf(RecordEmailAddress),
			"exp":          Long(),
			"iat":          Long(),
			"iss":          EntityOf(EntityTrustedIssuer),
			"jti":          String(),
			"name":         String(),
			"phone_number": String(),
			"sub":          String(),
		}),

		b.Action(Action{
			Name:           ActionExecute,
			PrincipalTypes: []string{EntityUser, EntityRole},
			ResourceTypes:  []string{EntityApplication},
			ContextType:    RecordContext,
		}),
	}
	for _, err := range declarations {
		if err != nil {
			return nil, err
		}
	}
	return b.Build()
}
