// Package token turns bearer-token claim bundles (access, identity, and
// user-info tokens) into typed entity instances. Decoding reads the claim
// payload only; signature verification is the identity provider
// integration's concern and happens before tokens reach this library.
package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMalformedToken = errors.New("token: malformed token")
	ErrInvalidClaim   = errors.New("token: invalid claim")
)

// AccessToken carries the client-facing claims of an OAuth access token.
type AccessToken struct {
	Jti      string
	Iss      string
	Aud      string
	ClientID string
	Scope    []string
	Exp      int64
	Iat      int64
}

// IDToken carries the authentication claims of an OIDC identity token.
type IDToken struct {
	Jti string
	Iss string
	Aud string
	Sub string
	Exp int64
	Iat int64
	Acr string
	Amr []string
}

// UserinfoToken carries the profile claims of an OIDC user-info token.
type UserinfoToken struct {
	Jti         string
	Iss         string
	Aud         string
	Sub         string
	Name        string
	Birthdate   string
	PhoneNumber string
	Email       string
	Roles       []string
	Exp         int64
	Iat         int64
}

type accessClaims struct {
	ClientID string   `json:"client_id"`
	Scope    []string `json:"scope"`
	jwt.RegisteredClaims
}

type idClaims struct {
	Acr string   `json:"acr"`
	Amr []string `json:"amr"`
	jwt.RegisteredClaims
}

type userinfoClaims struct {
	Name        string   `json:"name"`
	Birthdate   string   `json:"birthdate"`
	PhoneNumber string   `json:"phone_number"`
	Email       string   `json:"email"`
	Roles       []string `json:"role"`
	jwt.RegisteredClaims
}

var parser = jwt.NewParser()

func decodeClaims(raw string, claims jwt.Claims) error {
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return nil
}

// DecodeAccessToken extracts the access token's claims.
func DecodeAccessToken(raw string) (AccessToken, error) {
	var claims accessClaims
	if err := decodeClaims(raw, &claims); err != nil {
		return AccessToken{}, err
	}
	return AccessToken{
		Jti:      jtiOrNew(claims.ID),
		Iss:      claims.Issuer,
		Aud:      firstAudience(claims.Audience),
		ClientID: claims.ClientID,
		Scope:    claims.Scope,
		Exp:      epoch(claims.ExpiresAt),
		Iat:      epoch(claims.IssuedAt),
	}, nil
}

// DecodeIDToken extracts the identity token's claims. An absent acr or
// amr claim normalizes to its zero value; the schema declares both
// attributes required, and an empty value is the declared way to say
// "no data".
func DecodeIDToken(raw string) (IDToken, error) {
	var claims idClaims
	if err := decodeClaims(raw, &claims); err != nil {
		return IDToken{}, err
	}
	return IDToken{
		Jti: jtiOrNew(claims.ID),
		Iss: claims.Issuer,
		Aud: firstAudience(claims.Audience),
		Sub: claims.Subject,
		Exp: epoch(claims.ExpiresAt),
		Iat: epoch(claims.IssuedAt),
		Acr: claims.Acr,
		Amr: claims.Amr,
	}, nil
}

// DecodeUserinfoToken extracts the user-info token's claims.
func DecodeUserinfoToken(raw string) (UserinfoToken, error) {
	var claims userinfoClaims
	if err := decodeClaims(raw, &claims); err != nil {
		return UserinfoToken{}, err
	}
	return UserinfoToken{
		Jti:         jtiOrNew(claims.ID),
		Iss:         claims.Issuer,
		Aud:         firstAudience(claims.Audience),
		Sub:         claims.Subject,
		Name:        claims.Name,
		Birthdate:   claims.Birthdate,
		PhoneNumber: claims.PhoneNumber,
		Email:       claims.Email,
		Roles:       claims.Roles,
		Exp:         epoch(claims.ExpiresAt),
		Iat:         epoch(claims.IssuedAt),
	}, nil
}

// Bundle is the decoded trio of tokens an authorization request arrives
// with.
type Bundle struct {
	Access   AccessToken
	ID       IDToken
	Userinfo UserinfoToken
}

// DecodeBundle decodes all three tokens, naming the one that failed.
func DecodeBundle(accessRaw, idRaw, userinfoRaw string) (*Bundle, error) {
	access, err := DecodeAccessToken(accessRaw)
	if err != nil {
		return nil, fmt.Errorf("access_token: %w", err)
	}
	id, err := DecodeIDToken(idRaw)
	if err != nil {
		return nil, fmt.Errorf("id_token: %w", err)
	}
	userinfo, err := DecodeUserinfoToken(userinfoRaw)
	if err != nil {
		return nil, fmt.Errorf("userinfo_token: %w", err)
	}
	return &Bundle{Access: access, ID: id, Userinfo: userinfo}, nil
}

// jtiOrNew keeps the token's own identifier when present. Token entities
// live for a single request, so a generated identifier for a jti-less
// token only anchors the instance.
func jtiOrNew(jti string) string {
	if jti != "" {
		return jti
	}
	return uuid.NewString()
}

func firstAudience(aud jwt.ClaimStrings) string {
	if len(aud) == 0 {
		return ""
	}
	return aud[0]
}

func epoch(d *jwt.NumericDate) int64 {
	if d == nil {
		return 0
	}
	return d.Unix()
}
