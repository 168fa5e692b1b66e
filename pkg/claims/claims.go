package claims

import (
	"fmt"
	"slices"

	"github.com/ory/fosite"
)

// Claim types issued by this server
const (
	TypeSubject           = "sub"
	TypeEmail             = "email"
	TypeName              = "name"
	TypePreferredUsername = "preferred_username"
	TypeRole              = "role"
	TypeGivenName         = "given_name"
	TypeFamilyName        = "family_name"
	TypeMiddleName        = "middle_name"
	TypeTaxID             = "tax_id"
	TypeOrgCode           = "org_code"
	TypePermissions       = "permissions"
	TypeConsentID         = "consent_id"
	TypeIdentityProvider  = "idp"
	TypeSecurityStamp     = "security_stamp"
)

// Scopes understood by the destination policy
const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeRoles         = "roles"
	ScopeOfflineAccess = "offline_access"
)

// Claim is a single claim value and the tokens it is written to
type Claim struct {
	Type         string
	Value        string
	Destinations []fosite.TokenType
}

func (c Claim) HasDestination(dst fosite.TokenType) bool {
	return slices.Contains(c.Destinations, dst)
}

// Set is an ordered claim collection. A type may carry several values (roles).
type Set struct {
	claims []Claim
}

func NewSet() *Set {
	return &Set{}
}

// Add appends a value; empty values are ignored
func (s *Set) Add(typ, value string) {
	if value == "" {
		return
	}
	for _, c := range s.claims {
		if c.Type == typ && c.Value == value {
			return
		}
	}
	s.claims = append(s.claims, Claim{Type: typ, Value: value})
}

// Replace drops every value of typ and adds value
func (s *Set) Replace(typ, value string) {
	s.Remove(typ)
	s.Add(typ, value)
}

func (s *Set) Remove(typ string) {
	s.claims = slices.DeleteFunc(s.claims, func(c Claim) bool { return c.Type == typ })
}

// Get returns the first value of typ
func (s *Set) Get(typ string) (string, bool) {
	for _, c := range s.claims {
		if c.Type == typ {
			return c.Value, true
		}
	}
	return "", false
}

func (s *Set) Values(typ string) []string {
	var out []string
	for _, c := range s.claims {
		if c.Type == typ {
			out = append(out, c.Value)
		}
	}
	return out
}

func (s *Set) Subject() string {
	v, _ := s.Get(TypeSubject)
	return v
}

// Claims returns a copy of the claims in insertion order
func (s *Set) Claims() []Claim {
	out := make([]Claim, len(s.claims))
	for i, c := range s.claims {
		c.Destinations = slices.Clone(c.Destinations)
		out[i] = c
	}
	return out
}

func (s *Set) Len() int {
	return len(s.claims)
}

// ApplyDestinations sets every claim's destinations from the granted scopes
func (s *Set) ApplyDestinations(scopes fosite.Arguments) {
	for i := range s.claims {
		s.claims[i].Destinations = Destinations(s.claims[i].Type, scopes)
	}
}

// Validate checks that every claim is routed to a token, except the security stamp
// which must never leave the server
func (s *Set) Validate() error {
	if s.Subject() == "" {
		return fmt.Errorf("claim set has no %s claim", TypeSubject)
	}
	for _, c := range s.claims {
		if c.Type == TypeSecurityStamp {
			if len(c.Destinations) != 0 {
				return fmt.Errorf("claim %s must not have destinations", c.Type)
			}
			continue
		}
		if len(c.Destinations) == 0 {
			return fmt.Errorf("claim %s has no destination", c.Type)
		}
	}
	return nil
}

func (s *Set) AccessTokenClaims() map[string]any {
	return s.project(fosite.AccessToken)
}

func (s *Set) IDTokenClaims() map[string]any {
	return s.project(fosite.IDToken)
}

// project flattens the claims routed to dst; multi-valued types become string slices
func (s *Set) project(dst fosite.TokenType) map[string]any {
	out := make(map[string]any)
	for _, c := range s.claims {
		if !c.HasDestination(dst) {
			continue
		}
		switch existing := out[c.Type].(type) {
		case nil:
			out[c.Type] = c.Value
		case string:
			out[c.Type] = []string{existing, c.Value}
		case []string:
			out[c.Type] = append(existing, c.Value)
		}
	}
	return out
}

// scopeForClaim ties a claim to the scope that admits it into the identity token
var scopeForClaim = map[string]string{
	TypeName:              ScopeProfile,
	TypePreferredUsername: ScopeProfile,
	TypeGivenName:         ScopeProfile,
	TypeFamilyName:        ScopeProfile,
	TypeMiddleName:        ScopeProfile,
	TypeEmail:             ScopeEmail,
	TypeRole:              ScopeRoles,
}

// Destinations decides which tokens receive a claim of type typ
func Destinations(typ string, scopes fosite.Arguments) []fosite.TokenType {
	switch typ {
	case TypeSecurityStamp:
		return nil
	case TypeSubject:
		return []fosite.TokenType{fosite.AccessToken, fosite.IDToken}
	}

	dst := []fosite.TokenType{fosite.AccessToken}
	if scope, ok := scopeForClaim[typ]; ok && scopes.Has(scope) {
		dst = append(dst, fosite.IDToken)
	}
	return dst
}
