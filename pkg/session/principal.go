package session

import (
	"time"

	"github.com/tendant/edu-idm/pkg/claims"
	"github.com/tendant/edu-idm/pkg/user"
)

// Principal is the signed-in browser user carried by the session cookie
type Principal struct {
	Subject          string
	Name             string
	Email            string
	Roles            []string
	AuthTime         time.Time
	IdentityProvider string
	External         claims.ExternalClaims
	XSRF             string
}

// PrincipalFor builds the session principal for a local account
func PrincipalFor(u user.User) Principal {
	return Principal{
		Subject: u.ID.String(),
		Name:    u.DisplayName(),
		Email:   u.Email,
		Roles:   u.Roles,
	}
}

// IsExternal reports whether the session was established through an external provider
func (p *Principal) IsExternal() bool {
	return p != nil && !p.External.IsZero()
}

// ClaimSource picks the claim origin for u from this session
func (p *Principal) ClaimSource(u user.User) claims.Source {
	if p == nil {
		return claims.Local{User: u}
	}
	return claims.SourceFor(u, p.External)
}

// FreshFor reports whether the sign-in happened no more than maxAge ago
func (p *Principal) FreshFor(maxAge time.Duration, now time.Time) bool {
	if p == nil || p.AuthTime.IsZero() {
		return false
	}
	return now.Sub(p.AuthTime) <= maxAge
}
