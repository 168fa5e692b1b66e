package claims

import (
	"github.com/tendant/edu-idm/pkg/idgovua"
	"github.com/tendant/edu-idm/pkg/user"
)

// Source says where identity claims come from. It is decided once per request.
type Source interface {
	source()
	Account() user.User
}

// Local sources every claim from the stored account
type Local struct {
	User user.User
}

// External prefers the claims copied from an external principal over stored ones
type External struct {
	User     user.User
	Identity ExternalClaims
}

func (Local) source()    {}
func (External) source() {}

func (l Local) Account() user.User    { return l.User }
func (e External) Account() user.User { return e.User }

// ExternalClaims are the values copied from an externally verified identity
type ExternalClaims struct {
	Provider   string `json:"idp,omitempty"`
	Role       string `json:"role,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	MiddleName string `json:"middle_name,omitempty"`
	TaxID      string `json:"tax_id,omitempty"`
	OrgCode    string `json:"org_code,omitempty"`
}

func (e ExternalClaims) IsZero() bool {
	return e == ExternalClaims{}
}

// ExternalClaimsFrom copies the verified identity and the role chosen before the handshake
func ExternalClaimsFrom(provider, role string, identity idgovua.VerifiedIdentity) ExternalClaims {
	return ExternalClaims{
		Provider:   provider,
		Role:       role,
		GivenName:  identity.GivenName,
		FamilyName: identity.FamilyName,
		MiddleName: identity.MiddleName,
		TaxID:      identity.TaxID,
		OrgCode:    identity.OrgCode,
	}
}

// HeldBy drops the selected role unless u currently holds it
func (e ExternalClaims) HeldBy(u user.User) ExternalClaims {
	if e.Role != "" && !u.HasRole(e.Role) {
		e.Role = ""
	}
	return e
}

// SourceFor picks External when ext carries anything, else Local
func SourceFor(u user.User, ext ExternalClaims) Source {
	if ext.IsZero() {
		return Local{User: u}
	}
	return External{User: u, Identity: ext.HeldBy(u)}
}
