package claims

import (
	"context"
	"fmt"

	"github.com/ory/fosite"
)

// Enricher adds platform claims after the core claims are in place
type Enricher interface {
	Enrich(ctx context.Context, set *Set) error
}

// EnricherFunc adapts a function to Enricher
type EnricherFunc func(ctx context.Context, set *Set) error

func (f EnricherFunc) Enrich(ctx context.Context, set *Set) error {
	return f(ctx, set)
}

type Builder struct {
	enrichers []Enricher
}

func NewBuilder(enrichers ...Enricher) *Builder {
	return &Builder{enrichers: enrichers}
}

// Build assembles the claim set for src and routes each claim by scopes
func (b *Builder) Build(ctx context.Context, src Source, scopes fosite.Arguments) (*Set, error) {
	if src == nil {
		return nil, fmt.Errorf("claim source is nil")
	}
	u := src.Account()

	set := NewSet()
	set.Add(TypeSubject, u.ID.String())
	set.Add(TypeEmail, u.Email)
	set.Add(TypeName, u.DisplayName())
	set.Add(TypePreferredUsername, u.UserName)

	switch s := src.(type) {
	case External:
		ext := s.Identity.HeldBy(u)
		if ext.Role != "" {
			set.Add(TypeRole, ext.Role)
		} else {
			addRoles(set, u.Roles)
		}
		set.Add(TypeGivenName, firstNonEmpty(ext.GivenName, u.FirstName))
		set.Add(TypeFamilyName, firstNonEmpty(ext.FamilyName, u.LastName))
		set.Add(TypeMiddleName, firstNonEmpty(ext.MiddleName, u.MiddleName))
		set.Add(TypeTaxID, ext.TaxID)
		set.Add(TypeOrgCode, ext.OrgCode)
		set.Add(TypeIdentityProvider, ext.Provider)
	case Local:
		addRoles(set, u.Roles)
		set.Add(TypeGivenName, u.FirstName)
		set.Add(TypeFamilyName, u.LastName)
		set.Add(TypeMiddleName, u.MiddleName)
	default:
		return nil, fmt.Errorf("unsupported claim source %T", src)
	}

	set.Add(TypeSecurityStamp, u.SecurityStamp)

	for _, e := range b.enrichers {
		if err := e.Enrich(ctx, set); err != nil {
			return nil, fmt.Errorf("failed to enrich claims: %w", err)
		}
	}

	set.ApplyDestinations(scopes)
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

func addRoles(set *Set, roles []string) {
	for _, r := range roles {
		set.Add(TypeRole, r)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
