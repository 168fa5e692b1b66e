package externalidentity

import (
	"sort"

	"golang.org/x/oauth2"
)

// Provider is a registered external login scheme
type Provider struct {
	Scheme      string
	DisplayName string
	OAuth2      *oauth2.Config
	// UserIDField names the token response field carrying the external user id
	UserIDField string
	AuthParams  map[string]string
}

// Scheme is the public description of a provider, shown on the login view
type Scheme struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// Registry holds the external schemes known to this server
type Registry struct {
	providers map[string]*Provider
}

func NewRegistry(providers ...*Provider) *Registry {
	r := &Registry{providers: make(map[string]*Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p *Provider) {
	if p.UserIDField == "" {
		p.UserIDField = "user_id"
	}
	r.providers[p.Scheme] = p
}

func (r *Registry) Get(scheme string) (*Provider, bool) {
	p, ok := r.providers[scheme]
	return p, ok
}

func (r *Registry) Registered(scheme string) bool {
	_, ok := r.providers[scheme]
	return ok
}

// Schemes lists the registered schemes sorted by name
func (r *Registry) Schemes() []Scheme {
	schemes := make([]Scheme, 0, len(r.providers))
	for _, p := range r.providers {
		name := p.DisplayName
		if name == "" {
			name = p.Scheme
		}
		schemes = append(schemes, Scheme{Name: p.Scheme, DisplayName: name})
	}
	sort.Slice(schemes, func(i, j int) bool { return schemes[i].Name < schemes[j].Name })
	return schemes
}
