package externalidentity

import "time"

// Property keys carried by a Ticket
const (
	PropertyRedirectURI = ".redirect"
	PropertyRole        = ".role"
	PropertyReturnURL   = "returnUrl"
	PropertyProvider    = "LoginProvider"
)

// BackchannelTokenKey is the property key holding the backchannel access token for scheme
func BackchannelTokenKey(scheme string) string {
	return ".Token." + scheme + ".BackchannelAccessToken"
}

// Ticket is the principal produced by a completed external handshake.
// It lives for a single request.
type Ticket struct {
	Scheme         string
	UserID         string
	ProviderName   string
	RegistrationID string
	Claims         map[string]string
	Properties     map[string]string
	IssuedAt       time.Time
}

func (t *Ticket) Property(key string) (string, bool) {
	if t == nil || t.Properties == nil {
		return "", false
	}
	v, ok := t.Properties[key]
	return v, ok && v != ""
}

func (t *Ticket) RedirectURI() string {
	v, _ := t.Property(PropertyRedirectURI)
	return v
}

func (t *Ticket) SelectedRole() string {
	v, _ := t.Property(PropertyRole)
	return v
}

func (t *Ticket) BackchannelToken() (string, bool) {
	if t == nil {
		return "", false
	}
	return t.Property(BackchannelTokenKey(t.Scheme))
}
