package idgovua

import "strings"

// VerifiedIdentity is the decrypted user info returned by id.gov.ua
type VerifiedIdentity struct {
	TaxID      string `json:"drfocode"`
	GivenName  string `json:"givenname"`
	FamilyName string `json:"lastname"`
	MiddleName string `json:"middlename"`
	Email      string `json:"email"`
	OrgCode    string `json:"edrpoucode,omitempty"`
}

// FullName joins the non-empty name parts as "Family Given Middle"
func (v VerifiedIdentity) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{v.FamilyName, v.GivenName, v.MiddleName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
