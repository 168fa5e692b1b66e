// Package user stores local accounts and their role assignments.
//
// Accounts are created either by the password registration path or on first
// sign-in through an external identity provider. Repositories exist for
// in-memory use and for PostgreSQL (see migrations/idm_db.sql).
package user
