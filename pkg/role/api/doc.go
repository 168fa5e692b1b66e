// Package api exposes role permission management under /api/roles for administrators.
package api
