// Package api serves the external login challenge and callback routes.
package api
