// Package api exposes the authorization server flows over HTTP under /connect.
package api
