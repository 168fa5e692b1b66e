// Package errors carries structured, coded errors from services to the HTTP layer.
//
// Services return *Error for conditions that indicate a broken deployment or corrupted
// state (unknown client, unsupported grant type, a user that must exist but does not).
// Recoverable protocol conditions are not represented here; they travel as OAuth2
// protocol errors built on fosite.RFC6749Error in pkg/oidc.
//
// Creating and inspecting errors:
//
//	err := errors.Newf(errors.ErrCodeClientNotFound, "client %s is not registered", id)
//
//	if errors.IsCode(err, errors.ErrCodeClientNotFound) {
//	    // ...
//	}
//
//	status := errors.GetCode(err)
//
// Handlers translate an *Error into a JSON body with HTTPStatusCode().
package errors
