package idgovua

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies an external authentication failure
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindEncryption
	KindIdGovUa
)

func (k ErrorKind) String() string {
	switch k {
	case KindEncryption:
		return "encryption"
	case KindIdGovUa:
		return "idgovua"
	default:
		return "unknown"
	}
}

const (
	MessageDecryptFailed     = "User info could not be decrypted."
	MessageCertificateFailed = "Encryption certificate could not be obtained."
	MessageUnexpected        = "Unexpected response from the identity provider."
)

// AuthError is a failure of the external identity pipeline.
// StatusCode is 0 when no HTTP response was received.
type AuthError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (status %d): %s: %v", e.Kind, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func EncryptionError(status int, message string, cause error) *AuthError {
	return &AuthError{Kind: KindEncryption, StatusCode: status, Message: message, Err: cause}
}

func IdGovUaError(status int, message string) *AuthError {
	return &AuthError{Kind: KindIdGovUa, StatusCode: status, Message: message}
}

func UnknownError(status int, message string, cause error) *AuthError {
	return &AuthError{Kind: KindUnknown, StatusCode: status, Message: message, Err: cause}
}

// providerError is the body id.gov.ua sends with a 401
type providerError struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

func (p providerError) text() string {
	message := strings.TrimSpace(p.Message)
	description := strings.TrimSpace(p.Description)
	switch {
	case description == "" || message == description:
		return message
	case message == "":
		return description
	default:
		return message + " - " + description
	}
}

// errorFromResponse maps a non-2xx user-info response to an AuthError.
// Only a 401 with a well-formed provider body becomes an IdGovUa error.
func errorFromResponse(status int, body []byte) *AuthError {
	if status != http.StatusUnauthorized {
		return UnknownError(status, MessageUnexpected, fmt.Errorf("unexpected status %d", status))
	}

	var perr providerError
	if err := json.Unmarshal(body, &perr); err != nil {
		return UnknownError(status, MessageUnexpected, fmt.Errorf("malformed error body: %w", err))
	}
	text := perr.text()
	if text == "" {
		return UnknownError(status, MessageUnexpected, fmt.Errorf("empty error body"))
	}
	return IdGovUaError(status, text)
}
