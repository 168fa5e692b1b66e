package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapAndInspect(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, ErrCodeConfiguration, "failed to load trust file")

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsCode(err, ErrCodeConfiguration))
	assert.Equal(t, ErrCodeConfiguration, GetCode(fmt.Errorf("outer: %w", err)))
	assert.Equal(t, "[CONFIGURATION_ERROR] failed to load trust file: connection refused", err.Error())
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "nothing"))
}

func TestGetCodeDefaultsToInternal(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, GetCode(fmt.Errorf("plain")))
}

func TestHTTPStatusCode(t *testing.T) {
	tests := map[ErrorCode]int{
		ErrCodeClientNotFound:    http.StatusNotFound,
		ErrCodeUserBlocked:       http.StatusForbidden,
		ErrCodeMissingRequest:    http.StatusBadRequest,
		ErrCodeUnsupportedGrant:  http.StatusInternalServerError,
		ErrCodeUserAlreadyExists: http.StatusConflict,
	}
	for code, want := range tests {
		assert.Equal(t, want, New(code, "x").HTTPStatusCode(), string(code))
	}
}
