package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", Newf(ErrInternal, http.StatusTeapot, "tea"), http.StatusTeapot},
		{"not found", fmt.Errorf("resolving: %w", ErrDocumentNotFound), http.StatusNotFound},
		{"invalid", ErrInvalidInput, http.StatusBadRequest},
		{"not ready", ErrIndexNotReady, http.StatusServiceUnavailable},
		{"build fault", ErrBuildFault, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestHelpersWrapSentinels(t *testing.T) {
	assert.ErrorIs(t, NotFound("verse %d", 3), ErrDocumentNotFound)
	assert.ErrorIs(t, Invalid("bad"), ErrInvalidInput)
	assert.ErrorIs(t, Internal("oops"), ErrInternal)
	assert.Equal(t, "verse 3", Message(NotFound("verse %d", 3)))
	assert.Equal(t, "plain", Message(errors.New("plain")))
}
