package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	cause := stderrors.New("connection reset")

	tests := []struct {
		name     string
		err      *Error
		wantType ErrorType
		wantCode int
	}{
		{"path invalid", PathInvalid("", "path cannot be empty"), ErrorTypePathInvalid, http.StatusBadRequest},
		{"branch not found", BranchNotFound("nope"), ErrorTypeBranchNotFound, http.StatusNotFound},
		{"remote", Remote("list tree", cause), ErrorTypeRemote, http.StatusBadGateway},
		{"commit", Commit("main", cause), ErrorTypeCommit, http.StatusBadGateway},
		{"validation", ValidationError("bad body", nil), ErrorTypeValidation, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("planning: %w", tt.err)
			assert.Equal(t, tt.wantType, TypeOf(wrapped))
			assert.True(t, Is(wrapped, tt.wantType))
			assert.Equal(t, tt.wantCode, StatusCode(wrapped))
		})
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := Commit("main", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
	assert.False(t, Is(err, ErrorTypeRemote))
}

func TestStatusCodeDefaults(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusCode(stderrors.New("plain")))
	assert.Equal(t, ErrorType(""), TypeOf(stderrors.New("plain")))
}
