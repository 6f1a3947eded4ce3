package domainerror_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/bytepulseflow/pulsewave/pkg/domainerror"
	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := domainerror.NotFound("participant", "B")
	assert.Equal(t, "RESOURCE_NOT_FOUND: participant not found", err.Error())
	assert.Equal(t, "ResourceNotFound", err.Name())
	assert.Equal(t, "participant", err.Context["resource"])
}

func TestMarshalJSON(t *testing.T) {
	err := domainerror.RateLimited(1500)

	payload, marshalErr := json.Marshal(err)
	assert.NoError(t, marshalErr)

	var decoded map[string]any
	assert.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "RateLimitExceeded", decoded["name"])
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decoded["code"])
	assert.Equal(t, "rate limit exceeded", decoded["message"])
	assert.Equal(t, float64(1500), decoded["context"].(map[string]any)["retryAfterMs"])
}

func TestMarshalJSONOmitsEmptyContext(t *testing.T) {
	payload, err := json.Marshal(domainerror.Internal("boom"))
	assert.NoError(t, err)
	assert.NotContains(t, string(payload), "context")
}

func TestToDomainErrorPassesThrough(t *testing.T) {
	original := domainerror.Timeout("subscribe")
	assert.Same(t, original, domainerror.ToDomainError(original))

	// Also through wrapping.
	wrapped := fmt.Errorf("transport: %w", original)
	assert.Same(t, original, domainerror.ToDomainError(wrapped))
}

func TestToDomainErrorWrapsForeignErrors(t *testing.T) {
	foreign := errors.New("socket closed")

	converted := domainerror.ToDomainError(foreign)
	assert.Equal(t, domainerror.CodeInternal, converted.Code)
	assert.Equal(t, "socket closed", converted.Message)
	assert.Equal(t, "*errors.errorString", converted.Context["cause"])

	assert.Nil(t, domainerror.ToDomainError(nil))
}
