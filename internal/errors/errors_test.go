package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetServiceError(t *testing.T) {
	base := NotFound("wish")
	wrapped := fmt.Errorf("lookup: %w", base)

	se := GetServiceError(wrapped)
	require.NotNil(t, se)
	assert.Equal(t, CodeNotFound, se.Code)
	assert.Equal(t, http.StatusNotFound, se.HTTPStatus)

	assert.Nil(t, GetServiceError(nil))
	assert.Nil(t, GetServiceError(stderrors.New("plain")))
}

func TestServiceErrorUnwrap(t *testing.T) {
	cause := stderrors.New("rpc down")
	err := Unavailable("treasury offline", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "rpc down")
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(stderrors.New("x")))
}

func TestWithDetails(t *testing.T) {
	err := RateLimitExceeded(10, "1s")
	assert.Equal(t, 10, err.Details["limit"])
	assert.Equal(t, "1s", err.Details["window"])

	err = InvalidFormat("walletAddress", "not base58")
	assert.Equal(t, "walletAddress", err.Details["field"])
}
