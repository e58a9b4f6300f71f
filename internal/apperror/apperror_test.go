package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		NotFound:     http.StatusNotFound,
		Conflict:     http.StatusConflict,
		Validation:   http.StatusBadRequest,
		Unauthorized: http.StatusUnauthorized,
		Forbidden:    http.StatusForbidden,
		Timeout:      499,
		Cancelled:    499,
		Upstream:     http.StatusInternalServerError,
		Internal:     http.StatusInternalServerError,
	}

	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), "kind %s", kind)
	}
}

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	base := New(NotFound, "application not found")
	wrapped := fmt.Errorf("context: %w", base)
	flattened := errors.New("context: " + base.Error())

	assert.Equal(t, NotFound, KindOf(base))
	assert.Equal(t, NotFound, KindOf(wrapped))
	assert.Equal(t, Internal, KindOf(flattened))
	assert.True(t, Is(base, NotFound))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("tag mismatch")
	err := Wrap(Crypto, "decrypt env value", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, Crypto, KindOf(err))
}
