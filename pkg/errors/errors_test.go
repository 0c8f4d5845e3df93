package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTypes(t *testing.T) {
	t.Run("Should classify wrapped app errors", func(t *testing.T) {
		err := fmt.Errorf("lookup: %w", NewNotFound("program slug 'jazz'"))
		assert.True(t, IsNotFound(err))
		assert.False(t, IsValidation(err))
	})

	t.Run("Should preserve type when wrapping", func(t *testing.T) {
		cause := errors.New("title is required")
		err := Wrap(NewValidation("album", cause), "create album")
		assert.True(t, IsValidation(err))
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "create album: album")
	})

	t.Run("Should treat foreign errors as internal", func(t *testing.T) {
		err := Wrap(errors.New("boom"), "store put")
		assert.Equal(t, ErrorTypeInternal, TypeOf(err))
		assert.Nil(t, Wrap(nil, "nothing"))
		assert.False(t, IsNotFound(nil))
	})
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NewValidation("bad limit", nil), http.StatusBadRequest},
		{fmt.Errorf("get: %w", NewNotFound("post")), http.StatusNotFound},
		{errors.New("dynamodb unavailable"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}
