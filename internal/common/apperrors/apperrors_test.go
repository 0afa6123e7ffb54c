package apperrors

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorFamily(t *testing.T) {
	base := New("db error")
	child := base.New("not found")
	grandchild := child.New("version not found")

	assert.True(t, errors.Is(child, base))
	assert.True(t, errors.Is(grandchild, base))
	assert.True(t, errors.Is(grandchild, child))
	assert.False(t, errors.Is(base, child))
}

func TestMsgDoesNotMutateSentinel(t *testing.T) {
	base := New("validation error")
	derived := base.Msg("name is not slug safe")

	assert.Equal(t, "validation error", base.Error())
	assert.Equal(t, "name is not slug safe", derived.Error())
	assert.True(t, errors.Is(derived, base))
}

func TestWrappedErrors(t *testing.T) {
	cause := pkgerrors.New("connection refused")
	base := New("transport error")
	wrapped := base.Err(cause)

	assert.True(t, errors.Is(wrapped, cause))
	assert.True(t, errors.Is(wrapped, base))
	assert.Len(t, wrapped.Unwrap(), 1)
}

func TestStatusCodeInheritance(t *testing.T) {
	base := New("db error").SetStatusCode(500)
	child := base.New("already exists").SetStatusCode(409)

	assert.Equal(t, 409, child.StatusCode())
	assert.Equal(t, 409, child.Msg("user already exists").StatusCode())
	assert.Equal(t, 500, base.StatusCode())
}
