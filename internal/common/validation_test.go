package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestValidator_CollectsAllErrors(t *testing.T) {
	v := NewValidator().
		Field("invoiceText", "", Required).
		Field("originalExtraction", nil, Required).
		Field("amount", "12.x", Required, Decimal).
		Field("action", "delete", OneOf("learn", "confirm", "correct"))

	require.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 4)
	assert.Contains(t, v.ErrorMessage(), "field 'invoiceText' is required")
	assert.Contains(t, v.ErrorMessage(), "must be one of learn, confirm, correct")

	err := v.Err()
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, CodeValidation, KindOf(err))
}

func TestValidator_NoErrors(t *testing.T) {
	v := NewValidator().
		Field("id", "5b0a6f8e-6a43-4a8e-9d25-0ab6b3c0a1c2", Required, UUID).
		Field("amount", "1000.00", Decimal)
	assert.False(t, v.HasErrors())
	assert.NoError(t, v.Err())
	assert.NoError(t, ValidateAndReturnError(v))
}

func TestValidateAndReturnError_GRPC(t *testing.T) {
	v := NewValidator().Field("id", "not-a-uuid", UUID)
	err := ValidateAndReturnError(v)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.InvalidArgument, st.Code())
}

func TestRequired_Types(t *testing.T) {
	empty := "  "
	assert.NotNil(t, Required("f", &empty))
	assert.NotNil(t, Required("f", []byte{}))
	assert.NotNil(t, Required("f", map[string]any(nil)))
	assert.Nil(t, Required("f", map[string]any{}))
	assert.Nil(t, Required("f", 0))
}
