package utils

import (
	"testing"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string `json:"name" validate:"required"`
	Scheme string `json:"scheme" validate:"omitempty,oneof=network direct"`
	Units  int    `json:"unit_target" validate:"gt=0"`
}

func TestValidate(t *testing.T) {
	_, err := Validate(sample{Name: "villa", Units: 48})
	require.NoError(t, err)

	tests := []struct {
		name  string
		input sample
		field string
	}{
		{"missing name", sample{Units: 1}, "name"},
		{"bad scheme", sample{Name: "x", Scheme: "pyramid", Units: 1}, "scheme"},
		{"zero units", sample{Name: "x"}, "unit_target"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.input)
			var invalid *apperrors.InvalidInputError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.field, invalid.Field)
		})
	}
}

func TestValidateValue(t *testing.T) {
	assert.NoError(t, ValidateValue("6b1f1c4e-3f0a-4a43-9d6e-8e0e9c1d2f11", "commission_id", "uuid"))
	assert.True(t, apperrors.IsInputError(ValidateValue("nope", "commission_id", "uuid")))
}
