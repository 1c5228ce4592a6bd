package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid input", NewInvalidInput("sale_amount", "must be positive"), http.StatusBadRequest},
		{"unknown tier", &UnknownTierError{Tier: "obsidian", Scheme: "direct"}, http.StatusBadRequest},
		{"not found", NewNotFound("sale", "s-1"), http.StatusNotFound},
		{"idempotency conflict", &IdempotencyConflictError{SaleID: "s-1"}, http.StatusConflict},
		{"already paid", &AlreadyPaidError{CommissionID: "c-1"}, http.StatusConflict},
		{"already terminal", &AlreadyTerminalError{RecordID: "e-1", Status: "released"}, http.StatusConflict},
		{"reconciliation", &ManualReconciliationRequiredError{SaleID: "s-1", Reason: "paid"}, http.StatusConflict},
		{"persistence", NewPersistenceError("insert sale", sql.ErrConnDone), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he, ok := ToHTTPError(fmt.Errorf("wrapped: %w", tt.err))
			require.True(t, ok)
			assert.Equal(t, tt.code, httperror.GetStatusCode(he))
		})
	}

	_, ok := ToHTTPError(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestClassification(t *testing.T) {
	assert.True(t, IsInputError(&UnknownTierError{Tier: "x"}))
	assert.False(t, IsInputError(&AlreadyPaidError{}))

	assert.True(t, IsInvariantError(&InvalidTransitionError{From: "paid", To: "approved"}))
	assert.True(t, IsInvariantError(&ManualReconciliationRequiredError{}))
	assert.False(t, IsInvariantError(NewPersistenceError("x", nil)))

	assert.True(t, IsTransient(NewPersistenceError("x", sql.ErrConnDone)))
	assert.True(t, IsTransient(&ConcurrentModificationError{RecordID: "r"}))
	assert.False(t, IsTransient(NewNotFound("sale", "s")))
}

func TestPersistenceErrorUnwrap(t *testing.T) {
	err := NewPersistenceError("load series", sql.ErrConnDone)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Equal(t, "failed to load series", err.Error())
}
