package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// HTTPErrorer is implemented by every settlement error.
type HTTPErrorer interface {
	error
	ToHTTPError() *httperror.HTTPError
}

// InvalidInputError rejects a malformed command before any state is touched.
type InvalidInputError struct {
	Field   string
	Message string
}

func NewInvalidInput(field, format string, args ...any) *InvalidInputError {
	return &InvalidInputError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *InvalidInputError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("field", e.Field)
}

type UnknownTierError struct {
	Tier   string
	Scheme string
}

func (e *UnknownTierError) Error() string {
	return fmt.Sprintf("unknown tier %q for %s commission scheme", e.Tier, e.Scheme)
}

func (e *UnknownTierError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("tier", e.Tier)
}

type UnknownSchemeError struct {
	Scheme string
}

func (e *UnknownSchemeError) Error() string {
	return fmt.Sprintf("no rate table for commission scheme %q", e.Scheme)
}

func (e *UnknownSchemeError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("scheme", e.Scheme)
}

type NotFoundError struct {
	Kind string
	ID   string
}

func NewNotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s does not exist", e.Kind, e.ID)
}

func (e *NotFoundError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusNotFound, e.Error())
}

// IdempotencyConflictError is returned when a sale_id is replayed with a different payload.
type IdempotencyConflictError struct {
	SaleID string
}

func (e *IdempotencyConflictError) Error() string {
	return fmt.Sprintf("sale %s was already processed with a different payload", e.SaleID)
}

func (e *IdempotencyConflictError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("sale_id", e.SaleID)
}

type InvalidTransitionError struct {
	RecordID string
	From     string
	To       string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("commission %s cannot move from %s to %s", e.RecordID, e.From, e.To)
}

func (e *InvalidTransitionError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).
		AddMetaValue("record_id", e.RecordID).
		AddMetaValue("from", e.From).
		AddMetaValue("to", e.To)
}

type AlreadyPaidError struct {
	CommissionID string
}

func (e *AlreadyPaidError) Error() string {
	return fmt.Sprintf("commission %s has already been paid", e.CommissionID)
}

func (e *AlreadyPaidError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("commission_id", e.CommissionID)
}

type AlreadyTerminalError struct {
	RecordID string
	Status   string
}

func (e *AlreadyTerminalError) Error() string {
	return fmt.Sprintf("escrow record %s is already %s", e.RecordID, e.Status)
}

func (e *AlreadyTerminalError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).
		AddMetaValue("record_id", e.RecordID).
		AddMetaValue("status", e.Status)
}

type ThresholdNotReachedError struct {
	SeriesID   string
	UnitsSold  int
	UnitTarget int
}

func (e *ThresholdNotReachedError) Error() string {
	return fmt.Sprintf("series %s has %d of %d units sold", e.SeriesID, e.UnitsSold, e.UnitTarget)
}

func (e *ThresholdNotReachedError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).
		AddMetaValue("series_id", e.SeriesID).
		AddMetaValue("units_sold", strconv.Itoa(e.UnitsSold)).
		AddMetaValue("unit_target", strconv.Itoa(e.UnitTarget))
}

// SeriesCapacityError guards units_sold <= unit_target.
type SeriesCapacityError struct {
	SeriesID  string
	Requested int
	Remaining int
}

func (e *SeriesCapacityError) Error() string {
	return fmt.Sprintf("series %s has %d units remaining, %d requested", e.SeriesID, e.Remaining, e.Requested)
}

func (e *SeriesCapacityError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).
		AddMetaValue("series_id", e.SeriesID).
		AddMetaValue("remaining", strconv.Itoa(e.Remaining))
}

// SeriesClosedError rejects escrow changes on a series that reached its unit target.
type SeriesClosedError struct {
	SeriesID string
}

func (e *SeriesClosedError) Error() string {
	return fmt.Sprintf("series %s has reached its unit target and is closed", e.SeriesID)
}

func (e *SeriesClosedError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("series_id", e.SeriesID)
}

// ConcurrentModificationError means a conditional update matched no row; retrying is safe.
type ConcurrentModificationError struct {
	RecordID string
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("record %s was modified concurrently", e.RecordID)
}

func (e *ConcurrentModificationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("record_id", e.RecordID)
}

// ManualReconciliationRequiredError stops a refund that would need a paid commission clawed back.
type ManualReconciliationRequiredError struct {
	SaleID        string
	Reason        string
	CommissionIDs []string
}

func (e *ManualReconciliationRequiredError) Error() string {
	return fmt.Sprintf("sale %s requires manual reconciliation: %s", e.SaleID, e.Reason)
}

func (e *ManualReconciliationRequiredError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).
		AddMetaValue("sale_id", e.SaleID).
		AddMetaValue("commission_ids", strings.Join(e.CommissionIDs, ","))
}

type PersistenceError struct {
	Op  string
	Err error
}

func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s", e.Op)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusServiceUnavailable, e.Error())
}

// ToHTTPError converts err to an HTTP error when it is, or wraps, a settlement error.
func ToHTTPError(err error) (*httperror.HTTPError, bool) {
	var he HTTPErrorer
	if stderrors.As(err, &he) {
		return he.ToHTTPError(), true
	}
	return nil, false
}

func is[T error](err error) bool {
	var target T
	return stderrors.As(err, &target)
}

func IsNotFound(err error) bool { return is[*NotFoundError](err) }

func IsPersistence(err error) bool { return is[*PersistenceError](err) }

func IsManualReconciliation(err error) bool { return is[*ManualReconciliationRequiredError](err) }

// IsInputError reports errors caused by the command itself; retrying will not help.
func IsInputError(err error) bool {
	return is[*InvalidInputError](err) ||
		is[*UnknownTierError](err) ||
		is[*UnknownSchemeError](err) ||
		is[*NotFoundError](err) ||
		is[*IdempotencyConflictError](err)
}

// IsInvariantError reports a rejected state transition.
func IsInvariantError(err error) bool {
	return is[*InvalidTransitionError](err) ||
		is[*AlreadyPaidError](err) ||
		is[*AlreadyTerminalError](err) ||
		is[*ThresholdNotReachedError](err) ||
		is[*SeriesCapacityError](err) ||
		is[*SeriesClosedError](err) ||
		is[*ManualReconciliationRequiredError](err)
}

// IsTransient reports failures that can be retried as-is.
func IsTransient(err error) bool {
	return is[*PersistenceError](err) || is[*ConcurrentModificationError](err)
}
