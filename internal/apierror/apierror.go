// Package apierror provides standardized error structures for the API.
// All errors returned to clients go through this package to ensure consistency
// and to prevent leaking internal details (stack traces, DB errors, etc.).
//
// Transition errors carry a machine-readable Code so that clients (and retry
// logic) can branch without parsing text.
package apierror

import "net/http"

// Machine-readable error codes returned in the "code" field.
const (
	CodeTankOverflow     = "TANK_OVERFLOW"
	CodeTankOccupied     = "TANK_OCCUPIED"
	CodeTanksUnavailable = "TANKS_UNAVAILABLE"
	CodeBatchNotFound    = "BATCH_NOT_FOUND"
	CodeLotNotFound      = "LOT_NOT_FOUND"
	CodeTankNotFound     = "TANK_NOT_FOUND"
	CodeValidation       = "VALIDATION_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
)

// Kind classifies an APIError for HTTP status mapping and retry semantics.
type Kind int

const (
	KindValidation Kind = iota // malformed or contradictory request
	KindNotFound               // referenced entity does not exist
	KindConflict               // finite-resource constraint violated
	KindInternal               // unexpected persistence failure
)

// APIError is the canonical error envelope for all 4xx/5xx responses.
// Services return it directly; handlers serialize it as-is.
type APIError struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
	Kind   Kind   `json:"-"`
}

func (e *APIError) Error() string { return e.Detail }

// HTTPStatus maps the error kind to a response status code.
func (e *APIError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func New(msg string) *APIError {
	return &APIError{Code: CodeInternal, Detail: msg, Kind: KindInternal}
}

func NewValidation(msg string) *APIError {
	return &APIError{Code: CodeValidation, Detail: msg, Kind: KindValidation}
}

func NewNotFound(code, msg string) *APIError {
	return &APIError{Code: code, Detail: msg, Kind: KindNotFound}
}

// NewConflict builds a resource-conflict error (overflow, occupancy, ...).
// Conflicts are always detected before the first mutating write.
func NewConflict(code, msg string) *APIError {
	return &APIError{Code: code, Detail: msg, Kind: KindConflict}
}

// FieldsError wraps multiple field-level validation errors from request binding.
type FieldsError struct {
	Code   string            `json:"code"`
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewFields(fields map[string]string) *FieldsError {
	return &FieldsError{Code: CodeValidation, Detail: "validation failed", Fields: fields}
}
