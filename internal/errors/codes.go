package errors

// ErrorCode represents a machine-readable error identifier for API clients.
type ErrorCode string

// Invoice lifecycle errors
const (
	// Caller is not the invoice creator / shop owner / an authorized principal
	ErrCodeAccessDenied ErrorCode = "access_denied"

	// Operation not valid for the invoice's current status
	// (e.g. verifying an already-paid invoice)
	ErrCodeInvalidState ErrorCode = "invalid_state"

	// The external transfer record failed one of the payment checks
	ErrCodeValidationFailed ErrorCode = "validation_failed"

	// Recipient mismatch - the transferred funds went to an account this hub
	// does not control and may require manual recovery
	ErrCodeFundsAtRisk ErrorCode = "funds_at_risk"
)

// Resource errors
const (
	ErrCodeNotFound         ErrorCode = "not_found"
	ErrCodeInvoiceNotFound  ErrorCode = "invoice_not_found"
	ErrCodeShopNotFound     ErrorCode = "shop_not_found"
	ErrCodeTokenNotFound    ErrorCode = "token_not_found"
	ErrCodeRatesNotFound    ErrorCode = "rates_not_found"
)

// Request validation errors
const (
	ErrCodeMissingField  ErrorCode = "missing_field"
	ErrCodeInvalidField  ErrorCode = "invalid_field"
	ErrCodeInvalidAmount ErrorCode = "invalid_amount"
)

// External service errors
const (
	// The ledger/oracle/archive call itself errored or timed out, as opposed
	// to succeeding and returning unusable data
	ErrCodeExternalCallFailed ErrorCode = "external_call_failed"

	ErrCodeInsufficientFunds ErrorCode = "insufficient_funds"
)

// Internal/system errors
const (
	ErrCodeInternalError ErrorCode = "internal_error"
	ErrCodeStorageError  ErrorCode = "storage_error"
	ErrCodeConfigError   ErrorCode = "config_error"
)

// IsRetryable returns whether an error code represents a retryable error.
// Only transient external failures are retryable; validation, authorization,
// and state errors are permanent for a given request.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeExternalCallFailed, ErrCodeStorageError:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrCodeMissingField,
		ErrCodeInvalidField,
		ErrCodeInvalidAmount:
		return 400

	case ErrCodeValidationFailed,
		ErrCodeFundsAtRisk,
		ErrCodeInsufficientFunds:
		return 402

	case ErrCodeAccessDenied:
		return 403

	case ErrCodeNotFound,
		ErrCodeInvoiceNotFound,
		ErrCodeShopNotFound,
		ErrCodeTokenNotFound,
		ErrCodeRatesNotFound:
		return 404

	case ErrCodeInvalidState:
		return 409

	case ErrCodeExternalCallFailed:
		return 502

	default:
		return 500
	}
}
