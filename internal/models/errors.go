package models

import "errors"

// Error kinds returned by every settlement operation. Callers match them with
// errors.Is; the wrapped message carries the operation-specific detail.
var (
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("not initialized")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrInvalidSigner      = errors.New("invalid signer")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidConfig      = errors.New("invalid config")
	ErrInvalidInput       = errors.New("invalid input")
	ErrAlreadyVerified    = errors.New("already verified")
	ErrAlreadyExists      = errors.New("already exists")
	ErrNotFound           = errors.New("not found")
	ErrTransferFailed     = errors.New("transfer failed")
	ErrPaymentTooEarly    = errors.New("payment too early")
	ErrPaused             = errors.New("contract paused")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrAlreadyInitialized, "already_initialized"},
	{ErrNotInitialized, "not_initialized"},
	{ErrNotAuthorized, "not_authorized"},
	{ErrInvalidSigner, "invalid_signer"},
	{ErrInvalidState, "invalid_state"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidConfig, "invalid_config"},
	{ErrInvalidInput, "invalid_input"},
	{ErrAlreadyVerified, "already_verified"},
	{ErrAlreadyExists, "already_exists"},
	{ErrNotFound, "not_found"},
	{ErrTransferFailed, "transfer_failed"},
	{ErrPaymentTooEarly, "payment_too_early"},
	{ErrPaused, "paused"},
}

// ErrorCode returns the stable code of the first error kind err wraps, or
// "internal" for anything outside the taxonomy.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}
