package domain

import "errors"

var (
	ErrMissingSignature          = errors.New("missing_signature")
	ErrInvalidSignatureHeader    = errors.New("invalid_signature_header")
	ErrSignatureMismatch         = errors.New("signature_mismatch")
	ErrTimestampOutsideTolerance = errors.New("timestamp_outside_tolerance")
	ErrInvalidPayload            = errors.New("invalid_payload")
	ErrInvalidEvent              = errors.New("invalid_event")
	ErrInvalidConfig             = errors.New("invalid_config")
)

var reasonCodes = []error{
	ErrMissingSignature,
	ErrInvalidSignatureHeader,
	ErrSignatureMismatch,
	ErrTimestampOutsideTolerance,
	ErrInvalidPayload,
	ErrInvalidEvent,
	ErrInvalidConfig,
}

// ReasonCode returns the snake_case code of a rejection reason, or "" when err
// is not one.
func ReasonCode(err error) string {
	for _, code := range reasonCodes {
		if errors.Is(err, code) {
			return code.Error()
		}
	}
	return ""
}

// ReasonMessage returns the human readable text sent back to the webhook sender.
func ReasonMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingSignature):
		return "missing Stripe-Signature header"
	case errors.Is(err, ErrInvalidSignatureHeader):
		return "malformed Stripe-Signature header"
	case errors.Is(err, ErrSignatureMismatch):
		return "no signatures found matching the expected signature for payload"
	case errors.Is(err, ErrTimestampOutsideTolerance):
		return "timestamp outside the tolerance zone"
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrInvalidEvent):
		return "invalid webhook payload"
	default:
		return "webhook verification failed"
	}
}
