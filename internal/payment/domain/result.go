package domain

type VerificationStatus string

const (
	StatusVerified VerificationStatus = "verified"
	StatusRejected VerificationStatus = "rejected"
)

// Result is the terminal outcome of verifying one webhook delivery.
// Exactly one of Event or Reason is set.
type Result struct {
	Status VerificationStatus
	Event  *WebhookEvent
	Reason error
}

func Verified(event *WebhookEvent) Result {
	return Result{Status: StatusVerified, Event: event}
}

func Rejected(reason error) Result {
	return Result{Status: StatusRejected, Reason: reason}
}

func (r Result) IsVerified() bool {
	return r.Status == StatusVerified && r.Event != nil
}

// Err returns the rejection reason, or nil for a verified result.
func (r Result) Err() error {
	if r.IsVerified() {
		return nil
	}
	if r.Reason == nil {
		return ErrInvalidEvent
	}
	return r.Reason
}
