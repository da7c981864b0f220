package models

import "time"

// FailureReason is the enumerated reason code attached to failed attempts
type FailureReason string

const (
	// ReasonNoEmailInput - no strategy located a fillable email field
	ReasonNoEmailInput FailureReason = "no_email_input_found"
	// ReasonNoSubmitButton - email filled but no actionable submit affordance
	// found; the Enter-key fallback is attempted before this is reported
	ReasonNoSubmitButton FailureReason = "no_submit_button_found"
	// ReasonUnconfirmed - a submit action occurred but neither URL nor content
	// heuristics confirmed success. Deliberately distinct from success: many
	// forms silently no-op on invalid input.
	ReasonUnconfirmed FailureReason = "form_clicked_but_not_confirmed"
	// ReasonNavigationFailed - page failed to load within timeout or the
	// connection was refused
	ReasonNavigationFailed FailureReason = "navigation_failed"
	// ReasonSessionCreation - provider rejected or timed out on session
	// creation, commonly a rate-limit 429
	ReasonSessionCreation FailureReason = "session_creation_failed"
	// ReasonProcessingError - uncaught error during any stage
	ReasonProcessingError FailureReason = "processing_error"
)

// AttemptResult is the terminal outcome record for one domain. Immutable
// once created; appended to the success or failure log.
type AttemptResult struct {
	Domain    string        `json:"domain"`
	Email     string        `json:"email"`
	Success   bool          `json:"success"`
	Reason    FailureReason `json:"reason,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	SessionID string        `json:"sessionId"`
	Attempts  []string      `json:"attempts,omitempty"` // Strategy trace strings, the only post-hoc diagnostic signal
}
