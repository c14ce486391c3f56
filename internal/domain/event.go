package domain

// EventType names a notification-worthy moment in a claim's or
// account's life. Task payloads and the processed-events dedupe table
// key off these values, so they are wire-stable.
type EventType string

const (
	// Lifecycle transitions that notify the claimant.
	EventClaimSubmitted EventType = "claim.submitted"
	EventClaimApproved  EventType = "claim.approved"
	EventClaimRejected  EventType = "claim.rejected"
	EventClaimPaid      EventType = "claim.paid"
	EventClaimClosed    EventType = "claim.closed"

	// Draft nudges from the scheduled sweep.
	EventDraftReminder  EventType = "draft.reminder"
	EventDraftDiscarded EventType = "draft.discarded"

	// Account mail carrying a single-use link.
	EventMagicLink     EventType = "auth.magic_link"
	EventPasswordReset EventType = "auth.password_reset"
	EventEmailVerify   EventType = "auth.email_verify"

	// Document review outcome that needs claimant action.
	EventFileRejected EventType = "file.rejected"
)

// Valid reports whether e is a known event type.
func (e EventType) Valid() bool {
	switch e {
	case EventClaimSubmitted, EventClaimApproved, EventClaimRejected,
		EventClaimPaid, EventClaimClosed,
		EventDraftReminder, EventDraftDiscarded,
		EventMagicLink, EventPasswordReset, EventEmailVerify,
		EventFileRejected:
		return true
	}
	return false
}

// ForStatus maps a lifecycle transition target to its claimant-facing
// event, or "" when the transition sends no mail. under_review is an
// internal step and discarded is announced by the sweep itself.
func ForStatus(to ClaimStatus) EventType {
	switch to {
	case ClaimStatusSubmitted:
		return EventClaimSubmitted
	case ClaimStatusApproved:
		return EventClaimApproved
	case ClaimStatusRejected:
		return EventClaimRejected
	case ClaimStatusPaid:
		return EventClaimPaid
	case ClaimStatusClosed:
		return EventClaimClosed
	}
	return ""
}
