// Package lifecycle holds the claim state machine: the transition
// table, role requirements and pure guards. It performs no I/O; the
// usecase layer loads the claim, calls Validate and applies the
// transition transactionally.
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/internal/lifecycle
package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
)

// DiscardAge is how old a draft must be before the sweep may discard it.
const DiscardAge = 14 * 24 * time.Hour

// Actor is whoever requests a transition. System actors are scheduled
// tasks; they carry the zero UUID.
type Actor struct {
	ID     uuid.UUID
	Role   domain.Role
	System bool
}

// SystemActor is the identity scheduled tasks act under.
func SystemActor() Actor {
	return Actor{System: true}
}

// Request is one transition attempt against a loaded claim.
type Request struct {
	Claim  *domain.Claim
	To     domain.ClaimStatus
	Actor  Actor
	Reason string
	Now    time.Time
}

// rule defines who may perform a transition and which pure guard must
// hold. Transitions absent from the table do not exist.
type rule struct {
	admin    bool
	customer bool
	system   bool
	guard    func(req Request) *apperrors.AppError
}

var table = map[domain.ClaimStatus]map[domain.ClaimStatus]rule{
	domain.ClaimStatusDraft: {
		domain.ClaimStatusSubmitted: {customer: true, admin: true, guard: guardSubmission},
		domain.ClaimStatusDiscarded: {system: true, guard: guardDiscardAge},
	},
	domain.ClaimStatusSubmitted: {
		domain.ClaimStatusUnderReview: {admin: true},
	},
	domain.ClaimStatusUnderReview: {
		domain.ClaimStatusApproved: {admin: true, guard: guardAmount},
		domain.ClaimStatusRejected: {admin: true, guard: guardRejectionReason},
	},
	domain.ClaimStatusApproved: {
		domain.ClaimStatusPaid:     {admin: true},
		domain.ClaimStatusRejected: {admin: true, guard: guardRejectionReason},
	},
	domain.ClaimStatusRejected: {
		domain.ClaimStatusUnderReview: {admin: true, guard: guardReopenReason},
	},
	domain.ClaimStatusPaid: {
		domain.ClaimStatusClosed: {admin: true, system: true},
	},
}

// Allowed reports whether the transition exists in the table.
// Self-transitions never do.
func Allowed(from, to domain.ClaimStatus) bool {
	_, ok := table[from][to]
	return ok
}

// Targets lists the states reachable from a given status, in no
// particular order.
func Targets(from domain.ClaimStatus) []domain.ClaimStatus {
	row := table[from]
	out := make([]domain.ClaimStatus, 0, len(row))
	for to := range row {
		out = append(out, to)
	}
	return out
}

// Validate checks table membership, actor authority and the pure
// guards. It does not check optimistic-lock versions or uniqueness;
// those belong to the transaction that applies the transition.
func Validate(req Request) error {
	r, ok := table[req.Claim.Status][req.To]
	if !ok {
		return apperrors.ErrInvalidTransition(string(req.Claim.Status), string(req.To))
	}

	switch {
	case req.Actor.System:
		if !r.system {
			return apperrors.Forbidden(apperrors.CodeInvalidTransition,
				"transition is not available to scheduled tasks")
		}
	case req.Actor.Role.Admin():
		if !r.admin {
			return apperrors.Forbidden(apperrors.CodeInvalidTransition,
				"transition is not available to admins")
		}
	default:
		if !r.customer {
			return apperrors.Forbidden(apperrors.CodeInvalidTransition,
				"transition is not available to customers")
		}
	}

	if r.guard != nil {
		if err := r.guard(req); err != nil {
			return err
		}
	}
	return nil
}

// guardSubmission checks the draft is complete enough to enter the
// review queue. The duplicate-submission check is intentionally not
// here: it needs the database and is enforced in the same transaction
// as the status flip.
func guardSubmission(req Request) *apperrors.AppError {
	if fields := missingSubmissionFields(req.Claim); len(fields) > 0 {
		return apperrors.Validation(apperrors.CodeMissingRequiredFields,
			"claim is missing required fields").WithFieldErrors(fields)
	}
	if !req.Claim.ConsentsCaptured() {
		return apperrors.Validation(apperrors.CodeConsentMissing,
			"terms and privacy consent must both be captured before submission")
	}
	return nil
}

func missingSubmissionFields(c *domain.Claim) []apperrors.FieldError {
	var out []apperrors.FieldError
	missing := func(field string) {
		out = append(out, apperrors.FieldError{Field: field, Code: "required"})
	}

	if c.FlightNumber == "" {
		missing("flightNumber")
	}
	if c.FlightDate.IsZero() {
		missing("flightDate")
	}
	if c.Airline == "" {
		missing("airline")
	}
	if c.DepartureAirport == "" {
		missing("departureAirport")
	}
	if c.ArrivalAirport == "" {
		missing("arrivalAirport")
	}
	if c.ScheduledDeparture == nil {
		missing("scheduledDeparture")
	}
	if c.ScheduledArrival == nil {
		missing("scheduledArrival")
	}
	if !c.IncidentType.Valid() {
		out = append(out, apperrors.FieldError{Field: "incidentType", Code: "invalid"})
	}
	return out
}

func guardDiscardAge(req Request) *apperrors.AppError {
	if req.Now.Sub(req.Claim.CreatedAt) <= DiscardAge {
		return apperrors.Conflict(apperrors.CodeInvalidTransition,
			"draft is still inside the discard window")
	}
	return nil
}

// guardAmount requires the compensation amount to be staged on the
// claim before approval. The usecase runs the eligibility engine and
// sets the amount in the same transaction that applies this transition.
func guardAmount(req Request) *apperrors.AppError {
	if req.Claim.CompensationAmount == nil || !req.Claim.CompensationAmount.IsPositive() {
		return apperrors.Conflict(apperrors.CodeAmountNotPositive,
			"approval requires a positive compensation amount")
	}
	return nil
}

func guardRejectionReason(req Request) *apperrors.AppError {
	if req.Reason == "" {
		return apperrors.Validation(apperrors.CodeRejectionReasonMissing,
			"rejection requires a reason")
	}
	return nil
}

func guardReopenReason(req Request) *apperrors.AppError {
	if req.Reason == "" {
		return apperrors.Validation(apperrors.CodeReasonRequired,
			"re-opening a rejected claim requires a reason")
	}
	return nil
}
