package notification

import (
	"fmt"
	"net/url"
	"strings"

	"aeroclaim.io/aeroclaim/internal/domain"
)

// EventContext carries the entities a mail is rendered from. Claim,
// File and Token are set only for the events that reference them.
type EventContext struct {
	Customer *domain.Customer
	Claim    *domain.Claim
	File     *domain.ClaimFile

	// Token is the raw single-use token for link-carrying events.
	Token  string
	Reason string
}

// Composer renders plain-text mail for lifecycle and account events.
type Composer struct {
	baseURL string
}

// NewComposer creates a composer. baseURL is the public origin links
// are built against, without a trailing slash.
func NewComposer(baseURL string) *Composer {
	return &Composer{baseURL: strings.TrimRight(baseURL, "/")}
}

// Compose renders the message for an event. Unknown events and missing
// required context are hard errors; the dispatcher treats them as
// permanent failures.
func (c *Composer) Compose(event domain.EventType, ec EventContext) (Message, error) {
	if ec.Customer == nil {
		return Message{}, fmt.Errorf("compose %s: customer is required", event)
	}

	msg := Message{
		To:     ec.Customer.Email,
		ToName: strings.TrimSpace(ec.Customer.FirstName + " " + ec.Customer.LastName),
	}
	greeting := ec.Customer.FirstName
	if greeting == "" {
		greeting = "there"
	}

	switch event {
	case domain.EventClaimSubmitted:
		if ec.Claim == nil {
			return Message{}, fmt.Errorf("compose %s: claim is required", event)
		}
		msg.Subject = fmt.Sprintf("We received your claim for flight %s", ec.Claim.FlightNumber)
		msg.Body = fmt.Sprintf(
			"Hello %s,\n\nYour compensation claim for flight %s on %s has been submitted and will be reviewed by our team.\n\nClaim reference: %s\n\nYou will hear from us as soon as the review is complete.\n",
			greeting, ec.Claim.FlightNumber, ec.Claim.FlightDate.Format("2 January 2006"), ec.Claim.ID)

	case domain.EventClaimApproved:
		if ec.Claim == nil {
			return Message{}, fmt.Errorf("compose %s: claim is required", event)
		}
		amount := "the assessed amount"
		if ec.Claim.CompensationAmount != nil {
			amount = fmt.Sprintf("%s %s", ec.Claim.CompensationAmount.StringFixed(2), ec.Claim.CompensationCurrency)
		}
		msg.Subject = fmt.Sprintf("Your claim for flight %s has been approved", ec.Claim.FlightNumber)
		msg.Body = fmt.Sprintf(
			"Hello %s,\n\nGood news: your claim for flight %s has been approved for %s.\n\nPayment will be arranged shortly.\n\nClaim reference: %s\n",
			greeting, ec.Claim.FlightNumber, amount, ec.Claim.ID)

	case domain.EventClaimRejected:
		if ec.Claim == nil {
			return Message{}, fmt.Errorf("compose %s: claim is required", event)
		}
		msg.Subject = fmt.Sprintf("Update on your claim for flight %s", ec.Claim.FlightNumber)
		msg.Body = fmt.Sprintf(
			"Hello %s,\n\nAfter review, your claim for flight %s could not be approved.\n\nReason: %s\n\nClaim reference: %s\n\nIf you believe this is a mistake you can reply to this mail with additional evidence.\n",
			greeting, ec.Claim.FlightNumber, orUnspecified(ec.Reason), ec.Claim.ID)

	case domain.EventClaimPaid:
		if ec.Claim == nil {
			return Message{}, fmt.Errorf("compose %s: claim is required", event)
		}
		amount := ""
		if ec.Claim.CompensationAmount != nil {
			amount = fmt.Sprintf(" of %s %s", ec.Claim.CompensationAmount.StringFixed(2), ec.Claim.CompensationCurrency)
		}
		msg.Subject = fmt.Sprintf("Compensation paid for flight %s", ec.Claim.FlightNumber)
		msg.Body = fmt.Sprintf(
			"Hello %s,\n\nThe compensation%s for your claim on flight %s has been paid out.\n\nClaim reference: %s\n",
			greeting, amount, ec.Claim.FlightNumber, ec.Claim.ID)

	case domain.EventClaimClosed:
		if ec.Claim == nil {
			return Message{}, fmt.Errorf("compose %s: claim is required", event)
		}
		msg.Subject = fmt.Sprintf("Your claim for flight %s is closed", ec.Claim.FlightNumber)
		msg.Body = fmt.Sprintf(
			"Hello %s,\n\nYour claim for flight %s has been closed. Thank you for using AeroClaim.\n\nClaim reference: %s\n",
			greeting, ec.Claim.FlightNumber, ec.Claim.ID)

	case domain.EventDraftReminder:
		if ec.Claim == nil {
			return Message{}, fmt.Errorf("compose %s: claim is required", event)
		}
		msg.Subject = "Your compensation claim is waiting"
		msg.Body = fmt.Sprintf(
			"Hello %s,\n\nYou started a claim for flight %s but have not submitted it yet. Drafts are kept for 14 days.\n\nPick up where you left off: %s/claims/%s\n",
			greeting, ec.Claim.FlightNumber, c.baseURL, ec.Claim.ID)

	case domain.EventDraftDiscarded:
		if ec.Claim == nil {
			return Message{}, fmt.Errorf("compose %s: claim is required", event)
		}
		msg.Subject = "Your draft claim has expired"
		msg.Body = fmt.Sprintf(
			"Hello %s,\n\nYour unsubmitted claim for flight %s was older than 14 days and has been discarded, along with any uploaded documents.\n\nYou can start a new claim at any time: %s/claims\n",
			greeting, ec.Claim.FlightNumber, c.baseURL)

	case domain.EventMagicLink:
		if ec.Token == "" {
			return Message{}, fmt.Errorf("compose %s: token is required", event)
		}
		link := fmt.Sprintf("%s/auth/magic-link/verify/%s", c.baseURL, url.PathEscape(ec.Token))
		msg.Subject = "Your sign-in link"
		msg.Body = fmt.Sprintf(
			"Hello %s,\n\nUse the link below to sign in. It works once and expires in 48 hours.\n\n%s\n\nIf you did not request this, you can ignore this mail.\n",
			greeting, link)

	case domain.EventPasswordReset:
		if ec.Token == "" {
			return Message{}, fmt.Errorf("compose %s: token is required", event)
		}
		link := fmt.Sprintf("%s/auth/password/reset?token=%s", c.baseURL, url.QueryEscape(ec.Token))
		msg.Subject = "Reset your password"
		msg.Body = fmt.Sprintf(
			"Hello %s,\n\nA password reset was requested for your account. The link below works once and expires in 1 hour.\n\n%s\n\nIf you did not request this, your password is unchanged and you can ignore this mail.\n",
			greeting, link)

	case domain.EventEmailVerify:
		if ec.Token == "" {
			return Message{}, fmt.Errorf("compose %s: token is required", event)
		}
		link := fmt.Sprintf("%s/auth/email/verify?token=%s", c.baseURL, url.QueryEscape(ec.Token))
		msg.Subject = "Confirm your email address"
		msg.Body = fmt.Sprintf(
			"Hello %s,\n\nPlease confirm your email address using the link below. It expires in 48 hours.\n\n%s\n",
			greeting, link)

	case domain.EventFileRejected:
		if ec.Claim == nil || ec.File == nil {
			return Message{}, fmt.Errorf("compose %s: claim and file are required", event)
		}
		msg.Subject = fmt.Sprintf("A document on your claim for flight %s needs attention", ec.Claim.FlightNumber)
		msg.Body = fmt.Sprintf(
			"Hello %s,\n\nThe document %q on your claim for flight %s was rejected during review.\n\nReason: %s\n\nPlease upload a replacement: %s/claims/%s\n",
			greeting, ec.File.Filename, ec.Claim.FlightNumber, orUnspecified(ec.Reason), c.baseURL, ec.Claim.ID)

	default:
		return Message{}, fmt.Errorf("no mail template for event %q", event)
	}

	return msg, nil
}

func orUnspecified(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return "not specified"
	}
	return reason
}
