package mailer

import (
	"context"
	"encoding/json"
	"log/slog"
)

// subscribeReason is fixed audit metadata recorded by the mailer on
// reactivation and subscription calls.
const subscribeReason = "Recipient filled out a form on website."

// Session carries the recipient state of a single reconciliation run:
// the recipient id and consents learned from lookups, and the property
// payload staged for the subscription call. A Session must not be shared
// between runs.
//
// Like the Connection facade, Session operations never propagate remote
// failures; they log and leave the run to continue with its next step.
type Session struct {
	rest      *Rest
	logger    *slog.Logger
	sourceURL string

	recipientID int
	consents    []Consent
	properties  map[string]string
}

// SetProperties stages the property payload for CreateAndJoin
func (s *Session) SetProperties(props map[string]string) {
	s.properties = props
}

// RecipientID returns the recipient id learned during this run, 0 if none
func (s *Session) RecipientID() int {
	return s.recipientID
}

// RecipientByEmail looks up an existing recipient by email address.
// A found recipient's id and consents are remembered for later calls in
// the run. Returns nil when no recipient matches or the call fails.
func (s *Session) RecipientByEmail(ctx context.Context, email string) *RecipientResult {
	return s.lookupRecipient(ctx, "getRecipientByEmail", email)
}

// RecipientBySMS looks up an existing recipient by SMS number
func (s *Session) RecipientBySMS(ctx context.Context, sms string) *RecipientResult {
	return s.lookupRecipient(ctx, "getRecipientBySMS", sms)
}

func (s *Session) lookupRecipient(ctx context.Context, method, identity string) *RecipientResult {
	res, err := s.rest.Call(ctx, method, []any{identity, true})
	if err != nil {
		// an unknown identity is the normal case for new subscribers
		s.logger.Debug("recipient lookup returned nothing", "method", method, "error", err)
		return nil
	}

	var result RecipientResult
	if err := json.Unmarshal(res, &result); err != nil {
		s.logger.Warn("decoding recipient lookup failed", "method", method, "error", err)
		return nil
	}

	if result.Recipient != nil && result.Recipient.ID.Int() > 0 {
		s.recipientID = result.Recipient.ID.Int()
	}
	if len(result.Consents) > 0 {
		s.consents = result.Consents
	}
	return &result
}

// Reactivate re-enables a previously disabled recipient. Only works with
// an email identity. Must run before CreateAndJoin: the update call alone
// does not flip the enabled flag back on in the remote system.
func (s *Session) Reactivate(ctx context.Context, email string, autoConfirm bool) {
	args := []any{
		email,
		"User",
		subscribeReason,
		autoConfirm,
		nil,
		s.sourceURL,
	}
	if _, err := s.rest.Call(ctx, "reactivateRecipient", args); err != nil {
		s.logger.Warn("reactivating recipient failed", "error", err)
	}
}

// CreateAndJoin creates or updates a recipient and joins it to the
// mailing list. When email or sms was not mapped on the form but the
// existing recipient carries one, the existing value is kept so identity
// is not lost on update. On success the learned recipient id is
// remembered for consent and welcome-mail calls.
func (s *Session) CreateAndJoin(ctx context.Context, existing *RecipientResult, email, sms string, listID int, autoConfirm bool) {
	if existing != nil && existing.Recipient != nil {
		if email == "" && existing.Recipient.Email != "" {
			email = existing.Recipient.Email
		}
		if sms == "" && existing.Recipient.SMS != "" {
			sms = existing.Recipient.SMS
		}
	}

	args := []any{
		nil,
		email,
		sms,
		s.properties,
		autoConfirm,
		subscribeReason,
		s.sourceURL,
		[]int{listID},
	}

	res, err := s.rest.Call(ctx, "createAndJoinRecipient", args)
	if err != nil {
		s.logger.Warn("creating recipient failed", "error", err)
		return
	}

	var id flexInt
	if err := json.Unmarshal(res, &id); err == nil && id.Int() > 0 {
		s.recipientID = id.Int()
	}
}

// AddConsent applies a consent to the recipient of this run. Idempotent:
// when the consents learned at lookup already contain a matching,
// non-revoked {consent_id, consent_revision} pair this is a no-op. A
// known recipient id is required.
func (s *Session) AddConsent(ctx context.Context, consent Consent) {
	for _, c := range s.consents {
		if c.ConsentID == consent.ConsentID && c.ConsentRevision == consent.ConsentRevision && !c.Revoked {
			return
		}
	}
	if s.recipientID == 0 || consent.ConsentID == 0 {
		return
	}

	args := []any{
		s.recipientID,
		consent.ConsentID,
		consent.ConsentRevision,
		consent.Language,
		"api",
		s.sourceURL,
	}
	if _, err := s.rest.Call(ctx, "addMemberConsent", args); err != nil {
		s.logger.Warn("adding recipient consent failed", "consent_id", consent.ConsentID, "error", err)
		return
	}

	// remember the applied consent so a repeat within the run is a no-op
	s.consents = append(s.consents, consent)
}

// SendWelcomeMail dispatches the site's welcome or confirmation mail to
// the recipient of this run. Fire-and-forget.
func (s *Session) SendWelcomeMail(ctx context.Context, domain string) {
	if s.recipientID == 0 {
		return
	}
	if _, err := s.rest.Call(ctx, "sendWelcomeMail", []any{s.recipientID, domain}); err != nil {
		s.logger.Warn("sending welcome mail failed", "domain", domain, "error", err)
	}
}
