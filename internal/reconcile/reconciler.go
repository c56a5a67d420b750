// Package reconcile decides, for one submitted form entry, whether and
// how a marketing recipient is created or updated on the mailer. Each
// run is a single synchronous pass: an ordered precondition chain that
// aborts before any remote mutation, followed by a best-effort main flow
// in which a failed remote sub-step is logged and the run continues.
// There is no rollback; repeat submissions reconcile the remainder.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nordmail/formsync/internal/form"
	"github.com/nordmail/formsync/internal/mailer"
	"github.com/nordmail/formsync/internal/mapper"
	"github.com/nordmail/formsync/internal/metrics"
)

// Abort reasons, one per precondition
const (
	ReasonDisabled       = "integration not enabled"
	ReasonNoMailerField  = "mailer field not found on form"
	ReasonOptInUnlabeled = "opt-in enabled without label or consent"
	ReasonNoLawfulBasis  = "no consent selected and opt-in disabled"
	ReasonFieldNotPosted = "mailer field was not submitted"
	ReasonNoSiteData     = "site data could not be fetched"
	ReasonNoMailingList  = "mailing list not selected"
	ReasonNoIdentity     = "no email or sms value submitted"
)

// AbortError is a precondition failure. The run stopped before mutating
// any remote state; the reason is observability-only and never surfaces
// to the submitter.
type AbortError struct {
	Reason string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("reconciliation aborted: %s", e.Reason)
}

func abort(reason string) error {
	return &AbortError{Reason: reason}
}

// CustomerSource provides the account-level mailer settings.
// *mailer.Connection satisfies it.
type CustomerSource interface {
	Customer(ctx context.Context) *mailer.Customer
}

// SnapshotSource resolves a site domain to its current snapshot.
// *sitecache.Cache satisfies it.
type SnapshotSource interface {
	Snapshot(ctx context.Context, domain string) *mailer.Site
}

// Session is the per-run recipient surface of the mailer facade.
// *mailer.Session satisfies it.
type Session interface {
	SetProperties(props map[string]string)
	RecipientByEmail(ctx context.Context, email string) *mailer.RecipientResult
	RecipientBySMS(ctx context.Context, sms string) *mailer.RecipientResult
	Reactivate(ctx context.Context, email string, autoConfirm bool)
	CreateAndJoin(ctx context.Context, existing *mailer.RecipientResult, email, sms string, listID int, autoConfirm bool)
	AddConsent(ctx context.Context, consent mailer.Consent)
	SendWelcomeMail(ctx context.Context, domain string)
}

// Options configures a Reconciler
type Options struct {
	Customer  CustomerSource
	Snapshots SnapshotSource
	Sessions  func(sourceURL string) Session
	Logger    *slog.Logger
}

// Reconciler runs subscription reconciliation for submitted entries
type Reconciler struct {
	customer  CustomerSource
	snapshots SnapshotSource
	sessions  func(sourceURL string) Session
	logger    *slog.Logger
}

// New creates a Reconciler
func New(opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		customer:  opts.Customer,
		snapshots: opts.Snapshots,
		sessions:  opts.Sessions,
		logger:    logger,
	}
}

// plan is the outcome of a successful precondition chain: everything the
// main flow needs, resolved up front so auto-confirm and identity are
// computed once and used consistently.
type plan struct {
	formID    string
	site      *mailer.Site
	listID    int
	consent   *mailer.Consent
	fieldMap  map[string]string
	entry     form.Entry
	email     string
	sms       string
	sourceURL string
}

// Run reconciles one submitted entry. The returned error is an
// *AbortError for precondition failures; it exists for logging and
// metrics only and must never be surfaced to the submitter.
func (r *Reconciler) Run(ctx context.Context, f *form.Form, entry form.Entry, sourceURL string) error {
	p, err := r.plan(ctx, f, entry, sourceURL)
	if err != nil {
		var reason string
		if ae, ok := err.(*AbortError); ok {
			reason = ae.Reason
		}
		metrics.IncRunsAborted(reason)
		r.logger.Warn("subscription skipped", "form", f.ID, "reason", reason)
		return err
	}

	r.execute(ctx, p)
	return nil
}

// plan validates the preconditions in order and resolves the run inputs.
// The first unmet precondition aborts; no remote recipient state is read
// or written here (the site snapshot fetch is the only remote access,
// and it is read-only).
func (r *Reconciler) plan(ctx context.Context, f *form.Form, entry form.Entry, sourceURL string) (*plan, error) {
	if !f.Integration.Enabled {
		return nil, abort(ReasonDisabled)
	}

	mf := f.IntegrationField()
	if mf == nil {
		return nil, abort(ReasonNoMailerField)
	}
	consentID := f.Integration.Consent
	if mf.OptIn && mf.Label == "" && consentID == 0 {
		// an unlabeled opt-in without consent has no text to agree to
		return nil, abort(ReasonOptInUnlabeled)
	}
	if consentID == 0 && !mf.OptIn {
		return nil, abort(ReasonNoLawfulBasis)
	}

	if entry.Value(mf.ID) == "" {
		return nil, abort(ReasonFieldNotPosted)
	}

	site := r.snapshots.Snapshot(ctx, f.Integration.Site)
	if site == nil {
		return nil, abort(ReasonNoSiteData)
	}

	// a list configured once but since removed from the site is treated
	// as unset
	listID := f.Integration.MailingList
	if listID != 0 && !site.HasList(listID) {
		listID = 0
	}
	if listID == 0 {
		return nil, abort(ReasonNoMailingList)
	}

	email := entry.Value(mf.Properties["email"])
	sms := entry.Value(mf.Properties["sms"])
	if email == "" && sms == "" {
		return nil, abort(ReasonNoIdentity)
	}

	if sourceURL == "" {
		sourceURL = f.SourceURL
	}

	return &plan{
		formID:    f.ID,
		site:      site,
		listID:    listID,
		consent:   site.ConsentByID(consentID),
		fieldMap:  mf.Properties,
		entry:     entry,
		email:     email,
		sms:       sms,
		sourceURL: sourceURL,
	}, nil
}

// execute performs the remote mutation sequence. Every step is
// best-effort: the facade swallows remote failures, so a broken step
// curtails only its own effect.
func (r *Reconciler) execute(ctx context.Context, p *plan) {
	cust := r.customer.Customer(ctx)
	needsConfirmation := cust != nil && cust.RegistrationNeedsConfirmation

	// Auto-confirm whenever double opt-in cannot apply: the account does
	// not require confirmation, there is no email to confirm through, or
	// the site has no welcome mail flow. Computed once, used for
	// reactivation, subscription and the welcome-mail decision alike.
	autoConfirm := !needsConfirmation || p.email == "" || !p.site.Welcome

	sess := r.sessions(p.sourceURL)
	sess.SetProperties(mapper.Map(p.fieldMap, p.entry, p.site.Properties))

	var existing *mailer.RecipientResult
	if p.email != "" {
		existing = sess.RecipientByEmail(ctx, p.email)
	} else {
		existing = sess.RecipientBySMS(ctx, p.sms)
	}

	wasEnabled := existing != nil && existing.Recipient != nil && existing.Recipient.Enabled

	// A disabled recipient must be re-enabled before the join-and-update
	// call; the update alone does not flip the flag remotely. Only
	// possible with an email identity.
	if existing != nil && existing.Recipient != nil && !existing.Recipient.Enabled && p.email != "" {
		sess.Reactivate(ctx, p.email, autoConfirm)
	}

	sess.CreateAndJoin(ctx, existing, p.email, p.sms, p.listID, autoConfirm)
	metrics.IncRecipientsSynced(p.formID)

	if p.consent != nil {
		sess.AddConsent(ctx, *p.consent)
	}

	// Welcome mail goes out for new, previously disabled, or
	// confirmation-requiring subscriptions, and only over email on sites
	// with a welcome-mail flow.
	if (!wasEnabled || needsConfirmation) && p.site.Welcome && p.email != "" {
		sess.SendWelcomeMail(ctx, p.site.Domain)
		metrics.IncWelcomeMails()
	}

	r.logger.Info("subscription reconciled",
		"form", p.formID,
		"site", p.site.Domain,
		"list", p.listID,
		"existing", existing != nil && existing.Recipient != nil,
		"auto_confirm", autoConfirm,
	)
}
