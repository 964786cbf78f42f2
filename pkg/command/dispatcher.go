package command

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/harborgate/orgd/pkg/audit"
	"github.com/harborgate/orgd/pkg/auth"
	"github.com/harborgate/orgd/pkg/billing"
	"github.com/harborgate/orgd/pkg/config"
	"github.com/harborgate/orgd/pkg/importer"
	"github.com/harborgate/orgd/pkg/license"
	"github.com/harborgate/orgd/pkg/observability"
	"github.com/harborgate/orgd/pkg/orgs"
)

// Free-plan baseline entitlements for a newly created organization.
const (
	defaultSeats     = 2
	defaultStorageGB = 1
)

// CreateOrganization is the create-organization payload.
type CreateOrganization struct {
	Name                string `json:"name"`
	BusinessName        string `json:"business_name,omitempty"`
	BillingEmail        string `json:"billing_email"`
	PublicKey           string `json:"public_key,omitempty"`
	EncryptedPrivateKey string `json:"encrypted_private_key,omitempty"`
}

// PaymentUpdate is the replace-payment payload.
type PaymentUpdate struct {
	Token      string                    `json:"token"`
	MethodType billing.PaymentMethodType `json:"method_type"`
	TaxProfile *orgs.TaxProfile          `json:"tax_profile,omitempty"`
}

// LicenseDocument is the read-license response.
type LicenseDocument struct {
	Token string `json:"token"`
}

// Credential is the issue/rotate-api-credential response.
type Credential struct {
	Credential string `json:"credential"`
}

// Request is one parsed command. The web layer fills Command, the
// caller identity, and the field the command's payload lives in;
// everything else stays zero.
type Request struct {
	Command        Command
	UserID         int64
	OrganizationID string
	// Credential is the caller's password, re-verified by the
	// sensitive guard. Only set for guard-required commands; never
	// logged.
	Credential string

	Create  *CreateOrganization
	Update  *orgs.OrganizationUpdate
	Plan    billing.Plan
	Payment *PaymentUpdate
	Delta   int
	Amount1 int64
	Amount2 int64
	Tax     *orgs.TaxProfile
	License string
	Keys    *license.KeyPair
	Import  *importer.Batch
}

// Deps are the collaborators a dispatcher orchestrates. Audit, Logger,
// and Metrics are optional.
type Deps struct {
	Store    orgs.Storage
	Resolver *auth.RoleResolver
	Guard    *auth.SensitiveOperationGuard
	Mode     config.ModeGate
	Billing  *billing.Orchestrator
	Licenses *license.Manager
	Imports  *importer.Processor
	Creds    *auth.CredentialManager
	Audit    audit.Logger
	Logger   *observability.Logger
	Metrics  *observability.Metrics
}

// Dispatcher is the single choke point every command passes through.
// It executes the fixed sequence of parsing the organization id,
// resolving the caller's role, checking the deployment mode, and
// running the sensitive guard, short-circuiting at the first failure.
// It then invokes the domain component and propagates its result
// unchanged. Authorization
// failures, including malformed or unknown organization ids, all
// surface as the same not-found outcome so organization existence is
// never leaked.
//
// Dispatchers hold no mutable state; concurrent in-flight commands
// share only the read-only policy table and deployment mode.
type Dispatcher struct {
	store    orgs.Storage
	resolver *auth.RoleResolver
	guard    *auth.SensitiveOperationGuard
	mode     config.ModeGate
	billing  *billing.Orchestrator
	licenses *license.Manager
	imports  *importer.Processor
	creds    *auth.CredentialManager
	audit    audit.Logger
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewDispatcher creates a dispatcher from its collaborators.
func NewDispatcher(deps Deps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stderr)
	}
	auditLog := deps.Audit
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Dispatcher{
		store:    deps.Store,
		resolver: deps.Resolver,
		guard:    deps.Guard,
		mode:     deps.Mode,
		billing:  deps.Billing,
		licenses: deps.Licenses,
		imports:  deps.Imports,
		creds:    deps.Creds,
		audit:    auditLog,
		logger:   logger,
		metrics:  deps.Metrics,
	}
}

// Dispatch runs one command end to end and records its outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (interface{}, error) {
	start := time.Now()
	result, err := d.dispatch(ctx, req)
	d.observe(ctx, req, start, err)
	return result, err
}

func (d *Dispatcher) dispatch(ctx context.Context, req *Request) (interface{}, error) {
	spec, ok := commandTable[req.Command]
	if !ok {
		return nil, orgs.ErrNotFound("unknown command")
	}

	var (
		org  *orgs.Organization
		role auth.Role
	)
	if spec.orgScoped {
		orgID, err := uuid.Parse(req.OrganizationID)
		if err != nil {
			return nil, orgs.ErrNotFound("organization not found")
		}
		role, err = d.resolver.Resolve(ctx, req.UserID, orgID)
		if err != nil {
			return nil, err
		}
		if !role.AtLeast(spec.minRole) {
			return nil, orgs.ErrNotFound("organization not found")
		}
		if !spec.modes.allows(d.mode.Mode()) {
			return nil, orgs.ErrModeNotSupported("command is not available in this deployment mode")
		}
		if spec.guard {
			user, err := d.store.GetUser(ctx, req.UserID)
			if err != nil {
				return nil, err
			}
			err = d.guard.Verify(ctx, user, req.Credential)
			if d.metrics != nil {
				outcome := "success"
				if err != nil {
					outcome = "failure"
				}
				d.metrics.GuardChecksTotal.WithLabelValues(outcome).Inc()
			}
			if err != nil {
				return nil, err
			}
		}
		org, err = d.store.GetOrganization(ctx, orgID)
		if err != nil {
			return nil, err
		}
	} else if !spec.modes.allows(d.mode.Mode()) {
		return nil, orgs.ErrModeNotSupported("command is not available in this deployment mode")
	}

	switch req.Command {
	case CmdReadOrganization:
		return org, nil
	case CmdListMyOrganizations:
		return d.store.ListOrganizationsForUser(ctx, req.UserID)
	case CmdCreateOrganization:
		return d.createOrganization(ctx, req)
	case CmdUpdateOrganization:
		if req.Update == nil {
			return nil, orgs.ErrValidation("nothing to update")
		}
		return nil, d.store.UpdateOrganization(ctx, org.ID, req.Update)
	case CmdLeaveOrganization:
		return nil, d.leaveOrganization(ctx, org, role, req.UserID)
	case CmdDeleteOrganization:
		return nil, d.store.SoftDeleteOrganization(ctx, org.ID)

	case CmdReadBilling:
		return d.billing.GetBilling(ctx, org)
	case CmdReadSubscription:
		return d.billing.GetSubscription(ctx, org)
	case CmdReplacePayment:
		if req.Payment == nil {
			return nil, orgs.ErrValidation("payment details are required")
		}
		return nil, d.billing.ReplacePaymentMethod(ctx, org, req.Payment.Token, req.Payment.MethodType, req.Payment.TaxProfile)
	case CmdUpgradePlan:
		return d.billing.UpgradePlan(ctx, org, req.Plan)
	case CmdAdjustSeats:
		return d.billing.AdjustSeats(ctx, org, req.Delta)
	case CmdAdjustStorage:
		return d.billing.AdjustStorage(ctx, org, req.Delta)
	case CmdVerifyBank:
		return nil, d.billing.VerifyBankAccount(ctx, org, req.Amount1, req.Amount2)
	case CmdCancelSubscription:
		return nil, d.billing.CancelSubscription(ctx, org)
	case CmdReinstateSubscription:
		return nil, d.billing.ReinstateSubscription(ctx, org)
	case CmdGetTaxInfo:
		return d.billing.GetTaxInfo(ctx, org)
	case CmdSaveTaxInfo:
		return nil, d.billing.SaveTaxInfo(ctx, org, req.Tax)

	case CmdReadLicense:
		if org.LicenseKey == "" {
			return nil, orgs.ErrNotFound("no license has been generated")
		}
		return &LicenseDocument{Token: org.LicenseKey}, nil
	case CmdGenerateLicense:
		return d.generateLicense(ctx, org)
	case CmdUpdateLicense:
		return nil, d.updateLicense(ctx, org, req)

	case CmdImportMembers:
		if req.Import == nil {
			return nil, orgs.ErrValidation("import batch is required")
		}
		return nil, d.importMembers(ctx, org, req.Import)

	case CmdIssueAPICredential:
		credential, err := d.creds.IssueOrReturn(ctx, org.ID)
		if err != nil {
			return nil, err
		}
		return &Credential{Credential: credential}, nil
	case CmdRotateAPICredential:
		credential, err := d.creds.Rotate(ctx, org.ID)
		if err != nil {
			return nil, err
		}
		if d.metrics != nil {
			d.metrics.CredentialRotationsTotal.Inc()
		}
		return &Credential{Credential: credential}, nil

	case CmdGetOrganizationKeys:
		return &license.KeyPair{PublicKey: org.PublicKey, EncryptedPrivateKey: org.EncryptedPrivateKey}, nil
	case CmdSetOrganizationKeys:
		return nil, d.setOrganizationKeys(ctx, org, req.Keys)
	}
	return nil, orgs.ErrNotFound("unknown command")
}

func (d *Dispatcher) createOrganization(ctx context.Context, req *Request) (*orgs.Organization, error) {
	if req.Create == nil {
		return nil, orgs.ErrValidation("organization details are required")
	}
	if req.Create.Name == "" {
		return nil, orgs.ErrValidation("organization name is required")
	}
	if req.Create.BillingEmail == "" {
		return nil, orgs.ErrValidation("billing email is required")
	}

	org := &orgs.Organization{
		ID:                  uuid.New(),
		Name:                req.Create.Name,
		BusinessName:        req.Create.BusinessName,
		BillingEmail:        req.Create.BillingEmail,
		Seats:               defaultSeats,
		MaxStorageGB:        defaultStorageGB,
		PublicKey:           req.Create.PublicKey,
		EncryptedPrivateKey: req.Create.EncryptedPrivateKey,
		Status:              orgs.OrgStatusActive,
	}
	userID := req.UserID
	founder := &auth.Membership{
		OrganizationID: org.ID,
		UserID:         &userID,
		Role:           auth.RoleOwner,
		Status:         auth.StatusConfirmed,
	}
	// One atomic write: an organization without its confirmed owner
	// must never persist.
	if err := d.store.CreateOrganizationWithOwner(ctx, org, founder); err != nil {
		return nil, err
	}
	return org, nil
}

// importMembers runs the batch merge and records its size and outcome.
func (d *Dispatcher) importMembers(ctx context.Context, org *orgs.Organization, batch *importer.Batch) error {
	err := d.imports.Import(ctx, org, batch)
	if d.metrics != nil {
		status := "success"
		if err != nil {
			status = "failure"
		}
		d.metrics.ImportBatchesTotal.WithLabelValues(status).Inc()
		d.metrics.ImportBatchRecords.Observe(float64(len(batch.Groups) + len(batch.Users) + len(batch.RemovedExternalIDs)))
	}
	return err
}

// leaveOrganization revokes the caller's own membership. An owner may
// not leave an organization that would be left with no confirmed
// owner.
func (d *Dispatcher) leaveOrganization(ctx context.Context, org *orgs.Organization, role auth.Role, userID int64) error {
	if role == auth.RoleOwner {
		owners, err := d.store.CountConfirmedOwners(ctx, org.ID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return orgs.ErrInvariant("organization must retain at least one confirmed owner")
		}
	}
	return d.store.RevokeMembership(ctx, org.ID, userID)
}

// generateLicense mints a license for export to a self-hosted
// installation and records it as the organization's current one.
func (d *Dispatcher) generateLicense(ctx context.Context, org *orgs.Organization) (*license.License, error) {
	lic, err := d.licenses.Generate(ctx, org)
	if err != nil {
		return nil, err
	}
	if err := d.store.SetLicense(ctx, org.ID, lic.Token, lic.Claims.InstallationID); err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.LicensesGeneratedTotal.Inc()
	}
	return lic, nil
}

// updateLicense applies the organization's first license or supersedes
// the current one.
func (d *Dispatcher) updateLicense(ctx context.Context, org *orgs.Organization, req *Request) error {
	if req.License == "" {
		return orgs.ErrValidation("license token is required")
	}
	if org.InstallationID == nil {
		return d.licenses.Apply(ctx, org, req.License, req.Keys)
	}
	return d.licenses.Update(ctx, org, req.License)
}

// setOrganizationKeys provisions the member-sharing key pair once.
func (d *Dispatcher) setOrganizationKeys(ctx context.Context, org *orgs.Organization, keys *license.KeyPair) error {
	if keys == nil || keys.PublicKey == "" {
		return orgs.ErrValidation("a public key is required")
	}
	if org.PublicKey != "" {
		return orgs.ErrInvariant("organization keys are already set")
	}
	return d.store.SetOrganizationKeys(ctx, org.ID, keys.PublicKey, keys.EncryptedPrivateKey)
}

// observe records the command outcome in logs, metrics, and the audit
// trail. Audit failures are logged, never propagated.
func (d *Dispatcher) observe(ctx context.Context, req *Request, start time.Time, err error) {
	outcome := outcomeOf(err)

	if d.metrics != nil {
		d.metrics.CommandsTotal.WithLabelValues(string(req.Command), string(outcome)).Inc()
		d.metrics.CommandDuration.WithLabelValues(string(req.Command)).Observe(time.Since(start).Seconds())
	}

	logger := observability.UpdateLoggerWithTraceContext(ctx, d.logger).
		WithField("command", string(req.Command)).
		WithField("user_id", req.UserID).
		WithField("outcome", string(outcome))
	switch outcome {
	case audit.OutcomeSuccess:
		logger.Debug("command completed")
	case audit.OutcomeDenied:
		logger.Warn("command denied")
	default:
		logger.WithError(err).Error("command failed")
	}

	event := &audit.Event{
		Timestamp: time.Now(),
		Command:   string(req.Command),
		Outcome:   outcome,
		UserID:    req.UserID,
		RequestID: observability.GetRequestID(ctx),
	}
	if orgID, parseErr := uuid.Parse(req.OrganizationID); parseErr == nil {
		event.OrganizationID = &orgID
	}
	if err != nil {
		if code := orgs.ErrorCodeOf(err); code != "" {
			event.Message = string(code)
		} else {
			event.Message = "internal"
		}
	}
	if auditErr := d.audit.Record(ctx, event); auditErr != nil {
		d.logger.WithError(auditErr).Warn("failed to record audit event")
	}
}

func outcomeOf(err error) audit.Outcome {
	if err == nil {
		return audit.OutcomeSuccess
	}
	switch orgs.ErrorCodeOf(err) {
	case orgs.CodeNotFound, orgs.CodeModeNotSupported, orgs.CodeSensitiveCheckFailed:
		return audit.OutcomeDenied
	}
	return audit.OutcomeFailure
}
