package command

import (
	"github.com/harborgate/orgd/pkg/auth"
	"github.com/harborgate/orgd/pkg/config"
)

// Command identifies one operation of the organization service.
type Command string

const (
	CmdReadOrganization      Command = "read-organization"
	CmdReadBilling           Command = "read-billing"
	CmdReadSubscription      Command = "read-subscription"
	CmdReadLicense           Command = "read-license"
	CmdGenerateLicense       Command = "generate-license"
	CmdUpdateLicense         Command = "update-license"
	CmdListMyOrganizations   Command = "list-my-organizations"
	CmdCreateOrganization    Command = "create-organization"
	CmdUpdateOrganization    Command = "update-organization"
	CmdReplacePayment        Command = "replace-payment"
	CmdUpgradePlan           Command = "upgrade-plan"
	CmdAdjustSeats           Command = "adjust-seats"
	CmdAdjustStorage         Command = "adjust-storage"
	CmdVerifyBank            Command = "verify-bank"
	CmdCancelSubscription    Command = "cancel-subscription"
	CmdReinstateSubscription Command = "reinstate-subscription"
	CmdLeaveOrganization     Command = "leave-organization"
	CmdDeleteOrganization    Command = "delete-organization"
	CmdImportMembers         Command = "import-members"
	CmdIssueAPICredential    Command = "issue-api-credential"
	CmdRotateAPICredential   Command = "rotate-api-credential"
	CmdGetTaxInfo            Command = "get-tax-info"
	CmdSaveTaxInfo           Command = "save-tax-info"
	CmdGetOrganizationKeys   Command = "get-organization-keys"
	CmdSetOrganizationKeys   Command = "set-organization-keys"
)

// modeSet is the set of deployment modes a command exists in.
type modeSet uint8

const (
	hostedOnly modeSet = 1 << iota
	selfHostedOnly

	bothModes = hostedOnly | selfHostedOnly
)

func (s modeSet) allows(mode config.DeploymentMode) bool {
	if mode.Hosted() {
		return s&hostedOnly != 0
	}
	return s&selfHostedOnly != 0
}

// commandSpec is one row of the policy table: the minimum role, the
// deployment modes the command exists in, and whether the sensitive
// guard must pass first. orgScoped=false commands skip id parsing and
// role resolution; they act on the caller, not on one organization.
type commandSpec struct {
	minRole   auth.Role
	modes     modeSet
	guard     bool
	orgScoped bool
}

// commandTable is the single source of authorization policy. Every
// command the service exposes has exactly one row here; the dispatcher
// consults it once per request and nothing else re-checks roles or
// modes. Adding a command without a row makes it unreachable rather
// than unguarded.
var commandTable = map[Command]commandSpec{
	CmdReadOrganization:    {minRole: auth.RoleMember, modes: bothModes, orgScoped: true},
	CmdListMyOrganizations: {modes: bothModes},
	CmdCreateOrganization:  {modes: bothModes},
	CmdUpdateOrganization:  {minRole: auth.RoleOwner, modes: bothModes, orgScoped: true},
	CmdLeaveOrganization:   {minRole: auth.RoleMember, modes: bothModes, orgScoped: true},
	CmdDeleteOrganization:  {minRole: auth.RoleOwner, modes: bothModes, guard: true, orgScoped: true},

	// Billing exists only where a payment gateway does.
	CmdReadBilling:           {minRole: auth.RoleOwner, modes: hostedOnly, orgScoped: true},
	CmdReadSubscription:      {minRole: auth.RoleOwner, modes: hostedOnly, orgScoped: true},
	CmdReplacePayment:        {minRole: auth.RoleOwner, modes: hostedOnly, orgScoped: true},
	CmdUpgradePlan:           {minRole: auth.RoleOwner, modes: hostedOnly, orgScoped: true},
	CmdAdjustSeats:           {minRole: auth.RoleOwner, modes: hostedOnly, orgScoped: true},
	CmdAdjustStorage:         {minRole: auth.RoleOwner, modes: hostedOnly, orgScoped: true},
	CmdVerifyBank:            {minRole: auth.RoleOwner, modes: hostedOnly, orgScoped: true},
	CmdCancelSubscription:    {minRole: auth.RoleOwner, modes: hostedOnly, orgScoped: true},
	CmdReinstateSubscription: {minRole: auth.RoleOwner, modes: hostedOnly, orgScoped: true},
	CmdGetTaxInfo:            {minRole: auth.RoleOwner, modes: hostedOnly, orgScoped: true},
	CmdSaveTaxInfo:           {minRole: auth.RoleOwner, modes: hostedOnly, orgScoped: true},

	// Licensing is asymmetric: hosted issues licenses for export,
	// self-hosted consumes them.
	CmdReadLicense:     {minRole: auth.RoleOwner, modes: hostedOnly, orgScoped: true},
	CmdGenerateLicense: {minRole: auth.RoleOwner, modes: hostedOnly, orgScoped: true},
	CmdUpdateLicense:   {minRole: auth.RoleOwner, modes: selfHostedOnly, orgScoped: true},

	CmdImportMembers: {minRole: auth.RoleAdmin, modes: bothModes, orgScoped: true},

	// Raw credential exposure and rotation re-verify the caller.
	CmdIssueAPICredential:  {minRole: auth.RoleOwner, modes: bothModes, guard: true, orgScoped: true},
	CmdRotateAPICredential: {minRole: auth.RoleOwner, modes: bothModes, guard: true, orgScoped: true},

	CmdGetOrganizationKeys: {minRole: auth.RoleMember, modes: bothModes, orgScoped: true},
	CmdSetOrganizationKeys: {minRole: auth.RoleOwner, modes: bothModes, orgScoped: true},
}
