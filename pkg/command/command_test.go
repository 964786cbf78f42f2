package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborgate/orgd/pkg/auth"
	"github.com/harborgate/orgd/pkg/config"
)

var allCommands = []Command{
	CmdReadOrganization, CmdReadBilling, CmdReadSubscription, CmdReadLicense,
	CmdGenerateLicense, CmdUpdateLicense, CmdListMyOrganizations,
	CmdCreateOrganization, CmdUpdateOrganization, CmdReplacePayment,
	CmdUpgradePlan, CmdAdjustSeats, CmdAdjustStorage, CmdVerifyBank,
	CmdCancelSubscription, CmdReinstateSubscription, CmdLeaveOrganization,
	CmdDeleteOrganization, CmdImportMembers, CmdIssueAPICredential,
	CmdRotateAPICredential, CmdGetTaxInfo, CmdSaveTaxInfo,
	CmdGetOrganizationKeys, CmdSetOrganizationKeys,
}

func TestEveryCommandHasAPolicyRow(t *testing.T) {
	assert.Len(t, commandTable, len(allCommands))
	for _, cmd := range allCommands {
		spec, ok := commandTable[cmd]
		require.True(t, ok, "command %q has no policy row", cmd)
		if spec.orgScoped {
			assert.True(t, spec.minRole.Valid(), "org-scoped command %q needs a minimum role", cmd)
		}
	}
}

func TestIrreversibleCommandsAreGuarded(t *testing.T) {
	guarded := map[Command]bool{
		CmdDeleteOrganization:  true,
		CmdIssueAPICredential:  true,
		CmdRotateAPICredential: true,
	}
	for cmd, spec := range commandTable {
		assert.Equal(t, guarded[cmd], spec.guard, "guard flag for %q", cmd)
	}
}

func TestGuardedCommandsRequireOwner(t *testing.T) {
	for cmd, spec := range commandTable {
		if spec.guard {
			assert.Equal(t, auth.RoleOwner, spec.minRole, "guarded command %q", cmd)
		}
	}
}

func TestModeSets(t *testing.T) {
	assert.True(t, bothModes.allows(config.ModeHosted))
	assert.True(t, bothModes.allows(config.ModeSelfHosted))
	assert.True(t, hostedOnly.allows(config.ModeHosted))
	assert.False(t, hostedOnly.allows(config.ModeSelfHosted))
	assert.False(t, selfHostedOnly.allows(config.ModeHosted))
	assert.True(t, selfHostedOnly.allows(config.ModeSelfHosted))
}

func TestBillingCommandsAreHostedOnly(t *testing.T) {
	billingCommands := []Command{
		CmdReadBilling, CmdReadSubscription, CmdReplacePayment, CmdUpgradePlan,
		CmdAdjustSeats, CmdAdjustStorage, CmdVerifyBank, CmdCancelSubscription,
		CmdReinstateSubscription, CmdGetTaxInfo, CmdSaveTaxInfo,
	}
	for _, cmd := range billingCommands {
		spec := commandTable[cmd]
		assert.Equal(t, hostedOnly, spec.modes, "command %q", cmd)
		assert.Equal(t, auth.RoleOwner, spec.minRole, "command %q", cmd)
	}
}

func TestLicenseCommandsAreAsymmetric(t *testing.T) {
	// Hosted issues licenses for export; self-hosted consumes them.
	assert.Equal(t, hostedOnly, commandTable[CmdGenerateLicense].modes)
	assert.Equal(t, hostedOnly, commandTable[CmdReadLicense].modes)
	assert.Equal(t, selfHostedOnly, commandTable[CmdUpdateLicense].modes)
}
