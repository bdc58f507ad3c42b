package rbac

import (
	"fmt"

	"github.com/chioma/settlement/internal/models"
)

// Role constants
const (
	RoleDepositor   = "depositor"
	RoleBeneficiary = "beneficiary"
	RoleArbiter     = "arbiter"
)

// Operation constants
const (
	OpFund      = "fund"
	OpRelease   = "release"
	OpRefund    = "refund"
	OpDispute   = "dispute"
	OpResolve   = "resolve"
	OpSign      = "sign"
	OpCancel    = "cancel"
	OpPayRent   = "pay_rent"
	OpDeposit   = "fund_deposit"
	OpTerminate = "terminate"
)

// OperationRoles defines which roles may invoke each operation.
var OperationRoles = map[string][]string{
	OpFund:      {RoleDepositor},
	OpRelease:   {RoleBeneficiary, RoleArbiter},
	OpRefund:    {RoleDepositor, RoleArbiter},
	OpDispute:   {RoleDepositor, RoleBeneficiary},
	OpResolve:   {RoleArbiter},
	OpSign:      {RoleDepositor, RoleBeneficiary},
	OpCancel:    {RoleDepositor, RoleBeneficiary},
	OpPayRent:   {RoleDepositor},
	OpDeposit:   {RoleDepositor},
	OpTerminate: {RoleDepositor, RoleBeneficiary, RoleArbiter},
	// Arbiter CANNOT: dispute, sign, cancel
}

// RolesOf returns every role caller holds in p.
func RolesOf(p models.Parties, caller string) []string {
	var roles []string
	if caller == "" {
		return roles
	}
	if caller == p.Depositor {
		roles = append(roles, RoleDepositor)
	}
	if caller == p.Beneficiary {
		roles = append(roles, RoleBeneficiary)
	}
	if caller == p.Arbiter {
		roles = append(roles, RoleArbiter)
	}
	return roles
}

// HasPermission checks if a role may invoke an operation.
func HasPermission(role, op string) bool {
	roles, ok := OperationRoles[op]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Authorize succeeds iff caller holds a role allowed for op. A caller with a
// role that is not allowed, or with no role at all, gets ErrNotAuthorized;
// use IsParty first where outsiders must see ErrInvalidSigner.
func Authorize(p models.Parties, caller, op string) error {
	for _, role := range RolesOf(p, caller) {
		if HasPermission(role, op) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s requires one of %v", models.ErrNotAuthorized, op, OperationRoles[op])
}

func IsDepositor(p models.Parties, caller string) error {
	if caller == "" || caller != p.Depositor {
		return fmt.Errorf("%w: caller is not the depositor", models.ErrNotAuthorized)
	}
	return nil
}

func IsBeneficiary(p models.Parties, caller string) error {
	if caller == "" || caller != p.Beneficiary {
		return fmt.Errorf("%w: caller is not the beneficiary", models.ErrNotAuthorized)
	}
	return nil
}

func IsArbiter(p models.Parties, caller string) error {
	if caller == "" || caller != p.Arbiter {
		return fmt.Errorf("%w: caller is not the arbiter", models.ErrNotAuthorized)
	}
	return nil
}

// IsParty succeeds iff caller holds any of the three roles. Outsiders get
// ErrInvalidSigner, not ErrNotAuthorized.
func IsParty(p models.Parties, caller string) error {
	if len(RolesOf(p, caller)) == 0 {
		return fmt.Errorf("%w: caller is not a party", models.ErrInvalidSigner)
	}
	return nil
}

// IsPrimaryParty succeeds iff caller is the depositor or the beneficiary.
func IsPrimaryParty(p models.Parties, caller string) error {
	if caller != "" && (caller == p.Depositor || caller == p.Beneficiary) {
		return nil
	}
	return fmt.Errorf("%w: caller is not a primary party", models.ErrNotAuthorized)
}
