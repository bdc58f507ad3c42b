package models

// Parties is the fixed three-role assignment of an escrow or agreement.
// For a rent agreement the tenant is the depositor, the landlord is the
// beneficiary and the protocol admin acts as arbiter.
type Parties struct {
	Depositor   string
	Beneficiary string
	Arbiter     string
}

// Distinct reports whether all three addresses are set and pairwise different.
func (p Parties) Distinct() bool {
	if p.Depositor == "" || p.Beneficiary == "" || p.Arbiter == "" {
		return false
	}
	return p.Depositor != p.Beneficiary && p.Depositor != p.Arbiter && p.Beneficiary != p.Arbiter
}
