package service

import "github.com/coffeevibes888/rentflowhq-sub007/platform/go/persistence"

// ConsistencyPolicy controls whether the landlord is forced onto the HTML
// template once the tenant's signature exists. Forcing keeps both parties
// inside the same rendered document even when a custom PDF was configured
// between the two signatures.
type ConsistencyPolicy struct {
	ForceTemplateForSecondSigner bool
}

// ForcesTemplate reports whether the template path must override the
// configured document for this signer.
func (p ConsistencyPolicy) ForcesTemplate(role string, counterpartySigned bool) bool {
	return p.ForceTemplateForSecondSigner && counterpartySigned && role == persistence.RoleLandlord
}
