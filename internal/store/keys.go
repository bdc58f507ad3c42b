package store

// Key names
const (
	KeyAdmin  = "admin"
	KeyConfig = "config"

	KeyAgreementCount = "count:agreement"
	KeyPaymentCount   = "count:payment"
	KeyDisputeCount   = "count:dispute"
	KeyPropertyCount  = "count:property"
	KeyEscrowCount    = "count:escrow"
)

func EscrowKey(hexID string) string {
	return "escrow:" + hexID
}

func AgreementKey(id string) string {
	return "agreement:" + id
}

func PropertyKey(id string) string {
	return "property:" + id
}
