package domain

import "strings"

// Location identifies one of the two physical stock pools.
type Location string

const (
	LocationStore     Location = "STORE"
	LocationWarehouse Location = "WAREHOUSE"
)

// ParseLocation maps free-form input to a Location. Anything that is not
// recognizably the warehouse resolves to the store.
func ParseLocation(raw string) Location {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "WAREHOUSE", "DEPO":
		return LocationWarehouse
	default:
		return LocationStore
	}
}

const (
	PaymentCard     = "CARD"
	PaymentCash     = "CASH"
	PaymentTransfer = "TRANSFER"
)

// NormalizePaymentMethod collapses the accepted payment spellings
// (including the Turkish aliases) onto the canonical three methods.
// Unknown or empty input defaults to CARD.
func NormalizePaymentMethod(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CASH", "NAKIT", "NAKİT":
		return PaymentCash
	case "TRANSFER", "HAVALE", "EFT":
		return PaymentTransfer
	case "CARD", "KART":
		return PaymentCard
	default:
		return PaymentCard
	}
}

// NormalizeDiffPaymentMethod is the stricter variant used for exchange
// price differences, where only cash and card settle the gap. Empty input
// defaults to cash; anything else unrecognized is rejected.
func NormalizeDiffPaymentMethod(raw string) (string, bool) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" {
		return PaymentCash, true
	}
	switch trimmed {
	case "CASH", "NAKIT", "NAKİT":
		return PaymentCash, true
	case "CARD", "KART":
		return PaymentCard, true
	default:
		return "", false
	}
}
