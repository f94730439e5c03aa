package domain

// ShippingRate is one purchasable shipping option within a package.
type ShippingRate struct {
	ID       string
	MethodID string
}

// ShippingPackage groups cart items that share a single rate selection.
// Rate IDs are only unique within the package that owns them.
type ShippingPackage struct {
	Index int
	Rates map[string]ShippingRate
}

// Rate resolves a rate by ID.
func (p ShippingPackage) Rate(rateID string) (ShippingRate, bool) {
	if len(p.Rates) == 0 || rateID == "" {
		return ShippingRate{}, false
	}
	rate, ok := p.Rates[rateID]
	return rate, ok
}

// ChosenSelections maps a package index to the rate ID the shopper picked.
type ChosenSelections map[int]string

// RateFor returns the selected rate ID for the package index.
func (s ChosenSelections) RateFor(index int) (string, bool) {
	if len(s) == 0 {
		return "", false
	}
	id, ok := s[index]
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
