package pricing

import "strings"

// CustomerType distinguishes private buyers from VAT-registered businesses.
type CustomerType string

const (
	// CustomerPrivate identifies a consumer purchase.
	CustomerPrivate CustomerType = "private"
	// CustomerBusiness identifies a business purchase that may qualify for reverse charge.
	CustomerBusiness CustomerType = "business"
)

// BillingContext carries the buyer attributes that drive VAT rate selection.
type BillingContext struct {
	Country        string
	CustomerType   CustomerType
	VATIDValidated bool
}

// VATConfig holds the seller's home country and the country to rate table in
// basis points. It is passed explicitly so per-market deployments and tests do
// not depend on package globals.
type VATConfig struct {
	HomeCountry string
	RateBps     map[string]int
}

var euCountries = map[string]struct{}{
	"AT": {}, "BE": {}, "BG": {}, "HR": {}, "CY": {}, "CZ": {}, "DK": {},
	"EE": {}, "FI": {}, "FR": {}, "DE": {}, "GR": {}, "HU": {}, "IE": {},
	"IT": {}, "LV": {}, "LT": {}, "LU": {}, "MT": {}, "NL": {}, "PL": {},
	"PT": {}, "RO": {}, "SK": {}, "SI": {}, "ES": {}, "SE": {},
}

// DefaultEURates returns the standard VAT rate per EU member state in basis
// points. Deployments override individual entries through configuration.
func DefaultEURates() map[string]int {
	return map[string]int{
		"AT": 2000, "BE": 2100, "BG": 2000, "HR": 2500, "CY": 1900, "CZ": 2100,
		"DK": 2500, "EE": 2200, "FI": 2550, "FR": 2000, "DE": 1900, "GR": 2400,
		"HU": 2700, "IE": 2300, "IT": 2200, "LV": 2100, "LT": 2100, "LU": 1700,
		"MT": 1800, "NL": 2100, "PL": 2300, "PT": 2300, "RO": 1900, "SK": 2300,
		"SI": 2200, "ES": 2100, "SE": 2500,
	}
}

// IsEUCountry reports whether the ISO 3166-1 alpha-2 code is an EU member state.
func IsEUCountry(code string) bool {
	_, ok := euCountries[normalizeCountry(code)]
	return ok
}

// ResolveVATRate returns the applicable VAT rate in basis points.
//
// Reverse charge applies, yielding a zero rate, when a validated business
// buyer is billed in an EU member state other than the seller's home country.
// Countries absent from the rate table resolve to zero (untaxed export).
func ResolveVATRate(cfg VATConfig, b BillingContext) int {
	country := normalizeCountry(b.Country)
	if b.CustomerType == CustomerBusiness && b.VATIDValidated &&
		IsEUCountry(country) && country != normalizeCountry(cfg.HomeCountry) {
		return 0
	}
	return cfg.RateBps[country]
}

func normalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
