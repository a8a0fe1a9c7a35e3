// internal/salary/currency.go
package salary

import "strings"

var countryCurrency = map[string]string{
	"argentina":            "ARS",
	"australia":            "AUD",
	"austria":              "EUR",
	"bangladesh":           "BDT",
	"belgium":              "EUR",
	"brazil":               "BRL",
	"canada":               "CAD",
	"china":                "CNY",
	"denmark":              "DKK",
	"egypt":                "EGP",
	"finland":              "EUR",
	"france":               "EUR",
	"germany":              "EUR",
	"india":                "INR",
	"indonesia":            "IDR",
	"ireland":              "EUR",
	"italy":                "EUR",
	"japan":                "JPY",
	"malaysia":             "MYR",
	"mexico":               "MXN",
	"netherlands":          "EUR",
	"new zealand":          "NZD",
	"nigeria":              "NGN",
	"norway":               "NOK",
	"pakistan":             "PKR",
	"philippines":          "PHP",
	"poland":               "PLN",
	"portugal":             "EUR",
	"qatar":                "QAR",
	"saudi arabia":         "SAR",
	"singapore":            "SGD",
	"south africa":         "ZAR",
	"south korea":          "KRW",
	"spain":                "EUR",
	"sri lanka":            "LKR",
	"sweden":               "SEK",
	"switzerland":          "CHF",
	"thailand":             "THB",
	"turkey":               "TRY",
	"united arab emirates": "AED",
	"united kingdom":       "GBP",
	"united states":        "USD",
	"vietnam":              "VND",
}

// CurrencyForCountry maps a country name to its ISO 4217 currency code,
// ignoring case and surrounding whitespace.
func CurrencyForCountry(country string) (string, bool) {
	c, ok := countryCurrency[strings.ToLower(strings.TrimSpace(country))]
	return c, ok
}
