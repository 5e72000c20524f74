package session

import "strings"

// Currency identifies the billing currency for a pour.
type Currency string

const (
	CurrencyGBP Currency = "GBP"
	CurrencyUSD Currency = "USD"

	// CurrencyNone means the authorization carried no currency. Display
	// falls back to GBP — a deliberate default, not a silent failure.
	CurrencyNone Currency = ""
)

// ParseCurrency parses a currency code case-insensitively. The empty string
// is valid (absent currency); anything else outside {GBP, USD} is rejected.
func ParseCurrency(s string) (Currency, error) {
	switch strings.ToUpper(s) {
	case "":
		return CurrencyNone, nil
	case "GBP":
		return CurrencyGBP, nil
	case "USD":
		return CurrencyUSD, nil
	default:
		return CurrencyNone, &ValidationError{Field: "currency", Reason: "must be GBP or USD"}
	}
}

// Symbol returns the display symbol, defaulting to the GBP symbol for an
// absent currency.
func (c Currency) Symbol() string {
	if c == CurrencyUSD {
		return "$"
	}
	return "£"
}

// Display returns the code used in logs and payloads, with the GBP default
// applied.
func (c Currency) Display() string {
	if c == CurrencyNone {
		return string(CurrencyGBP)
	}
	return string(c)
}
