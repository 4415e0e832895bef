package invoice

import "github.com/shopspring/decimal"

// DefaultCurrency is the currency suffix printed after every monetary value
const DefaultCurrency = "USD"

// FormatMoney renders an amount with exactly two decimals and a currency suffix,
// e.g. "19.50 USD". No locale rules or thousands separators are applied.
func FormatMoney(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	return amount.StringFixed(2) + " " + currency
}
