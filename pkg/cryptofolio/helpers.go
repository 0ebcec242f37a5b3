package cryptofolio

import "strings"

// normalizeTicker uppercases and trims a user-typed symbol for display.
func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// normalizeKey folds a symbol or name into its lookup-table key.
func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeCurrency(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}

func stringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
