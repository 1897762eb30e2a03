package notices

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatAmount renders amount with decimals places, trailing zeros and dot trimmed.
func FormatAmount(amount decimal.Decimal, decimals uint8) string {
	s := amount.StringFixed(int32(decimals))
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

// NeedsReview flags zero or dust amounts.
func NeedsReview(formatted string) bool {
	return formatted == "0" || strings.HasPrefix(formatted, "0.0")
}
