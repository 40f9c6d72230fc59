// Package format renders amounts and percentages for reports.
package format

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer groups digits the way Colombian reports do ("1.234.567").
var printer = message.NewPrinter(language.Spanish)

// RoundWhole rounds amount half away from zero to a whole currency unit.
func RoundWhole(amount float64) float64 {
	return Round(amount, 0)
}

// Round rounds amount half away from zero to the given number of decimal
// places using exact decimal arithmetic.
func Round(amount float64, places int32) float64 {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return amount
	}
	return decimal.NewFromFloat(amount).Round(places).InexactFloat64()
}

// COP renders amount as whole Colombian pesos ("$1.234.567", "-$45.000").
// Non-finite amounts render as "-".
func COP(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "-"
	}
	whole := decimal.NewFromFloat(amount).Round(0)
	sign := ""
	if whole.IsNegative() {
		sign = "-"
		whole = whole.Abs()
	}
	return sign + "$" + printer.Sprintf("%d", whole.IntPart())
}

// Percent renders a percentage with one decimal ("97.5%"). NaN renders as "-".
func Percent(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", value)
}

// Factor renders a multiplicative factor as a whole percentage ("60%").
func Factor(factor float64) string {
	return fmt.Sprintf("%.0f%%", factor*100)
}

// Growth renders an absolute and relative change ("$12.000 (+4.5%)").
func Growth(amount, percent float64) string {
	sign := ""
	if percent >= 0 {
		sign = "+"
	}
	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return COP(amount)
	}
	return fmt.Sprintf("%s (%s%.1f%%)", COP(amount), sign, percent)
}
