// Package format renders snapshot figures into the compact menu-bar label.
package format

import (
	"fmt"
	"math"
	"strings"

	"worthbar/internal/models"
)

// scale maps an absolute threshold to its compact suffix, largest first.
var scales = []struct {
	threshold float64
	suffix    string
}{
	{1e12, "T"},
	{1e9, "B"},
	{1e6, "M"},
	{1e3, "K"},
}

// Amount renders a dollar amount compactly: scaled to K/M/B/T with one
// decimal place (trailing zero and point trimmed), plain integer below a
// thousand, sign ahead of the currency symbol. Half-values round away from
// zero, so 1.25M renders "$1.3M".
func Amount(value float64) string {
	sign := ""
	abs := math.Abs(value)
	if value < 0 {
		sign = "-"
	}

	for _, s := range scales {
		if abs >= s.threshold {
			shown := math.Round(abs/s.threshold*10) / 10
			compact := strings.TrimSuffix(strings.TrimSuffix(fmt.Sprintf("%.1f", shown), "0"), ".")
			return sign + "$" + compact + s.suffix
		}
	}
	return sign + "$" + fmt.Sprintf("%.0f", math.Round(abs))
}

// Percent renders a percent change rounded to the nearest integer with an
// explicit sign: "+2%", "-1%", "+0%".
func Percent(value float64) string {
	return fmt.Sprintf("%+d%%", int(math.Round(value)))
}

// Label joins the formatted total and daily percent change into the final
// compact label.
func Label(s models.Snapshot) string {
	return Amount(s.Total) + " " + Percent(s.DailyPercent)
}
