package models

import (
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// FormatMoney renders an amount as "$12,345.67".
func FormatMoney(d decimal.Decimal) string {
	f := d.Round(2).InexactFloat64()
	if f < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -f)
	}
	return "$" + humanize.FormatFloat("#,###.##", f)
}
