package subscription

import (
	"math"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.English)

// FormatMoney renders an amount in minor units with its currency symbol.
// Unknown currency codes fall back to the code followed by the raw amount.
func FormatMoney(amount int64, code string) string {
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return moneyPrinter.Sprintf("%s %d", code, amount)
	}
	scale, _ := currency.Standard.Rounding(unit)
	value := float64(amount) / math.Pow10(scale)
	return moneyPrinter.Sprint(currency.Symbol(unit.Amount(value)))
}

// FormatPrice renders a plan price with its billing interval, e.g. "$ 4.99/month".
func FormatPrice(p Plan) string {
	return FormatMoney(p.Price, p.Currency) + "/" + string(p.Interval)
}
