package payroll

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// MoneyPair holds one amount per supported currency. The two channels are
// never combined.
type MoneyPair struct {
	TRY decimal.Decimal
	USD decimal.Decimal
}

func NewMoneyPair(try, usd decimal.Decimal) MoneyPair {
	return MoneyPair{TRY: try, USD: usd}
}

// Get returns the amount held for currency, zero for unsupported currencies.
func (m MoneyPair) Get(currency Currency) decimal.Decimal {
	switch currency {
	case CurrencyTRY:
		return m.TRY
	case CurrencyUSD:
		return m.USD
	default:
		return decimal.Zero
	}
}

// AddAmount adds amount to the channel of currency. Unsupported currencies
// leave the pair unchanged.
func (m MoneyPair) AddAmount(currency Currency, amount decimal.Decimal) MoneyPair {
	switch currency {
	case CurrencyTRY:
		m.TRY = m.TRY.Add(amount)
	case CurrencyUSD:
		m.USD = m.USD.Add(amount)
	}
	return m
}

func (m MoneyPair) Add(other MoneyPair) MoneyPair {
	return MoneyPair{TRY: m.TRY.Add(other.TRY), USD: m.USD.Add(other.USD)}
}

func (m MoneyPair) Sub(other MoneyPair) MoneyPair {
	return MoneyPair{TRY: m.TRY.Sub(other.TRY), USD: m.USD.Sub(other.USD)}
}

func (m MoneyPair) DivInt(n int64) MoneyPair {
	d := decimal.NewFromInt(n)
	return MoneyPair{TRY: m.TRY.Div(d), USD: m.USD.Div(d)}
}

func (m MoneyPair) Round(places int32) MoneyPair {
	return MoneyPair{TRY: m.TRY.Round(places), USD: m.USD.Round(places)}
}

func (m MoneyPair) Equal(other MoneyPair) bool {
	return m.TRY.Equal(other.TRY) && m.USD.Equal(other.USD)
}

func (m MoneyPair) IsZero() bool {
	return m.TRY.IsZero() && m.USD.IsZero()
}

type moneyPairJSON struct {
	TRY json.Number `json:"TRY"`
	USD json.Number `json:"USD"`
}

// MarshalJSON writes both channels as JSON numbers.
func (m MoneyPair) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyPairJSON{
		TRY: json.Number(m.TRY.String()),
		USD: json.Number(m.USD.String()),
	})
}

func (m *MoneyPair) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*m = MoneyPair{}
		return nil
	}
	*m = MoneyPair{
		TRY: lenientDecimal(raw[string(CurrencyTRY)]),
		USD: lenientDecimal(raw[string(CurrencyUSD)]),
	}
	return nil
}

// sumLines adds every line into its own currency channel.
func sumLines(groups ...[]PayLine) MoneyPair {
	var total MoneyPair
	for _, lines := range groups {
		for _, line := range lines {
			total = total.AddAmount(line.Currency, line.Amount)
		}
	}
	return total
}

// selectLines keeps the lines matching pred, in input order. The result is
// never nil.
func selectLines(lines []PayLine, pred func(PayLine) bool) []PayLine {
	out := make([]PayLine, 0)
	for _, line := range lines {
		if pred(line) {
			out = append(out, line)
		}
	}
	return out
}

func byCategory(category Category) func(PayLine) bool {
	return func(line PayLine) bool {
		return line.Category == category
	}
}

func byKind(kind AllowanceKind) func(PayLine) bool {
	return func(line PayLine) bool {
		return line.Category == CategoryAllowance && line.Kind == kind
	}
}
