package cryptofolio

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Valuate derives the read-only view of the ledger: one row per holding
// in stored order, value = amount * price, plus the exact total. A
// provider ID absent from prices is valued at MissingPriceDefault.
func Valuate(records []HoldingRecord, prices PriceMap) ([]ValuationRow, Amount) {
	rows := make([]ValuationRow, 0, len(records))
	total := NewAmount(0)
	for _, rec := range records {
		price, ok := prices[rec.ProviderID]
		if !ok {
			price = MissingPriceDefault
		}
		value := Amount{rec.Amount.Mul(price.Decimal)}
		total = Amount{total.Add(value.Decimal)}
		rows = append(rows, ValuationRow{
			Ticker:     rec.Ticker,
			ProviderID: rec.ProviderID,
			Amount:     rec.Amount,
			Price:      price,
			Value:      value,
		})
	}
	return rows, total
}

// Allocate expresses each row's value as a percentage of total. A
// non-positive total yields an empty slice so callers suppress the chart
// instead of dividing by zero.
func Allocate(rows []ValuationRow, total Amount) []AllocationEntry {
	if !total.IsPositive() {
		return []AllocationEntry{}
	}
	entries := make([]AllocationEntry, 0, len(rows))
	for _, row := range rows {
		pct, _ := row.Value.Div(total.Decimal).Mul(hundred).Float64()
		entries = append(entries, AllocationEntry{Ticker: row.Ticker, Percent: pct})
	}
	return entries
}
