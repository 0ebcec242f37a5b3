package cryptofolio

// Ledger is the ordered in-memory collection of holdings, unique by
// provider ID. Insertion order is a user-visible contract: it governs
// row order in the summary and the chart. The ledger is owned by a
// single Core and is never mutated concurrently; Core serializes all
// operations.
type Ledger struct {
	records []HoldingRecord
	index   map[string]int // provider ID -> position in records
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{index: map[string]int{}}
}

// Len returns the number of holdings.
func (l *Ledger) Len() int {
	return len(l.records)
}

// Records returns a copy of the holdings in stored order.
func (l *Ledger) Records() []HoldingRecord {
	out := make([]HoldingRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Get returns the holding for a provider ID.
func (l *Ledger) Get(providerID string) (HoldingRecord, bool) {
	pos, ok := l.index[providerID]
	if !ok {
		return HoldingRecord{}, false
	}
	return l.records[pos], true
}

// upsert merges amount into an existing record with the same provider ID
// or appends a new record at the end. It reports whether a merge happened
// and returns the record's resulting amount.
func (l *Ledger) upsert(ticker, providerID string, amount Amount) (merged bool, total Amount) {
	if pos, ok := l.index[providerID]; ok {
		l.records[pos].Amount = Amount{l.records[pos].Amount.Add(amount.Decimal)}
		return true, l.records[pos].Amount
	}
	l.records = append(l.records, HoldingRecord{
		Ticker:     ticker,
		ProviderID: providerID,
		Amount:     amount,
	})
	l.index[providerID] = len(l.records) - 1
	return false, amount
}

// setAmount replaces a record's amount in place. changed is false when
// the new amount equals the current one; ok is false when the provider
// ID is unknown.
func (l *Ledger) setAmount(providerID string, amount Amount) (old Amount, changed, ok bool) {
	pos, found := l.index[providerID]
	if !found {
		return Amount{}, false, false
	}
	old = l.records[pos].Amount
	if old.Equal(amount.Decimal) {
		return old, false, true
	}
	l.records[pos].Amount = amount
	return old, true, true
}

// remove deletes every record whose provider ID is in ids, preserving
// the order of the survivors. Absent IDs are silently skipped. It
// returns the removed records.
func (l *Ledger) remove(ids map[string]struct{}) []HoldingRecord {
	var removed []HoldingRecord
	kept := l.records[:0]
	for _, rec := range l.records {
		if _, hit := ids[rec.ProviderID]; hit {
			removed = append(removed, rec)
			continue
		}
		kept = append(kept, rec)
	}
	if len(removed) == 0 {
		return nil
	}
	l.records = kept
	l.index = make(map[string]int, len(kept))
	for i, rec := range kept {
		l.index[rec.ProviderID] = i
	}
	return removed
}
