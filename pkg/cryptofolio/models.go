package cryptofolio

// HoldingRecord is one ledger entry: an owned quantity of one asset.
// ProviderID is the canonical identifier of the asset at the price source
// and the uniqueness key for the ledger; Ticker is the display symbol the
// user typed (uppercased).
type HoldingRecord struct {
	Ticker     string `json:"ticker"`
	ProviderID string `json:"provider_id"`
	Amount     Amount `json:"amount"`
}

// Instrument is one entry of the price source's bulk listing, used to
// build the resolver lookup table.
type Instrument struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// PriceMap maps provider IDs to a quote in the configured currency.
// Entries missing from the source are absent here; valuation substitutes
// MissingPriceDefault for them.
type PriceMap map[string]Amount

// ValuationRow is the derived, never-persisted view of one holding
// combined with its current price. Regenerated on every read.
type ValuationRow struct {
	Ticker     string `json:"ticker"`
	ProviderID string `json:"provider_id"`
	Amount     Amount `json:"amount"`
	Price      Amount `json:"price"`
	Value      Amount `json:"value"`
}

// AllocationEntry is a holding's value expressed as a percentage of the
// total portfolio value.
type AllocationEntry struct {
	Ticker  string  `json:"ticker"`
	Percent float64 `json:"percent"`
}

// PortfolioSummary is the read-only summary exposed to the widget.
type PortfolioSummary struct {
	Rows       []ValuationRow    `json:"rows"`
	Total      Amount            `json:"total"`
	Allocation []AllocationEntry `json:"allocation"`
	// PriceNote carries a non-fatal diagnostic when the price source
	// degraded (timeout, transport error); empty otherwise.
	PriceNote string `json:"price_note,omitempty"`
}

// EditState is an in-progress per-row edit. OriginalAmount is the
// snapshot taken when the edit began; commit writes only when the new
// value differs from it.
type EditState struct {
	ProviderID     string `json:"provider_id"`
	OriginalAmount Amount `json:"original_amount"`
}

// SessionState is the JSON view of the interactive session.
type SessionState struct {
	Selected []string   `json:"selected"`
	Edit     *EditState `json:"edit,omitempty"`
}

// Operation types recorded in the audit log.
const (
	OpAdd    = "ADD"
	OpMerge  = "MERGE"
	OpEdit   = "EDIT"
	OpDelete = "DELETE"
)

// OperationLog represents an audit log record.
type OperationLog struct {
	ID         int64   `json:"id"`
	Operation  string  `json:"operation_type"`
	Ticker     *string `json:"ticker"`
	ProviderID *string `json:"provider_id"`
	Details    *string `json:"details"`
	OldAmount  *Amount `json:"old_amount"`
	NewAmount  *Amount `json:"new_amount"`
	CreatedAt  *string `json:"created_at"`
}
