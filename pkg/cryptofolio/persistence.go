package cryptofolio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
)

// ledgerSchemaVersion tags the current on-disk document shape.
const ledgerSchemaVersion = 1

// ledgerDocument is the persisted snapshot: a versioned record sequence.
// Earlier builds of the widget wrote either a bare record array or a
// flat {TICKER: amount} map; both are accepted on load and rewritten in
// this shape on the next save.
type ledgerDocument struct {
	Version  int             `json:"version"`
	Holdings []HoldingRecord `json:"holdings"`
}

// ledgerStore persists ledger snapshots to a single JSON file. Every
// mutation rewrites the whole file; there is no write-ahead log and no
// atomicity guarantee, so the loader must tolerate a torn file.
type ledgerStore struct {
	path   string
	logger *slog.Logger
}

func newLedgerStore(path string, logger *slog.Logger) *ledgerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ledgerStore{path: path, logger: logger}
}

// save serializes the full ledger. Failures propagate: the caller must
// not believe the write succeeded.
func (s *ledgerStore) save(l *Ledger) error {
	doc := ledgerDocument{Version: ledgerSchemaVersion, Holdings: l.Records()}
	if doc.Holdings == nil {
		doc.Holdings = []HoldingRecord{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return WrapError(ErrCodePersistence, "encode ledger snapshot", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return WrapError(ErrCodePersistence, "write ledger snapshot", err)
	}
	return nil
}

// load reads the snapshot and fails soft: any read or parse problem
// yields an empty ledger plus diagnostics, never an error. resolve is
// used only for legacy flat-map documents, which carry no provider IDs.
func (s *ledgerStore) load(resolve func(string) (string, bool)) (*Ledger, []string) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewLedger(), nil
		}
		return NewLedger(), []string{fmt.Sprintf("read ledger snapshot: %v", err)}
	}
	records, diags := decodeLedgerSnapshot(data, resolve)
	ledger, sanitizeDiags := rebuildLedger(records)
	return ledger, append(diags, sanitizeDiags...)
}

// decodeLedgerSnapshot recognizes the three shapes that appeared across
// widget versions: the v1 document, a bare record array, and the legacy
// flat ticker-to-amount map.
func decodeLedgerSnapshot(data []byte, resolve func(string) (string, bool)) ([]HoldingRecord, []string) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, []string{"ledger snapshot is empty; starting with an empty ledger"}
	}

	if trimmed[0] == '[' {
		var records []HoldingRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, []string{fmt.Sprintf("parse ledger record array: %v", err)}
		}
		return records, nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &keys); err != nil {
		return nil, []string{fmt.Sprintf("parse ledger snapshot: %v", err)}
	}
	if _, ok := keys["holdings"]; ok {
		var doc ledgerDocument
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, []string{fmt.Sprintf("parse ledger document: %v", err)}
		}
		if doc.Version > ledgerSchemaVersion {
			return doc.Holdings, []string{fmt.Sprintf("ledger document version %d is newer than supported %d", doc.Version, ledgerSchemaVersion)}
		}
		return doc.Holdings, nil
	}

	var legacy map[string]Amount
	if err := json.Unmarshal(trimmed, &legacy); err != nil {
		return nil, []string{fmt.Sprintf("parse legacy ledger map: %v", err)}
	}
	return migrateLegacyHoldings(legacy, resolve)
}

// migrateLegacyHoldings converts the flat {TICKER: amount} shape into
// record-sequence holdings, resolving each ticker to its provider ID.
// Unresolvable tickers are dropped with a diagnostic rather than
// aborting the whole load. Tickers are emitted in sorted order since
// the legacy map carried none.
func migrateLegacyHoldings(legacy map[string]Amount, resolve func(string) (string, bool)) ([]HoldingRecord, []string) {
	tickers := make([]string, 0, len(legacy))
	for ticker := range legacy {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	var records []HoldingRecord
	var diags []string
	for _, ticker := range tickers {
		providerID, ok := resolve(ticker)
		if !ok {
			diags = append(diags, fmt.Sprintf("legacy holding %q could not be resolved to a provider id; dropped", ticker))
			continue
		}
		records = append(records, HoldingRecord{
			Ticker:     normalizeTicker(ticker),
			ProviderID: providerID,
			Amount:     legacy[ticker],
		})
	}
	return records, diags
}

// rebuildLedger validates loaded records and re-establishes the ledger
// invariants: non-empty provider IDs, non-negative amounts, and one
// record per provider ID (duplicates merge, preserving first position).
func rebuildLedger(records []HoldingRecord) (*Ledger, []string) {
	ledger := NewLedger()
	var diags []string
	for _, rec := range records {
		if rec.ProviderID == "" {
			diags = append(diags, fmt.Sprintf("holding %q has no provider id; dropped", rec.Ticker))
			continue
		}
		if rec.Amount.IsNegative() {
			diags = append(diags, fmt.Sprintf("holding %q has negative amount %s; dropped", rec.Ticker, rec.Amount.String()))
			continue
		}
		if merged, _ := ledger.upsert(normalizeTicker(rec.Ticker), rec.ProviderID, rec.Amount); merged {
			diags = append(diags, fmt.Sprintf("duplicate holding for provider id %q; amounts merged", rec.ProviderID))
		}
	}
	return ledger, diags
}
