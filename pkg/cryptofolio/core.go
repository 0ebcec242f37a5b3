package cryptofolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultSourceBaseURL  = "https://api.coingecko.com/api/v3"
	defaultCurrency       = "usd"
	defaultPriceCacheTTL  = time.Hour
	defaultSymbolCacheTTL = 24 * time.Hour
	defaultHTTPTimeout    = 10 * time.Second
)

// Options controls Core initialization.
type Options struct {
	// LedgerPath is the JSON snapshot file holding the portfolio.
	LedgerPath string
	// DBPath is the SQLite database for the audit log and insights
	// history. Empty disables both.
	DBPath string
	Logger *slog.Logger
	// Currency is the quote currency for valuation (default "usd").
	Currency string
	// PriceBaseURL and SymbolBaseURL point at the price source API
	// (default CoinGecko v3 for both).
	PriceBaseURL   string
	SymbolBaseURL  string
	PriceCacheTTL  time.Duration
	SymbolCacheTTL time.Duration
	HTTPTimeout    time.Duration
	HTTPClient     HTTPDoer // Optional: inject custom client for testing
}

// session is the per-instance interactive state: the set of selected
// rows and the in-progress edit, if any. It exists exactly once per
// Core and is only touched under the Core mutex.
type session struct {
	selected map[string]struct{}
	edit     *EditState
}

// Core provides access to the portfolio business logic and storage.
// All operations are serialized: one user interaction runs its whole
// read-modify-persist cycle before the next is accepted.
type Core struct {
	mu       sync.Mutex
	logger   *slog.Logger
	ledger   *Ledger
	store    *ledgerStore
	resolver *Resolver
	prices   *priceFetcher
	session  session
	db       *sql.DB

	ledgerPath string
	loadDiags  []string
}

// Open initializes a Core using the provided ledger path.
func Open(ledgerPath string) (*Core, error) {
	return OpenWithOptions(Options{LedgerPath: ledgerPath})
}

// OpenWithOptions initializes a Core using the provided options.
func OpenWithOptions(opts Options) (*Core, error) {
	if opts.LedgerPath == "" {
		return nil, errors.New("ledger path is required")
	}
	cleanPath := filepath.Clean(opts.LedgerPath)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultDuration(opts.HTTPTimeout, defaultHTTPTimeout)}
	}
	priceBase := opts.PriceBaseURL
	if priceBase == "" {
		priceBase = defaultSourceBaseURL
	}
	symbolBase := opts.SymbolBaseURL
	if symbolBase == "" {
		symbolBase = defaultSourceBaseURL
	}
	currency := normalizeCurrency(opts.Currency)
	if currency == "" {
		currency = defaultCurrency
	}

	resolver := newResolver(resolverOptions{
		Logger:   logger,
		BaseURL:  symbolBase,
		CacheTTL: defaultDuration(opts.SymbolCacheTTL, defaultSymbolCacheTTL),
		Client:   client,
	})
	fetcher := newPriceFetcher(priceFetcherOptions{
		Logger:   logger,
		BaseURL:  priceBase,
		Currency: currency,
		CacheTTL: defaultDuration(opts.PriceCacheTTL, defaultPriceCacheTTL),
		Client:   client,
	})

	store := newLedgerStore(cleanPath, logger)
	ledger, diags := store.load(resolver.Resolve)
	for _, diag := range diags {
		logger.Warn("ledger load diagnostic", "detail", diag)
	}

	var db *sql.DB
	if opts.DBPath != "" {
		dbPath := filepath.Clean(opts.DBPath)
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		var err error
		db, err = sql.Open("sqlite", dbPath)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		// SQLite performs best with a single writer.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			logger.Warn("pragma busy_timeout failed", "err", err)
		}
		if err := initDatabase(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init database: %w", err)
		}
	} else {
		logger.Info("no db path configured; operation log disabled")
	}

	return &Core{
		logger:     logger,
		ledger:     ledger,
		store:      store,
		resolver:   resolver,
		prices:     fetcher,
		session:    session{selected: map[string]struct{}{}},
		db:         db,
		ledgerPath: cleanPath,
		loadDiags:  diags,
	}, nil
}

// Close releases database resources.
func (c *Core) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Logger returns the configured logger.
func (c *Core) Logger() *slog.Logger {
	return c.logger
}

// LedgerPath returns the underlying snapshot path.
func (c *Core) LedgerPath() string {
	return c.ledgerPath
}

// LoadDiagnostics reports the non-fatal problems found while loading
// the ledger snapshot at startup.
func (c *Core) LoadDiagnostics() []string {
	out := make([]string, len(c.loadDiags))
	copy(out, c.loadDiags)
	return out
}

// Holdings returns the current ledger records in stored order.
func (c *Core) Holdings() []HoldingRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Records()
}

// ResolveTicker resolves a ticker or full name to its provider ID.
func (c *Core) ResolveTicker(input string) (string, error) {
	id, ok := c.resolver.Resolve(input)
	if ok {
		return id, nil
	}
	if c.resolver.TableSize() == 0 {
		if lastErr := c.resolver.LastError(); lastErr != nil {
			return "", lastErr
		}
	}
	return "", NewError(ErrCodeNotFound, fmt.Sprintf("unknown ticker or name: %s", normalizeTicker(input)))
}

// AddHolding resolves the ticker and adds the amount to the ledger,
// merging into an existing holding of the same provider ID. The full
// ledger is persisted synchronously before the call returns.
func (c *Core) AddHolding(ticker string, amount Amount) (HoldingRecord, error) {
	display := normalizeTicker(ticker)
	if display == "" {
		return HoldingRecord{}, NewError(ErrCodeValidation, "ticker is required")
	}
	if !amount.IsPositive() {
		return HoldingRecord{}, NewError(ErrCodeValidation, "amount must be greater than zero")
	}

	providerID, ok := c.resolver.Resolve(ticker)
	if !ok {
		if c.resolver.TableSize() == 0 && c.resolver.LastError() != nil {
			return HoldingRecord{}, c.resolver.LastError()
		}
		return HoldingRecord{}, NewError(ErrCodeResolution, fmt.Sprintf("unknown ticker or name: %s", display))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	merged, total := c.ledger.upsert(display, providerID, amount)
	if err := c.store.save(c.ledger); err != nil {
		// The in-memory ledger keeps the mutation; it is now known to
		// be out of sync with disk and the caller must be told.
		return HoldingRecord{}, err
	}
	op := OpAdd
	var oldAmount *Amount
	if merged {
		op = OpMerge
		oldAmount = amountPtr(Amount{total.Sub(amount.Decimal)})
	}
	c.logOperation(op, display, providerID, oldAmount, amountPtr(total), "")

	rec, _ := c.ledger.Get(providerID)
	return rec, nil
}

// SetHoldingAmount replaces a holding's amount. Setting the current
// value is a no-op: nothing is persisted and nothing is logged, since a
// mutation is defined as a visible state change.
func (c *Core) SetHoldingAmount(providerID string, amount Amount) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setHoldingAmountLocked(providerID, amount)
}

func (c *Core) setHoldingAmountLocked(providerID string, amount Amount) (bool, error) {
	if amount.IsNegative() {
		return false, NewError(ErrCodeValidation, "amount must not be negative")
	}
	old, changed, ok := c.ledger.setAmount(providerID, amount)
	if !ok {
		return false, NewError(ErrCodeNotFound, fmt.Sprintf("no holding for provider id: %s", providerID))
	}
	if !changed {
		return false, nil
	}
	if err := c.store.save(c.ledger); err != nil {
		return true, err
	}
	rec, _ := c.ledger.Get(providerID)
	c.logOperation(OpEdit, rec.Ticker, providerID, amountPtr(old), amountPtr(amount), "")
	return true, nil
}

// RemoveHoldings deletes every holding whose provider ID is in ids.
// Absent IDs are silently skipped; the snapshot is written once for the
// whole batch. Removed rows also leave the session selection, and an
// in-progress edit of a removed row is discarded.
func (c *Core) RemoveHoldings(ids []string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeHoldingsLocked(ids)
}

func (c *Core) removeHoldingsLocked(ids []string) (int, error) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	removed := c.ledger.remove(set)
	if len(removed) == 0 {
		return 0, nil
	}
	for _, rec := range removed {
		delete(c.session.selected, rec.ProviderID)
		if c.session.edit != nil && c.session.edit.ProviderID == rec.ProviderID {
			c.session.edit = nil
		}
	}
	if err := c.store.save(c.ledger); err != nil {
		return len(removed), err
	}
	for _, rec := range removed {
		c.logOperation(OpDelete, rec.Ticker, rec.ProviderID, amountPtr(rec.Amount), nil, "")
	}
	return len(removed), nil
}

// Summary produces the derived read-only view: valuation rows in ledger
// order, the exact total and the allocation percentages. A price-source
// failure degrades to zero-valued rows plus a diagnostic note; it never
// fails the summary.
func (c *Core) Summary(ctx context.Context) PortfolioSummary {
	c.mu.Lock()
	records := c.ledger.Records()
	c.mu.Unlock()

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ProviderID)
	}
	prices, err := c.prices.prices(ctx, ids)

	rows, total := Valuate(records, prices)
	summary := PortfolioSummary{
		Rows:       rows,
		Total:      total,
		Allocation: Allocate(rows, total),
	}
	if err != nil {
		summary.PriceNote = "price source unavailable; missing prices are valued at 0"
	}
	return summary
}

func defaultDuration(v time.Duration, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}
