package cryptofolio

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type resolverOptions struct {
	Logger   *slog.Logger
	BaseURL  string
	CacheTTL time.Duration
	Client   HTTPDoer
}

// Resolver maps user-typed tickers and full asset names to the
// canonical provider ID, case-insensitively. The lookup table is a
// snapshot of the source's bulk instrument listing, refreshed lazily
// once its freshness window (24h by default) expires. The resolver
// never guesses: an input matching neither a symbol nor a name is not
// found.
type Resolver struct {
	logger   *slog.Logger
	baseURL  string
	cacheTTL time.Duration
	client   HTTPDoer

	mu        sync.RWMutex
	table     map[string]string
	fetchedAt time.Time
	lastErr   error
}

func newResolver(opts resolverOptions) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		logger:   logger,
		baseURL:  opts.BaseURL,
		cacheTTL: opts.CacheTTL,
		client:   opts.Client,
		table:    map[string]string{},
	}
}

// Resolve trims and case-folds input and looks it up in the instrument
// table. It refreshes a stale table first; a refresh failure degrades to
// the previous (possibly empty) table rather than propagating.
func (r *Resolver) Resolve(input string) (string, bool) {
	key := normalizeKey(input)
	if key == "" {
		return "", false
	}
	r.refreshIfStale()
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.table[key]
	return id, ok
}

// TableSize returns the number of lookup keys currently known.
func (r *Resolver) TableSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.table)
}

// LastError returns the most recent refresh failure, or nil after a
// successful refresh.
func (r *Resolver) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func (r *Resolver) refreshIfStale() {
	r.mu.RLock()
	fresh := !r.fetchedAt.IsZero() && time.Since(r.fetchedAt) <= r.cacheTTL
	r.mu.RUnlock()
	if fresh {
		return
	}

	instruments, err := r.fetchInstruments()
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.logger.Warn("symbol list source unavailable", "err", err)
		r.lastErr = WrapError(ErrCodeSourceUnavailable, "fetch instrument listing", err)
		// Back off for a fraction of the window so every keystroke does
		// not hammer a dead source. The backoff never exceeds a quarter
		// of the window, so fetchedAt stays in the past and retries
		// resume within the TTL even when it is configured very short.
		backoff := time.Minute
		if quarter := r.cacheTTL / 4; quarter < backoff {
			backoff = quarter
		}
		r.fetchedAt = time.Now().Add(-r.cacheTTL + backoff)
		return
	}
	r.table = buildLookupTable(instruments)
	r.fetchedAt = time.Now()
	r.lastErr = nil
	r.logger.Info("instrument table refreshed", "instruments", len(instruments), "keys", len(r.table))
}

func (r *Resolver) fetchInstruments() ([]Instrument, error) {
	ctx := context.Background()
	var instruments []Instrument
	if err := httpGetJSON(ctx, r.client, r.baseURL+"/coins/list", &instruments); err != nil {
		return nil, err
	}
	return instruments, nil
}

// buildLookupTable indexes both the symbol and the full name of every
// instrument (many keys to one ID). When two instruments claim the same
// key the first listing entry wins, which keeps resolution stable across
// refreshes of the same listing.
func buildLookupTable(instruments []Instrument) map[string]string {
	table := make(map[string]string, len(instruments)*2)
	for _, inst := range instruments {
		if inst.ID == "" {
			continue
		}
		for _, key := range []string{normalizeKey(inst.Symbol), normalizeKey(inst.Name)} {
			if key == "" {
				continue
			}
			if _, taken := table[key]; taken {
				continue
			}
			table[key] = inst.ID
		}
	}
	return table
}
