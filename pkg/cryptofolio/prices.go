package cryptofolio

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

// MissingPriceDefault is the price substituted for any provider ID the
// source did not quote. Missing prices zero the holding's value instead
// of failing the whole summary; this is deliberate policy, not a
// fallback accident.
var MissingPriceDefault = NewAmount(0)

type priceFetcherOptions struct {
	Logger   *slog.Logger
	BaseURL  string
	Currency string
	CacheTTL time.Duration
	Client   HTTPDoer
}

// priceFetcher fetches batch quotes from the price source and caches
// them per provider ID for a validity window. Within the window repeated
// summaries never re-issue the network call for a cached ID.
type priceFetcher struct {
	logger   *slog.Logger
	baseURL  string
	currency string
	cacheTTL time.Duration
	client   HTTPDoer

	mu    sync.RWMutex
	cache map[string]priceEntry
}

type priceEntry struct {
	price Amount
	ts    time.Time
}

func newPriceFetcher(opts priceFetcherOptions) *priceFetcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &priceFetcher{
		logger:   logger,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		currency: normalizeCurrency(opts.Currency),
		cacheTTL: opts.CacheTTL,
		client:   opts.Client,
		cache:    map[string]priceEntry{},
	}
}

// prices returns a quote per requested provider ID, serving cached
// entries where fresh and fetching only the missing IDs in one batch
// call. On source failure it degrades: cached quotes are still returned
// and the error is reported alongside so the caller can surface a
// diagnostic instead of crashing.
func (pf *priceFetcher) prices(ctx context.Context, ids []string) (PriceMap, error) {
	result := PriceMap{}
	if len(ids) == 0 {
		return result, nil
	}

	now := time.Now()
	missing := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))

	pf.mu.RLock()
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if entry, ok := pf.cache[id]; ok && now.Sub(entry.ts) <= pf.cacheTTL {
			result[id] = entry.price
			continue
		}
		missing = append(missing, id)
	}
	pf.mu.RUnlock()

	if len(missing) == 0 {
		return result, nil
	}

	quotes, err := pf.fetch(ctx, missing)
	if err != nil {
		pf.logger.Warn("price source unavailable", "err", err, "ids", len(missing))
		return result, WrapError(ErrCodeSourceUnavailable, "fetch prices", err)
	}

	pf.mu.Lock()
	for _, id := range missing {
		price, ok := quotes[id]
		if !ok {
			// Absent from the response: quoted as the missing-price
			// default and cached so the window contract holds for
			// unknown IDs too.
			price = MissingPriceDefault
		}
		pf.cache[id] = priceEntry{price: price, ts: now}
		result[id] = price
	}
	pf.mu.Unlock()

	return result, nil
}

// fetch issues the batch quote call: comma-joined provider IDs plus the
// target currency, answered as {id: {currency: price}}.
func (pf *priceFetcher) fetch(ctx context.Context, ids []string) (PriceMap, error) {
	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", pf.currency)
	endpoint := pf.baseURL + "/simple/price?" + query.Encode()

	var payload map[string]map[string]float64
	if err := httpGetJSON(ctx, pf.client, endpoint, &payload); err != nil {
		return nil, err
	}

	quotes := PriceMap{}
	for id, currencies := range payload {
		value, ok := currencies[pf.currency]
		if !ok {
			continue
		}
		if value < 0 {
			pf.logger.Warn("price source returned negative quote", "id", id, "price", value)
			continue
		}
		quotes[id] = NewAmount(value)
	}
	return quotes, nil
}
