package cryptofolio

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeSource is an in-process stand-in for the market data API. It
// serves the bulk instrument listing and batch quotes and counts the
// calls so tests can assert on caching behavior.
type fakeSource struct {
	server *httptest.Server

	mu          sync.Mutex
	instruments []Instrument
	quotes      map[string]float64
	failList    bool
	failPrices  bool
	listCalls   int
	priceCalls  int
}

func newFakeSource(t *testing.T) *fakeSource {
	t.Helper()
	fs := &fakeSource{
		instruments: []Instrument{
			{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"},
			{ID: "ethereum", Symbol: "eth", Name: "Ethereum"},
			{ID: "cardano", Symbol: "ada", Name: "Cardano"},
		},
		quotes: map[string]float64{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/coins/list", fs.handleList)
	mux.HandleFunc("/simple/price", fs.handlePrices)
	fs.server = httptest.NewServer(mux)
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeSource) handleList(w http.ResponseWriter, _ *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.listCalls++
	if fs.failList {
		http.Error(w, "upstream down", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(fs.instruments)
}

func (fs *fakeSource) handlePrices(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.priceCalls++
	if fs.failPrices {
		http.Error(w, "upstream down", http.StatusInternalServerError)
		return
	}
	currency := r.URL.Query().Get("vs_currencies")
	payload := map[string]map[string]float64{}
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if price, ok := fs.quotes[id]; ok {
			payload[id] = map[string]float64{currency: price}
		}
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (fs *fakeSource) setQuote(id string, price float64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.quotes[id] = price
}

func (fs *fakeSource) setFailures(list, prices bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.failList = list
	fs.failPrices = prices
}

func (fs *fakeSource) calls() (list, prices int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.listCalls, fs.priceCalls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestCore opens a Core against temp storage and the fake source.
func setupTestCore(t *testing.T, src *fakeSource) *Core {
	t.Helper()
	dir := t.TempDir()
	core, err := OpenWithOptions(Options{
		LedgerPath:    filepath.Join(dir, "holdings.json"),
		DBPath:        filepath.Join(dir, "cryptofolio.db"),
		Logger:        testLogger(),
		PriceBaseURL:  src.server.URL,
		SymbolBaseURL: src.server.URL,
		HTTPClient:    src.server.Client(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })
	return core
}
