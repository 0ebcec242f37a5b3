package cryptofolio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPDoer is an interface for making HTTP requests. It enables
// dependency injection for testing without network calls.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// maxResponseSize limits external API responses to 4MB to prevent memory
// exhaustion; the bulk instrument listing is the largest payload we read.
const maxResponseSize = 4 << 20

// httpGetJSON issues a GET against an external source and decodes the
// JSON body into out. There is no retry: a timeout and a transport error
// are treated identically by callers.
func httpGetJSON(ctx context.Context, client HTTPDoer, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
