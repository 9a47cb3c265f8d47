package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// InstructionFetcher loads an agent instruction file.
type InstructionFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher downloads instruction files and caches them for the life
// of the process.
type HTTPFetcher struct {
	client *http.Client

	mu    sync.RWMutex
	cache map[string]string
}

// NewHTTPFetcher creates a fetcher. A nil client uses http.DefaultClient.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client, cache: make(map[string]string)}
}

// RawURL rewrites a repository "blob" page URL to its raw file URL.
func RawURL(url string) string {
	return strings.Replace(url, "/blob/", "/raw/", 1)
}

// Fetch implements InstructionFetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.RLock()
	text, ok := f.cache[url]
	f.mu.RUnlock()
	if ok {
		return text, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, RawURL(url), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch instruction file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch instruction file: %s (%d)", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read instruction file: %w", err)
	}

	text = string(body)
	f.mu.Lock()
	f.cache[url] = text
	f.mu.Unlock()
	return text, nil
}
