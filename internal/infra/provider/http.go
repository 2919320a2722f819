package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// defaultTimeout bounds a single upstream HTTP call. The assistants poll loop
// carries its own wall-clock budget on top of this.
const defaultTimeout = 120 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// postJSON marshals body, POSTs it with the given headers, and returns the
// raw response bytes. Any transport failure or non-2xx status comes back as a
// *ProviderError labeled with the calling adapter's name.
func postJSON(ctx context.Context, client *http.Client, providerName, url string, headers map[string]string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Provider: providerName, Message: "marshal request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &ProviderError{Provider: providerName, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doRequest(client, providerName, req)
}

// getJSON issues a GET with the given headers and returns the raw response
// bytes, with the same error mapping as postJSON.
func getJSON(ctx context.Context, client *http.Client, providerName, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ProviderError{Provider: providerName, Message: "build request", Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doRequest(client, providerName, req)
}

func doRequest(client *http.Client, providerName string, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: providerName, Message: "request failed", Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: providerName, Message: "read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Message:    truncate(string(raw), 512),
		}
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
