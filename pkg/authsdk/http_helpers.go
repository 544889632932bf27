package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// url builds a complete URL by appending the path to the base URL.
func (c *SDKClient) url(path string) string {
	return c.BaseURL + path
}

// doRequest performs a request through the intercepted HTTP client. The
// bearer token, if any, is added by the transport.
func (c *SDKClient) doRequest(
	ctx context.Context,
	method, path string,
	body io.Reader,
	headers map[string]string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	return resp, nil
}

// doJSON marshals in (when non-nil) as the request body.
func (c *SDKClient) doJSON(ctx context.Context, method, path string, in any) (*http.Response, error) {
	if in == nil {
		return c.doRequest(ctx, method, path, nil, nil)
	}

	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.doRequest(ctx, method, path, bytes.NewReader(data), map[string]string{
		"Content-Type": "application/json",
	})
}

// Do sends in as JSON to path and decodes a 2xx answer into out. Either may
// be nil. Non-2xx answers come back as *APIError.
func (c *SDKClient) Do(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.doJSON(ctx, method, path, in)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out, defaultMessage)
}

// GetRaw fetches path and returns the body of a 2xx answer as-is.
func (c *SDKClient) GetRaw(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if err := parseErrorResponse(resp, body, defaultMessage); err != nil {
		return nil, err
	}
	return body, nil
}

// decodeJSON decodes a 2xx response into target (skipped when nil) and
// turns anything else into an *APIError, worded by fallback when the body
// carries no message.
func decodeJSON(resp *http.Response, target any, fallback func(int) string) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := parseErrorResponse(resp, bodyBytes, fallback); err != nil {
		return err
	}

	if target == nil || len(bodyBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
