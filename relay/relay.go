// Package relay forwards form submissions to Formspree.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the Formspree form endpoint prefix; the form ID is
// appended as the final path segment.
const DefaultBaseURL = "https://formspree.io/f"

// maxErrorBody bounds how much of a failed response we keep.
const maxErrorBody = 1 << 16

// Error is returned when the form service answers with a non-2xx status.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("form service returned %d: %s", e.StatusCode, e.Body)
}

// Client posts JSON payloads to the form service.
type Client struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient returns a Client for baseURL. An empty baseURL uses
// DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    baseURL,
		Timeout:    timeout,
		HTTPClient: &http.Client{},
	}
}

// Endpoint returns the submission URL for formID.
func (c *Client) Endpoint(formID string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + url.PathEscape(formID)
}

// Submit posts payload as JSON to the form identified by formID. Every call
// creates a new downstream record; nothing is deduplicated.
func (c *Client) Submit(ctx context.Context, formID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode relay payload: %w", err)
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(formID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err != nil {
			return fmt.Errorf("read relay error body: %w", err)
		}
		return &Error{StatusCode: resp.StatusCode, Body: string(text)}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
