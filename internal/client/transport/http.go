// Package transport is the HTTP boundary between the reconciler and the
// server. It attaches credentials, bounds every request with a timeout,
// and classifies failures so the reconciler can tell a retryable outage
// from a terminal rejection.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/prudhvinik1/fieldsync/internal/syncerr"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	timeout time.Duration
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
		timeout: timeout,
	}
}

// SubmitBatch posts a mutation batch to /sync/bulk. A transport-level
// error or timeout means the response was never observed; the caller
// must treat every entry as unsent, never as applied.
func (c *Client) SubmitBatch(ctx context.Context, entries []models.SyncEntry) (*models.BulkSyncResponse, error) {
	body, err := json.Marshal(models.BulkSyncRequest{Entries: entries})
	if err != nil {
		return nil, syncerr.Validation("submit_batch", err)
	}

	var resp models.BulkSyncResponse
	if err := c.do(ctx, http.MethodPost, "/sync/bulk", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches the organization's server-side sync status.
func (c *Client) Status(ctx context.Context) (*models.SyncStatusResponse, error) {
	var resp models.SyncStatusResponse
	if err := c.do(ctx, http.MethodGet, "/sync/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResolveConflict submits a user's resolution choice for an open
// conflict.
func (c *Client) ResolveConflict(ctx context.Context, conflictID int64, req models.ResolveConflictRequest) (*models.ResolveConflictResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, syncerr.Validation("resolve_conflict", err)
	}

	var resp models.ResolveConflictResponse
	path := fmt.Sprintf("/sync/conflicts/%d/resolve", conflictID)
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return syncerr.Validation("transport", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return syncerr.Transient("transport", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, resp.Body); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return syncerr.Transient("transport", fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func classifyStatus(status int, body io.Reader) error {
	if status >= 200 && status < 300 {
		return nil
	}

	msg := readError(body)
	err := fmt.Errorf("server returned %d: %s", status, msg)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return syncerr.Auth("transport", err)
	case status == http.StatusConflict:
		return syncerr.Conflict("transport", err)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return syncerr.Transient("transport", err)
	default:
		// Remaining 4xx: the request itself is wrong and a retry
		// cannot fix it.
		return syncerr.Validation("transport", err)
	}
}

func readError(body io.Reader) string {
	var parsed struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return "unreadable error body"
	}
	if json.Unmarshal(data, &parsed) == nil && parsed.Error != "" {
		return parsed.Error
	}
	return strings.TrimSpace(string(data))
}
