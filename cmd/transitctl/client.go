// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/transitpulse/internal/models"
	"github.com/tomtom215/transitpulse/internal/reference"
)

// APIError is a non-success envelope returned by the ops API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Client calls the TransitPulse ops API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API URL %q", baseURL)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// envelope mirrors models.APIResponse with a typed payload.
type envelope[T any] struct {
	Status string           `json:"status"`
	Data   T                `json:"data"`
	Error  *models.APIError `json:"error"`
}

func do[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var zero T
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return zero, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return zero, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return zero, fmt.Errorf("decode %s response (HTTP %d): %w", path, resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || env.Status != "success" {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: "HTTP_ERROR", Message: resp.Status}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return zero, apiErr
	}
	return env.Data, nil
}

// Refresh triggers a full refresh of every layer.
func (c *Client) Refresh(ctx context.Context) (*models.RefreshResult, error) {
	return do[*models.RefreshResult](ctx, c, http.MethodPost, "/refresh", nil)
}

// RefreshIncremental triggers an incremental refresh.
func (c *Client) RefreshIncremental(ctx context.Context) (*models.RefreshResult, error) {
	return do[*models.RefreshResult](ctx, c, http.MethodPost, "/refresh/incremental", nil)
}

// RefreshBaseConcurrent triggers the parallel Base rebuild.
func (c *Client) RefreshBaseConcurrent(ctx context.Context) (*models.RefreshResult, error) {
	return do[*models.RefreshResult](ctx, c, http.MethodPost, "/refresh/base/concurrent", nil)
}

// RefreshLayer refreshes one layer.
func (c *Client) RefreshLayer(ctx context.Context, layer models.Layer) (*models.RefreshResult, error) {
	return do[*models.RefreshResult](ctx, c, http.MethodPost, "/refresh/"+url.PathEscape(string(layer)), nil)
}

// Archive runs retention.
func (c *Client) Archive(ctx context.Context) (*models.ArchiveResult, error) {
	return do[*models.ArchiveResult](ctx, c, http.MethodPost, "/archive", nil)
}

// ReloadReference re-reads the reference catalogue.
func (c *Client) ReloadReference(ctx context.Context) (*reference.ReloadResult, error) {
	return do[*reference.ReloadResult](ctx, c, http.MethodPost, "/reference/reload", nil)
}

// Ledger returns every ledger entry in dependency order.
func (c *Client) Ledger(ctx context.Context) ([]models.LedgerEntry, error) {
	return do[[]models.LedgerEntry](ctx, c, http.MethodGet, "/ledger", nil)
}
