// Package client provides a Go SDK for the Autopilot HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/salesloop/autopilot/pkg/models"
)

// Client calls the Autopilot HTTP API. It is safe for concurrent use.
type Client struct {
	BaseURL    string       // e.g. "http://localhost:8745"
	APIKey     string       // optional; set for X-API-Key
	HTTPClient *http.Client // optional; nil uses http.DefaultClient
}

// New returns a client for the given base URL (e.g. "http://localhost:8745").
// APIKey is optional; when set, requests use the X-API-Key header.
func New(baseURL, apiKey string) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey}
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}
	u := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	return c.client().Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error != "" {
			return fmt.Errorf("api %s %s: %s", method, path, errBody.Error)
		}
		return fmt.Errorf("api %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Health returns the /health response (ok: true).
func (c *Client) Health(ctx context.Context) (ok bool, err error) {
	var out struct {
		OK bool `json:"ok"`
	}
	err = c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out.OK, err
}

// RecordSignal records one response signal. The server accepts with 202
// unconditionally once the payload validates; storage failures on its side
// never surface here.
func (c *Client) RecordSignal(ctx context.Context, sig models.Signal) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/signals", sig, nil)
}

// Evaluate runs the trigger ladder for a (user, org, action type) and
// executes the demotion when one fires. The returned response carries the
// verdict and whether a demotion was applied.
func (c *Client) Evaluate(ctx context.Context, userID, orgID, actionType string) (*models.EvaluationResponse, error) {
	req := models.EvaluationRequest{UserID: userID, OrgID: orgID, ActionType: actionType}
	var out models.EvaluationResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1/evaluations", req, &out)
	return &out, err
}

// GetTier returns tier state for a (user, action type) pair.
func (c *Client) GetTier(ctx context.Context, userID, actionType string) (*models.TierState, error) {
	path := "/v1/tiers/" + url.PathEscape(userID) + "/" + url.PathEscape(actionType)
	var out models.TierState
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return &out, err
}

// ListAudit returns recent audit events for a user, newest first (limit 0 = default).
func (c *Client) ListAudit(ctx context.Context, orgID, userID string, limit int) ([]models.AuditEvent, error) {
	path := "/v1/audit?org_id=" + url.QueryEscape(orgID) + "&user_id=" + url.QueryEscape(userID)
	if limit > 0 {
		path += "&limit=" + strconv.Itoa(limit)
	}
	var out []models.AuditEvent
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}
