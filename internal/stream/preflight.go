package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// EligibilityChecker answers the pre-flight question: may this client open a
// streaming connection right now? A definitive "no" fails the connect fast;
// a failed check request is treated like any other failed connection attempt.
type EligibilityChecker interface {
	CanConnect(ctx context.Context) (bool, error)
}

// HTTPEligibilityChecker calls GET {BaseURL}/api/streaming/connection-check
// with bearer auth. Success payload: {"success": bool, "data": {"canConnect": bool}}.
type HTTPEligibilityChecker struct {
	BaseURL     string
	AccessToken string
	Client      *http.Client
}

// NewHTTPEligibilityChecker creates a checker with a 7s request timeout,
// matching the feed's REST client defaults.
func NewHTTPEligibilityChecker(baseURL, accessToken string) *HTTPEligibilityChecker {
	return &HTTPEligibilityChecker{
		BaseURL:     baseURL,
		AccessToken: accessToken,
		Client:      &http.Client{Timeout: 7 * time.Second},
	}
}

// CanConnect performs the capability check. The bool is only meaningful when
// err is nil.
func (c *HTTPEligibilityChecker) CanConnect(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.BaseURL+"/api/streaming/connection-check", nil)
	if err != nil {
		return false, fmt.Errorf("connection-check request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("connection-check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("connection-check: status %d", resp.StatusCode)
	}

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			CanConnect bool `json:"canConnect"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("connection-check decode: %w", err)
	}

	return body.Success && body.Data.CanConnect, nil
}
