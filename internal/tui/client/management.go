// ABOUTME: HTTP client for the relay management API
// ABOUTME: Fetches engine health so the watcher can show pending work beside the feed
package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harper/codeql-relay/internal/errors"
)

// Health mirrors /api/health.
type Health struct {
	Status          string `json:"status"`
	EngineRunning   bool   `json:"engine_running"`
	InstanceID      string `json:"instance_id"`
	CodeQLPath      string `json:"codeql_path"`
	Mode            string `json:"mode"`
	PendingRequests int    `json:"pending_requests"`
	FramingErrors   int64  `json:"framing_errors"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

// ManagementBaseURL derives the management API root from a feed URL, which
// is served on the same listener.
func ManagementBaseURL(feedURL string) (string, error) {
	u, err := url.Parse(feedURL)
	if err != nil {
		return "", errors.Wrapf(err, "parse feed url %q", feedURL)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", errors.Newf("feed url must be ws:// or wss://, got %q", feedURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws/progress")
	u.RawQuery = ""
	return strings.TrimSuffix(u.String(), "/"), nil
}

// FetchHealth queries /api/health. A degraded relay answers 503 with a body,
// which is still returned.
func FetchHealth(ctx context.Context, baseURL string) (*Health, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/health", nil)
	if err != nil {
		return nil, errors.Wrap(err, "build health request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch health")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, errors.Newf("unexpected status code: %d", resp.StatusCode)
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, errors.Wrap(err, "decode health")
	}
	return &h, nil
}
