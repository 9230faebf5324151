package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Locator queries an ipapi-style service: GET {base}/{ip}/json.
type Locator struct {
	baseURL    string
	httpClient *http.Client
}

// NewLocator creates a geolocation client for baseURL.
func NewLocator(baseURL string) *Locator {
	return &Locator{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type lookupResponse struct {
	ContinentCode string `json:"continent_code"`
	Error         bool   `json:"error"`
	Reason        string `json:"reason"`
}

// LookupContinent returns the continent code for ip.
func (l *Locator) LookupContinent(ctx context.Context, ip string) (string, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "", fmt.Errorf("invalid ip address %q", ip)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/json", l.baseURL, parsed.String()), nil)
	if err != nil {
		return "", fmt.Errorf("building geolocation request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("geolocation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geolocation request: status %d", resp.StatusCode)
	}

	var out lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding geolocation response: %w", err)
	}
	if out.Error {
		return "", fmt.Errorf("geolocation lookup: %s", out.Reason)
	}
	if out.ContinentCode == "" {
		return "", fmt.Errorf("geolocation lookup: no continent for %s", parsed)
	}

	return out.ContinentCode, nil
}
