package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// Locator resolves an IP to a location. Unknown or private addresses return
// models.ErrGeoNotFound.
type Locator interface {
	Locate(ctx context.Context, ip string) (*models.GeoInfo, error)
}

// HTTPLocator queries an ip-api.com compatible JSON endpoint:
// GET {baseURL}/{ip} -> {"status":"success","lat":..,"lon":..,"city":..}.
type HTTPLocator struct {
	baseURL string
	http    *http.Client
}

func NewHTTPLocator(baseURL string, timeout time.Duration) *HTTPLocator {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPLocator{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type lookupResponse struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	City       string  `json:"city"`
	RegionName string  `json:"regionName"`
	Country    string  `json:"country"`
	Org        string  `json:"org"`
}

func (l *HTTPLocator) Locate(ctx context.Context, ip string) (*models.GeoInfo, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return nil, fmt.Errorf("%w: invalid ip %q", models.ErrGeoNotFound, ip)
	}
	if parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() {
		return nil, fmt.Errorf("%w: non-routable ip %s", models.ErrGeoNotFound, ip)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/"+parsed.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: geoip lookup: %v", models.ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, models.ErrGeoNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: geoip lookup returned %d", models.ErrCollaboratorUnavailable, resp.StatusCode)
	}

	var lr lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("decode geoip response: %w", err)
	}
	if lr.Status != "" && lr.Status != "success" {
		return nil, fmt.Errorf("%w: %s", models.ErrGeoNotFound, lr.Message)
	}

	return &models.GeoInfo{
		Lat:     lr.Lat,
		Lon:     lr.Lon,
		City:    lr.City,
		Region:  lr.RegionName,
		Country: lr.Country,
		Org:     lr.Org,
	}, nil
}

// StaticLocator serves fixed coordinates. Used for seeded demo data and
// tests.
type StaticLocator map[string]models.GeoInfo

func (s StaticLocator) Locate(_ context.Context, ip string) (*models.GeoInfo, error) {
	info, ok := s[ip]
	if !ok {
		return nil, models.ErrGeoNotFound
	}
	return &info, nil
}
