package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"route-limiter/middleware/ratelimit/domain"
)

// HTTPGeoLocator consulta um serviço no formato do ip-api.com
// (GET <base>/<ip> -> {"status":"success","country":"..","city":".."}).
type HTTPGeoLocator struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPGeoLocator(baseURL string) *HTTPGeoLocator {
	if baseURL == "" {
		baseURL = "http://ip-api.com/json"
	}
	return &HTTPGeoLocator{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 3 * time.Second},
	}
}

type geoResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Country string `json:"country"`
	City    string `json:"city"`
}

func (g *HTTPGeoLocator) Locate(ctx context.Context, ip string) (domain.Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/"+url.PathEscape(ip), nil)
	if err != nil {
		return domain.Location{}, err
	}

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return domain.Location{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Location{}, fmt.Errorf("geo lookup returned %d", resp.StatusCode)
	}

	var out geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Location{}, fmt.Errorf("decode geo response: %w", err)
	}
	if out.Status != "" && out.Status != "success" {
		return domain.Location{}, fmt.Errorf("geo lookup failed: %s", out.Message)
	}
	return domain.Location{Country: out.Country, City: out.City}, nil
}
