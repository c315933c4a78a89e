// Package discovery lists the repositories owned by a team in the Datadog
// service catalog.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultSite is the Datadog site used when none is configured
	DefaultSite = "datadoghq.com"

	pageSize = 200
)

// Config holds the credentials and endpoint for the service catalog
type Config struct {
	APIKey string
	AppKey string
	Site   string

	// BaseURL overrides the https://api.{Site} endpoint
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Datadog is a minimal service catalog client
type Datadog struct {
	baseURL    string
	apiKey     string
	appKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// APIError is a non-2xx response from Datadog
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("datadog: HTTP %d: %s", e.StatusCode, e.Body)
}

// NewDatadog validates cfg and creates a client
func NewDatadog(cfg Config) (*Datadog, error) {
	if cfg.APIKey == "" || cfg.AppKey == "" {
		return nil, fmt.Errorf("DATADOG_API_KEY and DATADOG_APP_KEY are required for discovery")
	}
	base := cfg.BaseURL
	if base == "" {
		site := cfg.Site
		if site == "" {
			site = DefaultSite
		}
		site = strings.TrimPrefix(site, "https://")
		site = strings.TrimPrefix(site, "api.")
		base = "https://api." + strings.TrimRight(site, "/")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Datadog{
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     cfg.APIKey,
		appKey:     cfg.AppKey,
		httpClient: hc,
		logger:     logger.With("component", "discovery"),
	}, nil
}

type servicesResponse struct {
	Data []struct {
		Attributes struct {
			Integrations struct {
				GitHub struct {
					URL           string `json:"url"`
					RepositoryURL string `json:"repository_url"`
					Repository    string `json:"repository"`
				} `json:"github"`
			} `json:"integrations"`
		} `json:"attributes"`
	} `json:"data"`
	Meta struct {
		Page struct {
			TotalFilteredCount *int `json:"total_filtered_count"`
		} `json:"page"`
	} `json:"meta"`
}

// ListRepositories returns the sorted, deduplicated GitHub repository URLs of
// every service owned by team.
func (d *Datadog) ListRepositories(ctx context.Context, team string) ([]string, error) {
	seen := make(map[string]bool)
	for page := 0; ; page++ {
		resp, err := d.fetchPage(ctx, team, page)
		if err != nil {
			return nil, err
		}
		for _, svc := range resp.Data {
			gh := svc.Attributes.Integrations.GitHub
			for _, candidate := range []string{gh.URL, gh.RepositoryURL, gh.Repository} {
				if candidate != "" {
					seen[candidate] = true
				}
			}
		}

		total := resp.Meta.Page.TotalFilteredCount
		if len(resp.Data) < pageSize || (total != nil && (page+1)*pageSize >= *total) {
			break
		}
	}

	repos := make([]string, 0, len(seen))
	for r := range seen {
		repos = append(repos, r)
	}
	sort.Strings(repos)
	d.logger.Info("discovered repositories", "team", team, "count", len(repos))
	return repos, nil
}

func (d *Datadog) fetchPage(ctx context.Context, team string, page int) (*servicesResponse, error) {
	q := url.Values{}
	q.Set("filter[team]", team)
	q.Set("page[size]", strconv.Itoa(pageSize))
	q.Set("page[number]", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/api/v2/services?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("DD-API-KEY", d.apiKey)
	req.Header.Set("DD-APPLICATION-KEY", d.appKey)

	res, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("datadog: list services: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("datadog: reading response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &APIError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out servicesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("datadog: decoding services: %w", err)
	}
	return &out, nil
}
