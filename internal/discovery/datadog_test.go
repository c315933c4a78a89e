package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func service(url string) map[string]any {
	return map[string]any{
		"attributes": map[string]any{
			"integrations": map[string]any{
				"github": map[string]any{"url": url},
			},
		},
	}
}

func TestNewDatadog_RequiresKeys(t *testing.T) {
	if _, err := NewDatadog(Config{APIKey: "a"}); err == nil {
		t.Error("expected error without app key")
	}
}

func TestNewDatadog_Site(t *testing.T) {
	tests := []struct {
		site, want string
	}{
		{"", "https://api.datadoghq.com"},
		{"datadoghq.eu", "https://api.datadoghq.eu"},
		{"https://api.us5.datadoghq.com/", "https://api.us5.datadoghq.com"},
	}
	for _, tt := range tests {
		d, err := NewDatadog(Config{APIKey: "a", AppKey: "b", Site: tt.site})
		if err != nil {
			t.Fatal(err)
		}
		if d.baseURL != tt.want {
			t.Errorf("site %q: baseURL = %q, want %q", tt.site, d.baseURL, tt.want)
		}
	}
}

func TestListRepositories_Paginates(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/services" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("DD-API-KEY") != "api" || r.Header.Get("DD-APPLICATION-KEY") != "app" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Query().Get("filter[team]") != "payments" {
			t.Errorf("team filter = %q", r.URL.Query().Get("filter[team]"))
		}
		page := r.URL.Query().Get("page[number]")
		pages = append(pages, page)

		var data []map[string]any
		if page == "0" {
			for i := 0; i < pageSize; i++ {
				data = append(data, service("https://github.com/acme/svc-"+strconv.Itoa(i%3)))
			}
		} else {
			data = append(data, service("https://github.com/acme/billing"), map[string]any{"attributes": map[string]any{}})
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	d, err := NewDatadog(Config{APIKey: "api", AppKey: "app", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	got, err := d.ListRepositories(context.Background(), "payments")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"https://github.com/acme/billing",
		"https://github.com/acme/svc-0",
		"https://github.com/acme/svc-1",
		"https://github.com/acme/svc-2",
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if fmt.Sprint(pages) != "[0 1]" {
		t.Errorf("pages = %v", pages)
	}
}

func TestListRepositories_StopsAtTotal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var data []map[string]any
		for i := 0; i < pageSize; i++ {
			data = append(data, service("https://github.com/acme/x"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": data,
			"meta": map[string]any{"page": map[string]any{"total_filtered_count": pageSize}},
		})
	}))
	defer srv.Close()

	d, _ := NewDatadog(Config{APIKey: "a", AppKey: "b", BaseURL: srv.URL})
	got, err := d.ListRepositories(context.Background(), "t")
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 || len(got) != 1 {
		t.Errorf("calls = %d, repos = %v", calls, got)
	}
}

func TestListRepositories_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"errors":["Forbidden"]}`)
	}))
	defer srv.Close()

	d, _ := NewDatadog(Config{APIKey: "a", AppKey: "b", BaseURL: srv.URL})
	_, err := d.ListRepositories(context.Background(), "t")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("err = %v, want APIError 403", err)
	}
}
