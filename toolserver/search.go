// Package toolserver holds the MCP tool servers bundled with mcpblog: a web
// search server and a filesystem server over the artifact directory.
package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnsupportedProvider is returned for an unknown search provider name.
var ErrUnsupportedProvider = errors.New("unsupported search provider")

const (
	ProviderBrave  = "brave"
	ProviderSerper = "serper"

	defaultBraveURL  = "https://api.search.brave.com/res/v1/web/search"
	defaultSerperURL = "https://google.serper.dev/search"
	defaultCount     = 8
	maxCount         = 20

	maxResponseBytes = 2 << 20
)

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Searcher runs a web query and returns at most count results.
type Searcher interface {
	Search(ctx context.Context, query string, count int) ([]Result, error)
}

// NewSearcher builds the client for provider. An empty key is reported on the
// first search so the server can still start and list its tools.
func NewSearcher(provider, apiKey string, doer Doer) (Searcher, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderBrave:
		return Brave{APIKey: apiKey, Doer: doer}, nil
	case ProviderSerper:
		return Serper{APIKey: apiKey, Doer: doer}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
}

type Brave struct {
	APIKey  string
	Doer    Doer
	BaseURL string
}

func (b Brave) Search(ctx context.Context, query string, count int) ([]Result, error) {
	query, count, err := normalize("brave", b.APIKey, query, count)
	if err != nil {
		return nil, err
	}
	base := b.BaseURL
	if base == "" {
		base = defaultBraveURL
	}
	u := fmt.Sprintf("%s?q=%s&count=%d", base, url.QueryEscape(query), count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	body, err := do(doerOrDefault(b.Doer), req, "brave")
	if err != nil {
		return nil, err
	}
	var raw struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("brave: decode: %w", err)
	}
	out := make([]Result, 0, len(raw.Web.Results))
	for _, r := range raw.Web.Results {
		if len(out) >= count {
			break
		}
		out = append(out, Result{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return out, nil
}

type Serper struct {
	APIKey  string
	Doer    Doer
	BaseURL string
}

func (s Serper) Search(ctx context.Context, query string, count int) ([]Result, error) {
	query, count, err := normalize("serper", s.APIKey, query, count)
	if err != nil {
		return nil, err
	}
	base := s.BaseURL
	if base == "" {
		base = defaultSerperURL
	}
	payload, _ := json.Marshal(map[string]any{"q": query, "num": count})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base, strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	body, err := do(doerOrDefault(s.Doer), req, "serper")
	if err != nil {
		return nil, err
	}
	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("serper: decode: %w", err)
	}
	out := make([]Result, 0, len(raw.Organic))
	for _, r := range raw.Organic {
		if len(out) >= count {
			break
		}
		out = append(out, Result{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return out, nil
}

func normalize(name, key, query string, count int) (string, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", 0, fmt.Errorf("%s: empty query", name)
	}
	if key == "" {
		return "", 0, fmt.Errorf("%s: api key is not set", name)
	}
	if count < 1 || count > maxCount {
		count = defaultCount
	}
	return query, count, nil
}

func doerOrDefault(d Doer) Doer {
	if d == nil {
		return &http.Client{Timeout: 20 * time.Second}
	}
	return d
}

func do(d Doer, req *http.Request, name string) ([]byte, error) {
	resp, err := d.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %d: %s", name, resp.StatusCode, truncate(string(body), 300))
	}
	return body, nil
}

// FormatResults renders hits as a numbered plain-text list for the model.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if s := strings.TrimSpace(r.Snippet); s != "" {
			fmt.Fprintf(&b, "   %s\n", s)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
