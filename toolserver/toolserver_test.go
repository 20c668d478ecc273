package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"mcp_blog_generator/filestore"
)

func TestBraveSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "brave-key" {
			t.Errorf("token header = %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "go generics" {
			t.Errorf("query = %q", got)
		}
		if got := r.URL.Query().Get("count"); got != "2" {
			t.Errorf("count = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"web":{"results":[
			{"title":"A","url":"https://a.example","description":"first"},
			{"title":"B","url":"https://b.example","description":"second"},
			{"title":"C","url":"https://c.example","description":"third"}]}}`))
	}))
	defer ts.Close()

	b := Brave{APIKey: "brave-key", Doer: ts.Client(), BaseURL: ts.URL}
	res, err := b.Search(context.Background(), "  go generics ", 2)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(res) != 2 || res[0].Title != "A" || res[1].Snippet != "second" {
		t.Fatalf("unexpected results: %+v", res)
	}
}

func TestSerperSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("X-API-KEY") != "serper-key" {
			t.Errorf("unexpected request %s key=%q", r.Method, r.Header.Get("X-API-KEY"))
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["q"] != "mcp" {
			t.Errorf("payload = %v", body)
		}
		w.Write([]byte(`{"organic":[{"title":"MCP","link":"https://mcp.example","snippet":"protocol"}]}`))
	}))
	defer ts.Close()

	s := Serper{APIKey: "serper-key", Doer: ts.Client(), BaseURL: ts.URL}
	res, err := s.Search(context.Background(), "mcp", 0)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(res) != 1 || res[0].URL != "https://mcp.example" {
		t.Fatalf("unexpected results: %+v", res)
	}
}

func TestSearchErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	b := Brave{APIKey: "k", Doer: ts.Client(), BaseURL: ts.URL}
	if _, err := b.Search(context.Background(), "x", 3); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
	if _, err := (Brave{}).Search(context.Background(), "x", 3); err == nil {
		t.Fatal("expected missing key error")
	}
	if _, err := (Serper{APIKey: "k"}).Search(context.Background(), " ", 3); err == nil {
		t.Fatal("expected empty query error")
	}
	if _, err := NewSearcher("bing", "k", nil); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestSearchBoundsResponseBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"web":{"results":[{"title":"A","url":"https://a","description":"`))
		w.Write([]byte(strings.Repeat("x", maxResponseBytes)))
		w.Write([]byte(`"}]}}`))
	}))
	defer ts.Close()

	b := Brave{APIKey: "k", Doer: ts.Client(), BaseURL: ts.URL}
	_, err := b.Search(context.Background(), "big", 3)
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("expected decode error on truncated body, got %v", err)
	}
}

func TestFormatResults(t *testing.T) {
	got := FormatResults([]Result{{Title: "A", URL: "https://a", Snippet: "s"}, {Title: "B", URL: "https://b"}})
	want := "1. A\n   https://a\n   s\n2. B\n   https://b"
	if got != want {
		t.Fatalf("FormatResults =\n%q\nwant\n%q", got, want)
	}
	if FormatResults(nil) != "" {
		t.Fatal("expected empty string for no results")
	}
}

func connect(t *testing.T, srv *server.MCPServer) *client.Client {
	t.Helper()
	c, err := client.NewInProcessClient(srv)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "test", Version: "0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func call(t *testing.T, c *client.Client, name string, args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(context.Background(), req)
	if err != nil {
		t.Fatalf("CallTool %s: %v", name, err)
	}
	var parts []string
	for _, content := range res.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n"), res.IsError
}

type fakeSearcher struct {
	results []Result
	err     error
	count   int
}

func (f *fakeSearcher) Search(_ context.Context, _ string, count int) ([]Result, error) {
	f.count = count
	return f.results, f.err
}

func TestSearchServer(t *testing.T) {
	fs := &fakeSearcher{results: []Result{{Title: "Go 1.25", URL: "https://go.dev"}}}
	c := connect(t, NewSearchServer(fs, 5, log.New(io.Discard)))

	tools, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	if err != nil || len(tools.Tools) != 1 || tools.Tools[0].Name != "web_search" {
		t.Fatalf("ListTools = %+v, %v", tools, err)
	}

	out, isErr := call(t, c, "web_search", map[string]any{"query": "go release"})
	if isErr || !strings.Contains(out, "https://go.dev") || fs.count != 5 {
		t.Fatalf("web_search = %q (err=%v, count=%d)", out, isErr, fs.count)
	}
	if _, isErr := call(t, c, "web_search", map[string]any{}); !isErr {
		t.Fatal("missing query should be a tool error")
	}
	fs.err = errors.New("upstream down")
	if out, isErr := call(t, c, "web_search", map[string]any{"query": "x"}); !isErr || !strings.Contains(out, "upstream down") {
		t.Fatalf("expected tool error, got %q", out)
	}
}

func TestFilesystemServer(t *testing.T) {
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := connect(t, NewFilesystemServer(store, log.New(io.Discard)))

	out, isErr := call(t, c, "write_file", map[string]any{"path": "blog_go_20240101_120000.md", "content": "# Go"})
	if isErr || !strings.Contains(out, "blog_go_20240101_120000.md") {
		t.Fatalf("write_file = %q (err=%v)", out, isErr)
	}
	out, isErr = call(t, c, "read_file", map[string]any{"path": "blog_go_20240101_120000.md"})
	if isErr || out != "# Go" {
		t.Fatalf("read_file = %q (err=%v)", out, isErr)
	}
	out, isErr = call(t, c, "list_files", nil)
	if isErr || !strings.HasPrefix(out, "blog_go_20240101_120000.md\t4\t") {
		t.Fatalf("list_files = %q", out)
	}
	if _, isErr := call(t, c, "write_file", map[string]any{"path": "../escape.md", "content": "x"}); !isErr {
		t.Fatal("traversal should be rejected")
	}
	if _, isErr := call(t, c, "read_file", map[string]any{"path": "missing.md"}); !isErr {
		t.Fatal("missing file should be a tool error")
	}
}
