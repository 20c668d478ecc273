package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"mcp_blog_generator/agent"
	"mcp_blog_generator/filestore"
	"mcp_blog_generator/pipeline"
)

type fakePipeline struct {
	searchOut string
	searchErr error
	genErr    error
	generated int
}

func (f *fakePipeline) Search(_ context.Context, topic string) (string, error) {
	if f.searchErr != nil {
		return "", &pipeline.Error{Kind: pipeline.Classify(f.searchErr), Step: pipeline.StepSearch, Topic: topic, Err: f.searchErr}
	}
	return f.searchOut, nil
}

func (f *fakePipeline) Generate(_ context.Context, topic, searchResults string) (*pipeline.BlogResult, error) {
	if f.genErr != nil {
		return nil, &pipeline.Error{Kind: pipeline.Classify(f.genErr), Step: pipeline.StepGenerate, Topic: topic, Err: f.genErr}
	}
	f.generated++
	return &pipeline.BlogResult{
		ID:            fmt.Sprint(f.generated),
		Topic:         topic,
		SearchResults: searchResults,
		Title:         topic,
		Digest:        "A short look at " + topic + ".",
		BlogPost:      "# " + topic + "\n\nBody <script>alert(1)</script> text.",
		Filename:      pipeline.Filename(topic, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "md"),
		SaveResult:    "Successfully wrote file",
	}, nil
}

type fixture struct {
	ts    *httptest.Server
	pipe  *fakePipeline
	files *filestore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	files, err := filestore.New(filepath.Join(t.TempDir(), "filestore"))
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	pipeline.NewMetrics(reg)
	pipe := &fakePipeline{searchOut: "1. Result one\n   https://example.com"}
	srv, err := New(Options{
		Pipeline: pipe,
		Files:    files,
		Gatherer: reg,
		Logger:   log.New(io.Discard),
		Now:      func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &fixture{ts: ts, pipe: pipe, files: files}
}

func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func (f *fixture) status(t *testing.T) statusResp {
	t.Helper()
	resp, err := http.Get(f.ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var st statusResp
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestIndex(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `action="/search"`) {
		t.Fatalf("index: %d %s", resp.StatusCode, body)
	}

	resp, err = http.Get(f.ts.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown path status = %d", resp.StatusCode)
	}
}

func TestSearchPage(t *testing.T) {
	f := newFixture(t)
	resp, err := http.PostForm(f.ts.URL+"/search", url.Values{"topic": {"Go & MCP"}})
	if err != nil {
		t.Fatal(err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{
		"Go &amp; MCP",
		"Result one",
		`name="topic" value="Go &amp; MCP"`,
		`name="search_results"`,
		"2024-05-06 07:08:09",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("search page missing %q", want)
		}
	}
	if st := f.status(t); st.HasBlog {
		t.Fatal("search must not populate the result store")
	}
}

func TestSearchErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"config", fmt.Errorf("%w: OPAPIKEY not set", agent.ErrNotConfigured), http.StatusInternalServerError},
		{"upstream", errors.New("connection refused"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.pipe.searchErr = tt.err
			resp, err := http.PostForm(f.ts.URL+"/search", url.Values{"topic": {"quantum"}})
			if err != nil {
				t.Fatal(err)
			}
			body := readBody(t, resp)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if !strings.Contains(body, "quantum") || !strings.Contains(body, tt.err.Error()) {
				t.Fatalf("error page lacks topic or message: %s", body)
			}
		})
	}
}

func TestResultsLifecycle(t *testing.T) {
	f := newFixture(t)
	client := noRedirect()

	resp, err := client.Get(f.ts.URL + "/results")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Fatalf("empty results: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if st := f.status(t); st.HasBlog || st.Status != "running" {
		t.Fatalf("status before generation: %+v", st)
	}

	for _, topic := range []string{"First Topic", "Second Topic"} {
		resp, err = http.PostForm(f.ts.URL+"/generate_blog", url.Values{"topic": {topic}, "search_results": {"r"}})
		if err != nil {
			t.Fatal(err)
		}
		body := readBody(t, resp)
		if resp.StatusCode != http.StatusOK || !strings.Contains(body, "blog_"+strings.ToLower(strings.ReplaceAll(topic, " ", "_"))) {
			t.Fatalf("generate %s: %d %s", topic, resp.StatusCode, body)
		}
	}

	// An intervening search does not touch the stored result.
	resp, err = http.PostForm(f.ts.URL+"/search", url.Values{"topic": {"other"}})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp, err = client.Get(f.ts.URL + "/results")
	if err != nil {
		t.Fatal(err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("results status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "<h1>Second Topic</h1>") || !strings.Contains(body, "blog_second_topic_20240102_030405.md") {
		t.Fatalf("results page does not show the latest post: %s", body)
	}
	if !strings.Contains(body, "<title>Second Topic · MCP Blog Generator</title>") || !strings.Contains(body, "A short look at Second Topic.") {
		t.Fatalf("results page does not show title and digest: %s", body)
	}
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Fatal("raw HTML from the post must not be rendered")
	}

	st := f.status(t)
	if !st.HasBlog {
		t.Fatal("has_blog should be true after generation")
	}
	if _, err := time.Parse(time.RFC3339Nano, st.Timestamp); err != nil {
		t.Fatalf("timestamp %q is not ISO-8601: %v", st.Timestamp, err)
	}
}

func TestGenerateErrorKeepsStoreEmpty(t *testing.T) {
	f := newFixture(t)
	f.pipe.genErr = errors.New("model overloaded")
	resp, err := http.PostForm(f.ts.URL+"/generate_blog", url.Values{"topic": {"ai"}, "search_results": {"x"}})
	if err != nil {
		t.Fatal(err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusBadGateway || !strings.Contains(body, "model overloaded") {
		t.Fatalf("generate error: %d %s", resp.StatusCode, body)
	}
	if st := f.status(t); st.HasBlog {
		t.Fatal("failed generation must not populate the store")
	}
}

func TestDownload(t *testing.T) {
	f := newFixture(t)
	content := "# Hello\n\nbytes 🚀\n"
	if _, err := f.files.Write("blog_hello_20240101_000000.md", content); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(filepath.Dir(f.files.Root()), "secret.txt"), []byte("s"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(f.ts.URL + "/download/blog_hello_20240101_000000.md")
	if err != nil {
		t.Fatal(err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK || body != content {
		t.Fatalf("download: %d %q", resp.StatusCode, body)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="blog_hello_20240101_000000.md"` {
		t.Fatalf("Content-Disposition = %q", cd)
	}

	for _, name := range []string{"missing.md", "..%2Fsecret.txt"} {
		resp, err := http.Get(f.ts.URL + "/download/" + name)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("download %s: status %d, want 404", name, resp.StatusCode)
		}
	}
}

func TestStaticAndMetrics(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.ts.URL + "/static/style.css")
	if err != nil {
		t.Fatal(err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "--accent") {
		t.Fatalf("static: %d", resp.StatusCode)
	}

	resp, err = http.Get(f.ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
}

var downloadHref = regexp.MustCompile(`href="(/download/[^"]+)"`)

func TestDownloadLinkEscapesFilename(t *testing.T) {
	f := newFixture(t)
	for _, topic := range []string{"What is MCP?", "C# tips", "100% Go"} {
		t.Run(topic, func(t *testing.T) {
			resp, err := http.PostForm(f.ts.URL+"/generate_blog", url.Values{"topic": {topic}, "search_results": {"r"}})
			if err != nil {
				t.Fatal(err)
			}
			body := readBody(t, resp)
			m := downloadHref.FindStringSubmatch(body)
			if m == nil {
				t.Fatalf("no download link in %s", body)
			}

			name := pipeline.Filename(topic, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "md")
			if _, err := f.files.Write(name, "post for "+topic); err != nil {
				t.Fatal(err)
			}

			resp, err = http.Get(f.ts.URL + html.UnescapeString(m[1]))
			if err != nil {
				t.Fatal(err)
			}
			got := readBody(t, resp)
			if resp.StatusCode != http.StatusOK || got != "post for "+topic {
				t.Fatalf("following %s: status %d body %q", m[1], resp.StatusCode, got)
			}
		})
	}
}
