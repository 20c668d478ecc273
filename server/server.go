package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mcp_blog_generator/filestore"
	"mcp_blog_generator/pipeline"
)

//go:embed web/templates/*.html web/static/*
var embedded embed.FS

const pageTimeFormat = "2006-01-02 15:04:05"

// Pipeline is the part of *pipeline.Pipeline the handlers call.
type Pipeline interface {
	Search(ctx context.Context, topic string) (string, error)
	Generate(ctx context.Context, topic, searchResults string) (*pipeline.BlogResult, error)
}

// Options wires the server to its collaborators.
type Options struct {
	Pipeline Pipeline
	Store    *pipeline.ResultStore
	Files    *filestore.Store
	// Gatherer backs /metrics; the route is omitted when nil.
	Gatherer prometheus.Gatherer
	Logger   *log.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	pipe     Pipeline
	store    *pipeline.ResultStore
	files    *filestore.Store
	gatherer prometheus.Gatherer
	logger   *log.Logger
	now      func() time.Time
	pages    *template.Template
	static   http.Handler
}

func New(opts Options) (*Server, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("pipeline required")
	}
	if opts.Files == nil {
		return nil, errors.New("artifact store required")
	}
	if opts.Store == nil {
		opts.Store = &pipeline.ResultStore{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	pages, err := template.New("").Funcs(template.FuncMap{
		"markdown":   renderMarkdown,
		"pathescape": url.PathEscape,
	}).
		ParseFS(embedded, "web/templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	sub, err := fs.Sub(embedded, "web/static")
	if err != nil {
		return nil, err
	}

	return &Server{
		pipe:     opts.Pipeline,
		store:    opts.Store,
		files:    opts.Files,
		gatherer: opts.Gatherer,
		logger:   opts.Logger,
		now:      opts.Now,
		pages:    pages,
		static:   http.StripPrefix("/static/", http.FileServer(http.FS(sub))),
	}, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("POST /generate_blog", s.handleGenerate)
	mux.HandleFunc("GET /results", s.handleResults)
	mux.HandleFunc("GET /download/{filename}", s.handleDownload)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.Handle("GET /static/", s.static)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return logMiddleware(s.logger, mux)
}

// --- Handlers ---

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "index", nil)
}

type searchPage struct {
	Topic         string
	SearchResults string
	Timestamp     string
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	topic := r.FormValue("topic")
	results, err := s.pipe.Search(r.Context(), topic)
	if err != nil {
		s.renderError(w, topic, err)
		return
	}
	s.render(w, http.StatusOK, "search_results", searchPage{
		Topic:         topic,
		SearchResults: results,
		Timestamp:     s.now().Format(pageTimeFormat),
	})
}

type resultPage struct {
	Blog      *pipeline.BlogResult
	Timestamp string
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	topic := r.FormValue("topic")
	searchResults := r.FormValue("search_results")
	res, err := s.pipe.Generate(r.Context(), topic, searchResults)
	if err != nil {
		s.renderError(w, topic, err)
		return
	}
	version := s.store.Swap(res)
	s.logger.Debug("result stored", "version", version, "filename", res.Filename)
	s.render(w, http.StatusOK, "results", resultPage{Blog: res, Timestamp: s.now().Format(pageTimeFormat)})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	res, ok := s.store.Load()
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, http.StatusOK, "results", resultPage{Blog: res, Timestamp: s.now().Format(pageTimeFormat)})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	f, info, err := s.files.Open(name)
	if errors.Is(err, filestore.ErrNotFound) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("open artifact", "name", name, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

type statusResp struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	HasBlog   bool   `json:"has_blog"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	_, ok := s.store.Load()
	writeJSON(w, statusResp{
		Status:    "running",
		Timestamp: s.now().Format(time.RFC3339Nano),
		HasBlog:   ok,
	})
}

// --- Helpers ---

type errorPage struct {
	Topic string
	Error string
}

// renderError maps a tagged pipeline failure to its status code and renders
// the error page with the topic the user submitted.
func (s *Server) renderError(w http.ResponseWriter, topic string, err error) {
	status := http.StatusBadGateway
	switch pipeline.Classify(err) {
	case pipeline.KindConfig:
		status = http.StatusInternalServerError
	case pipeline.KindNotFound:
		status = http.StatusNotFound
	}
	s.render(w, status, "error", errorPage{Topic: topic, Error: err.Error()})
}

func (s *Server) render(w http.ResponseWriter, status int, page string, data any) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, page, data); err != nil {
		s.logger.Error("render template", "page", page, "err", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.Copy(w, &buf)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
