package web

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"url-status-report/internal/checker"
	"url-status-report/internal/report"
	"url-status-report/internal/store"
	"url-status-report/ui"
)

type URLChecker interface {
	Check(ctx context.Context, rawURL string) checker.Record
}

type ReportBuilder interface {
	Build(ctx context.Context, table *report.Table) (*report.Report, error)
}

type Options struct {
	CookieName     string
	SessionTTL     time.Duration
	AppendChecks   bool
	MaxUploadBytes int64
	CheckTimeout   time.Duration
}

type Server struct {
	logger  *slog.Logger
	checker URLChecker
	builder ReportBuilder
	store   store.Store
	tmpl    *template.Template
	opts    Options
}

var icons = map[checker.Severity]string{
	checker.SeverityOK:    "✅",
	checker.SeverityWarn:  "⚠️",
	checker.SeverityError: "❌",
}

func New(logger *slog.Logger, chk URLChecker, builder ReportBuilder, st store.Store, opts Options) (*Server, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"icon": func(s checker.Severity) string { return icons[s] },
	}).ParseFS(ui.Files, "html/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	return &Server{
		logger:  logger,
		checker: chk,
		builder: builder,
		store:   st,
		tmpl:    tmpl,
		opts:    opts,
	}, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /results", s.handleResults)
	mux.HandleFunc("POST /check-url", s.handleCheckURL)
	mux.HandleFunc("GET /download", s.handleDownload)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return s.recoverPanic(s.logRequests(mux))
}
