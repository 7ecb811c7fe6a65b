package web

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"url-status-report/internal/checker"
	"url-status-report/internal/report"
	"url-status-report/internal/store"
)

type pageData struct {
	Title     string
	Timeout   string
	Records   []checker.Record
	HasReport bool
	Append    bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, "index.html", pageData{
		Title:   "Check URLs",
		Timeout: s.opts.CheckTimeout.String(),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			clientError(w, http.StatusRequestEntityTooLarge, "Uploaded file is too large.")
			return
		}
		s.logger.WarnContext(ctx, "Upload without file", slog.Any("error", err))
		clientError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	logger := s.logger.With(slog.String("filename", header.Filename))

	table, err := report.ReadTable(ctx, logger, header.Filename, file)
	if err != nil {
		if errors.Is(err, report.ErrUnsupportedFormat) {
			clientError(w, http.StatusBadRequest, "Unsupported file format. Please upload CSV or XLSX.")
			return
		}
		processingError(w, err)
		return
	}

	rep, err := s.builder.Build(ctx, table)
	if err != nil {
		if errors.Is(err, report.ErrMissingDomainColumn) {
			clientError(w, http.StatusBadRequest, "Missing 'domain' column in file.")
			return
		}
		processingError(w, err)
		return
	}

	sid := s.sessionID(w, r)
	if err := s.store.ReplaceResults(ctx, sid, rep.Records); err != nil {
		processingError(w, err)
		return
	}
	if err := s.store.SaveReport(ctx, sid, rep.XLSX); err != nil {
		processingError(w, err)
		return
	}

	logger.InfoContext(ctx, "Upload processed", slog.Int("rows", len(rep.Records)))
	http.Redirect(w, r, "/results", http.StatusSeeOther)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := s.sessionID(w, r)

	records, err := s.store.Results(ctx, sid)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	hasReport := true
	if _, err := s.store.Report(ctx, sid); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.serverError(w, r, err)
			return
		}
		hasReport = false
	}

	s.render(w, "results.html", pageData{
		Title:     "Results",
		Records:   records,
		HasReport: hasReport,
		Append:    s.opts.AppendChecks,
	})
}

func (s *Server) handleCheckURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rawURL := strings.TrimSpace(r.FormValue("url"))
	if rawURL == "" {
		http.Redirect(w, r, "/results", http.StatusSeeOther)
		return
	}

	rec := s.checker.Check(ctx, rawURL)
	sid := s.sessionID(w, r)

	var err error
	if s.opts.AppendChecks {
		err = s.store.AppendResults(ctx, sid, rec)
	} else {
		err = s.store.ReplaceResults(ctx, sid, []checker.Record{rec})
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	s.logger.InfoContext(ctx, "Single URL checked",
		slog.String("url", rawURL),
		slog.Int("status_code", rec.StatusCode),
		slog.String("message", rec.Message),
	)
	http.Redirect(w, r, "/results", http.StatusSeeOther)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)

	body, err := s.store.Report(r.Context(), sid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			clientError(w, http.StatusNotFound, "No report available. Please upload a file first.")
			return
		}
		s.serverError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", report.MIMEType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": report.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	_, _ = w.Write(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// render executes the template into a buffer first so a failing template
// does not leave a half-written page behind.
func (s *Server) render(w http.ResponseWriter, name string, data pageData) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("Template execution failed", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func processingError(w http.ResponseWriter, err error) {
	http.Error(w, fmt.Sprintf("Error processing file: %v", err), http.StatusInternalServerError)
}
