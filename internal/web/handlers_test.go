package web

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"url-status-report/internal/checker"
	"url-status-report/internal/report"
	"url-status-report/internal/store"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// upstream answers with the status named by the request path.
func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) })
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) })
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.CookieName == "" {
		opts.CookieName = "session_id"
	}
	if opts.SessionTTL == 0 {
		opts.SessionTTL = time.Hour
	}
	if opts.MaxUploadBytes == 0 {
		opts.MaxUploadBytes = 1 << 20
	}
	if opts.CheckTimeout == 0 {
		opts.CheckTimeout = 2 * time.Second
	}

	chk := checker.New(testLogger, checker.Options{Timeout: opts.CheckTimeout, Workers: 4, DefaultScheme: "http"})
	srv, err := New(testLogger, chk, report.NewBuilder(testLogger, chk), store.NewMemory(), opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

// newClient starts srv on a listener and returns a cookie-keeping client for it.
func newClient(t *testing.T, srv *Server) (*http.Client, string) {
	t.Helper()
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}, ts.URL
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = fw.Write(content)
	} else {
		_ = mw.WriteField("note", "no file here")
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, client *http.Client, base, filename string, content []byte) *http.Response {
	t.Helper()
	body, contentType := multipartBody(t, filename, content)
	resp, err := client.Post(base+"/upload", contentType, body)
	if err != nil {
		t.Fatalf("POST /upload: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func checkURL(t *testing.T, client *http.Client, base, target string) *http.Response {
	t.Helper()
	resp, err := client.PostForm(base+"/check-url", url.Values{"url": {target}})
	if err != nil {
		t.Fatalf("POST /check-url: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type row struct {
	Domain, Code, Message string
}

func resultRows(t *testing.T, client *http.Client, base string) []row {
	t.Helper()
	resp, err := client.Get(base + "/results")
	if err != nil {
		t.Fatalf("GET /results: %v", err)
	}
	defer resp.Body.Close()
	return parseRows(t, resp)
}

func parseRows(t *testing.T, resp *http.Response) []row {
	t.Helper()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("results page status = %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		t.Fatalf("parse results page: %v", err)
	}

	rows := []row{}
	doc.Find("#results tr.record").Each(func(_ int, s *goquery.Selection) {
		rows = append(rows, row{
			Domain:  strings.TrimSpace(s.Find(".domain").Text()),
			Code:    strings.TrimSpace(s.Find(".status-code").Text()),
			Message: strings.TrimSpace(s.Find(".message .text").Text()),
		})
	})
	return rows
}

func download(t *testing.T, client *http.Client, base string) *report.Table {
	t.Helper()
	resp, err := client.Get(base + "/download")
	if err != nil {
		t.Fatalf("GET /download: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != report.MIMEType {
		t.Errorf("Content-Type = %q, want %q", ct, report.MIMEType)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") || !strings.Contains(cd, "results.xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	body, _ := io.ReadAll(resp.Body)
	table, err := report.ReadTable(context.Background(), testLogger, report.FileName, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("read downloaded report: %v", err)
	}
	return table
}

func TestIndex(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestServer(t, Options{}).Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	doc, err := goquery.NewDocumentFromReader(rr.Body)
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	form := doc.Find("form#upload")
	if form.Length() != 1 {
		t.Fatal("upload form not rendered")
	}
	if enc, _ := form.Attr("enctype"); enc != "multipart/form-data" {
		t.Errorf("enctype = %q", enc)
	}
	if form.Find(`input[type="file"][name="file"]`).Length() != 1 {
		t.Error("file input missing")
	}
}

func TestRoutes_NotFoundAndMethod(t *testing.T) {
	h := newTestServer(t, Options{}).Routes()

	testCases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodGet, "/upload", http.StatusMethodNotAllowed},
		{http.MethodPost, "/download", http.StatusMethodNotAllowed},
		{http.MethodGet, "/healthz", http.StatusOK},
	}
	for _, tc := range testCases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
		if rr.Code != tc.want {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.path, rr.Code, tc.want)
		}
	}
}

func TestUpload_ClientErrors(t *testing.T) {
	testCases := []struct {
		name     string
		filename string
		content  string
		wantBody string
	}{
		{"no file", "", "", "No file uploaded"},
		{"text file", "targets.txt", "domain\nexample.com\n", "Unsupported file format"},
		{"legacy excel", "targets.xls", "domain\nexample.com\n", "Unsupported file format"},
		{"no domain column", "targets.csv", "url,owner\nexample.com,alice\n", "Missing 'domain' column"},
		{"case-sensitive column", "targets.csv", "Domain\nexample.com\n", "Missing 'domain' column"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client, base := newClient(t, newTestServer(t, Options{}))
			resp := upload(t, client, base, tc.filename, []byte(tc.content))

			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			body, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(body), tc.wantBody) {
				t.Errorf("body = %q, want it to contain %q", body, tc.wantBody)
			}
		})
	}
}

func TestUpload_NotMultipart(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("domain=example.com"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	newTestServer(t, Options{}).Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestUpload_ProcessingError(t *testing.T) {
	client, base := newClient(t, newTestServer(t, Options{}))
	resp := upload(t, client, base, "targets.xlsx", []byte("this is not a workbook"))

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.HasPrefix(string(body), "Error processing file: ") {
		t.Errorf("body = %q", body)
	}
}

func TestUploadCheckDownloadFlow(t *testing.T) {
	up := newUpstream(t)
	client, base := newClient(t, newTestServer(t, Options{}))

	csvData := strings.Join([]string{
		"domain,owner",
		up.URL + "/ok,alice",
		"this-domain-does-not-exist.invalid,bob",
		" " + up.URL + "/missing ,carol",
	}, "\n")

	resp := upload(t, client, base, "targets.csv", []byte(csvData))
	if resp.Request.URL.Path != "/results" {
		t.Fatalf("upload did not redirect to /results, ended at %s", resp.Request.URL)
	}

	got := parseRows(t, resp)
	want := []row{
		{up.URL + "/ok", "200", "Site is Live"},
		{"this-domain-does-not-exist.invalid", "", "Could not connect"},
		{up.URL + "/missing", "404", "404 Not Found"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("results = %+v, want %+v", got, want)
	}

	table := download(t, client, base)
	if want := []string{"domain", "owner", "status_code", "message"}; !reflect.DeepEqual(table.Columns, want) {
		t.Errorf("report columns = %v, want %v", table.Columns, want)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("report rows = %d, want 3", len(table.Rows))
	}
	if table.Rows[1][2] != "" || table.Rows[1][3] != "Could not connect" {
		t.Errorf("unreachable row = %v", table.Rows[1])
	}

	// A single check replaces the result set but leaves the report alone.
	checkURL(t, client, base, up.URL+"/broken")
	got = resultRows(t, client, base)
	if want := []row{{up.URL + "/broken", "502", "Server Error"}}; !reflect.DeepEqual(got, want) {
		t.Fatalf("after single check: %+v, want %+v", got, want)
	}

	if table := download(t, client, base); len(table.Rows) != 3 {
		t.Errorf("report changed after single check: %d rows", len(table.Rows))
	}
}

func TestUpload_XLSX(t *testing.T) {
	up := newUpstream(t)
	client, base := newClient(t, newTestServer(t, Options{}))

	buf, err := report.WriteXLSX(&report.Table{
		Columns: []string{"site", "domain"},
		Rows: [][]string{
			{"a", up.URL + "/forbidden"},
			{"b", up.URL + "/ok"},
		},
	})
	if err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}

	got := parseRows(t, upload(t, client, base, "sites.xlsx", buf))
	want := []row{
		{up.URL + "/forbidden", "403", "HTTP 403"},
		{up.URL + "/ok", "200", "Site is Live"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("results = %+v, want %+v", got, want)
	}

	table := download(t, client, base)
	if want := []string{"site", "domain", "status_code", "message"}; !reflect.DeepEqual(table.Columns, want) {
		t.Errorf("report columns = %v, want %v", table.Columns, want)
	}
}

func TestCheckURL_Replace(t *testing.T) {
	up := newUpstream(t)
	client, base := newClient(t, newTestServer(t, Options{}))

	checkURL(t, client, base, up.URL+"/ok")
	checkURL(t, client, base, up.URL+"/missing")

	got := resultRows(t, client, base)
	if want := []row{{up.URL + "/missing", "404", "404 Not Found"}}; !reflect.DeepEqual(got, want) {
		t.Errorf("results = %+v, want %+v", got, want)
	}
}

func TestCheckURL_Append(t *testing.T) {
	up := newUpstream(t)
	client, base := newClient(t, newTestServer(t, Options{AppendChecks: true}))

	upload(t, client, base, "targets.csv", []byte("domain\n"+up.URL+"/ok\n"))
	checkURL(t, client, base, up.URL+"/missing")
	checkURL(t, client, base, "  "+up.URL+"/broken  ")

	got := resultRows(t, client, base)
	want := []row{
		{up.URL + "/ok", "200", "Site is Live"},
		{up.URL + "/missing", "404", "404 Not Found"},
		{up.URL + "/broken", "502", "Server Error"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("results = %+v, want %+v", got, want)
	}
}

func TestCheckURL_EmptyIsNoop(t *testing.T) {
	up := newUpstream(t)
	client, base := newClient(t, newTestServer(t, Options{}))

	upload(t, client, base, "targets.csv", []byte("domain\n"+up.URL+"/ok\n"))
	resp := checkURL(t, client, base, "   ")
	if resp.Request.URL.Path != "/results" {
		t.Errorf("expected redirect to /results, ended at %s", resp.Request.URL)
	}

	if got := resultRows(t, client, base); len(got) != 1 {
		t.Errorf("empty check changed the result set: %+v", got)
	}
}

func TestResults_EmptySession(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestServer(t, Options{}).Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/results", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	doc, _ := goquery.NewDocumentFromReader(rr.Body)
	if doc.Find("#empty").Length() != 1 || doc.Find("#results").Length() != 0 {
		t.Error("expected the empty-state message and no table")
	}
	if doc.Find("#download").Length() != 0 {
		t.Error("download link shown without a report")
	}
}

func TestDownload_NoReport(t *testing.T) {
	up := newUpstream(t)
	client, base := newClient(t, newTestServer(t, Options{}))

	// A single check alone never produces a report.
	checkURL(t, client, base, up.URL+"/ok")

	resp, err := client.Get(base + "/download")
	if err != nil {
		t.Fatalf("GET /download: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	up := newUpstream(t)
	srv := newTestServer(t, Options{})
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	newSessionClient := func() *http.Client {
		jar, _ := cookiejar.New(nil)
		return &http.Client{Jar: jar, Timeout: 10 * time.Second}
	}
	alice, bob := newSessionClient(), newSessionClient()

	upload(t, alice, ts.URL, "a.csv", []byte("domain\n"+up.URL+"/ok\n"+up.URL+"/missing\n"))
	upload(t, bob, ts.URL, "b.csv", []byte("domain\n"+up.URL+"/broken\n"))

	if got := resultRows(t, alice, ts.URL); len(got) != 2 {
		t.Errorf("alice sees %d rows, want 2", len(got))
	}
	if got := resultRows(t, bob, ts.URL); len(got) != 1 || got[0].Code != "502" {
		t.Errorf("bob sees %+v", got)
	}
	if table := download(t, alice, ts.URL); len(table.Rows) != 2 {
		t.Errorf("alice downloaded %d rows, want 2", len(table.Rows))
	}
	if table := download(t, bob, ts.URL); len(table.Rows) != 1 {
		t.Errorf("bob downloaded %d rows, want 1", len(table.Rows))
	}
}

func TestSessionCookie(t *testing.T) {
	srv := newTestServer(t, Options{CookieName: "sid", SessionTTL: 2 * time.Hour})

	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/results", nil))
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != "sid" || !c.HttpOnly || c.SameSite != http.SameSiteLaxMode || c.MaxAge != 7200 {
		t.Errorf("unexpected cookie %+v", c)
	}

	// A valid cookie is reused; a forged one is replaced.
	req := httptest.NewRequest(http.MethodGet, "/results", nil)
	req.AddCookie(c)
	rr = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)
	if len(rr.Result().Cookies()) != 0 {
		t.Error("valid session cookie was reissued")
	}

	req = httptest.NewRequest(http.MethodGet, "/results", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "../../etc/passwd"})
	rr = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)
	if got := rr.Result().Cookies(); len(got) != 1 || got[0].Value == "../../etc/passwd" {
		t.Errorf("forged session cookie was accepted: %+v", got)
	}
}

type panickingBuilder struct{}

func (panickingBuilder) Build(context.Context, *report.Table) (*report.Report, error) {
	panic("boom")
}

func TestRecoverPanic(t *testing.T) {
	chk := checker.New(testLogger, checker.Options{})
	srv, err := New(testLogger, chk, panickingBuilder{}, store.NewMemory(), Options{
		CookieName:     "session_id",
		SessionTTL:     time.Hour,
		MaxUploadBytes: 1 << 20,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	body, contentType := multipartBody(t, "targets.csv", []byte("domain\nexample.com\n"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}
