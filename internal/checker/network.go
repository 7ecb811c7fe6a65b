package checker

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTimeout = 5 * time.Second
	DefaultWorkers = 10

	maxBodyDrain = 1 << 20
)

type Options struct {
	Timeout       time.Duration
	Workers       int
	UserAgent     string
	DefaultScheme string
}

type Checker struct {
	client        *http.Client
	logger        *slog.Logger
	timeout       time.Duration
	workers       int
	userAgent     string
	defaultScheme string
}

func New(logger *slog.Logger, opts Options) *Checker {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	return &Checker{
		client:        &http.Client{Timeout: opts.Timeout},
		logger:        logger,
		timeout:       opts.Timeout,
		workers:       opts.Workers,
		userAgent:     opts.UserAgent,
		defaultScheme: opts.DefaultScheme,
	}
}

// Check issues a single GET to rawURL and classifies the outcome.
// The returned record keeps rawURL as its domain.
func (c *Checker) Check(ctx context.Context, rawURL string) Record {
	target := c.normalize(rawURL)
	logger := c.logger.With(slog.String("url", target))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		logger.WarnContext(ctx, "Could not create HTTP request", slog.Any("error", err))
		return Record{Domain: rawURL, Message: MessageCouldNotConnect}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		logger.WarnContext(ctx, "Connection failed",
			slog.Any("error", err),
			slog.Duration("elapsed", time.Since(start)),
		)
		return Record{Domain: rawURL, Message: MessageCouldNotConnect}
	}
	defer resp.Body.Close()
	_, _ = io.CopyN(io.Discard, resp.Body, maxBodyDrain)

	logger.DebugContext(ctx, "Received response",
		slog.Int("status_code", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	return Record{Domain: rawURL, StatusCode: resp.StatusCode, Message: Classify(resp.StatusCode)}
}

func (c *Checker) normalize(rawURL string) string {
	target := strings.TrimSpace(rawURL)
	if target == "" || c.defaultScheme == "" || strings.Contains(target, "://") {
		return target
	}
	return c.defaultScheme + "://" + target
}

type job struct {
	index int
	url   string
}

func checkWorker(ctx context.Context, c *Checker, wg *sync.WaitGroup, jobs <-chan job, records []Record) {
	defer wg.Done()
	for j := range jobs {
		// Each index is written by exactly one worker.
		records[j.index] = c.Check(ctx, j.url)
	}
}

// CheckAll checks every URL on a bounded pool of workers and returns the
// records in the same order as urls.
func (c *Checker) CheckAll(ctx context.Context, urls []string) []Record {
	records := make([]Record, len(urls))
	if len(urls) == 0 {
		c.logger.InfoContext(ctx, "No URLs to check, skipping process.")
		return records
	}

	workers := c.workers
	if len(urls) < workers {
		workers = len(urls)
	}

	c.logger.InfoContext(ctx, "Starting to check URLs",
		slog.Int("total_urls", len(urls)),
		slog.Int("workers", workers),
	)

	jobs := make(chan job, len(urls))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go checkWorker(ctx, c, &wg, jobs, records)
	}

	for i, u := range urls {
		jobs <- job{index: i, url: u}
	}
	close(jobs)
	wg.Wait()

	unreachable := 0
	for _, r := range records {
		if !r.HasStatus() {
			unreachable++
		}
	}
	c.logger.InfoContext(ctx, "Finished checking all URLs",
		slog.Int("total_urls_checked", len(records)),
		slog.Int("unreachable_urls", unreachable),
	)

	return records
}
