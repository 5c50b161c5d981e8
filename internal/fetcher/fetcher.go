package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"article-rag/internal/config"
	"article-rag/internal/models"
	"article-rag/internal/parser"

	"github.com/rs/zerolog/log"
)

// Result is the outcome of loading one URL. Exactly one of Document and Err is set.
type Result struct {
	URL      string
	Document *models.Document
	Err      error
}

// Report aggregates the per-URL outcomes of a batch. Documents keeps input order.
type Report struct {
	Documents []models.Document
	Results   []Result
}

// Failed returns the results that did not produce a document
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

type Fetcher struct {
	client       *http.Client
	userAgent    string
	delay        time.Duration
	maxBodyBytes int64

	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg config.FetcherConfig) *Fetcher {
	return &Fetcher{
		client:       &http.Client{Timeout: cfg.Timeout()},
		userAgent:    cfg.UserAgent,
		delay:        cfg.Delay(),
		maxBodyBytes: cfg.MaxBodyBytes,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ValidateURL accepts absolute http(s) URLs with a host
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrInvalidURL, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidURL, raw)
	}
	return u, nil
}

// Fetch loads every non-blank URL in order. Individual failures are recorded
// in the report and never abort the batch.
func (f *Fetcher) Fetch(ctx context.Context, urls []string) Report {
	var report Report
	fetched := 0

	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		if _, err := ValidateURL(raw); err != nil {
			log.Warn().Str("url", raw).Msg("Skipping invalid URL")
			report.Results = append(report.Results, Result{URL: raw, Err: err})
			continue
		}

		if fetched > 0 {
			if err := f.sleep(ctx, f.delay); err != nil {
				report.Results = append(report.Results, Result{URL: raw, Err: fmt.Errorf("%w: %s: %v", models.ErrFetchFailure, raw, err)})
				continue
			}
		}
		fetched++

		doc, err := f.FetchOne(ctx, raw)
		if err != nil {
			log.Warn().Err(err).Str("url", raw).Msg("Failed to load URL")
			report.Results = append(report.Results, Result{URL: raw, Err: err})
			continue
		}

		log.Info().Str("url", raw).Int("chars", len(doc.Text)).Msg("Loaded URL")
		report.Documents = append(report.Documents, *doc)
		report.Results = append(report.Results, Result{URL: raw, Document: doc})
	}

	return report
}

// FetchOne downloads and extracts a single URL
func (f *Fetcher) FetchOne(ctx context.Context, rawURL string) (*models.Document, error) {
	if _, err := ValidateURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrFetchFailure, rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrFetchFailure, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: unexpected status %s", models.ErrFetchFailure, rawURL, resp.Status)
	}

	data, err := f.readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrFetchFailure, rawURL, err)
	}

	res, err := parser.Parse(resp.Header.Get("Content-Type"), rawURL, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrFetchFailure, rawURL, err)
	}
	if res.Text == "" {
		return nil, fmt.Errorf("%w: %s has no text", models.ErrEmptyContent, rawURL)
	}

	return &models.Document{
		Text:        res.Text,
		Source:      rawURL,
		Title:       res.Title,
		ContentType: res.ContentType,
	}, nil
}

var errBodyTooLarge = errors.New("response body too large")

func (f *Fetcher) readBody(r io.Reader) ([]byte, error) {
	if f.maxBodyBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, f.maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBodyBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, f.maxBodyBytes)
	}
	return data, nil
}
