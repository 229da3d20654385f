// Package fetch downloads the timetable page and its sub-documents.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "raspisanie/pkg/logx"
)

// ErrFetch wraps every transport-level failure.
var ErrFetch = errors.New("fetch failed")

const (
	DefaultUserAgent = "raspisanie/1.0 (+timetable sync)"
	defaultTimeout   = 30 * time.Second
	// Pages are small; anything above this is not a timetable.
	maxBodyBytes = 32 << 20
)

// Document is a fetched resource.
type Document struct {
	URL         string
	Body        []byte
	ContentType string
}

// Fetcher retrieves a document by URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Document, error)
}

type Options struct {
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
	// RatePerSec limits requests to the origin; <=0 disables the limit.
	RatePerSec float64
	Log        logx.Logger
}

// HTTPFetcher is the net/http Fetcher.
type HTTPFetcher struct {
	client  *http.Client
	ua      string
	limiter *rate.Limiter
	log     logx.Logger
}

func NewHTTP(opts Options) *HTTPFetcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	var lim *rate.Limiter
	if opts.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &HTTPFetcher{client: client, ua: ua, limiter: lim, log: log.With(logx.String("comp", "fetch"))}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (Document, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return Document{}, fmt.Errorf("%w: %s: %w", ErrFetch, rawURL, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s: %w", ErrFetch, rawURL, err)
	}
	req.Header.Set("User-Agent", f.ua)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s: %w", ErrFetch, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return Document{}, fmt.Errorf("%w: %s: status %d", ErrFetch, rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s: read body: %w", ErrFetch, rawURL, err)
	}
	if len(body) > maxBodyBytes {
		return Document{}, fmt.Errorf("%w: %s: body exceeds %d bytes", ErrFetch, rawURL, maxBodyBytes)
	}
	f.log.Debug("fetched",
		logx.String("url", rawURL),
		logx.Int("bytes", len(body)),
		logx.Duration("took", time.Since(start)),
	)
	return Document{URL: resp.Request.URL.String(), Body: body, ContentType: resp.Header.Get("Content-Type")}, nil
}

// Resolve turns a link found on base into an absolute URL.
func Resolve(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	h, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(h).String(), nil
}
