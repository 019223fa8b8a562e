package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yourusername/getcomics-go/internal/domain"
)

// HTTPFetcher performs all requests against the origin site.
// Every request carries the browser User-Agent, waits on the shared rate
// limiter and is retried exactly once when it times out.
type HTTPFetcher struct {
	client         *http.Client
	streamClient   *http.Client
	limiter        *rate.Limiter
	userAgent      string
	requestTimeout time.Duration
	logger         *zap.Logger
}

// NewHTTPFetcher creates a fetcher from site and transfer configuration
func NewHTTPFetcher(site *domain.SiteConfig, transfer *domain.TransferConfig, logger *zap.Logger) *HTTPFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if site.RateLimit > 0 {
		limit = rate.Limit(site.RateLimit)
	}
	burst := site.RateBurst
	if burst < 1 {
		burst = 1
	}

	userAgent := site.UserAgent
	if userAgent == "" {
		userAgent = domain.DefaultUserAgent
	}

	headerTimeout := transfer.HeaderTimeout
	if headerTimeout <= 0 {
		headerTimeout = time.Minute
	}
	streamTransport := http.DefaultTransport.(*http.Transport).Clone()
	streamTransport.ResponseHeaderTimeout = headerTimeout

	return &HTTPFetcher{
		client:         &http.Client{},
		streamClient:   &http.Client{Transport: streamTransport},
		limiter:        rate.NewLimiter(limit, burst),
		userAgent:      userAgent,
		requestTimeout: site.RequestTimeout,
		logger:         logger,
	}
}

// FetchPage downloads a page body. Non-200 responses are errors.
func (f *HTTPFetcher) FetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	var body []byte
	err := f.withRetry(ctx, pageURL, func(ctx context.Context) error {
		resp, err := f.do(ctx, f.client, http.MethodGet, pageURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}, true)
	return body, err
}

// ResolveFinalURL follows redirects with a HEAD request and returns the final URL
func (f *HTTPFetcher) ResolveFinalURL(ctx context.Context, rawURL string) (string, error) {
	var final string
	err := f.withRetry(ctx, rawURL, func(ctx context.Context) error {
		resp, err := f.do(ctx, f.client, http.MethodHead, rawURL)
		if err != nil {
			return err
		}
		resp.Body.Close()
		final = resp.Request.URL.String()
		return nil
	}, true)
	return final, err
}

// OpenStream starts a GET whose body the caller streams and must close.
// Only the response header phase is bounded by a timeout.
func (f *HTTPFetcher) OpenStream(ctx context.Context, rawURL string) (*http.Response, error) {
	var resp *http.Response
	err := f.withRetry(ctx, rawURL, func(ctx context.Context) error {
		var err error
		resp, err = f.do(ctx, f.streamClient, http.MethodGet, rawURL)
		return err
	}, false)
	return resp, err
}

func (f *HTTPFetcher) do(ctx context.Context, client *http.Client, method, rawURL string) (*http.Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	return client.Do(req)
}

// withRetry runs op once more when the first attempt timed out.
// A second timeout is reported as domain.ErrFetchTimeout.
func (f *HTTPFetcher) withRetry(ctx context.Context, rawURL string, op func(context.Context) error, bounded bool) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if bounded && f.requestTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, f.requestTimeout)
		}
		err := op(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", domain.ErrInterrupted, ctx.Err())
		}
		if !isTimeout(err) {
			return err
		}

		lastErr = err
		f.logger.Warn("Request timed out",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrFetchTimeout, rawURL, lastErr)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
