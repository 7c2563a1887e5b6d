package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/solwatch/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	RateLimiters map[string]*rate.Limiter
}

// DefaultRateLimiters returns the default per-host rate limiters. SAM.gov
// throttles aggressively; attachment hosts get a generic limit.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"api.sam.gov": rate.NewLimiter(5, 5),
		"sam.gov":     rate.NewLimiter(10, 10),
		"www.fbo.gov": rate.NewLimiter(5, 5),
	}
}

// HTTPFetcher implements Fetcher using net/http with retry, rate limiting,
// and a circuit breaker per host. Timeouts are generous because government
// attachment hosts are slow; a stuck host fails a single document after the
// timeout, never the whole batch, and a host that keeps failing gets its
// circuit opened so the rest of the batch skips it.
type HTTPFetcher struct {
	client     *http.Client
	headClient *http.Client
	opts       HTTPOptions
	limiters   map[string]*rate.Limiter
	breakers   *resilience.ServiceBreakers
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "solwatch/1.0"
	}
	limiters := opts.RateLimiters
	if limiters == nil {
		limiters = DefaultRateLimiters()
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	// Only transient failures count toward opening a host's circuit; a 404
	// on one attachment says nothing about the host.
	breakerCfg.ShouldTrip = resilience.IsTransient
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		// The HEAD probe must surface redirects instead of chasing them: the
		// legacy attachment hosts encode the real document location there.
		headClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		opts:     opts,
		limiters: limiters,
		breakers: resilience.NewServiceBreakers(breakerCfg),
	}
}

func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rate.NewLimiter(20, 20)
	}
	if lim, ok := f.limiters[u.Host]; ok {
		return lim
	}
	return rate.NewLimiter(20, 20)
}

// doWithRetry runs the request through the retry helper. Connection errors
// and 5xx responses are transient and retried with backoff; any other
// response comes back to the caller as-is.
func (f *HTTPFetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	cfg := resilience.RetryConfig{
		MaxAttempts:    f.opts.MaxRetries,
		InitialBackoff: f.opts.RetryBackoff,
		OnRetry:        resilience.RetryLogger(req.URL.Host, "fetch"),
	}

	cb := f.breakers.Get(req.URL.Host)

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*http.Response, error) {
		return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (*http.Response, error) {
			if err := f.limiterFor(req.URL.String()).Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "rate limiter wait")
			}

			resp, err := f.client.Do(req.Clone(ctx))
			if err != nil {
				return nil, resilience.NewTransientError(eris.Wrap(err, "http request"), 0)
			}

			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				_ = resp.Body.Close()
				return nil, resilience.NewTransientError(
					eris.Errorf("http %d from %s", resp.StatusCode, req.URL.String()),
					resp.StatusCode,
				)
			}

			return resp, nil
		})
	})
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("download: unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	return resp.Body, nil
}

// DownloadToFile fetches the URL and writes it to the given path.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, body)
	if err != nil {
		return n, eris.Wrap(err, "write file")
	}

	return n, nil
}

// Head probes the URL without following redirects. Redirect responses are
// returned as-is with the Location header populated so callers can decide
// whether to chase them.
func (f *HTTPFetcher) Head(ctx context.Context, rawURL string) (*HeadInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create head request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	lim := f.limiterFor(rawURL)
	if err := lim.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	resp, err := f.headClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "head request")
	}
	defer resp.Body.Close() //nolint:errcheck

	length := int64(-1)
	if resp.ContentLength >= 0 && resp.Header.Get("Content-Length") != "" {
		length = resp.ContentLength
	}

	return &HeadInfo{
		StatusCode:    resp.StatusCode,
		ContentLength: length,
		ContentType:   resp.Header.Get("Content-Type"),
		Disposition:   resp.Header.Get("Content-Disposition"),
		Location:      resp.Header.Get("Location"),
	}, nil
}
