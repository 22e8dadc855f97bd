package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/blob"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

const userAgent = "docviewer/1.0"

// Mode selects the cross-origin semantics of a probe
type Mode int

const (
	// ModeCORS requires the response to allow the app origin
	ModeCORS Mode = iota
	// ModeNoCORS accepts any successful status
	ModeNoCORS
)

func (m Mode) String() string {
	if m == ModeNoCORS {
		return "no-cors"
	}
	return "cors"
}

var (
	ErrStatus      = errors.New("unexpected status")
	ErrCORSDenied  = errors.New("cross-origin request denied")
	ErrTooLarge    = errors.New("document exceeds size limit")
	ErrUnavailable = errors.New("document source unavailable: circuit breaker open")
)

// StatusError carries the HTTP status of a failed request
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d from %s", ErrStatus, e.Status, e.URL)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// Probe is the metadata returned by a successful Head
type Probe struct {
	Status        int
	ContentType   string
	ContentLength int64
	Header        http.Header
}

// Options configures a Client
type Options struct {
	// Origin is the origin the viewer is served from
	Origin string
	// RateLimit caps outgoing requests per second; 0 means unlimited
	RateLimit float64
	// MaxBodyBytes caps Fetch bodies; 0 means unlimited
	MaxBodyBytes int64
	// Blobs resolves blob: URLs; nil disables them
	Blobs *blob.Store
	// Transport overrides the pooled transport (tests)
	Transport http.RoundTripper
}

// Client wraps resty with rate limiting, circuit breaker and cross-origin emulation
type Client struct {
	Resty   *resty.Client
	Limiter *rate.Limiter
	Breaker *resilience.Breaker
	Blobs   *blob.Store
	Mu      sync.RWMutex

	probe   *resty.Client
	origin  string
	maxBody int64
}

// NewClient creates a production-ready client
func NewClient(opts Options) *Client {
	transport := opts.Transport
	if transport == nil {
		retryClient := retryablehttp.NewClient()
		retryClient.Logger = nil
		transport = retryClient.HTTPClient.Transport
	}

	documents := resty.New().
		SetTimeout(60*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("User-Agent", userAgent).
		SetTransport(transport)

	probes := resty.New().
		SetTimeout(30*time.Second).
		SetHeader("User-Agent", userAgent).
		SetTransport(transport)

	breaker := resilience.New("fetch-documents", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			// Remote documents vary in reliability; only trip on a sustained run
			return counts.ConsecutiveFailures >= 10 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
	})

	c := &Client{
		Resty:   documents,
		Breaker: breaker,
		Blobs:   opts.Blobs,
		probe:   probes,
		origin:  strings.TrimSuffix(opts.Origin, "/"),
		maxBody: opts.MaxBodyBytes,
	}
	c.SetRateLimit(opts.RateLimit)
	return c
}

// Origin returns the app origin sent with CORS probes
func (c *Client) Origin() string {
	return c.origin
}

// SetRateLimit configures rate limiting (requests per second)
func (c *Client) SetRateLimit(rps float64) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if rps <= 0 {
		c.Limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		c.Limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.Breaker.State()
}

func (c *Client) request(ctx context.Context, rc *resty.Client) (*resty.Request, error) {
	c.Mu.RLock()
	limiter := c.Limiter
	c.Mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}
	return rc.R().SetContext(ctx), nil
}

// Absolute resolves root-relative and relative URLs against the app origin
func (c *Client) Absolute(raw string) string {
	if blob.IsDataURL(raw) || blob.IsBlobURL(raw) || c.origin == "" {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil || ref.IsAbs() {
		return raw
	}
	base, err := url.Parse(c.origin + "/")
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}

// Head issues a metadata-only request
func (c *Client) Head(ctx context.Context, rawURL string, mode Mode) (*Probe, error) {
	target := c.Absolute(rawURL)

	req, err := c.request(ctx, c.probe)
	if err != nil {
		return nil, err
	}
	if mode == ModeCORS && c.origin != "" {
		req.SetHeader("Origin", c.origin)
	}

	resp, err := req.Head(target)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &StatusError{Status: resp.StatusCode(), URL: target}
	}
	if mode == ModeCORS && !c.allowsOrigin(resp.Header()) {
		return nil, fmt.Errorf("%w: %s", ErrCORSDenied, target)
	}

	probe := &Probe{
		Status:        resp.StatusCode(),
		ContentType:   resp.Header().Get("Content-Type"),
		ContentLength: -1,
		Header:        resp.Header(),
	}
	if resp.RawResponse != nil {
		probe.ContentLength = resp.RawResponse.ContentLength
	}
	return probe, nil
}

// allowsOrigin mirrors the browser check on Access-Control-Allow-Origin.
// Requests without a configured origin are treated as same-process.
func (c *Client) allowsOrigin(h http.Header) bool {
	if c.origin == "" {
		return true
	}
	allowed := strings.TrimSpace(h.Get("Access-Control-Allow-Origin"))
	return allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), c.origin)
}

// Range fetches bytes [start, end] of a resource. Servers that ignore the
// Range header still yield at most end-start+1 bytes.
func (c *Client) Range(ctx context.Context, rawURL string, start, end int64) ([]byte, error) {
	if end < start {
		return nil, fmt.Errorf("invalid range %d-%d", start, end)
	}
	n := end - start + 1

	if blob.IsDataURL(rawURL) || blob.IsBlobURL(rawURL) {
		data, _, err := c.local(rawURL)
		if err != nil {
			return nil, err
		}
		return window(data, start, n), nil
	}

	target := c.Absolute(rawURL)
	req, err := c.request(ctx, c.probe)
	if err != nil {
		return nil, err
	}

	resp, err := req.
		SetHeader("Range", fmt.Sprintf("bytes=%d-%d", start, end)).
		SetDoNotParseResponse(true).
		Get(target)
	if err != nil {
		return nil, err
	}
	body := resp.RawBody()
	defer body.Close()

	switch resp.StatusCode() {
	case http.StatusPartialContent:
		return io.ReadAll(io.LimitReader(body, n))
	case http.StatusOK:
		if start > 0 {
			if _, err := io.CopyN(io.Discard, body, start); err != nil {
				return nil, err
			}
		}
		return io.ReadAll(io.LimitReader(body, n))
	default:
		return nil, &StatusError{Status: resp.StatusCode(), URL: target}
	}
}

// Fetch returns the full body of a resource
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if blob.IsDataURL(rawURL) || blob.IsBlobURL(rawURL) {
		data, _, err := c.local(rawURL)
		return data, err
	}

	target := c.Absolute(rawURL)
	data, err := resilience.Do(c.Breaker, func() ([]byte, error) {
		return c.download(ctx, target)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return nil, ErrUnavailable
	}
	return data, err
}

func (c *Client) download(ctx context.Context, target string) ([]byte, error) {
	req, err := c.request(ctx, c.Resty)
	if err != nil {
		return nil, err
	}

	resp, err := req.SetDoNotParseResponse(true).Get(target)
	if err != nil {
		return nil, err
	}
	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		return nil, &StatusError{Status: resp.StatusCode(), URL: target}
	}

	if c.maxBody <= 0 {
		return io.ReadAll(body)
	}
	data, err := io.ReadAll(io.LimitReader(body, c.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, c.maxBody)
	}
	return data, nil
}

func (c *Client) local(rawURL string) ([]byte, string, error) {
	if blob.IsDataURL(rawURL) {
		return blob.ParseDataURL(rawURL)
	}
	if c.Blobs == nil {
		return nil, "", fmt.Errorf("%w: %s", blob.ErrNotFound, rawURL)
	}
	return c.Blobs.Get(rawURL)
}

func window(data []byte, start, n int64) []byte {
	if start >= int64(len(data)) {
		return nil
	}
	end := min(start+n, int64(len(data)))
	return data[start:end]
}
