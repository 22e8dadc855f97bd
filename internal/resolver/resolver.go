package resolver

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/blob"
	"github.com/GriffinCanCode/docviewer/internal/classifier"
	"github.com/GriffinCanCode/docviewer/internal/fetch"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/resilience"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Route records which policy step produced a resolution
type Route string

const (
	RoutePassthrough Route = "passthrough"
	RouteSameOrigin  Route = "same-origin"
	RouteProxied     Route = "already-proxied"
	RouteDirect      Route = "direct"
	RouteCustomProxy Route = "custom-proxy"
	RouteImageDirect Route = "image-direct"
	RouteProxy       Route = "proxy"
	RouteExhausted   Route = "exhausted"
	RouteCancelled   Route = "cancelled"
)

// Outcome of one proxy attempt
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Attempt is one entry of the proxy attempt log
type Attempt struct {
	ProxyIndex int     `json:"proxy_index"`
	Proxy      string  `json:"proxy"`
	Outcome    Outcome `json:"outcome"`
	Error      string  `json:"error,omitempty"`
}

// Result is a resolved URL with the route taken and the proxy attempts
type Result struct {
	URL      string    `json:"url"`
	Route    Route     `json:"route"`
	Attempts []Attempt `json:"attempts,omitempty"`
}

// Prober issues metadata probes
type Prober interface {
	Head(ctx context.Context, url string, mode fetch.Mode) (*fetch.Probe, error)
}

// Config holds the app origin, the built-in proxy list and probe timeouts
type Config struct {
	AppOrigin     string
	Proxies       []string
	DirectTimeout time.Duration
	ImageTimeout  time.Duration
	ProxyTimeout  time.Duration
}

// Resolver picks a fetchable URL for a document
type Resolver struct {
	cfg      Config
	prober   Prober
	blobs    *blob.Store
	breakers *resilience.Set
	group    singleflight.Group
	log      *zap.Logger
	metrics  *monitoring.Metrics
}

// New creates a resolver. blobs may be nil, in which case base64 PDF
// data URLs are passed through as-is by Describe.
func New(prober Prober, blobs *blob.Store, cfg Config, logger *logging.Logger, metrics *monitoring.Metrics) *Resolver {
	if cfg.DirectTimeout <= 0 {
		cfg.DirectTimeout = 3 * time.Second
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 3 * time.Second
	}
	if cfg.ProxyTimeout <= 0 {
		cfg.ProxyTimeout = 8 * time.Second
	}
	cfg.Proxies = append([]string(nil), cfg.Proxies...)

	return &Resolver{
		cfg:    cfg,
		prober: prober,
		blobs:  blobs,
		breakers: resilience.NewSet(resilience.Settings{
			MaxRequests: 1,
			Interval:    5 * time.Minute,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		log:     logger.Component("resolver").Logger,
		metrics: metrics,
	}
}

// Proxies returns the built-in proxy templates in order
func (r *Resolver) Proxies() []string {
	return append([]string(nil), r.cfg.Proxies...)
}

// BreakerStates reports the breaker state of every proxy probed so far
func (r *Resolver) BreakerStates() map[string]resilience.State {
	return r.breakers.States()
}

// IsExternal reports whether raw is an absolute URL on another origin
func (r *Resolver) IsExternal(raw string) bool {
	if blob.IsDataURL(raw) || blob.IsBlobURL(raw) {
		return false
	}
	return !sameOrigin(r.cfg.AppOrigin, raw)
}

// ApplyProxy routes raw through template. Data URLs, same-origin URLs and
// URLs already routed through a known proxy are returned unchanged.
func (r *Resolver) ApplyProxy(template, raw string) string {
	if template == "" || !r.IsExternal(raw) || r.isProxied(raw, template) {
		return raw
	}
	return template + escapeComponent(raw)
}

// componentEscaper rewrites url.QueryEscape output into
// encodeURIComponent form
var componentEscaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// escapeComponent percent-encodes s for use as a whole URL component,
// with spaces as %20 so path-style proxies receive them intact
func escapeComponent(s string) string {
	return componentEscaper.Replace(url.QueryEscape(s))
}

func (r *Resolver) isProxied(raw, custom string) bool {
	if custom != "" && strings.HasPrefix(raw, custom) {
		return true
	}
	for _, p := range r.cfg.Proxies {
		if strings.HasPrefix(raw, p) {
			return true
		}
	}
	return false
}

// Resolve returns a fetchable URL for raw. It never fails; when nothing
// works the input comes back unchanged.
func (r *Resolver) Resolve(ctx context.Context, raw, customProxy string) string {
	return r.ResolveDetailed(ctx, raw, customProxy).URL
}

// ResolveDetailed is Resolve with the route and attempt log
func (r *Resolver) ResolveDetailed(ctx context.Context, raw, customProxy string) Result {
	if res, ok := r.local(raw, customProxy); ok {
		r.metrics.RecordResolution(string(res.Route))
		return res
	}

	// Shared work outlives any one caller; every step is time-boxed.
	key := raw + "\x00" + customProxy
	ch := r.group.DoChan(key, func() (interface{}, error) {
		return r.remote(context.WithoutCancel(ctx), raw, customProxy), nil
	})

	select {
	case v := <-ch:
		res := v.Val.(Result)
		r.metrics.RecordResolution(string(res.Route))
		return res
	case <-ctx.Done():
		r.metrics.RecordResolution(string(RouteCancelled))
		return Result{URL: raw, Route: RouteCancelled}
	}
}

func (r *Resolver) local(raw, customProxy string) (Result, bool) {
	switch {
	case blob.IsDataURL(raw) || blob.IsBlobURL(raw):
		return Result{URL: raw, Route: RoutePassthrough}, true
	case sameOrigin(r.cfg.AppOrigin, raw):
		return Result{URL: raw, Route: RouteSameOrigin}, true
	case r.isProxied(raw, customProxy):
		return Result{URL: raw, Route: RouteProxied}, true
	}
	return Result{}, false
}

func (r *Resolver) remote(ctx context.Context, raw, customProxy string) Result {
	if r.probe(ctx, "direct", raw, fetch.ModeCORS, r.cfg.DirectTimeout) == nil {
		return Result{URL: raw, Route: RouteDirect}
	}

	if customProxy != "" {
		return Result{URL: r.ApplyProxy(customProxy, raw), Route: RouteCustomProxy}
	}

	if classifier.Fast(raw) == classifier.Image {
		if r.probe(ctx, "image", raw, fetch.ModeNoCORS, r.cfg.ImageTimeout) == nil {
			return Result{URL: raw, Route: RouteImageDirect}
		}
	}

	attempts := make([]Attempt, 0, len(r.cfg.Proxies))
	for i, template := range r.cfg.Proxies {
		proxied := template + escapeComponent(raw)
		label := proxyLabel(template)

		_, err := resilience.Do(r.breakers.Get(template), func() (struct{}, error) {
			return struct{}{}, r.probe(ctx, "proxy", proxied, fetch.ModeCORS, r.cfg.ProxyTimeout)
		})

		attempt := Attempt{ProxyIndex: i, Proxy: label, Outcome: OutcomeOK}
		switch {
		case err == nil:
		case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
			attempt.Outcome = OutcomeSkipped
		default:
			attempt.Outcome = OutcomeFailed
			attempt.Error = err.Error()
		}
		attempts = append(attempts, attempt)
		r.metrics.RecordProxyAttempt(label, string(attempt.Outcome))

		if err == nil {
			r.log.Debug("proxy succeeded", zap.String("url", raw), zap.Int("proxy_index", i))
			return Result{URL: proxied, Route: RouteProxy, Attempts: attempts}
		}
		r.log.Debug("proxy attempt failed",
			zap.String("url", raw),
			zap.Int("proxy_index", i),
			zap.String("outcome", string(attempt.Outcome)),
			zap.Error(err))
	}

	r.log.Warn("all resolution strategies failed, using original URL", zap.String("url", raw))
	return Result{URL: raw, Route: RouteExhausted, Attempts: attempts}
}

func (r *Resolver) probe(ctx context.Context, kind, target string, mode fetch.Mode, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	_, err := r.prober.Head(ctx, target, mode)

	outcome := "ok"
	if err != nil {
		outcome = "failed"
		r.log.Debug("probe failed",
			zap.String("probe", kind),
			zap.String("url", target),
			zap.String("mode", mode.String()),
			zap.Error(err))
	}
	r.metrics.RecordProbe(kind, outcome, time.Since(start))
	return err
}

// proxyLabel keeps metric cardinality bounded by the proxy host
func proxyLabel(template string) string {
	if u, err := url.Parse(template); err == nil && u.Host != "" {
		return u.Host
	}
	return template
}
