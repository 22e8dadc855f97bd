package classifier

import (
	"context"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// Config holds the per-step timeouts of the network strategies
type Config struct {
	HeaderTimeout    time.Duration
	ProxiedTimeout   time.Duration
	SignatureTimeout time.Duration
}

// DefaultConfig returns the standard probe timeouts
func DefaultConfig() Config {
	return Config{
		HeaderTimeout:    3 * time.Second,
		ProxiedTimeout:   5 * time.Second,
		SignatureTimeout: 5 * time.Second,
	}
}

// Options tunes a single Classify call
type Options struct {
	ProxyHint string
	Timeout   time.Duration
}

// Result is a classification together with the strategy that decided it
type Result struct {
	Kind     Kind          `json:"kind"`
	Strategy string        `json:"strategy,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

var offline = []Strategy{
	DataURLStrategy{},
	ExtensionStrategy{},
	HeuristicStrategy{},
}

// Fast classifies without any network access
func Fast(url string) Kind {
	return run(context.Background(), offline, Request{URL: url}).Kind
}

// Classifier runs the full strategy cascade
type Classifier struct {
	strategies []Strategy
	log        *zap.Logger
	metrics    *monitoring.Metrics
}

// New creates a classifier. proxy may be nil, which disables the proxied
// header probe and makes the signature sniff go direct.
func New(prober Prober, proxy Proxier, cfg Config, logger *logging.Logger, metrics *monitoring.Metrics) *Classifier {
	defaults := DefaultConfig()
	if cfg.HeaderTimeout <= 0 {
		cfg.HeaderTimeout = defaults.HeaderTimeout
	}
	if cfg.ProxiedTimeout <= 0 {
		cfg.ProxiedTimeout = defaults.ProxiedTimeout
	}
	if cfg.SignatureTimeout <= 0 {
		cfg.SignatureTimeout = defaults.SignatureTimeout
	}

	log := logger.Component("classifier").Logger

	strategies := append([]Strategy{}, offline...)
	strategies = append(strategies,
		HeaderStrategy{probeStrategy{prober: prober, timeout: cfg.HeaderTimeout, log: log}},
		ProxiedHeaderStrategy{probeStrategy{prober: prober, timeout: cfg.ProxiedTimeout, log: log}, proxy},
		SignatureStrategy{probeStrategy{prober: prober, timeout: cfg.SignatureTimeout, log: log}, proxy},
	)

	return &Classifier{
		strategies: strategies,
		log:        log,
		metrics:    metrics,
	}
}

// Strategies returns the cascade in evaluation order
func (c *Classifier) Strategies() []Strategy {
	return append([]Strategy{}, c.strategies...)
}

// Fast classifies without any network access
func (c *Classifier) Fast(url string) Kind {
	res := run(context.Background(), offline, Request{URL: url})
	c.metrics.RecordClassification(strategyLabel(res), res.Kind.String())
	return res.Kind
}

// Classify runs every strategy in order until one is conclusive
func (c *Classifier) Classify(ctx context.Context, url string, opts Options) Kind {
	return c.Detect(ctx, url, opts).Kind
}

// Detect is Classify with the deciding strategy reported
func (c *Classifier) Detect(ctx context.Context, url string, opts Options) Result {
	res := run(ctx, c.strategies, Request{URL: url, ProxyHint: opts.ProxyHint, Timeout: opts.Timeout})

	c.metrics.RecordClassification(strategyLabel(res), res.Kind.String())
	c.log.Debug("classified",
		zap.String("url", url),
		zap.String("kind", res.Kind.String()),
		zap.String("strategy", res.Strategy),
		zap.Duration("elapsed", res.Elapsed))
	return res
}

func run(ctx context.Context, strategies []Strategy, req Request) Result {
	start := time.Now()
	for _, s := range strategies {
		if ctx.Err() != nil {
			break
		}
		if k := s.Classify(ctx, req); k.Known() {
			return Result{Kind: k, Strategy: s.Name(), Elapsed: time.Since(start)}
		}
	}
	return Result{Kind: Unknown, Elapsed: time.Since(start)}
}

func strategyLabel(r Result) string {
	if r.Strategy == "" {
		return "none"
	}
	return r.Strategy
}
