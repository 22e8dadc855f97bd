// Package pipeline assembles the document viewing components from
// configuration: blob registry, fetch client, resolver, classifier,
// render engine and viewer manager.
package pipeline

import (
	"github.com/GriffinCanCode/docviewer/internal/blob"
	"github.com/GriffinCanCode/docviewer/internal/classifier"
	"github.com/GriffinCanCode/docviewer/internal/fetch"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/config"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/docviewer/internal/render"
	"github.com/GriffinCanCode/docviewer/internal/render/pdfcpu"
	"github.com/GriffinCanCode/docviewer/internal/resolver"
	"github.com/GriffinCanCode/docviewer/internal/viewer"
	"go.uber.org/zap"
)

// Pipeline holds the wired components
type Pipeline struct {
	Blobs      *blob.Store
	Fetch      *fetch.Client
	Resolver   *resolver.Resolver
	Classifier *classifier.Classifier
	Engine     *render.Engine
	Viewers    *viewer.Manager
	Metrics    *monitoring.Metrics
	Logger     *logging.Logger
}

// Option adjusts the fetch client options, e.g. to install a test
// transport
type Option func(*fetch.Options)

// New wires every component from cfg
func New(cfg *config.Config, logger *logging.Logger, metrics *monitoring.Metrics, opts ...Option) *Pipeline {
	if logger == nil {
		logger = logging.Nop()
	}

	blobs := blob.NewStore(cfg.Server.Origin)

	fetchOpts := fetch.Options{
		Origin:       cfg.Server.Origin,
		MaxBodyBytes: cfg.Render.MaxDocumentBytes,
		Blobs:        blobs,
	}
	for _, opt := range opts {
		opt(&fetchOpts)
	}
	client := fetch.NewClient(fetchOpts)

	res := resolver.New(client, blobs, resolver.Config{
		AppOrigin:     cfg.Server.Origin,
		Proxies:       cfg.Resolver.Proxies,
		DirectTimeout: cfg.Resolver.DirectTimeout,
		ImageTimeout:  cfg.Resolver.ImageTimeout,
		ProxyTimeout:  cfg.Resolver.ProxyTimeout,
	}, logger, metrics)

	cls := classifier.New(client, res, classifier.Config{
		HeaderTimeout:    cfg.Classifier.HeaderTimeout,
		ProxiedTimeout:   cfg.Classifier.ProxiedTimeout,
		SignatureTimeout: cfg.Classifier.SignatureTimeout,
	}, logger, metrics)

	engine := render.NewEngine(client, pdfcpu.New(), render.Config{
		OpenTimeout: cfg.Render.OpenTimeout,
	}, logger, metrics)

	viewers := viewer.NewManager(viewer.Deps{
		Resolver:   res,
		Classifier: cls,
		Engine:     engine,
		Fetcher:    client,
		Logger:     logger,
	}, viewer.ConfigFrom(cfg)).WithMetrics(metrics)

	logger.Info("pipeline assembled",
		zap.String("origin", cfg.Server.Origin),
		zap.Int("proxies", len(cfg.Resolver.Proxies)),
		zap.Duration("open_timeout", cfg.Render.OpenTimeout))

	return &Pipeline{
		Blobs:      blobs,
		Fetch:      client,
		Resolver:   res,
		Classifier: cls,
		Engine:     engine,
		Viewers:    viewers,
		Metrics:    metrics,
		Logger:     logger,
	}
}

// Close tears down every viewer
func (p *Pipeline) Close() {
	p.Viewers.CloseAll()
}
