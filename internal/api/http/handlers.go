package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/classifier"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/docviewer/internal/pipeline"
	"github.com/GriffinCanCode/docviewer/internal/resolver"
	"github.com/GriffinCanCode/docviewer/internal/viewer"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version is reported by the root endpoint
const Version = "0.3.0"

// MaxBodySize bounds JSON request bodies. Data URLs travel inline, so it
// is generous.
const MaxBodySize = 32 << 20

var errBodyTooLarge = fmt.Errorf("request body exceeds %d bytes", MaxBodySize)

// Handlers contains all HTTP handlers
type Handlers struct {
	pipeline   *pipeline.Pipeline
	viewers    *viewer.Manager
	classifier *classifier.Classifier
	resolver   *resolver.Resolver
	metrics    *monitoring.Metrics
	log        *zap.Logger
	started    time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(p *pipeline.Pipeline) *Handlers {
	return &Handlers{
		pipeline:   p,
		viewers:    p.Viewers,
		classifier: p.Classifier,
		resolver:   p.Resolver,
		metrics:    p.Metrics,
		log:        p.Logger.Component("api").Logger,
		started:    time.Now(),
	}
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "docviewer",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	breakers := make(map[string]string)
	for proxy, state := range h.resolver.BreakerStates() {
		breakers[proxy] = state.String()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"uptime":  time.Since(h.started).Round(time.Second).String(),
		"viewers": h.viewers.Stats(),
		"blobs":   h.pipeline.Blobs.Len(),
		"fetch":   gin.H{"breaker": h.pipeline.Fetch.BreakerState().String()},
		"proxies": breakers,
		"metrics": h.metrics.Snapshot(),
	})
}

// Classify determines the kind of document behind a URL
func (h *Handlers) Classify(c *gin.Context) {
	target := c.Query("url")
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": viewer.ErrNoSource.Error()})
		return
	}

	var res classifier.Result
	switch c.DefaultQuery("mode", "full") {
	case "fast":
		start := time.Now()
		res = classifier.Result{Kind: h.classifier.Fast(target), Strategy: "offline", Elapsed: time.Since(start)}
	case "full":
		res = h.classifier.Detect(c.Request.Context(), target, classifier.Options{ProxyHint: c.Query("proxy")})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be fast or full"})
		return
	}

	body := gin.H{
		"url":        target,
		"kind":       res.Kind,
		"strategy":   res.Strategy,
		"elapsed_ms": res.Elapsed.Milliseconds(),
		"file_name":  classifier.FileName(target),
	}
	if res.Kind == classifier.Image {
		body["image_type"] = classifier.ImageTypeOf(target)
	}
	c.JSON(http.StatusOK, body)
}

// Resolve reports the URL a source would be loaded from
func (h *Handlers) Resolve(c *gin.Context) {
	target := c.Query("url")
	if !resolver.IsValidURL(target) {
		c.JSON(http.StatusBadRequest, gin.H{"error": viewer.ErrInvalidURL.Error()})
		return
	}

	res := h.resolver.ResolveDetailed(c.Request.Context(), target, c.Query("proxy"))
	c.JSON(http.StatusOK, gin.H{
		"url":      target,
		"resolved": res.URL,
		"route":    res.Route,
		"external": h.resolver.IsExternal(target),
		"attempts": res.Attempts,
	})
}

// bindJSON decodes an optional JSON body into v
func bindJSON(c *gin.Context, v any) error {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodySize+1))
	if err != nil {
		return err
	}
	if len(body) > MaxBodySize {
		return errBodyTooLarge
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func badRequest(c *gin.Context, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, errBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
