package pipeline

import (
	"context"
	"testing"

	"github.com/GriffinCanCode/docviewer/internal/blob"
	"github.com/GriffinCanCode/docviewer/internal/classifier"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/config"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/docviewer/internal/render/pdfcpu/pdftest"
	"github.com/GriffinCanCode/docviewer/internal/viewer"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineOpensDataURLPDF(t *testing.T) {
	metrics := monitoring.NewMetrics()
	p := New(config.Default(), logging.Nop(), metrics)
	defer p.Close()

	v := p.Viewers.Create()
	require.NoError(t, v.Load(context.Background(), viewer.LoadRequest{URL: pdftest.DataURL(pdftest.TwoPage())}))

	st := v.State()
	assert.Equal(t, classifier.Pdf, st.Kind)
	assert.Equal(t, 2, st.TotalPages)
	assert.Equal(t, "document", st.FileName)
	assert.True(t, blob.IsBlobURL(st.ResolvedURL))
	assert.Equal(t, 1, p.Blobs.Len())

	img, err := v.PageImage(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 612, img.Bounds().Dx())
	assert.Equal(t, 792, img.Bounds().Dy())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DocumentOpens.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsActive))

	p.Viewers.Close(v.ID().String())
	assert.Zero(t, p.Blobs.Len(), "blob is revoked with its source")
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.SessionsActive))
}

func TestPipelineWiresConfiguredProxies(t *testing.T) {
	cfg := config.Default()
	cfg.Resolver.Proxies = []string{"https://relay.example.com/?url="}

	p := New(cfg, nil, nil)
	defer p.Close()

	assert.Equal(t, cfg.Resolver.Proxies, p.Resolver.Proxies())
	assert.Equal(t, "https://relay.example.com/?url=https%3A%2F%2Fa.example.com%2Fx.pdf",
		p.Resolver.ApplyProxy(cfg.Resolver.Proxies[0], "https://a.example.com/x.pdf"))
}
