package classifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/fetch"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	mu     sync.Mutex
	heads  []string
	ranges []string

	contentType map[string]string
	body        map[string][]byte
}

func (f *fakeProber) Head(_ context.Context, url string, _ fetch.Mode) (*fetch.Probe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heads = append(f.heads, url)
	ct, ok := f.contentType[url]
	if !ok {
		return nil, errors.New("network error")
	}
	return &fetch.Probe{Status: http.StatusOK, ContentType: ct}, nil
}

func (f *fakeProber) Range(_ context.Context, url string, start, end int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = append(f.ranges, url)
	b, ok := f.body[url]
	if !ok {
		return nil, errors.New("network error")
	}
	if int64(len(b)) > end-start+1 {
		b = b[:end-start+1]
	}
	return b, nil
}

func (f *fakeProber) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.heads) + len(f.ranges)
}

type prefixProxy struct{ prefix string }

func (p prefixProxy) Resolve(_ context.Context, url, custom string) string {
	if custom != "" {
		return custom + url
	}
	return p.prefix + url
}

// stuckProxy never resolves before its context ends
type stuckProxy struct {
	mu        sync.Mutex
	deadlines int
}

func (p *stuckProxy) Resolve(ctx context.Context, url, _ string) string {
	if _, ok := ctx.Deadline(); ok {
		p.mu.Lock()
		p.deadlines++
		p.mu.Unlock()
	}
	<-ctx.Done()
	return url
}

func newTestClassifier(p Prober, proxy Proxier) *Classifier {
	return New(p, proxy, DefaultConfig(), logging.Nop(), nil)
}

func TestExtensionShortCircuitsNetwork(t *testing.T) {
	urls := []string{
		"https://x/y.png", "https://x/y.JPG", "https://x/y.jpeg?size=large",
		"https://x/a/b/c.gif#frame", "https://x/y.webp", "https://x/y.svg",
		"https://x/y.bmp", "https://x/y.tiff", "https://x/favicon.ico", "https://x/y.apng",
	}

	p := &fakeProber{}
	c := newTestClassifier(p, prefixProxy{prefix: "https://proxy/?"})

	for _, u := range urls {
		t.Run(u, func(t *testing.T) {
			assert.Equal(t, Image, c.Classify(context.Background(), u, Options{}))
			assert.Equal(t, Image, Fast(u))
		})
	}
	assert.Zero(t, p.calls())
}

func TestFast(t *testing.T) {
	tests := []struct {
		url  string
		want Kind
	}{
		{"https://x/y.pdf", Pdf},
		{"https://x/y?format=png", Image},
		{"https://x/y?format=jpg", Image},
		{"https://x/download?format=pdf", Pdf},
		{"https://x/api/pdf/123", Pdf},
		{"https://x/images/123", Image},
		{"https://x/img?id=4", Image},
		{"https://x/images-archive/report", Image},
		{"https://x/y", Unknown},
		{"https://x/archive.zip", Unknown},
		{"data:application/pdf;base64,JVBERi0=", Pdf},
		{"data:image/png;base64,iVBORw==", Image},
		{"data:text/plain,hello", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, Fast(tt.url))
		})
	}
}

func TestHeaderProbe(t *testing.T) {
	p := &fakeProber{contentType: map[string]string{
		"https://x/y": "application/pdf; charset=binary",
		"https://x/z": "image/webp",
	}}
	c := newTestClassifier(p, nil)

	res := c.Detect(context.Background(), "https://x/y", Options{})
	assert.Equal(t, Pdf, res.Kind)
	assert.Equal(t, "header", res.Strategy)

	assert.Equal(t, Image, c.Classify(context.Background(), "https://x/z", Options{}))
}

func TestHeaderProbeAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "application/pdf")
	}))
	defer srv.Close()

	client := fetch.NewClient(fetch.Options{Origin: "http://viewer.local"})
	c := newTestClassifier(client, nil)

	assert.Equal(t, Pdf, c.Classify(context.Background(), srv.URL+"/y", Options{}))
}

func TestProxiedHeaderProbe(t *testing.T) {
	p := &fakeProber{contentType: map[string]string{
		"https://proxy/?https://x/y": "application/pdf",
	}}
	c := newTestClassifier(p, prefixProxy{prefix: "https://proxy/?"})

	res := c.Detect(context.Background(), "https://x/y", Options{})
	assert.Equal(t, Pdf, res.Kind)
	assert.Equal(t, "proxied-header", res.Strategy)
	assert.Equal(t, []string{"https://x/y", "https://proxy/?https://x/y"}, p.heads)
}

func TestProxyHintIsUsed(t *testing.T) {
	p := &fakeProber{contentType: map[string]string{
		"https://mine/?https://x/y": "image/jpeg",
	}}
	c := newTestClassifier(p, prefixProxy{prefix: "https://proxy/?"})

	got := c.Classify(context.Background(), "https://x/y", Options{ProxyHint: "https://mine/?"})
	assert.Equal(t, Image, got)
}

func TestSignatureSniff(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		want Kind
	}{
		{"pdf", []byte{0x25, 0x50, 0x44, 0x46, 0x2D, 0x31}, Pdf},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, Image},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, Image},
		{"gif via content sniffing", []byte("GIF89a\x01\x00\x01\x00"), Image},
		{"text", []byte("hello world"), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProber{body: map[string][]byte{"https://proxy/?https://x/y": tt.body}}
			c := newTestClassifier(p, prefixProxy{prefix: "https://proxy/?"})

			res := c.Detect(context.Background(), "https://x/y", Options{})
			assert.Equal(t, tt.want, res.Kind)
			if tt.want.Known() {
				assert.Equal(t, "signature", res.Strategy)
			}
		})
	}
}

func TestInconclusiveReturnsUnknown(t *testing.T) {
	p := &fakeProber{}
	c := newTestClassifier(p, prefixProxy{prefix: "https://proxy/?"})

	res := c.Detect(context.Background(), "https://x/y", Options{})
	assert.Equal(t, Unknown, res.Kind)
	assert.Empty(t, res.Strategy)
	assert.Len(t, p.ranges, 1)
}

type slowProber struct{}

func (slowProber) Head(ctx context.Context, _ string, _ fetch.Mode) (*fetch.Probe, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowProber) Range(ctx context.Context, _ string, _, _ int64) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTimeoutOverrideBoundsEachStep(t *testing.T) {
	c := newTestClassifier(slowProber{}, prefixProxy{prefix: "https://proxy/?"})

	start := time.Now()
	got := c.Classify(context.Background(), "https://x/y", Options{Timeout: 20 * time.Millisecond})
	assert.Equal(t, Unknown, got)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCancelledContextStopsCascade(t *testing.T) {
	p := &fakeProber{}
	c := newTestClassifier(p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, Unknown, c.Classify(ctx, "https://x/y", Options{}))
	assert.Zero(t, p.calls())
}

func TestStrategiesOrder(t *testing.T) {
	c := newTestClassifier(&fakeProber{}, nil)

	var names []string
	for _, s := range c.Strategies() {
		names = append(names, s.Name())
	}
	require.Equal(t, []string{"data-url", "extension", "heuristic", "header", "proxied-header", "signature"}, names)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "pdf", Extension("https://x/a/report.PDF?dl=1#p=2"))
	assert.Equal(t, "", Extension("https://x.com/path"))
	assert.Equal(t, "", Extension("https://x/.hidden"))
	assert.Equal(t, "report.pdf", FileName("https://x/a/report.pdf?dl=1"))
	assert.Equal(t, "document", FileName("https://x/"))
	assert.Equal(t, "document", FileName("data:application/pdf;base64,AAAA"))

	assert.Equal(t, Vector, ImageTypeOf("https://x/logo.svg"))
	assert.Equal(t, Animated, ImageTypeOf("https://x/spin.gif"))
	assert.Equal(t, Raster, ImageTypeOf("https://x/photo.jpg"))

	assert.Equal(t, Pdf, ParseKind(" PDF "))
	assert.Equal(t, Unknown, ParseKind("zip"))
	assert.True(t, Pdf.Paginated())
	assert.False(t, Image.Paginated())
	assert.True(t, Image.Zoomable())
	assert.False(t, Unknown.Zoomable())
}

func TestStepTimeoutBoundsProxyResolution(t *testing.T) {
	p := &fakeProber{}
	proxy := &stuckProxy{}
	c := newTestClassifier(p, proxy)

	start := time.Now()
	res := c.Detect(context.Background(), "https://x/y", Options{Timeout: 30 * time.Millisecond})

	assert.Equal(t, Unknown, res.Kind)
	assert.Less(t, time.Since(start), time.Second)
	proxy.mu.Lock()
	assert.Equal(t, 2, proxy.deadlines)
	proxy.mu.Unlock()
}
