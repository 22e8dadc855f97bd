package classifier

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/blob"
	"github.com/GriffinCanCode/docviewer/internal/fetch"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// Request is one classification input
type Request struct {
	URL       string
	ProxyHint string
	// Timeout overrides each network step's own timeout when positive
	Timeout time.Duration
}

// Strategy is one step of the classification cascade
type Strategy interface {
	Name() string
	Classify(ctx context.Context, req Request) Kind
}

// Prober issues the network requests used by the network strategies
type Prober interface {
	Head(ctx context.Context, url string, mode fetch.Mode) (*fetch.Probe, error)
	Range(ctx context.Context, url string, start, end int64) ([]byte, error)
}

// Proxier returns a fetchable, possibly proxied, form of a URL
type Proxier interface {
	Resolve(ctx context.Context, url, customProxy string) string
}

// DataURLStrategy classifies data: URLs by their media type
type DataURLStrategy struct{}

func (DataURLStrategy) Name() string { return "data-url" }

func (DataURLStrategy) Classify(_ context.Context, req Request) Kind {
	return FromContentType(blob.MediaType(req.URL))
}

// ExtensionStrategy classifies by file extension
type ExtensionStrategy struct{}

func (ExtensionStrategy) Name() string { return "extension" }

func (ExtensionStrategy) Classify(_ context.Context, req Request) Kind {
	return FromExtension(Extension(req.URL))
}

var (
	pdfHints   = []string{"/pdf", "pdf/", "format=pdf"}
	imageHints = []string{"/image", "/img", "images/", "format=jpg", "format=png"}
)

// HeuristicStrategy looks for type hints in the path and query
type HeuristicStrategy struct{}

func (HeuristicStrategy) Name() string { return "heuristic" }

func (HeuristicStrategy) Classify(_ context.Context, req Request) Kind {
	u := strings.ToLower(req.URL)
	for _, h := range pdfHints {
		if strings.Contains(u, h) {
			return Pdf
		}
	}
	for _, h := range imageHints {
		if strings.Contains(u, h) {
			return Image
		}
	}
	return Unknown
}

// probeStrategy holds what the network strategies share
type probeStrategy struct {
	prober  Prober
	timeout time.Duration
	log     *zap.Logger
}

func (p probeStrategy) context(ctx context.Context, override time.Duration) (context.Context, context.CancelFunc) {
	if override > 0 {
		return context.WithTimeout(ctx, override)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p probeStrategy) head(ctx context.Context, target string, override time.Duration) Kind {
	ctx, cancel := p.context(ctx, override)
	defer cancel()

	probe, err := p.prober.Head(ctx, target, fetch.ModeCORS)
	if err != nil {
		p.log.Debug("header probe failed", zap.String("url", target), zap.Error(err))
		return Unknown
	}
	return FromContentType(probe.ContentType)
}

// HeaderStrategy issues a direct HEAD and reads the content type
type HeaderStrategy struct {
	probeStrategy
}

func (HeaderStrategy) Name() string { return "header" }

func (s HeaderStrategy) Classify(ctx context.Context, req Request) Kind {
	if blob.IsDataURL(req.URL) || blob.IsBlobURL(req.URL) {
		return Unknown
	}
	return s.head(ctx, req.URL, req.Timeout)
}

// ProxiedHeaderStrategy repeats the HEAD through the resolver. The step
// timeout covers both the resolution and the HEAD.
type ProxiedHeaderStrategy struct {
	probeStrategy
	proxy Proxier
}

func (ProxiedHeaderStrategy) Name() string { return "proxied-header" }

func (s ProxiedHeaderStrategy) Classify(ctx context.Context, req Request) Kind {
	if s.proxy == nil || blob.IsDataURL(req.URL) || blob.IsBlobURL(req.URL) {
		return Unknown
	}
	ctx, cancel := s.context(ctx, req.Timeout)
	defer cancel()

	resolved := s.proxy.Resolve(ctx, req.URL, req.ProxyHint)
	if resolved == req.URL {
		return Unknown
	}
	return s.head(ctx, resolved, req.Timeout)
}

// SignatureSize is how many leading bytes the signature strategy reads
const SignatureSize = 1024

var (
	sigPDF  = []byte{0x25, 0x50, 0x44, 0x46}
	sigJPEG = []byte{0xFF, 0xD8, 0xFF}
	sigPNG  = []byte{0x89, 0x50, 0x4E, 0x47}
)

// FromSignature maps leading magic bytes to a kind
func FromSignature(data []byte) Kind {
	switch {
	case bytes.HasPrefix(data, sigPDF):
		return Pdf
	case bytes.HasPrefix(data, sigJPEG), bytes.HasPrefix(data, sigPNG):
		return Image
	default:
		return Unknown
	}
}

// FromContent checks the signature table, then falls back to full
// content sniffing for formats outside it (gif, webp, bmp, tiff, ...).
func FromContent(data []byte) Kind {
	if k := FromSignature(data); k.Known() {
		return k
	}
	if len(data) == 0 {
		return Unknown
	}
	return FromContentType(mimetype.Detect(data).String())
}

// SignatureStrategy reads the first KiB and sniffs magic bytes
type SignatureStrategy struct {
	probeStrategy
	proxy Proxier
}

func (SignatureStrategy) Name() string { return "signature" }

func (s SignatureStrategy) Classify(ctx context.Context, req Request) Kind {
	ctx, cancel := s.context(ctx, req.Timeout)
	defer cancel()

	target := req.URL
	if s.proxy != nil {
		target = s.proxy.Resolve(ctx, req.URL, req.ProxyHint)
	}

	data, err := s.prober.Range(ctx, target, 0, SignatureSize-1)
	if err != nil {
		s.log.Debug("signature sniff failed", zap.String("url", target), zap.Error(err))
		return Unknown
	}
	return FromContent(data)
}
