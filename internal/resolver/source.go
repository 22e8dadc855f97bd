package resolver

import (
	"context"

	"github.com/GriffinCanCode/docviewer/internal/blob"
	"go.uber.org/zap"
)

// SourceDescriptor describes one load attempt. It is never mutated; a
// retry produces a new descriptor.
type SourceDescriptor struct {
	OriginalURL  string    `json:"original_url"`
	ResolvedURL  string    `json:"resolved_url"`
	IsExternal   bool      `json:"is_external"`
	IsDataOrBlob bool      `json:"is_data_or_blob"`
	Route        Route     `json:"route"`
	Attempts     []Attempt `json:"attempts,omitempty"`
}

// OwnsBlob reports whether ResolvedURL is a blob created for this
// descriptor and must be revoked with it.
func (d SourceDescriptor) OwnsBlob() bool {
	return blob.IsBlobURL(d.ResolvedURL) && d.ResolvedURL != d.OriginalURL
}

// Describe resolves raw into a SourceDescriptor. Base64 PDF data URLs are
// registered as blobs so the render engine always opens a URL.
func (r *Resolver) Describe(ctx context.Context, raw, customProxy string) SourceDescriptor {
	desc := SourceDescriptor{
		OriginalURL:  raw,
		IsExternal:   r.IsExternal(raw),
		IsDataOrBlob: blob.IsDataURL(raw) || blob.IsBlobURL(raw),
	}

	if r.blobs != nil && blob.IsDataURL(raw) && blob.MediaType(raw) == "application/pdf" {
		u, err := r.blobs.FromDataURL(raw)
		if err == nil {
			desc.ResolvedURL = u
			desc.Route = RoutePassthrough
			return desc
		}
		r.log.Warn("failed to convert data URL to blob URL", zap.Error(err))
	}

	res := r.ResolveDetailed(ctx, raw, customProxy)
	desc.ResolvedURL = res.URL
	desc.Route = res.Route
	desc.Attempts = res.Attempts
	return desc
}

// Release revokes any blob the descriptor owns
func (r *Resolver) Release(d SourceDescriptor) {
	if r.blobs != nil && d.OwnsBlob() {
		r.blobs.Revoke(d.ResolvedURL)
	}
}
