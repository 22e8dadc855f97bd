package classifier

import (
	"net/url"
	"path"
	"strings"
)

// Kind is the document kind of a URL
type Kind string

const (
	Unknown Kind = "unknown"
	Pdf     Kind = "pdf"
	Image   Kind = "image"
)

func (k Kind) String() string { return string(k) }

// Known reports whether k is a definite kind
func (k Kind) Known() bool { return k == Pdf || k == Image }

// Paginated reports whether the kind has pages
func (k Kind) Paginated() bool { return k == Pdf }

// Zoomable reports whether the kind supports zoom and rotation
func (k Kind) Zoomable() bool { return k.Known() }

// ParseKind parses a kind name, returning Unknown for anything else
func ParseKind(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Pdf:
		return Pdf
	case Image:
		return Image
	default:
		return Unknown
	}
}

// ImageType distinguishes how an image is drawn
type ImageType string

const (
	Raster   ImageType = "raster"
	Vector   ImageType = "vector"
	Animated ImageType = "animated"
)

var imageExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "webp": true,
	"svg": true, "bmp": true, "tiff": true, "ico": true, "apng": true,
}

// FromExtension maps a file extension to a kind
func FromExtension(ext string) Kind {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch {
	case ext == "pdf":
		return Pdf
	case imageExtensions[ext]:
		return Image
	default:
		return Unknown
	}
}

// FromContentType maps a Content-Type value to a kind
func FromContentType(contentType string) Kind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "application/pdf"):
		return Pdf
	case strings.Contains(ct, "image/"):
		return Image
	default:
		return Unknown
	}
}

// ImageTypeOf returns how the image at rawURL should be drawn
func ImageTypeOf(rawURL string) ImageType {
	switch Extension(rawURL) {
	case "svg":
		return Vector
	case "gif":
		return Animated
	default:
		return Raster
	}
}

// Extension returns the lower-cased extension of the last path segment,
// ignoring query and fragment, or "" when there is none.
func Extension(rawURL string) string {
	seg := lastSegment(rawURL)
	ext := path.Ext(seg)
	if ext == "" || ext == seg {
		return ""
	}
	return strings.ToLower(ext[1:])
}

// FileName returns the last path segment of rawURL, or "document"
func FileName(rawURL string) string {
	if seg := lastSegment(rawURL); seg != "" {
		return seg
	}
	return "document"
}

func lastSegment(rawURL string) string {
	if strings.HasPrefix(rawURL, "data:") {
		return ""
	}
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else {
		p, _, _ = strings.Cut(p, "?")
		p, _, _ = strings.Cut(p, "#")
	}
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return p
}
