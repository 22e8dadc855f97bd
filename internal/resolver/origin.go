package resolver

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/GriffinCanCode/docviewer/internal/blob"
	"golang.org/x/net/idna"
)

type origin struct {
	scheme string
	host   string
	port   string
}

// parseOrigin returns the origin of an absolute http(s) URL. Hosts are
// compared in their ASCII form so IDN spellings of the same host match.
func parseOrigin(raw string) (origin, bool) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return origin{}, false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return origin{}, false
	}

	host, err := idna.Lookup.ToASCII(u.Hostname())
	if err != nil {
		host = strings.ToLower(u.Hostname())
	}

	port := u.Port()
	if port == "" {
		port = "80"
		if scheme == "https" {
			port = "443"
		}
	}
	return origin{scheme: scheme, host: host, port: port}, true
}

// sameOrigin reports whether target is served from app. Relative URLs
// and anything that does not parse as an absolute http(s) URL count as
// same-origin.
func sameOrigin(app, target string) bool {
	t, ok := parseOrigin(target)
	if !ok {
		return true
	}
	a, ok := parseOrigin(app)
	if !ok {
		return false
	}
	return a == t
}

var schemeRe = regexp.MustCompile(`(?i)^https?://`)

// IsValidURL reports whether raw can be handed to the viewer: data and
// blob URLs, absolute http(s) URLs, and relative paths.
func IsValidURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	if blob.IsDataURL(raw) || blob.IsBlobURL(raw) {
		return true
	}
	if schemeRe.MatchString(raw) {
		u, err := url.Parse(raw)
		return err == nil && u.Host != ""
	}
	if strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../") {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	// Other schemes (ftp:, javascript:) cannot be fetched
	return u.Scheme == ""
}
