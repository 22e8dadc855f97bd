// Package blob keeps in-memory documents addressable by blob: URLs, the
// way a browser exposes object URLs. Base64 PDF data URLs are turned into
// blobs before opening so the render engine always fetches by URL.
package blob

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/GriffinCanCode/docviewer/internal/shared/id"
)

const (
	schemeBlob = "blob:"
	schemeData = "data:"
)

var (
	ErrNotFound       = errors.New("blob not found")
	ErrInvalidDataURL = errors.New("invalid data URL")
)

// IsBlobURL reports whether u is a blob: URL.
func IsBlobURL(u string) bool {
	return strings.HasPrefix(u, schemeBlob)
}

// IsDataURL reports whether u is a data: URL.
func IsDataURL(u string) bool {
	return strings.HasPrefix(u, schemeData)
}

type entry struct {
	data        []byte
	contentType string
}

// Store maps blob URLs to their bytes. It is safe for concurrent use.
type Store struct {
	origin string

	mu      sync.RWMutex
	entries map[string]entry
}

// NewStore creates a store whose URLs are scoped to origin.
func NewStore(origin string) *Store {
	return &Store{
		origin:  strings.TrimSuffix(origin, "/"),
		entries: make(map[string]entry),
	}
}

// Create registers data and returns its blob URL.
func (s *Store) Create(data []byte, contentType string) string {
	u := schemeBlob + s.origin + "/" + id.NewBlobID().String()

	s.mu.Lock()
	s.entries[u] = entry{data: data, contentType: contentType}
	s.mu.Unlock()

	return u
}

// Get returns the bytes and content type registered under u.
func (s *Store) Get(u string) ([]byte, string, error) {
	s.mu.RLock()
	e, ok := s.entries[u]
	s.mu.RUnlock()

	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, u)
	}
	return e.data, e.contentType, nil
}

// Revoke releases u. Revoking an unknown or non-blob URL is a no-op.
func (s *Store) Revoke(u string) {
	if !IsBlobURL(u) {
		return
	}
	s.mu.Lock()
	delete(s.entries, u)
	s.mu.Unlock()
}

// Len returns the number of live blobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// FromDataURL decodes a data URL into a new blob and returns its URL.
func (s *Store) FromDataURL(dataURL string) (string, error) {
	data, contentType, err := ParseDataURL(dataURL)
	if err != nil {
		return "", err
	}
	return s.Create(data, contentType), nil
}

// ParseDataURL decodes "data:[<mediatype>][;base64],<data>". The media
// type defaults to text/plain as in RFC 2397.
func ParseDataURL(dataURL string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(dataURL, schemeData)
	if !ok {
		return nil, "", ErrInvalidDataURL
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing comma", ErrInvalidDataURL)
	}

	isBase64 := false
	if m, found := strings.CutSuffix(meta, ";base64"); found {
		meta = m
		isBase64 = true
	}

	contentType := meta
	if contentType == "" {
		contentType = "text/plain;charset=US-ASCII"
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// Some producers strip padding.
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
			if err != nil {
				return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
			}
		}
		return data, contentType, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return []byte(decoded), contentType, nil
}

// MediaType returns the bare media type of a data URL ("application/pdf"
// for "data:application/pdf;base64,..."), or "" when u is not a data URL.
func MediaType(u string) string {
	rest, ok := strings.CutPrefix(u, schemeData)
	if !ok {
		return ""
	}
	meta, _, _ := strings.Cut(rest, ",")
	mt, _, _ := strings.Cut(meta, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
