// Package id provides centralized ID generation for the viewer service.
//
// IDs are prefixed ULIDs:
//   - Lexicographic sortability: render jobs and sessions sort by start time
//   - Prefixed types: vw_*, pdf_*, job_*, blob_* keep logs readable
//   - Type safety: separate types prevent passing a job ID where a viewer ID is expected
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ViewerID identifies a viewer instance
type ViewerID string

// SessionID identifies an open PDF session
type SessionID string

// JobID identifies a single page render operation
type JobID string

// BlobID identifies an in-memory blob registered under a blob: URL
type BlobID string

const (
	ViewerPrefix  = "vw"
	SessionPrefix = "pdf"
	JobPrefix     = "job"
	BlobPrefix    = "blob"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewViewerID generates a new viewer ID
func NewViewerID() ViewerID {
	return ViewerID(Default().GenerateWithPrefix(ViewerPrefix))
}

// NewSessionID generates a new PDF session ID
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewJobID generates a new render job ID
func NewJobID() JobID {
	return JobID(Default().GenerateWithPrefix(JobPrefix))
}

// NewBlobID generates a new blob ID. Blob URLs embed it without the
// prefix separator so they look like browser object URLs.
func NewBlobID() BlobID {
	return BlobID(strings.ToLower(Default().GenerateString()))
}

func (id ViewerID) String() string  { return string(id) }
func (id SessionID) String() string { return string(id) }
func (id JobID) String() string     { return string(id) }
func (id BlobID) String() string    { return string(id) }

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// IsValidPrefixed checks that id is "<prefix>_<ulid>"
func IsValidPrefixed(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"_")
	return ok && IsValid(rest)
}

// Timestamp extracts the timestamp from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
