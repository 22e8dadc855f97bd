package fetch

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/docviewer/internal/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appOrigin = "http://viewer.local"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(Options{Origin: appOrigin, Blobs: blob.NewStore(appOrigin)})
}

func TestHeadCORS(t *testing.T) {
	tests := []struct {
		name    string
		allow   string
		status  int
		wantErr error
	}{
		{name: "wildcard", allow: "*", status: http.StatusOK},
		{name: "exact origin", allow: appOrigin, status: http.StatusOK},
		{name: "missing header", allow: "", status: http.StatusOK, wantErr: ErrCORSDenied},
		{name: "other origin", allow: "http://elsewhere", status: http.StatusOK, wantErr: ErrCORSDenied},
		{name: "not found", allow: "*", status: http.StatusNotFound, wantErr: ErrStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotOrigin string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodHead, r.Method)
				gotOrigin = r.Header.Get("Origin")
				if tt.allow != "" {
					w.Header().Set("Access-Control-Allow-Origin", tt.allow)
				}
				w.Header().Set("Content-Type", "application/pdf")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			probe, err := newTestClient(t).Head(context.Background(), srv.URL+"/doc", ModeCORS)
			assert.Equal(t, appOrigin, gotOrigin)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "application/pdf", probe.ContentType)
			assert.Equal(t, http.StatusOK, probe.Status)
		})
	}
}

func TestHeadNoCORSIgnoresAllowOrigin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Origin"))
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", "42")
	}))
	defer srv.Close()

	probe, err := newTestClient(t).Head(context.Background(), srv.URL+"/a.png", ModeNoCORS)
	require.NoError(t, err)
	assert.Equal(t, "image/png", probe.ContentType)
	assert.Equal(t, int64(42), probe.ContentLength)
}

func TestHeadHonoursContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestClient(t).Head(ctx, srv.URL, ModeNoCORS)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRange(t *testing.T) {
	payload := []byte("%PDF-1.7 and a lot more bytes after the header")

	t.Run("partial content", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "bytes=0-3", r.Header.Get("Range"))
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write(payload[:4])
		}))
		defer srv.Close()

		data, err := newTestClient(t).Range(context.Background(), srv.URL, 0, 3)
		require.NoError(t, err)
		assert.Equal(t, "%PDF", string(data))
	})

	t.Run("server ignores range", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(payload)
		}))
		defer srv.Close()

		data, err := newTestClient(t).Range(context.Background(), srv.URL, 1, 3)
		require.NoError(t, err)
		assert.Equal(t, "PDF", string(data))
	})

	t.Run("error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		_, err := newTestClient(t).Range(context.Background(), srv.URL, 0, 1023)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusForbidden, se.Status)
	})

	t.Run("data url", func(t *testing.T) {
		u := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(payload)
		data, err := newTestClient(t).Range(context.Background(), u, 0, 1023)
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	})

	t.Run("invalid range", func(t *testing.T) {
		_, err := newTestClient(t).Range(context.Background(), "http://x", 5, 1)
		assert.Error(t, err)
	})
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/doc.pdf":
			_, _ = w.Write([]byte("%PDF-1.4 body"))
		case "/big.pdf":
			_, _ = w.Write(make([]byte, 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(Options{Origin: appOrigin, MaxBodyBytes: 32, Blobs: blob.NewStore(appOrigin)})

	data, err := c.Fetch(context.Background(), srv.URL+"/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))

	_, err = c.Fetch(context.Background(), srv.URL+"/big.pdf")
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = c.Fetch(context.Background(), srv.URL+"/missing.pdf")
	assert.ErrorIs(t, err, ErrStatus)
}

func TestFetchBlob(t *testing.T) {
	c := newTestClient(t)
	u := c.Blobs.Create([]byte("%PDF-blob"), "application/pdf")

	data, err := c.Fetch(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-blob", string(data))

	c.Blobs.Revoke(u)
	_, err = c.Fetch(context.Background(), u)
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestFetchTripsBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t)
	for i := 0; i < 10; i++ {
		_, err := c.Fetch(context.Background(), srv.URL+"/"+strconv.Itoa(i))
		assert.ErrorIs(t, err, ErrStatus)
	}

	before := hits.Load()
	_, err := c.Fetch(context.Background(), srv.URL+"/again")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, before, hits.Load())
}

func TestAbsolute(t *testing.T) {
	c := newTestClient(t)

	assert.Equal(t, appOrigin+"/docs/a.pdf", c.Absolute("/docs/a.pdf"))
	assert.Equal(t, appOrigin+"/a.pdf", c.Absolute("a.pdf"))
	assert.Equal(t, "https://x/y.pdf", c.Absolute("https://x/y.pdf"))
	assert.Equal(t, "data:,x", c.Absolute("data:,x"))
}

func TestSetRateLimit(t *testing.T) {
	c := newTestClient(t)
	c.SetRateLimit(5)
	assert.Equal(t, 5, c.Limiter.Burst())

	c.SetRateLimit(0)
	assert.True(t, c.Limiter.Limit() > 1e300)
}
