package blob

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGetRevoke(t *testing.T) {
	s := NewStore("http://localhost:8000/")

	u := s.Create([]byte("%PDF-1.7"), "application/pdf")
	assert.True(t, strings.HasPrefix(u, "blob:http://localhost:8000/"))
	assert.True(t, IsBlobURL(u))

	data, ct, err := s.Get(u)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), data)
	assert.Equal(t, "application/pdf", ct)
	assert.Equal(t, 1, s.Len())

	s.Revoke(u)
	_, _, err = s.Get(u)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestRevokeIgnoresOtherURLs(t *testing.T) {
	s := NewStore("http://localhost")
	u := s.Create([]byte("x"), "text/plain")

	s.Revoke("https://example.com/a.pdf")
	s.Revoke("blob:http://localhost/unknown")

	assert.Equal(t, 1, s.Len())
	_, _, err := s.Get(u)
	assert.NoError(t, err)
}

func TestFromDataURL(t *testing.T) {
	s := NewStore("http://localhost")
	payload := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4\n"))

	u, err := s.FromDataURL("data:application/pdf;base64," + payload)
	require.NoError(t, err)

	data, ct, err := s.Get(u)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4\n", string(data))
	assert.Equal(t, "application/pdf", ct)
}

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantData string
		wantType string
		wantErr  bool
	}{
		{
			name:     "base64",
			in:       "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'}),
			wantData: "\x89PNG",
			wantType: "image/png",
		},
		{
			name:     "unpadded base64",
			in:       "data:application/pdf;base64,JVBERg",
			wantData: "%PDF",
			wantType: "application/pdf",
		},
		{
			name:     "percent encoded",
			in:       "data:image/svg+xml,%3Csvg%3E%3C%2Fsvg%3E",
			wantData: "<svg></svg>",
			wantType: "image/svg+xml",
		},
		{
			name:     "default media type",
			in:       "data:,hello",
			wantData: "hello",
			wantType: "text/plain;charset=US-ASCII",
		},
		{name: "not a data url", in: "https://x/y.pdf", wantErr: true},
		{name: "missing comma", in: "data:application/pdf;base64", wantErr: true},
		{name: "bad base64", in: "data:application/pdf;base64,!!!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, ct, err := ParseDataURL(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDataURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantData, string(data))
			assert.Equal(t, tt.wantType, ct)
		})
	}
}

func TestMediaType(t *testing.T) {
	assert.Equal(t, "application/pdf", MediaType("data:application/pdf;base64,AAAA"))
	assert.Equal(t, "image/png", MediaType("data:IMAGE/PNG,abc"))
	assert.Equal(t, "", MediaType("blob:http://x/1"))
}
