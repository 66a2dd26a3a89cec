package util

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProxyFunc(t *testing.T) {
	proxy := NewProxyFunc("http://proxy.internal:3128", "", "registry.local,.corp.example")

	tests := []struct {
		url  string
		want string
	}{
		{"http://api.example.com/v1", "http://proxy.internal:3128"},
		{"https://api.example.com/v1", "http://proxy.internal:3128"},
		{"https://registry.local/lookup", ""},
		{"https://abr.corp.example/lookup", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, tt.url, nil)
			require.NoError(t, err)

			got, err := proxy(req)
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestNewProxyFunc_SeparateHTTPS(t *testing.T) {
	proxy := NewProxyFunc("http://plain:80", "http://secure:443", "")

	req, _ := http.NewRequest(http.MethodGet, "https://api.example.com", nil)
	got, err := proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "http://secure:443", got.String())
}

func TestNewHTTPClient(t *testing.T) {
	c := NewHTTPClient(3*time.Second, "", "", "")
	assert.Equal(t, 3*time.Second, c.Timeout)
	assert.NotNil(t, c.Transport)
}
