package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/siteintent/internal/model"
)

type schema struct{}

func (schema) AllowSet() []string {
	return []string{"identity_business_name", "identity_phone", "trust_abn"}
}
func (schema) Nullable(key string) bool { return key == "trust_abn" }

func TestBuildPayload(t *testing.T) {
	fields := model.Fields{
		"identity_business_name": "Plumb Co",
		"extra":                  "dropped",
	}
	p := BuildPayload(fields, schema{})

	assert.Equal(t, Payload{"identity_business_name": "Plumb Co", "trust_abn": nil}, p)
	assert.Equal(t, 1, p.Sendable())
}

func TestFilePusher(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	p := NewFilePusher(dir)

	require.NoError(t, p.Push(context.Background(), "req-1", Payload{"a": "b", "n": nil}))

	data, err := os.ReadFile(filepath.Join(dir, "req-1.json"))
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, map[string]any{"a": "b", "n": nil}, back)

	assert.Error(t, p.Push(context.Background(), "../escape", Payload{}))
	assert.Error(t, p.Push(context.Background(), "", Payload{}))
}

func TestHTTPPusher(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "req-1", r.Header.Get("X-Request-ID"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	p, err := NewHTTPPusher(HTTPConfig{Endpoint: server.URL, Token: "tok"}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Push(context.Background(), "req-1", Payload{"identity_business_name": "Plumb Co"}))
	assert.Equal(t, "Plumb Co", got["identity_business_name"])
}

func TestHTTPPusher_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad token"))
	}))
	defer server.Close()

	p, err := NewHTTPPusher(HTTPConfig{Endpoint: server.URL}, nil)
	require.NoError(t, err)

	err = p.Push(context.Background(), "req-1", Payload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad token")

	_, err = NewHTTPPusher(HTTPConfig{}, nil)
	assert.Error(t, err)
}
