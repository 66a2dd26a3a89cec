package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/siteintent/internal/cache"
	"github.com/ppiankov/siteintent/internal/worker"
)

func registryServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		switch r.URL.Query().Get("name") {
		case "Plumb Co":
			assert.Equal(t, "NSW", r.URL.Query().Get("state"))
			assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"id":"51824753556","entity_name":"PLUMB CO PTY LTD","entity_type":"Company","status":"Active"}`))
		case "Null Co":
			_, _ = w.Write([]byte(`null`))
		case "Broken Co":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestHTTPLookup(t *testing.T) {
	var calls int32
	server := registryServer(t, &calls)
	defer server.Close()

	l, err := NewHTTPLookup(Config{Endpoint: server.URL + "/lookup", APIKey: "k"}, worker.NewLimiter(100, 5), nil)
	require.NoError(t, err)

	entity, err := l.Lookup(context.Background(), Query{BusinessName: "Plumb Co", State: "NSW"})
	require.NoError(t, err)
	assert.Equal(t, "51824753556", entity.ID)
	assert.Equal(t, DefaultSource, entity.Source)

	_, err = l.Lookup(context.Background(), Query{BusinessName: "Null Co"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.Lookup(context.Background(), Query{BusinessName: "Nobody"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.Lookup(context.Background(), Query{BusinessName: "Broken Co"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))

	_, err = l.Lookup(context.Background(), Query{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
}

func TestHTTPLookup_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	l, err := NewHTTPLookup(Config{Endpoint: server.URL, Timeout: 10 * time.Millisecond}, nil, nil)
	require.NoError(t, err)

	_, err = l.Lookup(context.Background(), Query{BusinessName: "Plumb Co"})
	assert.Error(t, err)
}

func TestNewHTTPLookup_Invalid(t *testing.T) {
	_, err := NewHTTPLookup(Config{}, nil, nil)
	assert.Error(t, err)

	_, err = NewHTTPLookup(Config{Endpoint: "not a url"}, nil, nil)
	assert.Error(t, err)
}

func TestCached(t *testing.T) {
	var calls int32
	server := registryServer(t, &calls)
	defer server.Close()

	inner, err := NewHTTPLookup(Config{Endpoint: server.URL, APIKey: "k"}, nil, nil)
	require.NoError(t, err)
	l := NewCached(inner, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute)

	for i := 0; i < 3; i++ {
		entity, err := l.Lookup(context.Background(), Query{BusinessName: "Plumb Co", State: "NSW"})
		require.NoError(t, err)
		assert.Equal(t, "PLUMB CO PTY LTD", entity.EntityName)
	}
	for i := 0; i < 2; i++ {
		_, err := l.Lookup(context.Background(), Query{BusinessName: "Nobody"})
		assert.ErrorIs(t, err, ErrNotFound)
	}
	for i := 0; i < 2; i++ {
		_, err := l.Lookup(context.Background(), Query{BusinessName: "Broken Co"})
		assert.Error(t, err)
	}

	// one call each for the hit and the miss, two for the uncached failure
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
}

func TestNewCached_NilCache(t *testing.T) {
	inner := &HTTPLookup{}
	assert.Same(t, inner, NewCached(inner, nil, time.Minute))
}
