package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contextBG() context.Context { return context.Background() }

func productServer(handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-elastic-product", "Elasticsearch")
		handler(w, r)
	}))
}

func TestPerformRequestSuccessDecodesJSON(t *testing.T) {
	srv := productServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"cluster_name":"test"}`))
	})
	defer srv.Close()

	tr, err := New([]any{srv.URL})
	require.NoError(t, err)
	defer tr.Close()

	result, err := tr.PerformRequest(contextBG(), http.MethodGet, "/", url.Values{}, nil, http.Header{})
	require.NoError(t, err)
	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "test", m["cluster_name"])
}

func TestPerformRequestRetriesExhaustedReturnsTransportError(t *testing.T) {
	var calls int32
	srv := productServer(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer srv.Close()

	tr, err := New([]any{srv.URL}, WithMaxRetries(2))
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.PerformRequest(contextBG(), http.MethodGet, "/", url.Values{}, nil, http.Header{})
	require.Error(t, err)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 503, terr.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls), "maxRetries=2 means 3 total attempts")
}

func TestPerformRequestNonRetriableStatusStopsImmediately(t *testing.T) {
	var calls int32
	srv := productServer(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	tr, err := New([]any{srv.URL}, WithMaxRetries(5))
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.PerformRequest(contextBG(), http.MethodGet, "/missing", url.Values{}, nil, http.Header{})
	require.Error(t, err)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, KindNotFoundError, terr.Kind)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "a non-retriable status must not be retried")
}

func TestPerformRequestUnsupportedProductErrorOnMissingHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr, err := New([]any{srv.URL})
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.PerformRequest(contextBG(), http.MethodGet, "/", url.Values{}, nil, http.Header{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedProduct)
}

func TestPerformRequestHTTPErrorPreemptsProductCheck(t *testing.T) {
	// No x-elastic-product header AND a 404 — the transport error must win,
	// since the product check only runs on the success path.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tr, err := New([]any{srv.URL})
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.PerformRequest(contextBG(), http.MethodGet, "/missing", url.Values{}, nil, http.Header{})
	require.Error(t, err)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.False(t, errors.Is(err, ErrUnsupportedProduct))
}

func TestPerformRequestSendGetBodyAsPOST(t *testing.T) {
	var gotMethod string
	srv := productServer(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	tr, err := New([]any{srv.URL}, WithSendGetBodyAs("POST"))
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.PerformRequest(contextBG(), http.MethodGet, "/_search", url.Values{}, map[string]any{"query": "x"}, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
}

func TestPerformRequestSendGetBodyAsSource(t *testing.T) {
	var gotQuery string
	srv := productServer(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("source")
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	tr, err := New([]any{srv.URL}, WithSendGetBodyAs("source"))
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.PerformRequest(contextBG(), http.MethodGet, "/_search", url.Values{}, map[string]any{"q": "v"}, http.Header{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"q":"v"}`, gotQuery)
}

func TestPerformRequestMetaHeaderSent(t *testing.T) {
	var gotMeta string
	srv := productServer(func(w http.ResponseWriter, r *http.Request) {
		gotMeta = r.Header.Get("x-elastic-client-meta")
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	tr, err := New([]any{srv.URL})
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.PerformRequest(contextBG(), http.MethodGet, "/", url.Values{}, nil, http.Header{})
	require.NoError(t, err)
	assert.Contains(t, gotMeta, "es=")
}

func TestPerformRequestOpaqueIDDefaultAndOverride(t *testing.T) {
	var gotOpaque string
	srv := productServer(func(w http.ResponseWriter, r *http.Request) {
		gotOpaque = r.Header.Get("x-opaque-id")
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	tr, err := New([]any{srv.URL}, WithOpaqueID("default-id"))
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.PerformRequest(contextBG(), http.MethodGet, "/", url.Values{}, nil, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, "default-id", gotOpaque)

	headers := http.Header{}
	headers.Set("x-opaque-id", "per-request")
	_, err = tr.PerformRequest(contextBG(), http.MethodGet, "/", url.Values{}, nil, headers)
	require.NoError(t, err)
	assert.Equal(t, "per-request", gotOpaque)
}

func TestCloseClosesBothTheActivePoolAndSeedConnectionsNotInIt(t *testing.T) {
	// AddConnection puts a third connection in the pool that was never a
	// seed, so the pool's live set and t.seedConnections diverge. Close must
	// reach both without erroring.
	srv := productServer(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	tr, err := New([]any{srv.URL, "127.0.0.1:19200"})
	require.NoError(t, err)

	require.NoError(t, tr.AddConnection("127.0.0.1:19201"))
	assert.NoError(t, tr.Close())
}

func TestPerformRequestMaxRetriesRejectsNegative(t *testing.T) {
	_, err := New([]any{"localhost:9200"}, WithMaxRetries(-1))
	assert.Error(t, err)
}

func TestWithHTTPAuthAndAPIKeyAreMutuallyExclusive(t *testing.T) {
	_, err := New([]any{"localhost:9200"}, WithHTTPAuth([2]string{"u", "p"}), WithAPIKey("k"))
	assert.Error(t, err)
}
