package soap

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(endpoint string) *Config {
	return &Config{
		Endpoint:         endpoint,
		Namespace:        "https://appweb.dane.gov.co/sipsaWS/",
		ConnectTimeout:   2 * time.Second,
		ReadTimeout:      2 * time.Second,
		MaxRetries:       2,
		RetryBackoff:     time.Millisecond,
		MaxChildElements: 1000,
	}
}

func TestStreamReturnsBody(t *testing.T) {
	var gotBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/soap+xml; charset=utf-8", r.Header.Get("Content-Type"))
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))

		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		_, _ = w.Write([]byte("<env>payload</env>"))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	stream, err := client.Stream(context.Background(), "promediosSipsaCiudad")
	require.NoError(t, err)

	defer func() {
		_ = stream.Close()
	}()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "<env>payload</env>", string(data))

	assert.Contains(t, gotBody, `<promediosSipsaCiudad xmlns="https://appweb.dane.gov.co/sipsaWS/"/>`)
	assert.Contains(t, gotBody, `soap12:Envelope`)
}

func TestStreamDecompressesGzip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")

		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte("<compressed/>"))
		_ = gz.Close()
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	stream, err := client.Stream(context.Background(), "promediosSipsaParcial")
	require.NoError(t, err)

	defer func() {
		_ = stream.Close()
	}()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "<compressed/>", string(data))
}

func TestStreamRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		_, _ = w.Write([]byte("<ok/>"))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	stream, err := client.Stream(context.Background(), "promediosSipsaSemanaMadr")
	require.NoError(t, err)

	defer func() {
		_ = stream.Close()
	}()

	assert.Equal(t, int32(3), calls.Load(), "two retries then success")
}

func TestStreamClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Stream(context.Background(), "promediosSipsaCiudad")
	require.ErrorIs(t, err, ErrExternalUnavailable)

	var external *ExternalError

	require.ErrorAs(t, err, &external)
	assert.Equal(t, http.StatusNotFound, external.HTTPStatus)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestStreamRetriesExhausted(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Stream(context.Background(), "promedioAbasSipsaMesMadr")
	require.ErrorIs(t, err, ErrExternalUnavailable)

	var external *ExternalError

	require.ErrorAs(t, err, &external)
	assert.Equal(t, http.StatusInternalServerError, external.HTTPStatus)
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus MaxRetries")
}

func TestStreamConnectFailure(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1") // nothing listens here
	cfg.MaxRetries = 1

	client, err := NewClient(cfg)
	require.NoError(t, err)

	_, err = client.Stream(context.Background(), "promediosSipsaCiudad")
	assert.ErrorIs(t, err, ErrExternalUnavailable)
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig("")
	assert.ErrorIs(t, cfg.Validate(), ErrEndpointEmpty)

	cfg = testConfig("http://example.com")
	assert.NoError(t, cfg.Validate())
}
