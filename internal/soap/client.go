package soap

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/sipsa-io/sipsa/internal/config"
)

// Sentinel errors for SOAP transport failures.
var (
	// ErrExternalUnavailable is returned when the upstream service could not
	// be reached, including after retry exhaustion.
	ErrExternalUnavailable = errors.New("SOAP service unavailable")
)

// ExternalError wraps a transport or protocol failure against the upstream
// service. HTTPStatus is zero when the failure happened below HTTP.
type ExternalError struct {
	Method     string
	HTTPStatus int
	Err        error
}

// Error implements the error interface.
func (e *ExternalError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("SOAP call %s failed with HTTP %d: %v", e.Method, e.HTTPStatus, e.Err)
	}

	return fmt.Sprintf("SOAP call %s failed: %v", e.Method, e.Err)
}

// Unwrap allows errors.Is(err, ErrExternalUnavailable).
func (e *ExternalError) Unwrap() error {
	return ErrExternalUnavailable
}

// httpStatusError marks an HTTP status outcome inside the retry loop.
type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	if e.status >= http.StatusInternalServerError {
		return fmt.Sprintf("server error %d", e.status)
	}

	return fmt.Sprintf("client error %d", e.status)
}

// Client streams SOAP 1.2 responses from the configured endpoint.
//
// The returned body is never buffered: callers receive the (possibly
// gzip-decompressed) network stream and must close it.
type Client struct {
	cfg        *Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a SOAP client with configured connect and read timeouts.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		// The upstream service misbehaves with HTTP/2 chunked responses;
		// HTTP/1.1 gives better chunked transfer support.
		ForceAttemptHTTP2: false,
		// Decompression is handled explicitly so the Content-Encoding
		// header stays visible.
		DisableCompression: true,
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
		},
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}, nil
}

// Stream POSTs the SOAP envelope for methodName and returns the response body
// as a lazy stream.
//
// Retry policy: 5xx responses and transport failures retry with exponential
// backoff (RetryBackoff × 2^(attempt-1)) up to MaxRetries; 4xx responses fail
// immediately. On exhaustion the last cause is wrapped in an ExternalError.
func (c *Client) Stream(ctx context.Context, methodName string) (io.ReadCloser, error) {
	envelope := c.wrapEnvelope(methodName)

	var (
		stream     io.ReadCloser
		lastStatus int
		attempt    int
	)

	operation := func() error {
		if attempt > 0 {
			c.logger.Info("Retrying SOAP call",
				slog.String("method", methodName),
				slog.Int("attempt", attempt),
				slog.Int("max_retries", c.cfg.MaxRetries),
			)
		}

		attempt++

		body, status, err := c.executeCall(ctx, envelope)
		if status != 0 {
			lastStatus = status
		}

		if err != nil {
			var statusErr *httpStatusError
			if errors.As(err, &statusErr) && statusErr.status < http.StatusInternalServerError {
				// 4xx responses are not retryable.
				return backoff.Permanent(err)
			}

			return err
		}

		stream = body

		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.RetryBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(c.cfg.MaxRetries)), ctx))
	if err != nil {
		c.logger.Error("SOAP call failed",
			slog.String("method", methodName),
			slog.Int("http_status", lastStatus),
			slog.String("error", err.Error()),
		)

		return nil, &ExternalError{Method: methodName, HTTPStatus: lastStatus, Err: err}
	}

	return stream, nil
}

// executeCall performs one HTTP exchange. It returns the body stream on 2xx,
// or the HTTP status and an error otherwise.
func (c *Client) executeCall(ctx context.Context, envelope string) (io.ReadCloser, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(envelope))
	if err != nil {
		return nil, 0, err
	}

	// SOAP 1.2 carries the action in the Content-Type, not a SOAPAction header.
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}

	status := resp.StatusCode

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		// Drain a little so the connection can be reused, then close.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		_ = resp.Body.Close()

		return nil, status, &httpStatusError{status: status}
	}

	body := resp.Body

	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()

			return nil, status, err
		}

		body = &gzipReadCloser{gz: gz, underlying: resp.Body}
	}

	return body, status, nil
}

// wrapEnvelope builds the SOAP 1.2 envelope around the named empty request
// element, qualified with the configured service namespace.
func (c *Client) wrapEnvelope(methodName string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<soap12:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" ` +
		`xmlns:xsd="http://www.w3.org/2001/XMLSchema" ` +
		`xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">` +
		`<soap12:Body>` +
		`<` + methodName + ` xmlns="` + c.cfg.Namespace + `"/>` +
		`</soap12:Body>` +
		`</soap12:Envelope>`
}

// gzipReadCloser closes both the gzip reader and the underlying body.
type gzipReadCloser struct {
	gz         *gzip.Reader
	underlying io.ReadCloser
}

func (g *gzipReadCloser) Read(p []byte) (int, error) {
	return g.gz.Read(p)
}

func (g *gzipReadCloser) Close() error {
	gzErr := g.gz.Close()

	if err := g.underlying.Close(); err != nil {
		return err
	}

	return gzErr
}
