// Package tts provides the text-to-speech client, orchestration and scratch
// storage used by the bridge.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/logger"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

// Error messages.
const (
	errFmtUpstreamStatus   = "TTS service returned non-success status: %s, body: %s"
	logFmtUpstreamStatus   = "TTS request failed, status: %d, body: %s"
	logFmtTransportFailure = "TTS request to %s failed: %v"
	logFmtUnexpected       = "TTS request to %s could not be prepared: %v"
)

var (
	// ErrTransport wraps connection, DNS and timeout failures.
	ErrTransport = errors.New("tts transport failure")
	// ErrRequest indicates that the request could not be built.
	ErrRequest = errors.New("tts request could not be built")
)

// UpstreamError is returned when the TTS service answers with a status other than 200.
type UpstreamError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf(errFmtUpstreamStatus, e.Status, e.Body)
}

// HTTPClient issues single JSON requests to the TTS service. Each call uses
// its own http.Client; nothing is pooled between calls and nothing is retried.
type HTTPClient struct {
	timeout time.Duration
	log     *logger.Logger
}

// NewHTTPClient creates a client. A zero timeout leaves the transport default.
func NewHTTPClient(timeout time.Duration, log *logger.Logger) *HTTPClient {
	return &HTTPClient{
		timeout: timeout,
		log:     log,
	}
}

// Request sends body as JSON to endpoint with the given method and returns
// the raw response bytes. Every failure is logged here before it is returned.
func (c *HTTPClient) Request(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	data, err := c.do(ctx, method, endpoint, body)
	if err != nil {
		var upstreamErr *UpstreamError

		switch {
		case errors.As(err, &upstreamErr):
			c.log.Error(logFmtUpstreamStatus, upstreamErr.StatusCode, upstreamErr.Body)
		case errors.Is(err, ErrTransport):
			c.log.Error(logFmtTransportFailure, endpoint, err)
		default:
			c.log.Error(logFmtUnexpected, endpoint, err)
		}

		return nil, err
	}

	return data, nil
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	requestBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request: %w", ErrRequest, err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		strings.ToUpper(method),
		endpoint,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrRequest, err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)

	client := &http.Client{Timeout: c.timeout}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Fallback to whatever could be read; the body is diagnostic only.
		errBody, _ := io.ReadAll(resp.Body)

		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(errBody),
		}
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", ErrTransport, err)
	}

	return audioData, nil
}
