package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/observability"
	"github.com/boddenberg/bankdash-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/bankdash-bfa-go/internal/port"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("client")

// RequestOptions carries the optional query parameters and JSON body.
type RequestOptions struct {
	Params url.Values
	Body   any
}

// Transport issues requests to the bank API base URL with the current bearer
// credential. Every failure is returned as *domain.ErrTransport so callers can
// branch on the status code. It never touches the resource cache.
type Transport struct {
	httpClient *http.Client
	baseURL    string
	creds      port.CredentialSource
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewTransport creates a Transport. creds may be nil for unauthenticated use.
func NewTransport(
	httpClient *http.Client,
	baseURL string,
	creds port.CredentialSource,
	cb *gobreaker.CircuitBreaker,
	bulkhead *resilience.Bulkhead,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Transport {
	return &Transport{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		cb:         cb,
		bulkhead:   bulkhead,
		metrics:    metrics,
		logger:     logger,
	}
}

// Do performs the request and decodes a JSON response into out (unless out is
// nil or the response has no body). A body that cannot be decoded keeps the
// response status: the bank answered, just not in the documented shape.
func (t *Transport) Do(ctx context.Context, method, path string, opts RequestOptions, out any) error {
	resp, err := t.request(ctx, method, path, opts)
	if err != nil {
		return err
	}
	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		t.logger.Warn("bank: undecodable response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.status),
			zap.Error(err),
		)
		t.metrics.IncrExternalError("decode")
		return &domain.ErrTransport{
			Method:     method,
			Path:       path,
			StatusCode: resp.status,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

// Request performs the request and returns the raw 2xx body.
func (t *Transport) Request(ctx context.Context, method, path string, opts RequestOptions) ([]byte, error) {
	resp, err := t.request(ctx, method, path, opts)
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

// response is a 2xx answer.
type response struct {
	status int
	body   []byte
}

func (t *Transport) request(ctx context.Context, method, path string, opts RequestOptions) (response, error) {
	ctx, span := tracer.Start(ctx, "Transport."+method)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("bank.path", path),
	)

	start := time.Now()
	defer func() {
		t.metrics.RecordUpstreamDuration(method, time.Since(start))
	}()

	if err := t.bulkhead.Acquire(ctx); err != nil {
		return response{}, t.fail(span, &domain.ErrTransport{Method: method, Path: path, Err: err})
	}
	defer t.bulkhead.Release()

	result, err := t.cb.Execute(func() (any, error) {
		return t.roundTrip(ctx, method, path, opts)
	})
	if err != nil {
		if resilience.IsOpen(err) {
			err = &domain.ErrTransport{Method: method, Path: path, Err: &domain.ErrCircuitOpen{Service: "bank"}}
		}
		return response{}, t.fail(span, err)
	}

	return result.(response), nil
}

func (t *Transport) roundTrip(ctx context.Context, method, path string, opts RequestOptions) (response, error) {
	u := t.baseURL + path
	if len(opts.Params) > 0 {
		u += "?" + opts.Params.Encode()
	}

	var reader io.Reader
	if opts.Body != nil {
		payload, err := json.Marshal(opts.Body)
		if err != nil {
			return response{}, &domain.ErrTransport{Method: method, Path: path, Err: fmt.Errorf("encode body: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return response{}, &domain.ErrTransport{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.creds != nil {
		if token := t.creds.Token(); token != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
		}
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Warn("bank: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return response{}, &domain.ErrTransport{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, &domain.ErrTransport{Method: method, Path: path, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb domain.ErrorBody
		// A body that is not the documented shape just yields no message.
		_ = json.Unmarshal(body, &eb)
		t.logger.Warn("bank: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return response{}, &domain.ErrTransport{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Messages:   eb.Message,
		}
	}

	t.logger.Debug("bank: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return response{status: resp.StatusCode, body: body}, nil
}

func (t *Transport) fail(span trace.Span, err error) error {
	kind := "network"
	if resilience.IsAnswered(err) {
		kind = "http"
	}
	t.metrics.IncrExternalError(kind)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
