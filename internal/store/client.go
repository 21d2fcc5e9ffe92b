package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medrex/glucose-tracker/pkg/config"
	"github.com/medrex/glucose-tracker/pkg/logger"
	"github.com/medrex/glucose-tracker/pkg/monitoring"
	"github.com/medrex/glucose-tracker/pkg/types"
	"go.opentelemetry.io/otel/attribute"
)

const (
	entriesPath          = "api/entries"
	recommendedSpotsPath = "recommended-spots"

	// maxErrorBody bounds how much of a failed response is kept for diagnostics
	maxErrorBody = 512
)

// Client talks to the remote reading store over HTTP. It implements
// interfaces.ReadingStore and interfaces.RecommendationService.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	totalHeader string
	logger      *logger.Logger
	metrics     *monitoring.MetricsCollector
	tracing     *monitoring.TracingManager
}

// NewClient creates a store client for the configured base URL
func NewClient(cfg config.StoreConfig, log *logger.Logger, metrics *monitoring.MetricsCollector) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid store base URL %q", cfg.BaseURL)
	}

	header := cfg.TotalCountHeader
	if header == "" {
		header = "X-Total-Count"
	}

	return &Client{
		baseURL:     base,
		httpClient:  &http.Client{Timeout: cfg.RequestTimeout()},
		totalHeader: header,
		logger:      log,
		metrics:     metrics,
		tracing:     monitoring.NewTracingManager("glucose-store-client"),
	}, nil
}

// BaseURL returns the store address the client was built with
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// ListEntries fetches one page of readings in the store's wire shape
func (c *Client) ListEntries(ctx context.Context, query *types.ListQuery) (*types.EntryPage, error) {
	u := c.baseURL.JoinPath(entriesPath)
	q := u.Query()
	q.Set("sortBy", string(query.SortBy))
	q.Set("page", strconv.Itoa(query.Page))
	q.Set("size", strconv.Itoa(query.Size))
	u.RawQuery = q.Encode()

	resp, err := c.do(ctx, "list", http.MethodGet, u, nil,
		attribute.String("sort_by", string(query.SortBy)),
		attribute.Int("page", query.Page),
		attribute.Int("size", query.Size),
	)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var items []types.WirePayload
	if err := decodeJSON(resp.Body, &items); err != nil {
		return nil, decodeFailure(ctx, "list", "store returned an invalid entry list", err)
	}

	page := &types.EntryPage{Items: items}
	if raw := resp.Header.Get(c.totalHeader); raw != "" {
		if total, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && total >= 0 {
			page.Total = &total
		} else {
			c.logger.WithComponent("store").WithField("header", raw).Warn("Ignoring unparseable total count")
		}
	}

	return page, nil
}

// CreateEntry submits a new reading and returns the store's echo
func (c *Client) CreateEntry(ctx context.Context, payload *types.SubmissionPayload) (types.WirePayload, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to encode submission", err)
	}

	resp, err := c.do(ctx, "create", http.MethodPost, c.baseURL.JoinPath(entriesPath), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	echo := types.WirePayload{}
	if err := decodeJSON(resp.Body, &echo); err != nil && !errors.Is(err, io.EOF) {
		return nil, decodeFailure(ctx, "create", "store returned an invalid created entry", err)
	}
	return echo, nil
}

// DeleteEntry removes a reading by id
func (c *Client) DeleteEntry(ctx context.Context, id int64) error {
	u := c.baseURL.JoinPath(entriesPath, strconv.FormatInt(id, 10))

	resp, err := c.do(ctx, "delete", http.MethodDelete, u, nil, attribute.Int64("entry_id", id))
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// RecommendedSpots fetches the currently preferred puncture site codes
func (c *Client) RecommendedSpots(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, "recommend", http.MethodGet, c.baseURL.JoinPath(entriesPath, recommendedSpotsPath), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var codes []string
	if err := decodeJSON(resp.Body, &codes); err != nil {
		return nil, decodeFailure(ctx, "recommend", "store returned invalid recommendations", err)
	}
	return codes, nil
}

// do sends a request and returns the response only for 2xx statuses
func (c *Client) do(ctx context.Context, operation, method string, u *url.URL, body []byte, attrs ...attribute.KeyValue) (*http.Response, error) {
	ctx, span := c.tracing.StartClientSpan(ctx, operation, append(attrs, attribute.String("http.method", method))...)
	defer span.End()

	start := time.Now()
	status := "error"
	defer func() {
		c.metrics.RecordStoreRequest(operation, status, time.Since(start))
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		monitoring.RecordError(span, err)
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to build store request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", requestID(ctx))
	c.tracing.InjectTraceContext(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		monitoring.RecordError(span, err)
		c.logger.HTTPRequest(ctx, method, u.Path, 0, time.Since(start).Milliseconds(), map[string]interface{}{
			"operation": operation,
			"error":     err.Error(),
		})
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			status = "timeout"
			return nil, types.NewTimeoutError(fmt.Sprintf("store %s request timed out", operation), err)
		}
		return nil, types.NewTransportError(types.ErrCodeTransport, fmt.Sprintf("store %s request failed", operation), err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.logger.HTTPRequest(ctx, method, u.Path, resp.StatusCode, time.Since(start).Milliseconds(), map[string]interface{}{
		"operation": operation,
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		status = strconv.Itoa(resp.StatusCode)
		err := &types.TrackerError{
			Type:    types.ErrorTypeTransport,
			Code:    types.ErrCodeUnexpectedStatus,
			Message: fmt.Sprintf("store %s request returned %d", operation, resp.StatusCode),
			Details: map[string]interface{}{
				"status_code": resp.StatusCode,
				"body":        strings.TrimSpace(string(snippet)),
			},
		}
		monitoring.RecordError(span, err)
		return nil, err
	}

	status = "success"
	return resp, nil
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(logger.RequestIDKey).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// decodeFailure reports a body that could not be read in time as a timeout
// and anything else as a malformed response
func decodeFailure(ctx context.Context, operation, message string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return types.NewTimeoutError(fmt.Sprintf("store %s response timed out", operation), err)
	}
	return types.NewTransportError(types.ErrCodeMalformedResponse, message, err)
}

func decodeJSON(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(v)
}
