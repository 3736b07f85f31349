// Package rest speaks the MaseDB REST api. Sender delivers operations to a server; Handler serves the same api
// from any masedb.Sender.
package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/autom8ter/masedb"
	"github.com/autom8ter/masedb/errors"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	headerAPIKey    = "X-API-Key"
	headerRequestID = "X-Request-ID"
	contentTypeJSON = "application/json"
	idField         = "_id"
)

var retryableStatus = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Sender delivers operations to a MaseDB server. It is safe for concurrent use.
type Sender struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  masedb.Logger
}

// Opt configures a Sender
type Opt func(s *Sender)

// WithHTTPClient replaces the default http client
func WithHTTPClient(client *http.Client) Opt {
	return func(s *Sender) {
		s.client = client
	}
}

// WithLogger sets the sender's logger
func WithLogger(logger masedb.Logger) Opt {
	return func(s *Sender) {
		s.logger = logger
	}
}

// New creates a Sender
func New(cfg Config, opts ...Opt) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	s := &Sender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: masedb.NopLogger(),
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close releases idle connections
func (s *Sender) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// Send delivers the operation. Updates and deletes whose filter is not a plain _id equality first find the ids
// of the matching documents, then address each document by id.
func (s *Sender) Send(ctx context.Context, collection string, op masedb.Operation) (*masedb.Ack, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	switch op.Kind {
	case masedb.OpInsert:
		return s.insert(ctx, collection, op.Document)
	case masedb.OpFind:
		docs, err := s.find(ctx, collection, op.Filter)
		if err != nil {
			return nil, err
		}
		return &masedb.Ack{Documents: docs, Matched: len(docs), IDs: documentIDs(docs)}, nil
	case masedb.OpUpdate:
		return s.each(ctx, collection, op.Filter, func(id string) error {
			_, err := s.do(ctx, http.MethodPut, documentPath(collection, id), []byte(op.Update.String()))
			return err
		})
	default:
		return s.each(ctx, collection, op.Filter, func(id string) error {
			_, err := s.do(ctx, http.MethodDelete, documentPath(collection, id), nil)
			return err
		})
	}
}

func (s *Sender) insert(ctx context.Context, collection string, doc *masedb.Document) (*masedb.Ack, error) {
	body, err := s.do(ctx, http.MethodPost, collectionPath(collection), doc.Bytes())
	if err != nil {
		return nil, err
	}
	ack := &masedb.Ack{Modified: 1}
	parsed := gjson.ParseBytes(body)
	for _, key := range []string{"id", idField, "document_id"} {
		if id := parsed.Get(key); id.Exists() {
			ack.IDs = []string{id.String()}
			break
		}
	}
	return ack, nil
}

func (s *Sender) find(ctx context.Context, collection string, filter *masedb.Filter) (masedb.Documents, error) {
	body, err := s.do(ctx, http.MethodGet, collectionPath(collection), filter.Source().Bytes())
	if err != nil {
		return nil, err
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		parsed = parsed.Get("documents")
	}
	docs := masedb.Documents{}
	var parseErr error
	parsed.ForEach(func(_, value gjson.Result) bool {
		doc, err := masedb.NewDocumentFromBytes([]byte(value.Raw))
		if err != nil {
			parseErr = err
			return false
		}
		docs = append(docs, doc)
		return true
	})
	if parseErr != nil {
		return nil, transportError(parseErr, "invalid document in response from %s", collectionPath(collection))
	}
	return docs, nil
}

// each calls fn with the id of every document matching filter, stopping at the first error
func (s *Sender) each(ctx context.Context, collection string, filter *masedb.Filter, fn func(id string) error) (*masedb.Ack, error) {
	var ids []string
	if id, ok := filter.EqualityOn(idField); ok && id.Kind() == masedb.KindString {
		ids = []string{id.Str()}
	} else {
		docs, err := s.find(ctx, collection, filter)
		if err != nil {
			return nil, err
		}
		ids = documentIDs(docs)
	}
	ack := &masedb.Ack{Matched: len(ids)}
	for _, id := range ids {
		if err := fn(id); err != nil {
			if e, ok := err.(*errors.Error); ok {
				e.WithDetail("modified", ack.Modified)
			}
			return nil, err
		}
		ack.Modified++
		ack.IDs = append(ack.IDs, id)
	}
	return ack, nil
}

// do sends a request, retrying idempotent methods on retryable statuses, and returns the response body
func (s *Sender) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	requestID, ok := masedb.RequestID(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	retries := 0
	if method != http.MethodPost {
		retries = s.cfg.MaxRetries
	}
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			backoff := s.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
			s.logger.Warn(ctx, "retrying request", map[string]any{
				"method":     method,
				"path":       path,
				"attempt":    attempt,
				"backoff":    backoff.String(),
				"request_id": requestID,
			})
			select {
			case <-ctx.Done():
				return nil, transportError(ctx.Err(), "%s %s cancelled", method, path)
			case <-time.After(backoff):
			}
		}
		respBody, status, err := s.attempt(ctx, method, path, body, requestID)
		if err != nil {
			return nil, err
		}
		if status >= 200 && status < 300 {
			return respBody, nil
		}
		lastErr = responseError(method, path, status, respBody)
		if !retryableStatus[status] {
			break
		}
	}
	s.logger.Error(ctx, "request failed", lastErr, map[string]any{
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})
	return nil, lastErr
}

func (s *Sender) attempt(ctx context.Context, method, path string, body []byte, requestID string) ([]byte, int, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, 0, transportError(err, "rate limited %s %s", method, path)
		}
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, 0, transportError(err, "failed to create request %s %s", method, path)
	}
	req.Header.Set(headerAPIKey, s.cfg.APIKey)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set(headerRequestID, requestID)
	if method == http.MethodPost || method == http.MethodPut {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	s.logger.Debug(ctx, "sending request", map[string]any{
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, transportError(err, "request failed: %s %s", method, path)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, transportError(err, "failed to read response: %s %s", method, path)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && len(respBody) > 0 {
		if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, contentTypeJSON) || !gjson.ValidBytes(respBody) {
			return nil, 0, errors.New(errors.Transport, "invalid response format from %s %s: expected json, got %s", method, path, ct).
				WithDetail("status", resp.StatusCode)
		}
	}
	return respBody, resp.StatusCode, nil
}

// responseError converts an error response of the form {"error": {"code", "message", "details"}}
func responseError(method, path string, status int, body []byte) error {
	e := errors.New(errors.Transport, "HTTP %d: %s", status, strings.TrimSpace(string(body))).
		WithDetail("status", status).
		WithDetail("method", method).
		WithDetail("path", path)
	if len(body) == 0 {
		e.Messages = []string{fmt.Sprintf("HTTP %d: no response body", status)}
	}
	apiErr := gjson.GetBytes(body, "error")
	if !apiErr.IsObject() {
		return e
	}
	if msg := apiErr.Get("message"); msg.Exists() {
		e.Messages = []string{msg.String()}
	}
	e.WithDetail("server_code", apiErr.Get("code").String())
	apiErr.Get("details").ForEach(func(key, value gjson.Result) bool {
		e.WithDetail(key.String(), value.Value())
		return true
	})
	return e
}

func transportError(err error, msg string, args ...any) error {
	return errors.Wrap(err, errors.Transport, msg, args...)
}

func documentIDs(docs masedb.Documents) []string {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if id := doc.GetString(idField); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func collectionPath(collection string) string {
	return "/api/" + url.PathEscape(collection)
}

func documentPath(collection, id string) string {
	return collectionPath(collection) + "/" + url.PathEscape(id)
}
