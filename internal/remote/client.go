package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// maxErrorBodySize bounds how much of an error response body is read.
const maxErrorBodySize = 64 * 1024

// Client talks to the remote journal store and the assessment submission
// endpoint. It classifies errors but never retries; the orchestrator applies
// the shared backoff policy.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a Client using the given HTTP client. Tests pass an
// httptest-backed client here.
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{baseURL: baseURL, http: httpClient, logger: logger}
}

// NewWithCredentials creates a Client whose HTTP client obtains and
// refreshes OAuth2 client-credentials tokens from tokenURL.
func NewWithCredentials(ctx context.Context, baseURL, tokenURL, clientID, clientSecret string,
	timeout time.Duration, logger *slog.Logger,
) *Client {
	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}

	httpClient := cc.Client(ctx)
	httpClient.Timeout = timeout

	return New(baseURL, httpClient, logger)
}

// Upsert writes a journal entry snapshot to the remote store, keyed by
// entity id so re-sending after a crash or re-invocation never duplicates
// the record. The server compares baseVersion against its current version
// and answers 409 when the record was independently modified; that surfaces
// here as a *ConflictError. On success the canonical record with its new
// version is returned.
func (c *Client) Upsert(ctx context.Context, entityID string, payload json.RawMessage, baseVersion int64) (*Record, error) {
	body, err := json.Marshal(upsertRequest{Payload: payload, BaseVersion: baseVersion})
	if err != nil {
		return nil, fmt.Errorf("remote: encoding upsert for %s: %w", entityID, err)
	}

	resp, err := c.do(ctx, http.MethodPut, "/v1/entries/"+entityID, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil, c.parseConflict(entityID, resp.Body)
	}

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("remote: decoding upsert response for %s: %w", entityID, err)
	}

	c.logger.Debug("entry upserted",
		slog.String("entity_id", entityID),
		slog.Int64("version", rec.Version),
	)

	return &rec, nil
}

// SubmitAssessment submits an assessment job for a synced entry. RequestID
// makes the call idempotent on the service side.
func (c *Client) SubmitAssessment(ctx context.Context, req AssessmentRequest) (*AssessmentReply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("remote: encoding assessment request for %s: %w", req.EntityID, err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/v1/assessments", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	var reply AssessmentReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("remote: decoding assessment reply for %s: %w", req.EntityID, err)
	}

	c.logger.Debug("assessment submitted",
		slog.String("entity_id", req.EntityID),
		slog.String("run_id", reply.RunID),
	)

	return &reply, nil
}

// do executes a single JSON request. No retries here.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote: building %s %s: %w", method, path, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: %s %s: %w", method, path, err)
	}

	return resp, nil
}

// checkStatus maps a non-2xx response to an *APIError with a sentinel.
func (c *Client) checkStatus(resp *http.Response) error {
	sentinel := classifyStatus(resp.StatusCode)
	if sentinel == nil {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	var eb errorBody

	msg := string(raw)
	if json.Unmarshal(raw, &eb) == nil && eb.Message != "" {
		msg = eb.Message
	}

	return &APIError{StatusCode: resp.StatusCode, Message: msg, Err: sentinel}
}

// parseConflict decodes a 409 body into a ConflictError. A malformed body
// still yields a ConflictError, with the server version left at zero.
func (c *Client) parseConflict(entityID string, body io.Reader) error {
	var cb conflictBody

	if err := json.NewDecoder(body).Decode(&cb); err != nil {
		c.logger.Warn("malformed conflict body",
			slog.String("entity_id", entityID),
			slog.String("error", err.Error()),
		)
	}

	return &ConflictError{EntityID: entityID, ServerVersion: cb.ServerVersion}
}
