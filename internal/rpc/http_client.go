package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/revledger/revledger/internal/types"
)

// HTTPClient calls a remote lifecycle service.
type HTTPClient struct {
	baseURL    string
	token      string
	actor      string
	httpClient *http.Client
	maxElapsed time.Duration
}

// NewHTTPClient creates a client for the server at baseURL.
func NewHTTPClient(baseURL, token, actor string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		actor:      actor,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxElapsed: 10 * time.Second,
	}
}

// SetHTTPClient replaces the underlying http.Client.
func (c *HTTPClient) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// RemoteError is a failed RPC as reported by the server.
type RemoteError struct {
	Status  int
	Code    string
	Message string
	Reasons []types.Reason
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("remote error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Call invokes method with args and decodes a successful result into out
// (which may be nil). Connection failures are retried with exponential
// backoff; HTTP responses never are.
func (c *HTTPClient) Call(ctx context.Context, method string, args, out any) error {
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}

	var resp *http.Response
	send := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ServicePath+method, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if c.actor != "" {
			req.Header.Set(HeaderActor, c.actor)
		}
		resp, err = c.httpClient.Do(req)
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(send, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		var r Response
		if err := json.Unmarshal(data, &r); err != nil || r.Error == "" {
			return &RemoteError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		}
		return &RemoteError{Status: resp.StatusCode, Code: r.Code, Message: r.Error, Reasons: r.Reasons}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}
