// Package transport provides the default HTTP implementation of
// syncengine.Transport: a single POST to <server>/items/sync per the wire
// contract (§6), with bearer-token auth and retry/backoff on transient
// failures.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matryer/try"
	"github.com/noteforge/core/internal/common"
	"github.com/noteforge/core/syncengine"
)

// TokenSource supplies the current bearer access token, re-read on every
// request so a token refreshed out of band is picked up without the
// caller having to rebuild the transport.
type TokenSource func() string

// HTTPTransport is the reference syncengine.Transport implementation.
type HTTPTransport struct {
	BaseURL     string
	Client      *http.Client
	Token       TokenSource
	MaxAttempts int
	RetryDelay  time.Duration
}

// New constructs an HTTPTransport with sane retry defaults.
func New(baseURL string, token TokenSource) *HTTPTransport {
	return &HTTPTransport{
		BaseURL:     baseURL,
		Client:      &http.Client{Timeout: 30 * time.Second},
		Token:       token,
		MaxAttempts: 3,
		RetryDelay:  250 * time.Millisecond,
	}
}

// Sync implements syncengine.Transport.
func (t *HTTPTransport) Sync(ctx context.Context, req syncengine.SyncRequest) (syncengine.SyncResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return syncengine.SyncResponse{}, fmt.Errorf("marshal sync request: %w", err)
	}

	var resp syncengine.SyncResponse
	err = try.Do(func(attempt int) (bool, error) {
		r, doErr := t.doOnce(ctx, body)
		if doErr == nil {
			resp = r
			return false, nil
		}
		retryable := errors.Is(doErr, errRetryable)
		if retryable {
			time.Sleep(t.RetryDelay * time.Duration(attempt))
		}
		return retryable && attempt < t.MaxAttempts, doErr
	})
	if err != nil {
		return syncengine.SyncResponse{}, unwrapRetryable(err)
	}
	return resp, nil
}

var errRetryable = fmt.Errorf("retryable transport error")

func unwrapRetryable(err error) error {
	return fmt.Errorf("sync request failed: %w", err)
}

// Ping checks server reachability without running a sync cycle; used by
// the online-status watcher to detect connectivity changes.
func (t *HTTPTransport) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := t.Client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("ping: status %s", resp.Status)
	}
	return nil
}

func (t *HTTPTransport) doOnce(ctx context.Context, body []byte) (syncengine.SyncResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/items/sync", bytes.NewReader(body))
	if err != nil {
		return syncengine.SyncResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.Token != nil {
		if tok := t.Token(); tok != "" {
			httpReq.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := t.Client.Do(httpReq)
	if err != nil {
		return syncengine.SyncResponse{}, fmt.Errorf("%w: %v", errRetryable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return syncengine.SyncResponse{}, common.ErrorUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return syncengine.SyncResponse{}, fmt.Errorf("%w: status %s", errRetryable, resp.Status)
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(resp.Body)
		return syncengine.SyncResponse{}, fmt.Errorf("sync request: status %s: %s", resp.Status, string(b))
	}

	var out syncengine.SyncResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return syncengine.SyncResponse{}, fmt.Errorf("decode sync response: %w", err)
	}
	return out, nil
}
