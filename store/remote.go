package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pevans/folio/content"
	"go.uber.org/zap"
)

// Remote talks to a store service over HTTP, with live subscriptions over a
// websocket. Dropped subscriptions are re-established with bounded
// exponential backoff before the failure is reported to the listener.
type Remote struct {
	baseURL string
	token   string
	client  *http.Client
	dialer  *websocket.Dialer
	logger  *zap.Logger

	MaxRetries int
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// NewRemote creates a client for the store service at baseURL.
func NewRemote(baseURL, token string, logger *zap.Logger) (*Remote, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid store service URL: %q", baseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Remote{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		client:     &http.Client{Timeout: 30 * time.Second},
		dialer:     websocket.DefaultDialer,
		logger:     logger,
		MaxRetries: 5,
		MinBackoff: 250 * time.Millisecond,
		MaxBackoff: 4 * time.Second,
	}, nil
}

func (r *Remote) recordsURL(path string) string {
	return r.baseURL + "/api/v1/collections/" + url.PathEscape(path) + "/records"
}

func (r *Remote) subscribeURL(path, orderBy string) string {
	u := r.baseURL + "/api/v1/collections/" + url.PathEscape(path) + "/subscribe"
	if orderBy != "" {
		u += "?orderBy=" + url.QueryEscape(orderBy)
	}
	if rest, ok := strings.CutPrefix(u, "https://"); ok {
		return "wss://" + rest
	}
	return "ws://" + strings.TrimPrefix(u, "http://")
}

func (r *Remote) header() http.Header {
	h := http.Header{}
	if r.token != "" {
		h.Set("Authorization", "Bearer "+r.token)
	}
	return h
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
func (r *Remote) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header = r.header()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach store service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var envelope ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		if resp.StatusCode == http.StatusNotFound && envelope.Error.Code == "not_found" {
			return ErrNotFound
		}
		return &APIError{
			Status:  resp.StatusCode,
			Code:    envelope.Error.Code,
			Message: envelope.Error.Message,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// List implements Store.
func (r *Remote) List(ctx context.Context, path, orderBy string) ([]content.Item, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	target := r.recordsURL(path)
	if orderBy != "" {
		target += "?orderBy=" + url.QueryEscape(orderBy)
	}

	var resp ListResponse
	if err := r.do(ctx, http.MethodGet, target, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Get implements Store.
func (r *Remote) Get(ctx context.Context, path, id string) (content.Item, error) {
	if err := ValidatePath(path); err != nil {
		return content.Item{}, err
	}

	var item content.Item
	if err := r.do(ctx, http.MethodGet, r.recordsURL(path)+"/"+url.PathEscape(id), nil, &item); err != nil {
		return content.Item{}, err
	}
	return item, nil
}

// Create implements Store.
func (r *Remote) Create(ctx context.Context, path string, rec content.Record) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}

	var resp CreateResponse
	if err := r.do(ctx, http.MethodPost, r.recordsURL(path), rec, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Update implements Store.
func (r *Remote) Update(ctx context.Context, path, id string, patch content.Patch) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	return r.do(ctx, http.MethodPatch, r.recordsURL(path)+"/"+url.PathEscape(id), patch, nil)
}

// Delete implements Store.
func (r *Remote) Delete(ctx context.Context, path, id string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	return r.do(ctx, http.MethodDelete, r.recordsURL(path)+"/"+url.PathEscape(id), nil, nil)
}

// Close releases idle connections.
func (r *Remote) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

// Subscribe implements Store. The first connection is made synchronously so
// that an unreachable service is reported to the caller directly.
func (r *Remote) Subscribe(ctx context.Context, path, orderBy string, fn Listener) (CancelFunc, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	conn, err := r.dial(ctx, path, orderBy)
	if err != nil {
		cancel()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.pump(ctx, conn, path, orderBy, fn)
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

func (r *Remote) dial(ctx context.Context, path, orderBy string) (*websocket.Conn, error) {
	conn, resp, err := r.dialer.DialContext(ctx, r.subscribeURL(path, orderBy), r.header())
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("failed to subscribe to %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to subscribe to %s: %w", path, err)
	}
	return conn, nil
}

// pump reads push frames until ctx is done, reconnecting when the
// connection drops.
func (r *Remote) pump(ctx context.Context, conn *websocket.Conn, path, orderBy string, fn Listener) {
	for {
		err := r.readLoop(ctx, conn, fn)
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("Subscription dropped",
			zap.String("collection", path),
			zap.Error(err))

		conn, err = r.reconnect(ctx, path, orderBy)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.logger.Error("Giving up on subscription",
				zap.String("collection", path),
				zap.Error(err))
			fn(nil, err)
			return
		}
	}
}

func (r *Remote) readLoop(ctx context.Context, conn *websocket.Conn, fn Listener) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	for {
		var msg SnapshotMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if msg.Error != "" {
			fn(nil, errors.New(msg.Error))
			continue
		}
		if msg.Items == nil {
			msg.Items = []content.Item{}
		}
		fn(msg.Items, nil)
	}
}

func (r *Remote) reconnect(ctx context.Context, path, orderBy string) (*websocket.Conn, error) {
	backoff := r.MinBackoff
	var lastErr error
	for attempt := 1; attempt <= r.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		conn, err := r.dial(ctx, path, orderBy)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		r.logger.Debug("Reconnect attempt failed",
			zap.String("collection", path),
			zap.Int("attempt", attempt),
			zap.Error(err))

		backoff = min(backoff*2, r.MaxBackoff)
	}
	if lastErr == nil {
		lastErr = errors.New("subscription closed")
	}
	return nil, fmt.Errorf("failed to resubscribe after %d attempts: %w", r.MaxRetries, lastErr)
}
