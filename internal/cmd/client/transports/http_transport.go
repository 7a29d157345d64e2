package transports

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

var _ RelayTransport = (*HTTPTransport)(nil)

// HTTPTransport implements RelayTransport against the relay HTTP API.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport constructs an HTTPTransport. A nil client uses
// http.DefaultClient.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (t *HTTPTransport) endpoint(path string, q url.Values) string {
	u := t.baseURL + path
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

func (t *HTTPTransport) do(req *http.Request) (*http.Response, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("http error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// Publish posts payload as the raw body of a publish request.
func (t *HTTPTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	q := url.Values{}
	if topic != "" {
		q.Set("topic", topic)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("/api/messages/publish", q), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	resp, err := t.do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Subscribe reads the SSE feed and invokes onEvent with each data field.
// It returns nil when the server closes the feed, the context ends, or
// Limit events were delivered.
func (t *HTTPTransport) Subscribe(ctx context.Context, req SubscribeRequest, onEvent func(data []byte) error) error {
	q := url.Values{}
	if req.Topic != "" {
		q.Set("topic", req.Topic)
	}
	if req.Filter != "" {
		q.Set("filter", req.Filter)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint("/stream", q), nil)
	if err != nil {
		return err
	}
	hreq.Header.Set("Accept", "text/event-stream")
	resp, err := t.do(hreq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	n := 0
	var data []byte
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		switch {
		case len(line) == 0:
			if data == nil {
				continue
			}
			if err := onEvent(data); err != nil {
				return err
			}
			data = nil
			n++
			if req.Limit > 0 && n >= req.Limit {
				return nil
			}
		case bytes.HasPrefix(line, []byte("data:")):
			v := bytes.TrimPrefix(bytes.TrimPrefix(line, []byte("data:")), []byte(" "))
			if data != nil {
				data = append(data, '\n')
			}
			data = append(data, v...)
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		return err
	}
	return nil
}

// Stats returns the raw /v1/stats document.
func (t *HTTPTransport) Stats(ctx context.Context) (json.RawMessage, error) {
	return t.getJSON(ctx, t.endpoint("/v1/stats", nil))
}

// History returns the raw /v1/stats/history document.
func (t *HTTPTransport) History(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return t.getJSON(ctx, t.endpoint("/v1/stats/history", q))
}

func (t *HTTPTransport) getJSON(ctx context.Context, u string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
