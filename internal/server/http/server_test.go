package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	cfgpkg "github.com/rzbill/relay/internal/config"
	"github.com/rzbill/relay/internal/runtime"
	logpkg "github.com/rzbill/relay/pkg/log"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mutate func(*cfgpkg.Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Monitor.Interval = time.Hour
	if mutate != nil {
		mutate(&cfg)
	}
	rt, err := runtime.Open(context.Background(), runtime.Options{Config: cfg})
	require.NoError(t, err)
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	s := New(rt, logger)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() { _ = rt.Close() })
	t.Cleanup(ts.Close)
	t.Cleanup(s.Close)
	return s, ts
}

func publish(t *testing.T, base, body string) {
	t.Helper()
	resp, err := http.Post(base+"/api/messages/publish", "text/plain", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	got, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Message published successfully", string(got))
}

type sseClient struct {
	resp *http.Response
	r    *bufio.Reader
}

func subscribe(t *testing.T, target string) *sseClient {
	t.Helper()
	resp, err := http.Get(target)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	t.Cleanup(func() { _ = resp.Body.Close() })
	return &sseClient{resp: resp, r: bufio.NewReader(resp.Body)}
}

// next reads one frame, including its trailing blank line.
func (c *sseClient) next(t *testing.T) string {
	t.Helper()
	type result struct {
		frame string
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		var b strings.Builder
		for {
			line, err := c.r.ReadString('\n')
			b.WriteString(line)
			if err != nil {
				ch <- result{b.String(), err}
				return
			}
			if line == "\n" {
				ch <- result{b.String(), nil}
				return
			}
		}
	}()
	select {
	case res := <-ch:
		require.NoError(t, res.err, "read frame")
		return res.frame
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for frame")
	}
	return ""
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"SERVING"`)
}

func TestHealthHandlerNotServingAfterBrokerClose(t *testing.T) {
	s, _ := newTestServer(t, nil)
	_ = s.rt.Hub().Close()
	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), `"NOT_SERVING"`)
}

func TestPublishFansOutToCurrentSSESubscribers(t *testing.T) {
	_, ts := newTestServer(t, nil)

	a := subscribe(t, ts.URL+"/stream")
	b := subscribe(t, ts.URL+"/stream")
	publish(t, ts.URL, "m1")

	require.Equal(t, "data: m1\n\n", a.next(t))
	require.Equal(t, "data: m1\n\n", b.next(t))

	late := subscribe(t, ts.URL+"/stream")
	publish(t, ts.URL, "m2")
	require.Equal(t, "data: m2\n\n", late.next(t))
}

func TestPublishTopicAndFilter(t *testing.T) {
	_, ts := newTestServer(t, nil)

	other := subscribe(t, ts.URL+"/stream?topic=other")
	filtered := subscribe(t, ts.URL+"/stream?filter="+url.QueryEscape(`text.startsWith("keep")`))

	resp, err := http.Post(ts.URL+"/api/messages/publish?topic=other", "text/plain", strings.NewReader("o1"))
	require.NoError(t, err)
	resp.Body.Close()
	publish(t, ts.URL, "drop-me")
	publish(t, ts.URL, "keep-me")

	require.Equal(t, "data: o1\n\n", other.next(t))
	require.Equal(t, "data: keep-me\n\n", filtered.next(t))
}

func TestSSERejectsBadFilter(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/stream?filter=%3D%3D")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPublishTooLarge(t *testing.T) {
	_, ts := newTestServer(t, func(c *cfgpkg.Config) { c.MaxMessageBytes = 4 })
	resp, err := http.Post(ts.URL+"/api/messages/publish", "text/plain", strings.NewReader("too long"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestWebsocketReceivesTextFrames(t *testing.T) {
	_, ts := newTestServer(t, nil)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The upgrade completes before the subscription opens; publish until
	// the first frame arrives.
	got := make(chan string, 1)
	go func() {
		_, data, err := conn.ReadMessage()
		if err == nil {
			got <- string(data)
		}
	}()
	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case msg := <-got:
			require.Equal(t, "w1", msg)
			return
		case <-tick.C:
			publish(t, ts.URL, "w1")
		case <-deadline:
			t.Fatalf("no websocket frame")
		}
	}
}

func TestStatsAndHistory(t *testing.T) {
	s, ts := newTestServer(t, func(c *cfgpkg.Config) {
		c.Monitor.History = true
		c.Monitor.DataDir = t.TempDir()
	})
	s.rt.Monitor().Tick(time.Now())

	resp, err := http.Get(ts.URL + "/v1/stats")
	require.NoError(t, err)
	var stats runtime.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	require.Equal(t, cfgpkg.Default().MaxConcurrentStreams, stats.Capacity)
	require.Equal(t, "session", stats.IngestMode)

	resp, err = http.Get(ts.URL + "/v1/stats/history?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Reports []json.RawMessage `json:"reports"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Reports, 1)
}

func TestHistoryDisabled(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/stats/history", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}
