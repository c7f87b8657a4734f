// ABOUTME: Tests for the relay request handler and SSE streaming loop.
// ABOUTME: Covers validation, correlation, progress/terminal events, timeout, disconnect, and cleanup.

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warrenlabs/warren-gateway/internal/bus"
	"github.com/warrenlabs/warren-gateway/internal/config"
)

// capturePublisher records published inbound messages and hands them to the
// test through a channel so the test can learn the minted request id.
type capturePublisher struct {
	mu       sync.Mutex
	captured chan bus.InboundMessage
	err      error
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{captured: make(chan bus.InboundMessage, 8)}
}

func (p *capturePublisher) PublishInbound(ctx context.Context, msg bus.InboundMessage) error {
	p.mu.Lock()
	err := p.err
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.captured <- msg
	return nil
}

func (p *capturePublisher) failWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func newTestChannel(t *testing.T, timeout time.Duration) (*Channel, *capturePublisher) {
	t.Helper()
	pub := newCapturePublisher()
	c := New(config.HTTPRelayConfig{
		Enabled:       true,
		Path:          "/message",
		StreamTimeout: timeout,
	}, pub, nil)
	require.NoError(t, c.Start(context.Background()))
	return c, pub
}

func postMessage(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// outboundFor builds an outbound message tagged for the given request id,
// the way the agent loop tags replies.
func outboundFor(requestID string, content string, progress bool) bus.OutboundMessage {
	meta := map[string]any{
		bus.RelayNamespace: map[string]any{bus.RequestIDKey: requestID},
	}
	if progress {
		meta[bus.ProgressNamespace] = map[string]any{
			bus.ProgressFlagKey: true,
			bus.RequestIDKey:    requestID,
		}
	}
	return bus.OutboundMessage{Channel: ChannelName, Content: content, Metadata: meta}
}

func requestIDFrom(t *testing.T, msg bus.InboundMessage) string {
	t.Helper()
	relayNS, ok := msg.Metadata[bus.RelayNamespace].(map[string]any)
	require.True(t, ok, "inbound metadata missing relay namespace")
	id, ok := relayNS[bus.RequestIDKey].(string)
	require.True(t, ok, "relay namespace missing request id")
	require.NotEmpty(t, id)
	return id
}

func TestHandleMessage_ProgressThenResponse(t *testing.T) {
	c, pub := newTestChannel(t, 5*time.Second)

	go func() {
		msg := <-pub.captured
		id := requestIDFrom(t, msg)

		if c.Pending() != 1 {
			t.Errorf("expected 1 pending request while stream open, got %d", c.Pending())
		}

		_ = c.Send(context.Background(), outboundFor(id, "thinking...", true))
		_ = c.Send(context.Background(), outboundFor(id, "hello back", false))
	}()

	rec := httptest.NewRecorder()
	c.handleMessagePost(rec, postMessage(t, `{"sender_id":"u1","chat_id":"c1","content":"hi"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	want := "event: progress\ndata: {\"content\":\"thinking...\"}\n\n" +
		"event: response\ndata: {\"content\":\"hello back\"}\n\n"
	assert.Equal(t, want, rec.Body.String())

	assert.Equal(t, 0, c.Pending(), "registry entry must be removed after stream close")
}

func TestHandleMessage_CamelCaseAliases(t *testing.T) {
	c, pub := newTestChannel(t, 5*time.Second)

	go func() {
		msg := <-pub.captured
		if msg.SenderID != "u1" || msg.ChatID != "c1" {
			t.Errorf("unexpected inbound message: %+v", msg)
		}
		_ = c.Send(context.Background(), outboundFor(requestIDFrom(t, msg), "ok", false))
	}()

	rec := httptest.NewRecorder()
	c.handleMessagePost(rec, postMessage(t, `{"senderId":"u1","chatId":"c1","content":"hi"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event: response")
}

func TestHandleMessage_EmptyContentIsValid(t *testing.T) {
	c, pub := newTestChannel(t, 5*time.Second)

	go func() {
		msg := <-pub.captured
		if msg.Content != "" {
			t.Errorf("expected empty content, got %q", msg.Content)
		}
		_ = c.Send(context.Background(), outboundFor(requestIDFrom(t, msg), "ok", false))
	}()

	rec := httptest.NewRecorder()
	c.handleMessagePost(rec, postMessage(t, `{"sender_id":"u1","chat_id":"c1","content":""}`))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleMessage_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing content", `{"sender_id":"u1","chat_id":"c1"}`},
		{"missing sender", `{"chat_id":"c1","content":"hi"}`},
		{"missing chat", `{"sender_id":"u1","content":"hi"}`},
		{"null content", `{"sender_id":"u1","chat_id":"c1","content":null}`},
		{"empty sender", `{"sender_id":"","chat_id":"c1","content":"hi"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, pub := newTestChannel(t, time.Second)

			rec := httptest.NewRecorder()
			c.handleMessagePost(rec, postMessage(t, tt.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "Missing sender_id/chat_id/content", resp["error"])

			assert.Equal(t, 0, c.Pending(), "no registry entry may be created for invalid requests")
			assert.Len(t, pub.captured, 0, "nothing may be published for invalid requests")
		})
	}
}

func TestHandleMessage_InvalidJSON(t *testing.T) {
	c, _ := newTestChannel(t, time.Second)

	rec := httptest.NewRecorder()
	c.handleMessagePost(rec, postMessage(t, `{not json`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Invalid JSON body", resp["error"])
}

func TestHandleMessage_NonObjectPayload(t *testing.T) {
	c, _ := newTestChannel(t, time.Second)

	rec := httptest.NewRecorder()
	c.handleMessagePost(rec, postMessage(t, `["not","an","object"]`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Payload must be an object", resp["error"])
}

func TestHandleMessage_MethodNotAllowed(t *testing.T) {
	c, _ := newTestChannel(t, time.Second)

	rec := httptest.NewRecorder()
	c.handleMessagePost(rec, httptest.NewRequest(http.MethodGet, "/message", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleMessage_MetadataMerge(t *testing.T) {
	c, pub := newTestChannel(t, 5*time.Second)

	go func() {
		msg := <-pub.captured

		// Caller-supplied metadata survives the merge.
		if msg.Metadata["source"] != "integration-test" {
			t.Errorf("caller metadata lost: %+v", msg.Metadata)
		}
		relayNS, _ := msg.Metadata[bus.RelayNamespace].(map[string]any)
		if relayNS == nil {
			t.Error("relay namespace not merged into metadata")
		} else if relayNS["trace"] != "abc" {
			t.Errorf("caller relay-namespace keys lost: %+v", relayNS)
		}

		_ = c.Send(context.Background(), outboundFor(requestIDFrom(t, msg), "ok", false))
	}()

	body := `{"sender_id":"u1","chat_id":"c1","content":"hi","metadata":{"source":"integration-test","http_relay":{"trace":"abc"}}}`
	rec := httptest.NewRecorder()
	c.handleMessagePost(rec, postMessage(t, body))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleMessage_Timeout(t *testing.T) {
	c, pub := newTestChannel(t, 50*time.Millisecond)

	rec := httptest.NewRecorder()
	start := time.Now()
	c.handleMessagePost(rec, postMessage(t, `{"sender_id":"u1","chat_id":"c1","content":"hi"}`))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)

	want := fmt.Sprintf("event: response\ndata: {\"content\":%q}\n\n", timeoutNotice)
	assert.Equal(t, want, rec.Body.String())
	assert.Equal(t, 0, c.Pending())

	// The published message is still on the bus; the stream just gave up.
	assert.Len(t, pub.captured, 1)
}

func TestHandleMessage_TimeoutResetsOnProgress(t *testing.T) {
	c, pub := newTestChannel(t, 200*time.Millisecond)

	go func() {
		msg := <-pub.captured
		id := requestIDFrom(t, msg)

		// Each progress event lands inside the window but their sum exceeds
		// it; the stream must survive until the final timeout.
		for i := 0; i < 3; i++ {
			time.Sleep(120 * time.Millisecond)
			_ = c.Send(context.Background(), outboundFor(id, "still working", true))
		}
	}()

	rec := httptest.NewRecorder()
	start := time.Now()
	c.handleMessagePost(rec, postMessage(t, `{"sender_id":"u1","chat_id":"c1","content":"hi"}`))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond, "timeout must reset after each progress event")
	assert.Equal(t, 3, strings.Count(rec.Body.String(), "event: progress"))
	assert.Contains(t, rec.Body.String(), timeoutNotice)
	assert.Equal(t, 0, c.Pending())
}

func TestHandleMessage_PublishFailure(t *testing.T) {
	c, pub := newTestChannel(t, time.Second)
	pub.failWith(errors.New("agent unreachable"))

	rec := httptest.NewRecorder()
	c.handleMessagePost(rec, postMessage(t, `{"sender_id":"u1","chat_id":"c1","content":"hi"}`))

	// The stream is already committed: the failure surfaces as a terminal
	// event, not an HTTP error, and never leaks the internal error text.
	assert.Equal(t, http.StatusOK, rec.Code)
	want := fmt.Sprintf("event: response\ndata: {\"content\":%q}\n\n", publishFailureNotice)
	assert.Equal(t, want, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "agent unreachable")
	assert.Equal(t, 0, c.Pending())
}

func TestHandleMessage_ClientDisconnect(t *testing.T) {
	c, pub := newTestChannel(t, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	req := postMessage(t, `{"sender_id":"u1","chat_id":"c1","content":"hi"}`).WithContext(ctx)

	go func() {
		<-pub.captured
		cancel()
	}()

	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		c.handleMessagePost(rec, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return promptly after client disconnect")
	}

	assert.Equal(t, 0, c.Pending(), "disconnect must clean up the registry")
	assert.NotContains(t, rec.Body.String(), "event:", "no events after disconnect")
}

func TestHandleMessage_ConcurrentRequestsAreIsolated(t *testing.T) {
	c, pub := newTestChannel(t, 5*time.Second)

	go func() {
		first := <-pub.captured
		second := <-pub.captured

		byContent := map[string]string{
			first.Content:  requestIDFrom(t, first),
			second.Content: requestIDFrom(t, second),
		}
		if byContent["from-a"] == byContent["from-b"] {
			t.Error("two requests share a correlation id")
		}

		// Answer B first, then A; each stream must only carry its own reply.
		_ = c.Send(context.Background(), outboundFor(byContent["from-b"], "reply-b", false))
		_ = c.Send(context.Background(), outboundFor(byContent["from-a"], "reply-a", false))
	}()

	var wg sync.WaitGroup
	bodies := make(map[string]*httptest.ResponseRecorder)
	var mu sync.Mutex
	for _, content := range []string{"from-a", "from-b"} {
		wg.Add(1)
		go func(content string) {
			defer wg.Done()
			rec := httptest.NewRecorder()
			body := fmt.Sprintf(`{"sender_id":"u1","chat_id":"c1","content":%q}`, content)
			c.handleMessagePost(rec, postMessage(t, body))
			mu.Lock()
			bodies[content] = rec
			mu.Unlock()
		}(content)
	}
	wg.Wait()

	assert.Contains(t, bodies["from-a"].Body.String(), "reply-a")
	assert.NotContains(t, bodies["from-a"].Body.String(), "reply-b")
	assert.Contains(t, bodies["from-b"].Body.String(), "reply-b")
	assert.NotContains(t, bodies["from-b"].Body.String(), "reply-a")
	assert.Equal(t, 0, c.Pending())
}

func TestSend_NoCorrelationIDIsDropped(t *testing.T) {
	c, _ := newTestChannel(t, time.Second)

	err := c.Send(context.Background(), bus.OutboundMessage{Channel: ChannelName, Content: "orphan"})
	assert.NoError(t, err)
}

func TestSend_UnknownCorrelationIDIsDropped(t *testing.T) {
	c, _ := newTestChannel(t, time.Second)

	err := c.Send(context.Background(), outboundFor("never-registered", "late reply", false))
	assert.NoError(t, err)
}

func TestChannel_StartIsIdempotent(t *testing.T) {
	c, _ := newTestChannel(t, time.Second)
	assert.NoError(t, c.Start(context.Background()))
	assert.NoError(t, c.Start(context.Background()))
}

func TestChannel_RejectsWhileStopped(t *testing.T) {
	pub := newCapturePublisher()
	c := New(config.HTTPRelayConfig{Path: "/message", StreamTimeout: time.Second}, pub, nil)

	// Never started: requests are refused.
	rec := httptest.NewRecorder()
	c.handleMessagePost(rec, postMessage(t, `{"sender_id":"u1","chat_id":"c1","content":"hi"}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Stop(context.Background()))

	rec = httptest.NewRecorder()
	c.handleMessagePost(rec, postMessage(t, `{"sender_id":"u1","chat_id":"c1","content":"hi"}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChannel_StopIsSafeWithoutStart(t *testing.T) {
	pub := newCapturePublisher()
	c := New(config.HTTPRelayConfig{Path: "/message", StreamTimeout: time.Second}, pub, nil)
	assert.NoError(t, c.Stop(context.Background()))
}

func TestChannel_StopDrainsRegistry(t *testing.T) {
	c, _ := newTestChannel(t, time.Second)

	ch, err := c.registry.Register("req-1")
	require.NoError(t, err)
	ch <- outboundFor("req-1", "undelivered", false)

	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, 0, c.Pending())
	assert.Len(t, ch, 0)
}

func TestChannel_RegisterRoutes(t *testing.T) {
	c, pub := newTestChannel(t, 5*time.Second)

	mux := http.NewServeMux()
	c.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	go func() {
		msg := <-pub.captured
		_ = c.Send(context.Background(), outboundFor(requestIDFrom(t, msg), "hello back", false))
	}()

	resp, err := http.Post(srv.URL+"/message", "application/json",
		strings.NewReader(`{"sender_id":"u1","chat_id":"c1","content":"hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
}

// The status line and headers must reach the caller as soon as the stream
// opens, not ride along with the first event.
func TestHandleMessage_HeadersSentBeforeFirstEvent(t *testing.T) {
	c, pub := newTestChannel(t, 5*time.Second)

	mux := http.NewServeMux()
	c.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/message", "application/json",
		strings.NewReader(`{"sender_id":"u1","chat_id":"c1","content":"hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	// Nothing has been delivered yet, but the response is already open.
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, 1, c.Pending())

	msg := <-pub.captured
	require.NoError(t, c.Send(context.Background(), outboundFor(requestIDFrom(t, msg), "done", false)))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "event: response\ndata: {\"content\":\"done\"}\n\n", string(body))
}
