package collab

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"shardhub/collab/application"
	"shardhub/collab/domain"
	"shardhub/collab/infra"
	"shardhub/eventstats"
	"shardhub/middleware/ratelimit"
	rlinfra "shardhub/middleware/ratelimit/infra"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	emptyTodos = `{"tables":{"todos":{}},"values":{}}`
	milk       = `{"tables":{"todos":{"1":{"text":"milk","completed":false}}},"values":{}}`
)

type testEnv struct {
	srv    *httptest.Server
	hub    *application.Hub
	blobs  *infra.MemoryBlobStore
	events *eventstats.MemoryRecorder
}

func newTestEnv(t *testing.T, wrap func(http.Handler) http.Handler) *testEnv {
	t.Helper()

	env := &testEnv{blobs: infra.NewMemoryBlobStore(), events: eventstats.NewMemoryRecorder()}
	store := application.DocumentStore{Blobs: env.blobs, SeedTables: []string{"todos"}}
	reg := application.NewRegistry(func(key domain.ShardKey) *application.Actor {
		return application.NewActor(key, store, application.ActorOptions{Stats: env.events})
	})
	env.hub = &application.Hub{Registry: reg, Stats: env.events}

	var seq atomic.Int64
	h := NewRouter(Options{
		Hub:      env.hub,
		Resolver: application.Resolver{NewID: func() string { return fmt.Sprint(seq.Add(1)) }},
		Events:   env.events,
	})
	if wrap != nil {
		h = wrap(h)
	}
	env.srv = httptest.NewServer(h)
	t.Cleanup(func() {
		reg.Close()
		env.srv.Close()
	})
	return env
}

func (e *testEnv) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	ws, _ := e.dialWith(t, query, nil)
	return ws
}

func (e *testEnv) dialWith(t *testing.T, query string, hdr http.Header) (*websocket.Conn, *http.Response) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/todos" + query
	ws, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })
	return ws, resp
}

func readFrame(t *testing.T, ws *websocket.Conn) string {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

// noFrame deixa a conexão inutilizável para leituras seguintes (timeout do
// gorilla é terminal).
func noFrame(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, data, err := ws.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", data)
}

func get(t *testing.T, url string, mutate func(*http.Request)) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if mutate != nil {
		mutate(req)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestRouter_LoadEmptyShard(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := get(t, env.srv.URL+"/?user=alice", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, emptyTodos, body)
	assert.Empty(t, resp.Cookies(), "named identity needs no cookie")
}

func TestRouter_AnonymousGetsCookieAndKeepsShard(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := get(t, env.srv.URL+"/", nil)
	assert.JSONEq(t, emptyTodos, body)
	require.Len(t, resp.Cookies(), 1)
	c := resp.Cookies()[0]
	assert.Equal(t, "session", c.Name)
	assert.Equal(t, "anon-1", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 86400, c.MaxAge)
	assert.True(t, c.HttpOnly)

	// o cookie devolvido leva ao mesmo shard, tanto no WebSocket quanto no GET
	reqCookie := (&http.Cookie{Name: c.Name, Value: c.Value}).String()
	ws, wsResp := env.dialWith(t, "", http.Header{"Cookie": {reqCookie}})
	assert.Empty(t, wsResp.Cookies())
	readFrame(t, ws)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(milk)))

	require.Eventually(t, func() bool {
		resp, body := get(t, env.srv.URL+"/", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value}) })
		return len(resp.Cookies()) == 0 && strings.Contains(body, "milk")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRouter_BearerTokenSelectsShard(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.blobs.Put(t.Context(), "tok-1", []byte(milk)))

	_, body := get(t, env.srv.URL+"/", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer tok-1")
	})
	assert.JSONEq(t, milk, body)
}

func TestRouter_UnknownPathIs404(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, _ := get(t, env.srv.URL+"/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_Healthz(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := get(t, env.srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", body)
	assert.Zero(t, env.hub.Registry.Stats().Actors, "healthz must not touch shards")
}

func TestRouter_WebSocketScenario(t *testing.T) {
	env := newTestEnv(t, nil)

	a := env.dial(t, "?user=alice")
	b := env.dial(t, "?user=alice")
	bob := env.dial(t, "?user=bob")

	assert.JSONEq(t, emptyTodos, readFrame(t, a))
	assert.JSONEq(t, emptyTodos, readFrame(t, b))
	assert.JSONEq(t, emptyTodos, readFrame(t, bob))

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(milk)))

	assert.Equal(t, milk, readFrame(t, b), "sibling receives the exact frame")
	noFrame(t, a)
	noFrame(t, bob)

	_, body := get(t, env.srv.URL+"/?user=alice", nil)
	assert.JSONEq(t, milk, body)
	_, body = get(t, env.srv.URL+"/?user=bob", nil)
	assert.JSONEq(t, emptyTodos, body)

	stored, err := env.blobs.Get(t.Context(), "alice")
	require.NoError(t, err)
	assert.JSONEq(t, milk, string(stored))
}

func TestRouter_WebSocketMalformedFrameIsDiscarded(t *testing.T) {
	env := newTestEnv(t, nil)

	a := env.dial(t, "?user=alice")
	b := env.dial(t, "?user=alice")
	readFrame(t, a)
	readFrame(t, b)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"tables":`)))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(milk)))

	// o próximo frame de b já é o válido: o malformado não foi propagado
	assert.Equal(t, milk, readFrame(t, b))
	require.Eventually(t, func() bool {
		return env.events.Count(eventstats.KindMalformed) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRouter_WebSocketAnonymousCookieOnUpgrade(t *testing.T) {
	env := newTestEnv(t, nil)

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/todos"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()
	_ = resp.Body.Close()

	require.Len(t, resp.Cookies(), 1)
	assert.Equal(t, "anon-1", resp.Cookies()[0].Value)
	assert.JSONEq(t, emptyTodos, readFrame(t, ws))
}

func TestRouter_StatsReportsSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	a := env.dial(t, "?user=alice")
	readFrame(t, a)

	_, body := get(t, env.srv.URL+"/stats", nil)
	var got statsResponse
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, 1, got.Registry.Actors)
	assert.Equal(t, 1, got.Registry.Sessions)
	assert.Equal(t, int64(1), got.Events[eventstats.KindConnect])
}

func TestRouter_RateLimitRunsBeforeShardLogic(t *testing.T) {
	limiter := rlinfra.NewFixedWindowStore(rlinfra.WithLimit(1))
	env := newTestEnv(t, ratelimit.Middleware(ratelimit.Options{Store: limiter}))

	resp, _ := get(t, env.srv.URL+"/?user=alice", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := get(t, env.srv.URL+"/?user=carol", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
	assert.Contains(t, body, "rate limit exceeded")

	assert.Equal(t, 1, env.hub.Registry.Stats().Actors, "denied request never reached a shard")
}
