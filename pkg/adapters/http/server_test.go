package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/feelflow"
	"github.com/aretw0/feelflow/pkg/domain"
	"github.com/aretw0/feelflow/pkg/observability"
	"github.com/aretw0/feelflow/pkg/runner"
)

func newTestHandler(t *testing.T, opts ...feelflow.Option) (*feelflow.Engine, http.Handler) {
	t.Helper()
	eng, err := feelflow.New(append([]feelflow.Option{
		feelflow.WithTypingDelay(0),
		feelflow.WithDebounce(0),
	}, opts...)...)
	require.NoError(t, err)
	return eng, NewHandler(eng)
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	_, h := newTestHandler(t)

	w := do(t, h, "GET", "/healthz", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "ok", decodeBody[map[string]string](t, w)["status"])
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestHandler(t)
	w := do(t, h, "OPTIONS", "/messages", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestSessionsLifecycle(t *testing.T) {
	_, h := newTestHandler(t)

	w := do(t, h, "POST", "/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	first := decodeBody[domain.Session](t, w)
	assert.Equal(t, "Chat 1", first.Title)
	require.Len(t, first.Messages, 1)
	assert.Equal(t, domain.Greeting, first.Messages[0].Content)

	w = do(t, h, "POST", "/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	second := decodeBody[domain.Session](t, w)

	w = do(t, h, "GET", "/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[[]domain.SessionSummary](t, w)
	require.Len(t, list, 2)
	assert.False(t, list[0].Active)
	assert.True(t, list[1].Active)

	w = do(t, h, "POST", "/sessions/"+first.ID+"/activate", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, "POST", "/sessions/missing/activate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, "GET", "/state", nil)
	state := decodeBody[State](t, w)
	require.NotNil(t, state.Session)
	assert.Equal(t, first.ID, state.Session.ID)

	w = do(t, h, "GET", "/sessions/"+second.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]domain.Message](t, w), 1)

	w = do(t, h, "GET", "/sessions/missing/messages", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSession_Debounced(t *testing.T) {
	eng, err := feelflow.New(feelflow.WithTypingDelay(0), feelflow.WithDebounce(time.Hour))
	require.NoError(t, err)
	h := NewHandler(eng)

	w := do(t, h, "POST", "/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	first := decodeBody[domain.Session](t, w)

	w = do(t, h, "POST", "/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first.ID, decodeBody[domain.Session](t, w).ID)
}

func TestSubmitText(t *testing.T) {
	_, h := newTestHandler(t)

	w := do(t, h, "POST", "/messages", SubmitRequest{Text: "1"})
	assert.Equal(t, http.StatusNoContent, w.Code, "no session yet")

	do(t, h, "POST", "/sessions", nil)

	w = do(t, h, "POST", "/messages", SubmitRequest{Text: "1"})
	require.Equal(t, http.StatusOK, w.Code)
	turn := decodeBody[domain.Turn](t, w)
	require.NotNil(t, turn.User)
	require.NotNil(t, turn.Bot)
	assert.Equal(t, "1", turn.User.Content)
	assert.Equal(t, domain.PromptFeelingPath, turn.Bot.Content)
	assert.Equal(t, domain.PathFeeling, turn.Path)
	assert.Equal(t, domain.StepPrimaryFeeling, turn.Step)

	w = do(t, h, "POST", "/messages", SubmitRequest{Text: "   "})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, "POST", "/messages", SubmitRequest{Text: "\x1b[31manxious"})
	require.Equal(t, http.StatusOK, w.Code)
	turn = decodeBody[domain.Turn](t, w)
	assert.Equal(t, "anxious", turn.User.Content)
}

func TestSubmitText_InvalidBody(t *testing.T) {
	_, h := newTestHandler(t)
	req := httptest.NewRequest("POST", "/messages", strings.NewReader("{"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitText_TooLarge(t *testing.T) {
	eng, err := feelflow.New(feelflow.WithTypingDelay(0), feelflow.WithDebounce(0))
	require.NoError(t, err)
	h := NewHandler(eng, WithSanitizer(runner.Sanitizer{MaxSize: 4}))
	do(t, h, "POST", "/sessions", nil)

	w := do(t, h, "POST", "/messages", SubmitRequest{Text: "too long"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitText_PendingTurnConflicts(t *testing.T) {
	eng, err := feelflow.New(feelflow.WithTypingDelay(time.Hour), feelflow.WithDebounce(0))
	require.NoError(t, err)
	h := NewHandler(eng)
	do(t, h, "POST", "/sessions", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		body, _ := json.Marshal(SubmitRequest{Text: "1"})
		req := httptest.NewRequest("POST", "/messages", bytes.NewReader(body)).WithContext(ctx)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}()

	require.Eventually(t, eng.IsTyping, time.Second, 5*time.Millisecond)

	w := do(t, h, "POST", "/messages", SubmitRequest{Text: "2"})
	assert.Equal(t, http.StatusConflict, w.Code)

	cancel()
	<-done
	assert.False(t, eng.IsTyping())
}

func TestCycle(t *testing.T) {
	_, h := newTestHandler(t)
	do(t, h, "POST", "/sessions", nil)

	w := do(t, h, "POST", "/cycle/start", nil)
	assert.Equal(t, http.StatusNoContent, w.Code, "not eligible on a fresh session")

	for _, text := range []string{"1", "stressed", "tight"} {
		require.Equal(t, http.StatusOK, do(t, h, "POST", "/messages", SubmitRequest{Text: text}).Code)
	}

	state := decodeBody[State](t, do(t, h, "GET", "/state", nil))
	assert.True(t, state.Cycle.Eligible)
	assert.False(t, state.Cycle.Active)

	w = do(t, h, "POST", "/cycle/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Do you still feel tight?", decodeBody[domain.Turn](t, w).Bot.Content)

	state = decodeBody[State](t, do(t, h, "GET", "/state", nil))
	assert.True(t, state.Cycle.Active)
	require.NotNil(t, state.Cycle.Question)
	assert.Equal(t, "Do you still feel tight?", *state.Cycle.Question)

	w = do(t, h, "POST", "/cycle/answer", AnswerRequest{Yes: false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Do you still feel stressed?", decodeBody[domain.Turn](t, w).Bot.Content)

	w = do(t, h, "POST", "/cycle/answer", AnswerRequest{Yes: true})
	require.Equal(t, http.StatusOK, w.Code)
	turn := decodeBody[domain.Turn](t, w)
	assert.Equal(t, domain.StepFeelingDetail, turn.Step)

	w = do(t, h, "POST", "/cycle/answer", AnswerRequest{Yes: true})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSidebar(t *testing.T) {
	eng, h := newTestHandler(t)

	w := do(t, h, "PUT", "/sidebar", SidebarRequest{Open: true})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, eng.MobileSidebarOpen())
	assert.True(t, decodeBody[State](t, do(t, h, "GET", "/state", nil)).SidebarOpen)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	eng, err := feelflow.New(
		feelflow.WithTypingDelay(0),
		feelflow.WithDebounce(0),
		feelflow.WithHooks(metrics.Hooks()),
	)
	require.NoError(t, err)
	h := NewHandler(eng, WithGatherer(reg))

	do(t, h, "POST", "/sessions", nil)
	do(t, h, "POST", "/messages", SubmitRequest{Text: "2"})

	w := do(t, h, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "feelflow_sessions_created_total 1")
	assert.Contains(t, w.Body.String(), `feelflow_path_selected_total{path="goal"} 1`)

	_, bare := newTestHandler(t)
	assert.Equal(t, http.StatusNotFound, do(t, bare, "GET", "/metrics", nil).Code)
}

func TestSubscribeEvents_Session(t *testing.T) {
	eng, h := newTestHandler(t)
	s, err := eng.CreateSession(context.Background())
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/events?session_id="+s.ID, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())

	w := do(t, h, "POST", "/messages", SubmitRequest{SessionID: s.ID, Text: "1"})
	require.Equal(t, http.StatusOK, w.Code)

	var data string
	for lines.Scan() {
		if strings.HasPrefix(lines.Text(), "data: {") {
			data = strings.TrimPrefix(lines.Text(), "data: ")
			break
		}
	}
	var turn domain.Turn
	require.NoError(t, json.Unmarshal([]byte(data), &turn))
	assert.Equal(t, s.ID, turn.SessionID)
	assert.Equal(t, domain.PromptFeelingPath, turn.Bot.Content)
}

func TestSubscribeEvents_RequiresSession(t *testing.T) {
	_, h := newTestHandler(t)
	w := do(t, h, "GET", "/events", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamManager_DropsForSlowClients(t *testing.T) {
	sm := NewStreamManager()
	ch, cancel := sm.Subscribe("s1")
	for i := 0; i < 20; i++ {
		sm.Broadcast("s1", "x")
	}
	assert.Len(t, ch, cap(ch))
	cancel()
	_, open := <-ch
	for open {
		_, open = <-ch
	}
	sm.Broadcast("s1", "after")
}
