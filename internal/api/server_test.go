package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/control-assessor/internal/agents"
	"github.com/example/control-assessor/internal/apperr"
	"github.com/example/control-assessor/internal/conversation"
	"github.com/example/control-assessor/internal/orchestrator"
	"github.com/example/control-assessor/internal/prompts"
	"github.com/example/control-assessor/internal/providers/llm"
	"github.com/example/control-assessor/internal/providers/llm/llmtest"
	"github.com/example/control-assessor/internal/report"
)

const ofac = "All outgoing wires are screened against the OFAC SDN list before release. Potential matches are held and reviewed by the sanctions team within 4 hours."

var errTestProvider = &apperr.ExternalServiceError{Provider: "openai", StatusCode: 503, Detail: "unavailable"}

type testAPI struct {
	handler http.Handler
	client  *llmtest.Client
	hub     *orchestrator.Hub
}

func newTestAPI(t *testing.T, credential string) *testAPI {
	t.Helper()
	client := &llmtest.Client{}
	hub := orchestrator.NewHub()
	hub.FlushInterval = 5 * time.Millisecond
	pipeline := orchestrator.New(agents.NewExecutor(client, 1, nil), agents.DefaultStages(), orchestrator.Options{}, nil)
	store := conversation.NewStore(pipeline, client, conversation.Options{
		Seed:       prompts.MustGet(prompts.ChatSystem).Text(),
		ChatModel:  llm.ModelConfig{Model: "gpt-4o-mini"},
		Credential: credential,
	}, hub, nil)
	return &testAPI{
		handler: NewHandler(Deps{Sessions: store, Hub: hub, MaxRequestBytes: 1 << 20}),
		client:  client,
		hub:     hub,
	}
}

func (a *testAPI) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) create(t *testing.T) conversation.Snapshot {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/sessions", "", nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var snap conversation.Snapshot
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&snap))
	return snap
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Kind    string `json:"kind"`
	} `json:"error"`
	Assessment map[string]string `json:"assessment"`
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var out errorEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out), rr.Body.String())
	return out
}

func messageBody(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestHealthzAndRequestID(t *testing.T) {
	a := newTestAPI(t, "k")
	rr := a.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))

	rr = a.do(t, http.MethodGet, "/healthz", "", map[string]string{"X-Request-Id": "req-42"})
	assert.Equal(t, "req-42", rr.Header().Get("X-Request-Id"))
}

func TestCORSPreflight(t *testing.T) {
	a := newTestAPI(t, "k")
	rr := a.do(t, http.MethodOptions, "/sessions", "", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestCreateSession(t *testing.T) {
	a := newTestAPI(t, "k")
	snap := a.create(t)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "conversational", snap.Mode)
	assert.Equal(t, conversation.StateEmpty, snap.State)
	assert.Len(t, snap.Turns, 1)

	rr := a.do(t, http.MethodPost, "/sessions", `{"mode":"assess_only"}`, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = a.do(t, http.MethodPost, "/sessions", `{"mode":"batch"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "configuration", decodeError(t, rr).Error.Kind)

	rr = a.do(t, http.MethodGet, "/sessions", "", nil)
	var list []conversation.Snapshot
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	assert.Len(t, list, 2)
}

func TestUnknownSession(t *testing.T) {
	a := newTestAPI(t, "k")
	for _, path := range []string{"/sessions/nope", "/sessions/nope/report", "/sessions/nope/download"} {
		rr := a.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
		assert.Equal(t, "not_found", decodeError(t, rr).Error.Kind)
	}
	rr := a.do(t, http.MethodPost, "/sessions/nope/messages", `{"content":"x"}`, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMessageRunsAssessmentThenChat(t *testing.T) {
	a := newTestAPI(t, "k")
	id := a.create(t).ID

	rr := a.do(t, http.MethodGet, "/sessions/"+id+"/report", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = a.do(t, http.MethodPost, "/sessions/"+id+"/messages", messageBody(t, map[string]string{"content": ofac}), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var reply struct {
		Kind       string            `json:"kind"`
		Turn       struct{ Content string }
		Assessment map[string]string `json:"assessment"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&reply))
	assert.Equal(t, conversation.KindAssessment, reply.Kind)
	assert.Equal(t, "Sanctions", reply.Assessment["control_classification"])
	assert.Len(t, reply.Assessment, 9)

	rr = a.do(t, http.MethodGet, "/sessions/"+id+"/report", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rr.Header().Get("Content-Type"))
	for _, h := range report.Headers() {
		assert.Contains(t, rr.Body.String(), h)
	}
	assert.Equal(t, reply.Turn.Content, rr.Body.String())

	rr = a.do(t, http.MethodGet, "/sessions/"+id+"/download", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "control_assessment.csv")
	assert.Contains(t, rr.Body.String(), "Sanctions")

	rr = a.do(t, http.MethodPost, "/sessions/"+id+"/messages", `{"content":"What is the weakest area?"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&reply))
	assert.Equal(t, conversation.KindChat, reply.Kind)

	rr = a.do(t, http.MethodGet, "/sessions/"+id, "", nil)
	var snap conversation.Snapshot
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&snap))
	assert.Len(t, snap.Turns, 5)
	assert.Equal(t, conversation.StatePopulated, snap.State)
}

func TestMessageStreamsSSE(t *testing.T) {
	a := newTestAPI(t, "k")
	id := a.create(t).ID

	rr := a.do(t, http.MethodPost, "/sessions/"+id+"/messages", messageBody(t, map[string]string{"content": ofac}),
		map[string]string{"Accept": "text/event-stream"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/event-stream"))

	body := rr.Body.String()
	assert.Equal(t, 8, strings.Count(body, "event: stage\n"))
	assert.Equal(t, 1, strings.Count(body, "event: turn\n"))
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))

	rr = a.do(t, http.MethodPost, "/sessions/"+id+"/messages", `{"content":"and the gaps?"}`,
		map[string]string{"Accept": "text/event-stream"})
	body = rr.Body.String()
	assert.Greater(t, strings.Count(body, "event: token\n"), 1)
	assert.Zero(t, strings.Count(body, "event: stage\n"))
}

func TestMessageFromDocument(t *testing.T) {
	a := newTestAPI(t, "k")
	id := a.create(t).ID
	doc := "<html><body><p>Every payment is checked for duplicates within 24 hours.</p></body></html>"

	rr := a.do(t, http.MethodPost, "/sessions/"+id+"/messages", messageBody(t, map[string]string{
		"data_base64": base64.StdEncoding.EncodeToString([]byte(doc)),
		"filename":    "control.html",
	}), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var reply struct {
		Assessment map[string]string `json:"assessment"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&reply))
	assert.Equal(t, "Every payment is checked for duplicates within 24 hours.", reply.Assessment["original_input"])
	assert.Equal(t, "Duplicates", reply.Assessment["control_classification"])
}

func TestMessageRejects(t *testing.T) {
	a := newTestAPI(t, "k")
	id := a.create(t).ID
	cases := map[string]string{
		"empty body":  "",
		"bad json":    "{",
		"no content":  `{"content":"  "}`,
		"bad base64":  `{"data_base64":"%%%"}`,
		"unsupported": messageBody(t, map[string]string{"data_base64": base64.StdEncoding.EncodeToString([]byte{0xff, 0x00}), "filename": "x.xlsx"}),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := a.do(t, http.MethodPost, "/sessions/"+id+"/messages", body, nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "configuration", decodeError(t, rr).Error.Kind)
		})
	}
	assert.Empty(t, a.client.Calls())
}

func TestMissingCredential(t *testing.T) {
	a := newTestAPI(t, "")
	id := a.create(t).ID

	rr := a.do(t, http.MethodPost, "/sessions/"+id+"/messages", messageBody(t, map[string]string{"content": ofac}), nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	e := decodeError(t, rr)
	assert.Equal(t, "configuration", e.Error.Kind)
	assert.Equal(t, ofac, e.Assessment["original_input"])
	assert.Empty(t, a.client.Calls())
}

func TestProviderFailureIsBadGateway(t *testing.T) {
	a := newTestAPI(t, "k")
	a.client.Reply = func(c llmtest.Call) (string, error) {
		if c.Stage == prompts.Risk {
			return "", errTestProvider
		}
		return "", llmtest.ErrDefault
	}
	id := a.create(t).ID

	rr := a.do(t, http.MethodPost, "/sessions/"+id+"/messages", messageBody(t, map[string]string{"content": ofac}), nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	e := decodeError(t, rr)
	assert.Equal(t, "external_service", e.Error.Kind)
	assert.Equal(t, "Sanctions", e.Assessment["control_classification"])
	assert.NotContains(t, e.Assessment, "control_risk")

	rr = a.do(t, http.MethodGet, "/sessions/"+id, "", nil)
	var snap conversation.Snapshot
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&snap))
	assert.Len(t, snap.Turns, 1)
}

func TestResetAndDelete(t *testing.T) {
	a := newTestAPI(t, "k")
	id := a.create(t).ID
	rr := a.do(t, http.MethodPost, "/sessions/"+id+"/messages", messageBody(t, map[string]string{"content": ofac}), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = a.do(t, http.MethodPost, "/sessions/"+id+"/reset", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var snap conversation.Snapshot
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&snap))
	assert.Equal(t, conversation.StateEmpty, snap.State)
	assert.Len(t, snap.Turns, 1)

	rr = a.do(t, http.MethodGet, "/sessions/"+id+"/download", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = a.do(t, http.MethodDelete, "/sessions/"+id, "", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = a.do(t, http.MethodDelete, "/sessions/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestEventsStream(t *testing.T) {
	a := newTestAPI(t, "k")
	id := a.create(t).ID
	srv := httptest.NewServer(a.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/"+id+"/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sc := bufio.NewScanner(resp.Body)
	next := func() string {
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "event: ") {
				return strings.TrimPrefix(line, "event: ")
			}
		}
		return ""
	}
	require.Equal(t, "ready", next())
	require.Eventually(t, func() bool { return a.hub.Subscribers(id) == 1 }, time.Second, 5*time.Millisecond)

	rr := a.do(t, http.MethodPost, "/sessions/"+id+"/messages", messageBody(t, map[string]string{"content": ofac}), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var seen []string
	for ev := next(); ev != ""; ev = next() {
		seen = append(seen, ev)
		if ev == orchestrator.EventTurn {
			break
		}
	}
	require.Len(t, seen, 9)
	assert.Equal(t, orchestrator.EventStage, seen[0])
	assert.Equal(t, orchestrator.EventTurn, seen[8])
}
