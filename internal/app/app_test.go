package app

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/control-assessor/internal/apperr"
	"github.com/example/control-assessor/internal/config"
	"github.com/example/control-assessor/internal/conversation"
)

func mockConfig() *config.Config {
	cfg := config.Default()
	cfg.LLM.Provider = config.ProviderMock
	cfg.LLM.APIKey = "mock"
	return cfg
}

func TestBuildRunsMockAssessment(t *testing.T) {
	a, err := Build(mockConfig(), nil)
	require.NoError(t, err)

	s, err := a.Sessions.Create("")
	require.NoError(t, err)
	reply, err := s.Submit(context.Background(), "Incoming payments are matched against an internal fraud watchlist.", conversation.Listener{})
	require.NoError(t, err)
	assert.Equal(t, conversation.KindAssessment, reply.Kind)
	assert.True(t, reply.Assessment.Complete())
}

func TestBuildRejectsUnknownStage(t *testing.T) {
	cfg := mockConfig()
	cfg.Stages = map[string]config.StageOverride{"triage": {Model: "gpt-4o"}}
	_, err := Build(cfg, nil)
	assert.True(t, apperr.IsConfiguration(err))
}

func TestServerServesHealthz(t *testing.T) {
	a, err := Build(mockConfig(), nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	a.Server().Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := mockConfig()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg.HTTP.Addr = l.Addr().String()
	require.NoError(t, l.Close())

	a, err := Build(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.HTTP.Addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
