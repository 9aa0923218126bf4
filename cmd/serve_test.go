package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/tuneid/internal/engine"
	"github.com/blacktop/tuneid/internal/engine/enginetest"
	"github.com/blacktop/tuneid/internal/history"
	"github.com/blacktop/tuneid/internal/identify"
	"github.com/blacktop/tuneid/internal/recognition"
)

func newTestStack(t *testing.T) (*stack, *enginetest.Fake) {
	t.Helper()

	eng := &enginetest.Fake{}
	reg := recognition.NewRegistry(eng)
	store, err := history.Open(":memory:")
	require.NoError(t, err)

	mgr, err := identify.New(reg, store, time.Minute)
	require.NoError(t, err)

	st := &stack{registry: reg, store: store, manager: mgr}
	t.Cleanup(st.close)
	return st, eng
}

func TestControlAPI(t *testing.T) {
	st, eng := newTestStack(t)

	var status atomic.Value
	status.Store(identify.StatusIdle)

	srv := httptest.NewServer(newControlRouter(st, &status))
	defer srv.Close()

	// Idle at rest.
	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	var statusBody map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&statusBody))
	resp.Body.Close()
	assert.Equal(t, "idle", statusBody["status"])

	// Kick off an attempt with source metadata.
	resp, err = http.Post(srv.URL+"/identify", "application/json",
		strings.NewReader(`{"title":"NTS 1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// A second attempt while one is running is rejected.
	resp, err = http.Post(srv.URL+"/identify", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Drive audio through and let the engine match.
	st.manager.IngestAudio([]float32{0.1, 0.2, 0.3, 0.4}, 2, 44100)
	require.NotNil(t, eng.Last())
	eng.Last().FireMatch(engine.Match{Title: "Teardrop"})

	// Delivery is async; wait until the match shows up in history.
	deadline := time.Now().Add(2 * time.Second)
	var historyBody struct {
		History []history.Track `json:"history"`
	}
	for time.Now().Before(deadline) {
		resp, err = http.Get(srv.URL + "/history")
		require.NoError(t, err)
		historyBody.History = nil
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&historyBody))
		resp.Body.Close()
		if len(historyBody.History) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.Len(t, historyBody.History, 1)
	assert.Equal(t, "Teardrop", historyBody.History[0].Title)
	require.NotNil(t, historyBody.History[0].SourceTitle)
	assert.Equal(t, "NTS 1", *historyBody.History[0].SourceTitle)

	// Clear it.
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/history", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/history")
	require.NoError(t, err)
	historyBody.History = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&historyBody))
	resp.Body.Close()
	assert.Empty(t, historyBody.History)
}
