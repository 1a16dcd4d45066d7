package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/internal/decision"
	"advisor/internal/store"
	"advisor/internal/types"
)

type fakeStore struct {
	analyses map[string]*types.Analysis
	actions  map[string][]*types.Recommendation // analysis id -> actions
	byAction map[string]*types.Recommendation
	lastList struct {
		agentID string
		limit   int
	}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		analyses: map[string]*types.Analysis{},
		actions:  map[string][]*types.Recommendation{},
		byAction: map[string]*types.Recommendation{},
	}
}

func (f *fakeStore) GetAnalysis(id string) (*types.Analysis, error) {
	a, ok := f.analyses[id]
	if !ok {
		return nil, fmt.Errorf("analysis %s: %w", id, store.ErrNotFound)
	}
	return a, nil
}

func (f *fakeStore) ListAnalyses(agentID string, limit int) ([]*types.Analysis, error) {
	f.lastList.agentID = agentID
	f.lastList.limit = limit
	var out []*types.Analysis
	for _, a := range f.analyses {
		if a.AgentID == agentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListActions(analysisID string) ([]*types.Recommendation, error) {
	return f.actions[analysisID], nil
}

func (f *fakeStore) GetAction(id string) (*types.Recommendation, error) {
	a, ok := f.byAction[id]
	if !ok {
		return nil, fmt.Errorf("action %s: %w", id, store.ErrNotFound)
	}
	return a, nil
}

type fakeRunner struct {
	ran chan string
}

func (f *fakeRunner) Run(ctx context.Context, agentID string) (*types.Analysis, error) {
	f.ran <- agentID
	return &types.Analysis{ID: "a1", AgentID: agentID}, nil
}

type fakeDecider struct {
	got     []types.Decision
	outcome decision.Outcome
}

func (f *fakeDecider) Process(ctx context.Context, decisions []types.Decision) decision.Outcome {
	f.got = decisions
	return f.outcome
}

func newTestServer(st Store, runner Runner, decider Decider) *httptest.Server {
	srv := New(st, runner, decider, "agent-1", nil, Options{Addr: ":0"})
	return httptest.NewServer(srv.Handler())
}

func TestListAnalysesClampsLimit(t *testing.T) {
	st := newFakeStore()
	ts := newTestServer(st, nil, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/analysis?limit=500")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, maxListLimit, st.lastList.limit)
	assert.Equal(t, "agent-1", st.lastList.agentID)
}

func TestListAnalysesDefaultLimit(t *testing.T) {
	st := newFakeStore()
	ts := newTestServer(st, nil, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/analysis")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, defaultListLimit, st.lastList.limit)

	var body struct {
		Analyses []*types.Analysis `json:"analyses"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotNil(t, body.Analyses)
}

func TestListAnalysesBadLimit(t *testing.T) {
	ts := newTestServer(newFakeStore(), nil, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/analysis?limit=zero")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAgentHeaderOverride(t *testing.T) {
	st := newFakeStore()
	ts := newTestServer(st, nil, nil)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/analysis", nil)
	req.Header.Set("X-Agent-ID", "agent-2")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "agent-2", st.lastList.agentID)
}

func TestGetAnalysisWithActions(t *testing.T) {
	st := newFakeStore()
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	st.analyses["a1"] = &types.Analysis{
		ID:            "a1",
		AgentID:       "agent-1",
		CreatedAt:     created,
		Overview:      "o",
		Conditions:    "c",
		Risk:          "r",
		Opportunities: "p",
	}
	st.actions["a1"] = []*types.Recommendation{
		{ID: "r1", AnalysisID: "a1", Priority: types.PriorityHigh, Status: types.StatusPending, CreatedAt: created},
	}
	ts := newTestServer(st, nil, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/analysis/a1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Analysis *types.Analysis        `json:"analysis"`
		Actions  []types.Recommendation `json:"actions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	if diff := cmp.Diff(st.analyses["a1"], body.Analysis); diff != "" {
		t.Errorf("analysis mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, body.Actions, 1)
	assert.Equal(t, "r1", body.Actions[0].ID)
}

func TestGetAnalysisNotFound(t *testing.T) {
	ts := newTestServer(newFakeStore(), nil, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/analysis/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartRunAcknowledgesImmediately(t *testing.T) {
	runner := &fakeRunner{ran: make(chan string, 1)}
	ts := newTestServer(newFakeStore(), runner, nil)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/analysis", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case agent := <-runner.ran:
		assert.Equal(t, "agent-1", agent)
	case <-time.After(2 * time.Second):
		t.Fatal("runner was never invoked")
	}
}

func TestGetActionNotFound(t *testing.T) {
	ts := newTestServer(newFakeStore(), nil, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/action/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetAction(t *testing.T) {
	st := newFakeStore()
	st.byAction["r1"] = &types.Recommendation{ID: "r1", Status: types.StatusPending}
	ts := newTestServer(st, nil, nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/action/r1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got types.Recommendation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "r1", got.ID)
}

func TestDecide(t *testing.T) {
	decider := &fakeDecider{outcome: decision.Outcome{Accepted: []string{"r1"}, Rejected: []string{"r2"}}}
	ts := newTestServer(newFakeStore(), nil, decider)
	defer ts.Close()

	body := `{"decisions": [{"actionId": "r1", "decision": "accept"}, {"actionId": "r2", "decision": "reject"}]}`
	resp, err := http.Post(ts.URL+"/actions/decide", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var outcome decision.Outcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&outcome))
	assert.Equal(t, []string{"r1"}, outcome.Accepted)
	assert.Equal(t, []string{"r2"}, outcome.Rejected)
	require.Len(t, decider.got, 2)
	assert.Equal(t, types.VerdictAccept, decider.got[0].Verdict)
}

func TestDecideValidatesVerdicts(t *testing.T) {
	decider := &fakeDecider{}
	ts := newTestServer(newFakeStore(), nil, decider)
	defer ts.Close()

	cases := []struct {
		name string
		body string
	}{
		{"invalid verdict", `{"decisions": [{"actionId": "r1", "decision": "maybe"}]}`},
		{"missing action id", `{"decisions": [{"decision": "accept"}]}`},
		{"empty batch", `{"decisions": []}`},
		{"bad json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/actions/decide", "application/json", strings.NewReader(tc.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Nil(t, decider.got, "decider must not run on invalid input")
		})
	}
}
