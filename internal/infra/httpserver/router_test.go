package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/sapiens-pipeline/internal/application/pipeline"
	"github.com/bryanwahyu/sapiens-pipeline/internal/domain/analysis"
	"github.com/bryanwahyu/sapiens-pipeline/internal/security"
)

type gateReasoner struct {
	block chan struct{} // nil means answer immediately
}

func (g *gateReasoner) Reason(ctx context.Context, role, _, _ string) (string, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
		}
	}
	if role == "gatekeeper" {
		return `{"authentic": true, "rationale": "ok"}`, nil
	}
	return "narrative", nil
}

func newTestServer(t *testing.T, r analysis.Reasoner) (*httptest.Server, *pipeline.Runner) {
	t.Helper()
	v := security.NewValidator(security.Config{
		AllowedExtensions: []string{".csv"},
		MaxSizeBytes:      1 << 20,
		PIIDetection:      true,
	}, nil, nil)
	orch := &pipeline.Orchestrator{Validator: v, Reasoner: r}
	runner := pipeline.NewRunner(orch, pipeline.NewAdmission(1), time.Minute, nil, nil)

	srv := httptest.NewServer(NewRouter(runner, nil, nil))
	t.Cleanup(srv.Close)
	return srv, runner
}

func csvFixture(t *testing.T) string {
	t.Helper()
	content := "x,y\n"
	for i := 1; i <= 10; i++ {
		content += fmt.Sprintf("%d,%d\n", i, 3*i)
	}
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestSubmitProgressResult(t *testing.T) {
	srv, runner := newTestServer(t, &gateReasoner{})

	resp := postJSON(t, srv.URL+"/v1/analyses", map[string]any{
		"question": "does x drive y?",
		"types":    []string{"descriptive"},
		"files":    []string{csvFixture(t)},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decode(t, resp)
	id := body["request_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "queued", body["status"])

	require.NoError(t, runner.Wait(analysis.RequestID(id)))

	resp2, err := http.Get(srv.URL + "/v1/analyses/" + id + "/progress")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	prog := decode(t, resp2)
	assert.Equal(t, "DONE", prog["phase"])

	resp3, err := http.Get(srv.URL + "/v1/analyses/" + id + "/result")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp3.StatusCode)
	report := decode(t, resp3)
	assert.NotEmpty(t, report["sections"])
	assert.NotEmpty(t, report["executive_summary"])
}

func TestSubmitInvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t, &gateReasoner{})
	resp, err := http.Post(srv.URL+"/v1/analyses", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitMissingQuestion(t *testing.T) {
	srv, _ := newTestServer(t, &gateReasoner{})
	resp := postJSON(t, srv.URL+"/v1/analyses", map[string]any{"files": []string{"a.csv"}})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBusyMapsToConflict(t *testing.T) {
	block := make(chan struct{})
	srv, runner := newTestServer(t, &gateReasoner{block: block})
	csv := csvFixture(t)

	resp := postJSON(t, srv.URL+"/v1/analyses", map[string]any{
		"question": "q", "types": []string{"descriptive"}, "files": []string{csv},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	first := decode(t, resp)["request_id"].(string)

	resp2 := postJSON(t, srv.URL+"/v1/analyses", map[string]any{
		"question": "q", "types": []string{"descriptive"}, "files": []string{csv},
	})
	require.Equal(t, http.StatusConflict, resp2.StatusCode)
	assert.Equal(t, "BUSY", decode(t, resp2)["status"])

	// A still-running result reports in-progress, not an error.
	resp3, err := http.Get(srv.URL + "/v1/analyses/" + first + "/result")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp3.StatusCode)

	close(block)
	require.NoError(t, runner.Wait(analysis.RequestID(first)))
}

func TestUnknownIDMapsToNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &gateReasoner{})

	resp, err := http.Get(srv.URL + "/v1/analyses/nope/progress")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/analyses/nope", nil)
	require.NoError(t, err)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestCancelEndpoint(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	srv, runner := newTestServer(t, &gateReasoner{block: block})

	resp := postJSON(t, srv.URL+"/v1/analyses", map[string]any{
		"question": "q", "types": []string{"descriptive"}, "files": []string{csvFixture(t)},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id := decode(t, resp)["request_id"].(string)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/analyses/"+id, nil)
	require.NoError(t, err)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Equal(t, "canceled", decode(t, resp2)["status"])

	require.NoError(t, runner.Wait(analysis.RequestID(id)))
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &gateReasoner{})
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
