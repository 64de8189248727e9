package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/iocscore/internal/engine"
	"github.com/ppiankov/iocscore/internal/llm"
	"github.com/ppiankov/iocscore/internal/logger"
	"github.com/ppiankov/iocscore/internal/ml"
	"github.com/ppiankov/iocscore/internal/model"
	"github.com/ppiankov/iocscore/internal/rules"
	"github.com/ppiankov/iocscore/internal/store"
	"github.com/ppiankov/iocscore/internal/worker"
)

type fixture struct {
	server *Server
	store  store.Store
}

func newFixture(t *testing.T, clf ml.Classifier, narrator *llm.Narrator) fixture {
	t.Helper()
	e, err := engine.New(engine.Options{
		Rules:  rules.NewSource(model.DefaultRules()),
		Model:  clf,
		Logger: logger.NewTestLogger(),
	})
	require.NoError(t, err)

	st := store.NewMemoryStore()
	im := worker.NewImporter(st, e, worker.Options{Workers: 2, Logger: logger.NewTestLogger()})

	s := NewServer(Options{
		Engine:   e,
		Store:    st,
		Importer: im,
		Narrator: narrator,
		Logger:   logger.NewTestLogger(),
		Version:  "test",
	})
	return fixture{server: s, store: st}
}

func do(t *testing.T, s *Server, method, target string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			r = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		if _, ok := body.(string); ok {
			req.Header.Set("Content-Type", "text/csv")
		} else {
			req.Header.Set("Content-Type", "application/json")
		}
	}

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, data
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, body := do(t, f.server, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, false, health["model_available"])
	assert.Equal(t, model.DefaultRules().Label(), health["rules_version"])
}

func TestScoreRuleOnly(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, body := do(t, f.server, http.MethodPost, "/api/score", engine.Request{
		Type:  "ip",
		Value: "203.0.113.7",
		Feeds: []string{"AbuseIPDB", "urlhaus"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var got ScoreResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, model.StatusRuleOnly, got.Status)
	assert.False(t, got.Partial)
	assert.Equal(t, 80, got.Score.RuleScore)
	assert.Equal(t, 80, got.Score.FinalScore)
	assert.Equal(t, model.TierHigh, got.Score.Tier)
	assert.Equal(t, []string{"abuseipdb", "urlhaus"}, got.Feeds)
	assert.Nil(t, got.Narrative)
}

func TestScoreInvalidIndicator(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, body := do(t, f.server, http.MethodPost, "/api/score", engine.Request{Type: "ip", Value: "300.1.1.1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "invalid_indicator", e.Code)
}

func TestScoreMalformedBody(t *testing.T) {
	f := newFixture(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/score", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.server.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScoreSchemaMismatch(t *testing.T) {
	a := &ml.Artifact{
		Version:       "lr-old",
		Kind:          ml.KindLogistic,
		SchemaVersion: "v0",
		FeatureNames:  []string{"feed_count", "legacy_reputation"},
		Weights:       []float64{0.5, 1.0},
	}
	clf, err := a.Build()
	require.NoError(t, err)
	f := newFixture(t, clf, nil)

	resp, body := do(t, f.server, http.MethodPost, "/api/score", engine.Request{Type: "ip", Value: "192.0.2.1"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "feature_schema_mismatch", e.Code)
	assert.Contains(t, e.Error, "legacy_reputation")
}

func TestExplain(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, body := do(t, f.server, http.MethodPost, "/api/explain", engine.Request{
		Type:  "url",
		Value: "http://bad.example/login",
		Feeds: []string{"urlhaus", "openphish", "phishtank"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var got ExplainResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, model.StatusRuleOnly, got.Status)
	assert.True(t, got.Explanation.MLUnavailable)
	assert.Empty(t, got.Explanation.Factors)
	assert.NotEmpty(t, got.Explanation.RuleNotes)
	assert.Equal(t, 100, got.Score.FinalScore)
}

func TestIndicatorLookup(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.store.RecordSighting(ctx, "ip", "203.0.113.7", "abuseipdb", ts)
	require.NoError(t, err)
	ind, err := f.store.RecordSighting(ctx, "ip", "203.0.113.7", "urlhaus", ts)
	require.NoError(t, err)

	resp, body := do(t, f.server, http.MethodGet, "/api/ioc/203.0.113.7", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var got []ScoreResponse
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got, 1)
	assert.Equal(t, 80, got[0].Score.FinalScore)
	assert.Equal(t, ind.Fingerprint, got[0].Fingerprint)

	stored, err := f.store.Get(ctx, ind.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, stored.Score)
	assert.Equal(t, 80, stored.Score.FinalScore)
}

func TestIndicatorLookupURLValue(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.store.RecordSighting(context.Background(), "url", "http://bad.example/a/b", "urlhaus", time.Now())
	require.NoError(t, err)

	resp, body := do(t, f.server, http.MethodGet, "/api/explain?value="+url.QueryEscape("http://bad.example/a/b")+"&type=url", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var got []ExplainResponse
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got, 1)
	assert.Equal(t, model.TypeURL, got[0].Explanation.Type)
}

func TestIndicatorNotFound(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, body := do(t, f.server, http.MethodGet, "/api/ioc/198.51.100.1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "not_found", e.Code)
}

func TestImport(t *testing.T) {
	f := newFixture(t, nil, nil)

	csv := "ip,203.0.113.7,abuseipdb,2025-05-30T10:00:00Z\nip,203.0.113.7,urlhaus\nip,not-an-ip,urlhaus\n"
	resp, body := do(t, f.server, http.MethodPost, "/api/import", csv)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var rep worker.Report
	require.NoError(t, json.Unmarshal(body, &rep))
	assert.Equal(t, 2, rep.Records)
	assert.Equal(t, 1, rep.Distinct)
	require.Len(t, rep.Invalid, 1)
	assert.Equal(t, 3, rep.Invalid[0].Line)

	list, err := f.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Score)
	assert.Equal(t, 80, list[0].Score.FinalScore)
}

func TestScoreWithNarrative(t *testing.T) {
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models": []}`))
		case "/api/generate":
			_, _ = w.Write([]byte(`{"model": "mistral", "response": "Reported by abuseipdb and urlhaus.", "done": true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ollama.Close()

	narrator, err := llm.NewNarrator(llm.Config{
		Provider: "ollama",
		BaseURL:  ollama.URL,
		Model:    "mistral",
		Strict:   true,
	}, []string{"abuseipdb", "urlhaus", "spamhaus_drop"})
	require.NoError(t, err)
	f := newFixture(t, nil, narrator)

	req := engine.Request{Type: "ip", Value: "203.0.113.7", Feeds: []string{"abuseipdb", "urlhaus"}}

	_, body := do(t, f.server, http.MethodPost, "/api/score", req)
	var plain ScoreResponse
	require.NoError(t, json.Unmarshal(body, &plain))
	assert.Nil(t, plain.Narrative)

	resp, body := do(t, f.server, http.MethodPost, "/api/score?narrate=true", req)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var got ScoreResponse
	require.NoError(t, json.Unmarshal(body, &got))
	require.NotNil(t, got.Narrative)
	assert.True(t, got.Narrative.Enabled)
	assert.Equal(t, "ollama", got.Narrative.Provider)
	assert.Equal(t, "Reported by abuseipdb and urlhaus.", got.Narrative.Text)
	assert.Equal(t, 80, got.Score.FinalScore)
}
