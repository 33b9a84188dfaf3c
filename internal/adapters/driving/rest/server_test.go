package rest

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// --- Mock implementations ---

type mockSearchService struct {
	results []domain.Record
	err     error

	gotText   string
	gotK      int
	gotFields domain.FieldSet
}

func (m *mockSearchService) Search(_ context.Context, text string, k int) ([]domain.Record, error) {
	m.gotText, m.gotK = text, k
	return m.results, m.err
}

func (m *mockSearchService) AdvancedSearch(
	_ context.Context, text string, k int, fields domain.FieldSet,
) ([]map[string]any, error) {
	m.gotText, m.gotK, m.gotFields = text, k, fields
	if m.err != nil {
		return nil, m.err
	}
	out := make([]map[string]any, len(m.results))
	for i, r := range m.results {
		out[i] = r.Project(fields)
	}
	return out, nil
}

type mockStatusService struct {
	status domain.ServerStatus
}

func (m *mockStatusService) Status() domain.ServerStatus { return m.status }

type mockSegmentService struct {
	rec domain.Record
	err error
}

func (m *mockSegmentService) Segment(_ context.Context, queryID int) (domain.Record, error) {
	if m.err != nil {
		return domain.Record{}, m.err
	}
	rec := m.rec
	rec.QueryID = queryID
	return rec, nil
}

var sampleRecords = []domain.Record{
	{QueryID: 1, Rank: 1, SrcLang: "eng", SrcText: "the cat sat", TgtLang: "fra", TgtText: "le chat était assis", Quality: "good", Type: "TM"},
	{QueryID: 3, Rank: 2, SrcLang: "eng", SrcText: "a cat slept", TgtLang: "fra", TgtText: "un chat dormait", Quality: "good", Type: "TM"},
}

func newTestServer(t *testing.T, ports Ports) *Server {
	t.Helper()
	s, err := NewServer(ports, Config{RateLimit: 1000, Burst: 1000})
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestNewServer_RequiresSearch(t *testing.T) {
	_, err := NewServer(Ports{}, Config{})
	assert.ErrorIs(t, err, ErrMissingSearchService)
}

func TestHome(t *testing.T) {
	s := newTestServer(t, Ports{Search: &mockSearchService{}})

	rec := do(t, s, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome")
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		status domain.ServerStatus
		want   int
	}{
		{"ready", domain.ServerStatus{State: "ready", Ready: true, Documents: 4}, http.StatusOK},
		{"loading", domain.ServerStatus{State: "model_loaded"}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Ports{Search: &mockSearchService{}, Status: &mockStatusService{status: tt.status}})

			rec := do(t, s, "/healthz")
			assert.Equal(t, tt.want, rec.Code)

			var got domain.ServerStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.status, got)
		})
	}
}

func TestSearch(t *testing.T) {
	mock := &mockSearchService{results: sampleRecords}
	s := newTestServer(t, Ports{Search: mock})

	rec := do(t, s, "/search?src_text=the+cat&n_best=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "the cat", mock.gotText)
	assert.Equal(t, 2, mock.gotK)

	var got []domain.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, sampleRecords, got)
}

func TestSearch_DefaultNBest(t *testing.T) {
	mock := &mockSearchService{}
	s := newTestServer(t, Ports{Search: mock})

	rec := do(t, s, "/search?src_text=cat")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultNBest, mock.gotK)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestSearch_BadInput(t *testing.T) {
	s := newTestServer(t, Ports{Search: &mockSearchService{}})

	for _, target := range []string{
		"/search",
		"/search?src_text=",
		"/search?src_text=cat&n_best=abc",
		"/search?src_text=cat&n_best=-1",
		"/advanced_search?n_best=3",
	} {
		rec := do(t, s, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, rec.Body.String(), `"error"`, target)
	}
}

func TestSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no resolvable tokens", domain.ErrNoResolvableTokens, http.StatusUnprocessableEntity},
		{"not ready", domain.ErrNotReady, http.StatusServiceUnavailable},
		{"metadata unavailable", domain.ErrMetadataUnavailable, http.StatusServiceUnavailable},
		{"invalid input", domain.ErrInvalidInput, http.StatusBadRequest},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Ports{Search: &mockSearchService{err: tt.err}})

			rec := do(t, s, "/search?src_text=cat")
			assert.Equal(t, tt.want, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			if tt.want == http.StatusInternalServerError {
				assert.NotContains(t, body.Error, "disk")
			}
		})
	}
}

func TestAdvancedSearch(t *testing.T) {
	mock := &mockSearchService{results: sampleRecords}
	s := newTestServer(t, Ports{Search: mock})

	rec := do(t, s, "/advanced_search?src_text=the+cat&n_best=1&quality=true&type=1&domain=false&ycc=")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.FieldSet{Quality: true, Type: true}, mock.gotFields)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "good", got[0]["quality"])
	assert.Equal(t, "TM", got[0]["type"])
	assert.NotContains(t, got[0], "domain")
	assert.NotContains(t, got[0], "ycc")
}

func TestFlag(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"", false},
		{"false", false},
		{"0", false},
		{"true", true},
		{"1", true},
		{"yes", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/advanced_search?type="+tt.raw, nil)
			assert.Equal(t, tt.want, flag(c, "type"))
		})
	}
}

func TestSegment(t *testing.T) {
	s := newTestServer(t, Ports{
		Search:  &mockSearchService{},
		Segment: &mockSegmentService{rec: domain.Record{SrcText: "the cat sat"}},
	})

	rec := do(t, s, "/segments/7")
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 7, got.QueryID)
	assert.Equal(t, "the cat sat", got.SrcText)

	assert.Equal(t, http.StatusBadRequest, do(t, s, "/segments/abc").Code)
}

func TestSegment_NotFound(t *testing.T) {
	s := newTestServer(t, Ports{
		Search:  &mockSearchService{},
		Segment: &mockSegmentService{err: domain.ErrNotFound},
	})
	assert.Equal(t, http.StatusNotFound, do(t, s, "/segments/7").Code)

	bare := newTestServer(t, Ports{Search: &mockSearchService{}})
	assert.Equal(t, http.StatusNotFound, do(t, bare, "/segments/7").Code)
}

func TestGzip(t *testing.T) {
	s := newTestServer(t, Ports{Search: &mockSearchService{results: sampleRecords}})

	req := httptest.NewRequest(http.MethodGet, "/search?src_text=cat", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(body), "le chat était assis")
}

func TestMCPMount(t *testing.T) {
	mcp := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	s := newTestServer(t, Ports{Search: &mockSearchService{}, MCP: mcp})

	assert.Equal(t, http.StatusTeapot, do(t, s, "/mcp").Code)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, err := NewServer(Ports{Search: &mockSearchService{}}, Config{Addr: "127.0.0.1:0"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNewServer_DefaultAddr(t *testing.T) {
	s := newTestServer(t, Ports{Search: &mockSearchService{}})
	assert.Equal(t, ":5555", s.Addr())
}
