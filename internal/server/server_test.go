package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-rag/internal/app"
	"resume-rag/internal/chromemdb"
	"resume-rag/internal/config"
	"resume-rag/internal/embedding"
	"resume-rag/internal/llmservice"
	"resume-rag/internal/models"
	"resume-rag/internal/prompt"
	"resume-rag/internal/rag"
	"resume-rag/internal/testutil"
)

func newTestApp(t *testing.T, gen llmservice.Generator) *app.App {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Document.Path = testutil.WriteResume(t)

	a, err := app.New(context.Background(), cfg,
		app.WithEmbedder(testutil.NewKeywordEmbedder()),
		app.WithGenerator(gen),
	)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestChat(t *testing.T) {
	h := New(newTestApp(t, testutil.NewResumeGenerator())).Handler()

	tests := []struct {
		question string
		want     string
	}{
		{question: "What is your GPA?", want: "I studied at IIT Mandi, where I graduated with a CGPA of 8.5."},
		{question: "What is your favorite color?", want: models.FallbackAnswer},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			body, err := json.Marshal(ChatRequest{Question: tt.question})
			require.NoError(t, err)

			rec := post(t, h, string(body))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.want, decode[ChatResponse](t, rec).Answer)
		})
	}
}

func TestChat_BadRequests(t *testing.T) {
	gen := testutil.NewResumeGenerator()
	h := New(newTestApp(t, gen)).Handler()

	for name, body := range map[string]string{
		"invalid json":   `{"question":`,
		"blank question": `{"question":"   "}`,
		"missing field":  `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := post(t, h, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
	assert.Empty(t, gen.Prompts())
}

func TestChat_MethodNotAllowed(t *testing.T) {
	h := New(newTestApp(t, testutil.NewResumeGenerator())).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestChat_ProviderFailureIsBadGateway(t *testing.T) {
	gen := &testutil.StubGenerator{Respond: func(string) (string, error) {
		return "", errors.New("401 unauthorized")
	}}
	h := New(newTestApp(t, gen)).Handler()

	rec := post(t, h, `{"question":"What is your GPA?"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	msg := decode[ErrorResponse](t, rec).Error
	assert.Equal(t, errorMessage(http.StatusBadGateway), msg)
	assert.NotContains(t, msg, "401")
	assert.NotContains(t, msg, "generate")

	// the server keeps serving after a failed request
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChat_IndexFailureIsInternalError(t *testing.T) {
	cfg := config.DefaultConfig()
	index := chromemdb.NewVectorDBManager("", nil)
	builder, err := prompt.NewBuilder(models.ResumePrompt(""))
	require.NoError(t, err)
	a := &app.App{
		Config: cfg,
		Index:  index,
		RAG: rag.NewRAG(index,
			embedding.NewClient(testutil.NewKeywordEmbedder(), "keyword", 0),
			llmservice.New(testutil.NewResumeGenerator(), "stub", 0),
			builder, 4),
	}

	rec := post(t, New(a).Handler(), `{"question":"What is your GPA?"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	msg := decode[ErrorResponse](t, rec).Error
	assert.Equal(t, errorMessage(http.StatusInternalServerError), msg)
	assert.NotContains(t, msg, "index")
}

func TestChat_PanicIsRecovered(t *testing.T) {
	gen := &testutil.StubGenerator{Respond: func(string) (string, error) { panic("boom") }}
	h := New(newTestApp(t, gen)).Handler()

	rec := post(t, h, `{"question":"What is your GPA?"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthz(t *testing.T) {
	h := New(newTestApp(t, testutil.NewResumeGenerator())).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, HealthResponse{Status: "ok", Chunks: 2}, decode[HealthResponse](t, rec))
}

func TestMiddleware_CORSAndRequestID(t *testing.T) {
	h := New(newTestApp(t, testutil.NewResumeGenerator())).Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://example.com")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
}

func TestChat_ConcurrentRequests(t *testing.T) {
	srv := httptest.NewServer(New(newTestApp(t, testutil.NewResumeGenerator())).Handler())
	defer srv.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(`{"question":"What is your GPA?"}`))
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			var body ChatResponse
			assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Contains(t, body.Answer, "8.5")
		}()
	}
	wg.Wait()
}

func TestNew_Addr(t *testing.T) {
	a := newTestApp(t, testutil.NewResumeGenerator())
	assert.Equal(t, "0.0.0.0:8000", New(a).Addr())
}
