package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/peakform/peakform-backend/internal/domain"
	"github.com/peakform/peakform-backend/internal/pkg/dbctx"
	"github.com/peakform/peakform-backend/internal/platform/logger"
	"github.com/peakform/peakform-backend/internal/repos"
)

type aiCallRecorder struct {
	mu   sync.Mutex
	rows []*domain.AICallLog
}

func (r *aiCallRecorder) Append(dbc dbctx.Context, row *domain.AICallLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
	return nil
}

func respondWithJSON(t *testing.T, w http.ResponseWriter, payload string) {
	t.Helper()
	envelope := map[string]any{
		"output": []map[string]any{
			{
				"type": "message",
				"role": "assistant",
				"content": []map[string]any{
					{"type": "output_text", "text": payload},
				},
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
}

func newTestClient(t *testing.T, baseURL string, calls *aiCallRecorder) OpenAIClient {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", baseURL)
	t.Setenv("OPENAI_MODEL", "test-model")
	t.Setenv("OPENAI_MAX_RETRIES", "1")
	t.Setenv("OPENAI_TIMEOUT_SECONDS", "5")

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	var repo repos.AICallLogRepo
	if calls != nil {
		repo = calls
	}
	client, err := NewOpenAIClient(log, repo)
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	return client
}

func testSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer": map[string]any{"type": "string"},
		},
		"required":             []string{"answer"},
		"additionalProperties": false,
	}
}

func TestGenerateJSONParsesStructuredOutput(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path: want=/v1/responses got=%s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		respondWithJSON(t, w, `{"answer":"forty-two"}`)
	}))
	defer srv.Close()

	calls := &aiCallRecorder{}
	client := newTestClient(t, srv.URL, calls)

	out, err := client.GenerateJSON(context.Background(), "sys", "user", "test_schema", testSchema())
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if out["answer"] != "forty-two" {
		t.Fatalf("answer: want=forty-two got=%v", out["answer"])
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("authorization header: want bearer key got=%q", gotAuth)
	}
	if len(calls.rows) != 1 || calls.rows[0].Status != "ok" {
		t.Fatalf("call ledger: want one ok row got=%+v", calls.rows)
	}
}

func TestGenerateJSONRetriesServerErrors(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		respondWithJSON(t, w, `{"answer":"ok"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)

	out, err := client.GenerateJSON(context.Background(), "sys", "user", "test_schema", testSchema())
	if err != nil {
		t.Fatalf("GenerateJSON after retry: %v", err)
	}
	if out["answer"] != "ok" {
		t.Fatalf("answer: want=ok got=%v", out["answer"])
	}
	if attempts != 2 {
		t.Fatalf("attempts: want=2 got=%d", attempts)
	}
}

func TestGenerateJSONExhaustedRetriesAreRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)

	_, err := client.GenerateJSON(context.Background(), "sys", "user", "test_schema", testSchema())
	if err == nil {
		t.Fatalf("exhausted retries did not error")
	}
	if !IsRetryableAI(err) {
		t.Fatalf("429 exhaustion: want retryable got %v", err)
	}
}

func TestGenerateJSONClientErrorIsPermanent(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)

	_, err := client.GenerateJSON(context.Background(), "sys", "user", "test_schema", testSchema())
	if err == nil {
		t.Fatalf("400 did not error")
	}
	if IsRetryableAI(err) {
		t.Fatalf("400: want permanent got retryable")
	}
	if attempts != 1 {
		t.Fatalf("400 was retried: attempts=%d", attempts)
	}
}

func TestGenerateJSONRejectsMalformedModelOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(t, w, `not json at all`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, nil)

	_, err := client.GenerateJSON(context.Background(), "sys", "user", "test_schema", testSchema())
	if err == nil {
		t.Fatalf("malformed output did not error")
	}
	if IsRetryableAI(err) {
		t.Fatalf("malformed output: want permanent got retryable")
	}
}

func TestNewOpenAIClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	if _, err := NewOpenAIClient(log, nil); err == nil {
		t.Fatalf("missing OPENAI_API_KEY accepted")
	}
}
