package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/peakform/peakform-backend/internal/domain"
	"github.com/peakform/peakform-backend/internal/jobs"
	"github.com/peakform/peakform-backend/internal/pkg/dbctx"
	"github.com/peakform/peakform-backend/internal/platform/logger"
	"github.com/peakform/peakform-backend/internal/requestdata"
	"github.com/peakform/peakform-backend/internal/services"
	"github.com/peakform/peakform-backend/internal/taskqueue"
)

type fakeEventRepo struct {
	mu     sync.Mutex
	events []*domain.ProgramJobEvent
}

func (r *fakeEventRepo) Append(dbc dbctx.Context, ev *domain.ProgramJobEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeEventRepo) ListByJob(dbc dbctx.Context, jobID uuid.UUID, limit int) ([]*domain.ProgramJobEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ProgramJobEvent
	for _, ev := range r.events {
		if ev.JobID == jobID {
			out = append(out, ev)
		}
	}
	return out, nil
}

type apiHarness struct {
	router *gin.Engine
	store  *jobs.MemStore
	queue  *taskqueue.MemQueue
	events *fakeEventRepo
	userID uuid.UUID
}

// fakeAuth injects the harness user the way the real middleware would after
// verifying a token.
func (h *apiHarness) fakeAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{
			TokenString: "test",
			UserID:      h.userID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}

	h := &apiHarness{
		store:  jobs.NewMemStore(),
		queue:  taskqueue.NewMemQueue(),
		events: &fakeEventRepo{},
		userID: uuid.New(),
	}
	pipeline := jobs.NewPipeline("analyze_profile", "plan_skeleton", "assign_exercises", "validate_program")
	svc := services.NewProgramJobService(log, h.store, h.events, pipeline, h.queue, services.NewLogNotifier(log))

	router := gin.New()
	protected := router.Group("/api")
	protected.Use(h.fakeAuth())
	protected.POST("/programs/generate", NewProgramsHandler(svc).Generate)
	protected.GET("/jobs/:id", NewJobsHandler(svc).GetJobByID)
	protected.GET("/jobs/:id/events", NewJobsHandler(svc).GetJobEvents)
	h.router = router
	return h
}

func (h *apiHarness) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func validGenerateBody() map[string]any {
	return map[string]any{
		"goal":          "build strength",
		"weeks":         8,
		"days_per_week": 4,
		"experience":    "intermediate",
		"equipment":     []string{"barbell", "dumbbells"},
	}
}

func TestGenerateCreatesPendingJobAndEnqueuesStepOne(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.post(t, "/api/programs/generate", validGenerateBody())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: want=202 got=%d body=%s", rec.Code, rec.Body)
	}

	var resp struct {
		JobID  uuid.UUID `json:"job_id"`
		Status string    `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != domain.JobStatusPending {
		t.Fatalf("status field: want=pending got=%s", resp.Status)
	}

	job, err := h.store.GetByID(dbctx.Context{Ctx: context.Background()}, resp.JobID)
	if err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if job.CurrentStep != 1 || job.TotalSteps != 4 {
		t.Fatalf("job steps: want=1/4 got=%d/%d", job.CurrentStep, job.TotalSteps)
	}
	if job.OwnerUserID != h.userID {
		t.Fatalf("owner: want=%s got=%s", h.userID, job.OwnerUserID)
	}

	items := h.queue.Items()
	if len(items) != 1 || items[0].Step != 1 || items[0].JobID != resp.JobID {
		t.Fatalf("queue: want one step-1 invocation got=%+v", items)
	}
}

func TestGenerateRejectsInvalidInput(t *testing.T) {
	h := newAPIHarness(t)

	cases := []map[string]any{
		{"goal": "", "weeks": 8, "days_per_week": 4, "experience": "intermediate"},
		{"goal": "x", "weeks": 0, "days_per_week": 4, "experience": "intermediate"},
		{"goal": "x", "weeks": 13, "days_per_week": 4, "experience": "intermediate"},
		{"goal": "x", "weeks": 8, "days_per_week": 0, "experience": "intermediate"},
		{"goal": "x", "weeks": 8, "days_per_week": 8, "experience": "intermediate"},
		{"goal": "x", "weeks": 8, "days_per_week": 4, "experience": "pro"},
	}
	for i, body := range cases {
		rec := h.post(t, "/api/programs/generate", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("case %d: status want=400 got=%d body=%s", i, rec.Code, rec.Body)
		}
	}
	if len(h.queue.Items()) != 0 {
		t.Fatalf("invalid input enqueued work: %+v", h.queue.Items())
	}
}

func TestGenerateEnqueueFailureFailsJobAnd500s(t *testing.T) {
	h := newAPIHarness(t)
	h.queue.FailAlways()

	rec := h.post(t, "/api/programs/generate", validGenerateBody())
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: want=500 got=%d", rec.Code)
	}

	// The job must be marked failed, not left pending forever.
	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	var failed bool
	for _, ev := range h.events.events {
		if ev.Kind == domain.JobEventFailed {
			failed = true
		}
	}
	if !failed {
		t.Fatalf("enqueue failure did not record a failed event: %+v", h.events.events)
	}
}

func TestGetJobStatusSnapshot(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.post(t, "/api/programs/generate", validGenerateBody())
	var created struct {
		JobID uuid.UUID `json:"job_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	rec = h.get(t, "/api/jobs/"+created.JobID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	var snap map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap["status"] != domain.JobStatusPending {
		t.Fatalf("snapshot status: want=pending got=%v", snap["status"])
	}
	if _, present := snap["result"]; present {
		t.Fatalf("pending snapshot exposes result")
	}
	if _, present := snap["error"]; present {
		t.Fatalf("pending snapshot exposes error")
	}
}

func TestGetJobUnknownReturns404(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.get(t, "/api/jobs/"+uuid.NewString())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: want=404 got=%d", rec.Code)
	}
}

func TestGetJobForeignOwnerReturns404(t *testing.T) {
	h := newAPIHarness(t)

	foreign, err := h.store.Create(dbctx.Context{Ctx: context.Background()}, &domain.ProgramJob{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(), // not the harness user
		Status:      domain.JobStatusPending,
		CurrentStep: 1,
		TotalSteps:  4,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec := h.get(t, "/api/jobs/"+foreign.ID.String())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: want=404 got=%d", rec.Code)
	}
}

func TestGetJobEventsTimeline(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.post(t, "/api/programs/generate", validGenerateBody())
	var created struct {
		JobID uuid.UUID `json:"job_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	rec = h.get(t, "/api/jobs/"+created.JobID.String()+"/events")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	var resp struct {
		Events []map[string]any `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(resp.Events) == 0 {
		t.Fatalf("events: want at least the created event got none")
	}
	if resp.Events[0]["kind"] != domain.JobEventCreated {
		t.Fatalf("first event kind: want=%s got=%v", domain.JobEventCreated, resp.Events[0]["kind"])
	}
}
