package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperengineering/waypoint/internal/assistant"
	"github.com/hyperengineering/waypoint/internal/payment"
	"github.com/hyperengineering/waypoint/internal/ratio"
	"github.com/hyperengineering/waypoint/internal/settlement"
	"github.com/hyperengineering/waypoint/internal/store"
	"github.com/hyperengineering/waypoint/internal/transfer"
	"github.com/hyperengineering/waypoint/internal/tree"
	"github.com/hyperengineering/waypoint/internal/types"
)

const testAPIKey = "test-api-key"

type fakeGateway struct {
	sessions map[string]*payment.Session
	refunds  int
}

func (f *fakeGateway) CreateSession(ctx context.Context, amount int64, meta payment.Metadata) (*payment.Session, error) {
	id := fmt.Sprintf("sess_%d", len(f.sessions)+1)
	sess := &payment.Session{ID: id, URL: "https://checkout.example/" + id, Metadata: meta}
	f.sessions[id] = sess
	return sess, nil
}

func (f *fakeGateway) GetSession(ctx context.Context, sessionID string) (*payment.Session, error) {
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, payment.ErrGatewayUnavailable
	}
	return sess, nil
}

func (f *fakeGateway) RefundPartial(ctx context.Context, chargeRef string, amount int64, milestone int, meta payment.Metadata) (string, error) {
	f.refunds++
	return fmt.Sprintf("re_%d", f.refunds), nil
}

type mockPlanner struct {
	doc *types.TransferDocument
	err error
}

func (m *mockPlanner) Plan(ctx context.Context, prompt string) (*types.TransferDocument, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.doc, nil
}

type testServer struct {
	router  http.Handler
	docs    *store.Memory
	repo    *tree.Repository
	gateway *fakeGateway
	planner *mockPlanner
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	docs := store.NewMemory()
	repo := tree.NewRepository(docs, 32, 4)
	ratios := ratio.NewEngine(repo, docs)
	repo.BindRecalculator(ratios)
	gateway := &fakeGateway{sessions: make(map[string]*payment.Session)}
	settle := settlement.NewEngine(docs, repo, ratios, gateway)
	codec := transfer.NewCodec(docs, repo, ratios, transfer.IDPolicyRegenerate)
	planner := &mockPlanner{}

	h := NewHandler(HandlerConfig{
		Docs:          docs,
		Trees:         repo,
		Ratios:        ratios,
		Settle:        settle,
		Codec:         codec,
		Planner:       planner,
		APIKey:        testAPIKey,
		WebhookSecret: "whsec_test",
		Version:       "test",
	})

	if err := docs.Put(context.Background(), store.CategoryPath(types.CategoryRef{UserID: "u1", CategoryID: "c1"}), types.Category{}); err != nil {
		t.Fatalf("seed category: %v", err)
	}

	return &testServer{router: NewRouter(h), docs: docs, repo: repo, gateway: gateway, planner: planner}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

const base = "/api/v1/users/u1/categories/c1"

func (s *testServer) createGoal(t *testing.T, title string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, base+"/goals", types.AddGoalRequest{Title: title})
	if w.Code != http.StatusCreated {
		t.Fatalf("create goal: status %d body %s", w.Code, w.Body.String())
	}
	return decode[types.CreatedResponse](t, w).ID
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[types.HealthResponse](t, w)
	if resp.Status != "healthy" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, base+"/goals/abc", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestCreateGoalValidation(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, base+"/goals", types.AddGoalRequest{Title: "  "})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestGoalTreeLifecycle(t *testing.T) {
	s := newTestServer(t)
	goalID := s.createGoal(t, "ship the project")
	goalBase := base + "/goals/" + goalID

	w := s.do(t, http.MethodPost, goalBase+"/steps", types.AddStepRequest{Title: "plan"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create step: status %d", w.Code)
	}
	stepID := decode[types.CreatedResponse](t, w).ID

	w = s.do(t, http.MethodPost, goalBase+"/todos", types.AddTodoRequest{Task: "write outline"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create todo: status %d", w.Code)
	}

	w = s.do(t, http.MethodPost, goalBase+"/todos", types.AddTodoRequest{
		ParentPath: []string{stepID},
		Task:       "book meeting",
		IsFinished: true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create nested todo: status %d", w.Code)
	}

	w = s.do(t, http.MethodGet, goalBase, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get goal: status %d", w.Code)
	}
	goalTree := decode[types.GoalTree](t, w)
	if goalTree.Title != "ship the project" {
		t.Errorf("title = %q", goalTree.Title)
	}
	if len(goalTree.Todos) != 1 || len(goalTree.Steps) != 1 || len(goalTree.Steps[0].Todos) != 1 {
		t.Fatalf("tree shape wrong: %+v", goalTree)
	}

	w = s.do(t, http.MethodPost, goalBase+"/ratio", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ratio: status %d", w.Code)
	}
	if got := decode[types.RatioResponse](t, w).Ratio; got != 50 {
		t.Errorf("ratio = %d, want 50", got)
	}

	w = s.do(t, http.MethodDelete, goalBase, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete goal: status %d", w.Code)
	}
	w = s.do(t, http.MethodGet, goalBase, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d", w.Code)
	}
}

func TestUpdateTodoPartialPatch(t *testing.T) {
	s := newTestServer(t)
	goalID := s.createGoal(t, "g")
	goalBase := base + "/goals/" + goalID

	w := s.do(t, http.MethodPost, goalBase+"/todos", types.AddTodoRequest{Task: "t"})
	todoID := decode[types.CreatedResponse](t, w).ID

	finished := true
	w = s.do(t, http.MethodPatch, goalBase+"/todos/"+todoID, types.UpdateTodoRequest{IsFinished: &finished})
	if w.Code != http.StatusNoContent {
		t.Fatalf("patch todo: status %d body %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, goalBase, nil)
	goalTree := decode[types.GoalTree](t, w)
	if len(goalTree.Todos) != 1 || !goalTree.Todos[0].IsFinished || goalTree.Todos[0].Task != "t" {
		t.Errorf("todo after patch = %+v", goalTree.Todos)
	}

	w = s.do(t, http.MethodPatch, goalBase+"/todos/"+todoID, types.UpdateTodoRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty patch: status %d, want 400", w.Code)
	}
}

func TestCommitmentFlow(t *testing.T) {
	s := newTestServer(t)
	goalID := s.createGoal(t, "g")
	goalBase := base + "/goals/" + goalID

	// two todos, both finished: ratio 100 once settled
	for i := 0; i < 2; i++ {
		s.do(t, http.MethodPost, goalBase+"/todos", types.AddTodoRequest{Task: "t", IsFinished: true})
	}

	w := s.do(t, http.MethodPost, goalBase+"/commitment", types.CommitRequest{Amount: 1000})
	if w.Code != http.StatusOK {
		t.Fatalf("commit: status %d body %s", w.Code, w.Body.String())
	}
	if decode[types.CommitResult](t, w).SessionURL == "" {
		t.Fatal("commit returned no session URL")
	}

	// unpaid session cannot be verified
	w = s.do(t, http.MethodPost, goalBase+"/commitment/verify", types.VerifyRequest{})
	if w.Code != http.StatusConflict {
		t.Fatalf("verify unpaid: status %d, want 409", w.Code)
	}

	for _, sess := range s.gateway.sessions {
		sess.Paid = true
		sess.ChargeRef = "pi_test"
	}

	w = s.do(t, http.MethodPost, goalBase+"/commitment/verify", types.VerifyRequest{})
	if w.Code != http.StatusOK {
		t.Fatalf("verify: status %d body %s", w.Code, w.Body.String())
	}
	if !decode[types.ConfirmResult](t, w).Locked {
		t.Fatal("verify did not lock the goal")
	}

	// locked goal rejects structural edits
	w = s.do(t, http.MethodPost, goalBase+"/todos", types.AddTodoRequest{Task: "late"})
	if w.Code != http.StatusConflict {
		t.Errorf("edit locked goal: status %d, want 409", w.Code)
	}

	// clearing a confirmed commitment is a conflict
	w = s.do(t, http.MethodDelete, goalBase+"/commitment", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("clear locked: status %d, want 409", w.Code)
	}

	w = s.do(t, http.MethodPost, goalBase+"/settlement", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("settle: status %d body %s", w.Code, w.Body.String())
	}
	result := decode[types.SettleResult](t, w)
	if !result.Refunded || result.RefundAmount != 1000 {
		t.Errorf("settle result = %+v", result)
	}
	if s.gateway.refunds != 4 {
		t.Errorf("gateway refunds = %d, want 4", s.gateway.refunds)
	}
}

func TestCommitInvalidAmount(t *testing.T) {
	s := newTestServer(t)
	goalID := s.createGoal(t, "g")

	w := s.do(t, http.MethodPost, base+"/goals/"+goalID+"/commitment", types.CommitRequest{Amount: 0})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestExportImport(t *testing.T) {
	s := newTestServer(t)
	goalID := s.createGoal(t, "original")
	goalBase := base + "/goals/" + goalID
	s.do(t, http.MethodPost, goalBase+"/todos", types.AddTodoRequest{Task: "t", IsFinished: true})

	w := s.do(t, http.MethodGet, goalBase+"/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export: status %d", w.Code)
	}
	doc := decode[types.TransferDocument](t, w)

	w = s.do(t, http.MethodPost, base+"/import", doc)
	if w.Code != http.StatusCreated {
		t.Fatalf("import: status %d body %s", w.Code, w.Body.String())
	}
	newID := decode[types.CreatedResponse](t, w).ID
	if newID == goalID {
		t.Error("import reused the original goal id")
	}

	w = s.do(t, http.MethodGet, base+"/goals/"+newID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get imported: status %d", w.Code)
	}
	goalTree := decode[types.GoalTree](t, w)
	if goalTree.Title != "original" || len(goalTree.Todos) != 1 {
		t.Errorf("imported tree = %+v", goalTree)
	}
}

func TestImportInvalidDocument(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, base+"/import", map[string]any{"title": ""})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestGeneratePlan(t *testing.T) {
	s := newTestServer(t)
	zero := 0
	s.planner.doc = &types.TransferDocument{ID: "p1", Title: "generated", Ratio: &zero}

	w := s.do(t, http.MethodPost, "/api/v1/assistant/plan", types.PlanRequest{Prompt: "help me"})
	if w.Code != http.StatusOK {
		t.Fatalf("plan: status %d body %s", w.Code, w.Body.String())
	}
	if decode[types.TransferDocument](t, w).Title != "generated" {
		t.Error("plan response mismatch")
	}
}

func TestGeneratePlanRequiresPrompt(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/assistant/plan", types.PlanRequest{})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestGeneratePlanUpstreamFailure(t *testing.T) {
	s := newTestServer(t)
	s.planner.err = assistant.ErrUnavailable

	w := s.do(t, http.MethodPost, "/api/v1/assistant/plan", types.PlanRequest{Prompt: "p"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestDeleteRateLimiter(t *testing.T) {
	limiter := NewDeleteRateLimiter(2, 100*time.Millisecond)
	current := time.Now()
	limiter.now = func() time.Time { return current }
	limiter.last = current

	if !limiter.Allow() || !limiter.Allow() {
		t.Fatal("burst capacity not honored")
	}
	if limiter.Allow() {
		t.Error("limiter allowed beyond capacity")
	}

	current = current.Add(150 * time.Millisecond)
	if !limiter.Allow() {
		t.Error("limiter did not refill")
	}
	if limiter.Allow() {
		t.Error("limiter refilled too much")
	}
}
