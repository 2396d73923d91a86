package e2e

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hyperengineering/waypoint/internal/api"
	"github.com/hyperengineering/waypoint/internal/payment"
	"github.com/hyperengineering/waypoint/internal/ratio"
	"github.com/hyperengineering/waypoint/internal/settlement"
	"github.com/hyperengineering/waypoint/internal/store"
	"github.com/hyperengineering/waypoint/internal/transfer"
	"github.com/hyperengineering/waypoint/internal/tree"
	"github.com/hyperengineering/waypoint/internal/types"
	client "github.com/hyperengineering/waypoint/pkg/waypoint"
)

const testAPIKey = "e2e-test-key"

// fakeGateway stands in for the payment provider. Sessions are created
// unpaid; tests flip them with markPaid.
type fakeGateway struct {
	mu       sync.Mutex
	sessions map[string]*payment.Session
	refunds  []int64
	nextID   int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: make(map[string]*payment.Session)}
}

func (g *fakeGateway) CreateSession(ctx context.Context, amount int64, meta payment.Metadata) (*payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	id := fmt.Sprintf("cs_%d", g.nextID)
	s := &payment.Session{ID: id, URL: "https://checkout.test/" + id, Metadata: meta}
	g.sessions[id] = s
	return s, nil
}

func (g *fakeGateway) GetSession(ctx context.Context, sessionID string) (*payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, payment.ErrGatewayUnavailable
	}
	out := *s
	return &out, nil
}

func (g *fakeGateway) RefundPartial(ctx context.Context, chargeRef string, amount int64, milestone int, meta payment.Metadata) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, amount)
	return fmt.Sprintf("re_%d", len(g.refunds)), nil
}

func (g *fakeGateway) markPaid(sessionID, chargeRef string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.sessions[sessionID]; ok {
		s.Paid = true
		s.ChargeRef = chargeRef
	}
}

func (g *fakeGateway) refundTotal() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	var total int64
	for _, a := range g.refunds {
		total += a
	}
	return total
}

// fixedPlanner returns a canned plan so no assistant call leaves the test.
type fixedPlanner struct {
	doc *types.TransferDocument
}

func (p *fixedPlanner) Plan(ctx context.Context, prompt string) (*types.TransferDocument, error) {
	return p.doc, nil
}

type env struct {
	docs    store.DocStore
	gateway *fakeGateway
	client  *client.Client
	baseURL string
}

// newEnv boots the full service over a real sqlite store and returns an
// SDK client pointed at it.
func newEnv(t *testing.T) *env {
	t.Helper()

	docs, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "e2e.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { docs.Close() })

	trees := tree.NewRepository(docs, 32, 4)
	ratios := ratio.NewEngine(trees, docs)
	trees.BindRecalculator(ratios)

	gateway := newFakeGateway()
	settle := settlement.NewEngine(docs, trees, ratios, gateway)
	codec := transfer.NewCodec(docs, trees, ratios, transfer.IDPolicyRegenerate)

	zero := 0
	planner := &fixedPlanner{doc: &types.TransferDocument{
		Title: "Run a marathon",
		Ratio: &zero,
		Steps: []types.TransferStep{{
			Title: "Base training",
			Todos: []types.TransferTodo{{Task: "Run 5k three times"}},
		}},
	}}

	handler := api.NewHandler(api.HandlerConfig{
		Docs:    docs,
		Trees:   trees,
		Ratios:  ratios,
		Settle:  settle,
		Codec:   codec,
		Planner: planner,
		APIKey:  testAPIKey,
		Version: "e2e",
	})
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)

	sdk, err := client.New(client.Config{BaseURL: srv.URL, APIKey: testAPIKey})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	return &env{docs: docs, gateway: gateway, client: sdk, baseURL: srv.URL}
}

// waypointClientWithKey returns a second SDK client against the same
// server with a different key.
func waypointClientWithKey(e *env, key string) (*client.Client, error) {
	return client.New(client.Config{BaseURL: e.baseURL, APIKey: key})
}

// seedCategory writes an empty category document so goals have a home.
func (e *env) seedCategory(t *testing.T, userID, categoryID string) {
	t.Helper()
	ref := types.CategoryRef{UserID: userID, CategoryID: categoryID}
	if err := e.docs.Put(context.Background(), store.CategoryPath(ref), types.Category{}); err != nil {
		t.Fatalf("seed category: %v", err)
	}
}
