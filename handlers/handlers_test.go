package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"procureflow/internal/agent"
	"procureflow/internal/apperr"
	"procureflow/internal/auth"
	"procureflow/internal/cart"
	"procureflow/internal/items"
	"procureflow/internal/purchases"
	"procureflow/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// itemStore is an in-memory items.Store so the real items.Service runs behind the routes.
type itemStore struct {
	items []items.Item
}

func (m *itemStore) CreateItemDB(_ context.Context, it items.Item, force bool) (items.Item, []items.Item, error) {
	var dups []items.Item
	for _, existing := range m.items {
		if strings.EqualFold(existing.Name, it.Name) && strings.EqualFold(existing.Category, it.Category) {
			dups = append(dups, existing)
		}
	}
	if len(dups) > 0 && !force {
		return items.Item{}, dups, nil
	}
	it.CreatedAt = time.Now()
	m.items = append(m.items, it)
	return it, dups, nil
}

func (m *itemStore) GetItemByID(_ context.Context, id string) (items.Item, error) {
	for _, it := range m.items {
		if it.ID == id {
			return it, nil
		}
	}
	return items.Item{}, apperr.NotFound("item", id)
}

func (m *itemStore) DeleteItemFromDB(_ context.Context, id string) error {
	for i, it := range m.items {
		if it.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("item", id)
}

func (m *itemStore) SearchItemsFromDB(_ context.Context, _ string, limit, offset int) ([]items.Item, int, error) {
	out := append([]items.Item{}, m.items...)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, len(m.items), nil
}

type fakeCart struct {
	lines map[string]int
}

func (f *fakeCart) snapshot(userID string) cart.Cart {
	var lines []cart.Line
	for id, q := range f.lines {
		lines = append(lines, cart.Line{ItemID: id, Quantity: q, UnitPrice: decimal.NewFromInt(10)})
	}
	return cart.NewCart(userID, lines)
}

func (f *fakeCart) GetCart(_ context.Context, userID string) (cart.Cart, error) {
	return f.snapshot(userID), nil
}

func (f *fakeCart) AddItem(_ context.Context, userID string, req cart.AddItemRequest) (cart.Cart, error) {
	f.lines[req.ItemID] += req.Quantity
	return f.snapshot(userID), nil
}

func (f *fakeCart) SetQuantity(_ context.Context, userID, itemID string, req cart.SetQuantityRequest) (cart.Cart, error) {
	f.lines[itemID] = req.Quantity
	return f.snapshot(userID), nil
}

func (f *fakeCart) RemoveItem(_ context.Context, userID, itemID string) (cart.Cart, error) {
	delete(f.lines, itemID)
	return f.snapshot(userID), nil
}

type fakePurchases struct {
	byKey map[string]purchases.PurchaseRequest
	err   error
}

func (f *fakePurchases) Checkout(_ context.Context, userID, key string) (purchases.CheckoutResult, error) {
	if f.err != nil {
		return purchases.CheckoutResult{}, f.err
	}
	if pr, ok := f.byKey[key]; ok && key != "" {
		return purchases.CheckoutResult{PurchaseRequest: pr, Replayed: true}, nil
	}
	pr := purchases.PurchaseRequest{ID: uuid.NewString(), RequestNumber: "PR-000001", UserID: userID,
		Status: purchases.StatusSubmitted, Total: decimal.NewFromInt(20), IdempotencyKey: key}
	f.byKey[key] = pr
	return purchases.CheckoutResult{PurchaseRequest: pr}, nil
}

func (f *fakePurchases) List(_ context.Context, userID string) ([]purchases.PurchaseRequest, error) {
	out := []purchases.PurchaseRequest{}
	for _, pr := range f.byKey {
		if pr.UserID == userID {
			out = append(out, pr)
		}
	}
	return out, nil
}

func (f *fakePurchases) Get(_ context.Context, userID, id string) (purchases.PurchaseRequest, error) {
	for _, pr := range f.byKey {
		if pr.ID == id && pr.UserID == userID {
			return pr, nil
		}
	}
	return purchases.PurchaseRequest{}, apperr.NotFound("purchase request", id)
}

type fakeAgent struct{}

func (fakeAgent) Chat(_ context.Context, userID string, req agent.ChatRequest) (agent.Conversation, error) {
	if strings.TrimSpace(req.Message) == "" {
		return agent.Conversation{}, apperr.Validation("invalid chat message", map[string]string{"message": "must not be blank"})
	}
	return agent.Conversation{ID: "c1", UserID: userID, Messages: []agent.Message{
		{Role: agent.RoleUser, Content: req.Message},
		{Role: agent.RoleAssistant, Content: "found it"},
	}}, nil
}

func (fakeAgent) Transcript(_ context.Context, userID, id string) (agent.Conversation, error) {
	return agent.Conversation{}, apperr.NotFound("conversation", id)
}

type fakeUsers struct{}

func (fakeUsers) Register(_ context.Context, nu users.NewUser) (users.User, error) {
	if nu.Email == "taken@example.com" {
		return users.User{}, apperr.Conflict("email already registered", nil)
	}
	return users.User{ID: "u-new", Name: nu.Name, Email: nu.Email, Role: auth.RoleUser}, nil
}

func (fakeUsers) Login(_ context.Context, cred users.Credentials) (users.Session, error) {
	return users.Session{}, apperr.Unauthorized("invalid email or password")
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

type testEnv struct {
	router    *gin.Engine
	keys      *auth.Keys
	items     *itemStore
	purchases *fakePurchases
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	keys, err := auth.NewKeys("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)

	env := &testEnv{keys: keys, items: &itemStore{}, purchases: &fakePurchases{byKey: map[string]purchases.PurchaseRequest{}}}
	r, err := API(Services{
		Users:     fakeUsers{},
		Items:     items.NewService(env.items),
		Cart:      &fakeCart{lines: map[string]int{}},
		Purchases: env.purchases,
		Agent:     fakeAgent{},
		DB:        fakePinger{},
	}, keys, nil)
	require.NoError(t, err)
	env.router = r
	return env
}

func (e *testEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, _, err := e.keys.GenerateToken(userID, role)
	require.NoError(t, err)
	return tok
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Kind    string          `json:"kind"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestCreateItemReturnsCreated(t *testing.T) {
	env := newEnv(t)
	tok := env.token(t, "u1", auth.RoleUser)

	w, body := env.do(t, http.MethodPost, "/items", tok, gin.H{"name": "Laptop", "category": "Electronics", "price": "999.99"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, body.OK)

	var it items.Item
	require.NoError(t, json.Unmarshal(body.Data, &it))
	assert.Equal(t, "/items/"+it.ID, w.Header().Get("Location"))
	assert.Equal(t, "u1", it.CreatedBy)
}

func TestCreateDuplicateItemConflictListsExistingID(t *testing.T) {
	env := newEnv(t)
	tok := env.token(t, "u1", auth.RoleUser)

	w, body := env.do(t, http.MethodPost, "/items", tok, gin.H{"name": "Laptop", "category": "Electronics", "price": 1200})
	require.Equal(t, http.StatusCreated, w.Code)
	var existing items.Item
	require.NoError(t, json.Unmarshal(body.Data, &existing))

	w, body = env.do(t, http.MethodPost, "/items", tok, gin.H{"name": "laptop", "category": "ELECTRONICS", "price": 1100})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, body.OK)
	require.NotNil(t, body.Error)
	assert.Equal(t, "conflict", body.Error.Kind)

	var details struct {
		Duplicates []items.Item `json:"duplicates"`
	}
	require.NoError(t, json.Unmarshal(body.Error.Details, &details))
	require.Len(t, details.Duplicates, 1)
	assert.Equal(t, existing.ID, details.Duplicates[0].ID)
	assert.Len(t, env.items.items, 1)
}

func TestCreateItemForceRequiresAdmin(t *testing.T) {
	env := newEnv(t)
	item := gin.H{"name": "Laptop", "category": "Electronics", "price": 1200}
	forced := gin.H{"name": "Laptop", "category": "Electronics", "price": 1200, "force": true}

	w, _ := env.do(t, http.MethodPost, "/items", env.token(t, "u1", auth.RoleUser), item)
	require.Equal(t, http.StatusCreated, w.Code)

	w, body := env.do(t, http.MethodPost, "/items", env.token(t, "u1", auth.RoleUser), forced)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", body.Error.Kind)

	w, _ = env.do(t, http.MethodPost, "/items", env.token(t, "a1", auth.RoleAdmin), forced)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, env.items.items, 2)
}

func TestCreateItemValidation(t *testing.T) {
	env := newEnv(t)
	tok := env.token(t, "u1", auth.RoleUser)

	for _, price := range []any{0, -5, "0.00", "0.004", "100000000000"} {
		w, body := env.do(t, http.MethodPost, "/items", tok, gin.H{"name": "Pen", "category": "Office", "price": price})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "validation", body.Error.Kind)
		assert.Contains(t, string(body.Error.Details), "price")
	}

	w, _ := env.do(t, http.MethodPost, "/items", tok, "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/items", "", gin.H{"name": "Pen", "category": "Office", "price": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetItemNotFound(t *testing.T) {
	env := newEnv(t)

	w, body := env.do(t, http.MethodGet, "/items/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", body.Error.Kind)

	w, _ = env.do(t, http.MethodGet, "/items/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteItemAdminOnly(t *testing.T) {
	env := newEnv(t)
	w, body := env.do(t, http.MethodPost, "/items", env.token(t, "u1", auth.RoleUser), gin.H{"name": "Pen", "category": "Office", "price": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	var it items.Item
	require.NoError(t, json.Unmarshal(body.Data, &it))

	w, _ = env.do(t, http.MethodDelete, "/items/"+it.ID, env.token(t, "u1", auth.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = env.do(t, http.MethodDelete, "/items/"+it.ID, env.token(t, "a1", auth.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodDelete, "/items/"+it.ID, env.token(t, "a1", auth.RoleAdmin), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchItemsQueryParams(t *testing.T) {
	env := newEnv(t)
	tok := env.token(t, "u1", auth.RoleUser)
	for _, n := range []string{"A", "B", "C"} {
		w, _ := env.do(t, http.MethodPost, "/items", tok, gin.H{"name": n, "category": "X", "price": 1})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w, body := env.do(t, http.MethodGet, "/items?limit=2&offset=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res items.SearchResult
	require.NoError(t, json.Unmarshal(body.Data, &res))
	assert.Equal(t, 3, res.Count)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "B", res.Items[0].Name)

	w, body = env.do(t, http.MethodGet, "/items?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, string(body.Error.Details), "limit")

	w, _ = env.do(t, http.MethodGet, "/items?limit=500", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCartRoutes(t *testing.T) {
	env := newEnv(t)
	tok := env.token(t, "u1", auth.RoleUser)
	itemID := uuid.NewString()

	w, _ := env.do(t, http.MethodGet, "/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	env.do(t, http.MethodPost, "/cart/items", tok, gin.H{"item_id": itemID, "quantity": 1})
	w, body := env.do(t, http.MethodPost, "/cart/items", tok, gin.H{"item_id": itemID, "quantity": 1})
	require.Equal(t, http.StatusOK, w.Code)
	var ct cart.Cart
	require.NoError(t, json.Unmarshal(body.Data, &ct))
	require.Len(t, ct.Lines, 1)
	assert.Equal(t, 2, ct.Lines[0].Quantity)

	w, body = env.do(t, http.MethodPut, "/cart/items/"+itemID, tok, gin.H{"quantity": 5})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(body.Data, &ct))
	assert.Equal(t, 5, ct.ItemCount)

	w, body = env.do(t, http.MethodDelete, "/cart/items/"+itemID, tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(body.Data, &ct))
	assert.Empty(t, ct.Lines)
}

func TestCheckoutCreatedThenReplayed(t *testing.T) {
	env := newEnv(t)
	tok := env.token(t, "u1", auth.RoleUser)

	w, body := env.do(t, http.MethodPost, "/checkout", tok, nil, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, w.Code)
	var first purchases.CheckoutResult
	require.NoError(t, json.Unmarshal(body.Data, &first))
	assert.False(t, first.Replayed)
	assert.Equal(t, "/purchase-requests/"+first.ID, w.Header().Get("Location"))

	w, body = env.do(t, http.MethodPost, "/checkout", tok, nil, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusOK, w.Code)
	var second purchases.CheckoutResult
	require.NoError(t, json.Unmarshal(body.Data, &second))
	assert.True(t, second.Replayed)
	assert.Equal(t, first.ID, second.ID)

	w, _ = env.do(t, http.MethodGet, "/purchase-requests/"+first.ID, tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = env.do(t, http.MethodGet, "/purchase-requests/"+first.ID, env.token(t, "u2", auth.RoleUser), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckoutEmptyCart(t *testing.T) {
	env := newEnv(t)
	env.purchases.err = apperr.Validation("cart is empty", nil)

	w, body := env.do(t, http.MethodPost, "/checkout", env.token(t, "u1", auth.RoleUser), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "cart is empty", body.Error.Message)
}

func TestStorageFailureIsOpaque(t *testing.T) {
	env := newEnv(t)
	env.purchases.err = apperr.Storage("checkout", errors.New("pq: connection reset by peer"))

	w, body := env.do(t, http.MethodPost, "/checkout", env.token(t, "u1", auth.RoleUser), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal", body.Error.Kind)
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestAgentRoutes(t *testing.T) {
	env := newEnv(t)
	tok := env.token(t, "u1", auth.RoleUser)

	w, body := env.do(t, http.MethodPost, "/agent/chat", tok, gin.H{"message": "laptops?"})
	require.Equal(t, http.StatusOK, w.Code)
	var conv agent.Conversation
	require.NoError(t, json.Unmarshal(body.Data, &conv))
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "laptops?", conv.Messages[0].Content)

	w, _ = env.do(t, http.MethodPost, "/agent/chat", tok, gin.H{"message": " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodGet, "/agent/conversations/"+uuid.NewString(), tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthRoutes(t *testing.T) {
	env := newEnv(t)

	w, _ := env.do(t, http.MethodPost, "/auth/register", "", gin.H{"name": "Ann", "email": "ann@example.com", "password": "password1"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w, _ = env.do(t, http.MethodPost, "/auth/register", "", gin.H{"name": "Ann", "email": "taken@example.com", "password": "password1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body := env.do(t, http.MethodPost, "/auth/login", "", gin.H{"email": "ann@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", body.Error.Kind)
}

func TestPingAndUnknownRoute(t *testing.T) {
	env := newEnv(t)
	w, body := env.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.OK)

	w, body = env.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", body.Error.Kind)

	keys, err := auth.NewKeys("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	r, err := API(Services{DB: fakePinger{err: errors.New("down")}}, keys, nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
