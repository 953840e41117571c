package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"procureflow/internal/agent"
	"procureflow/internal/apperr"
	"procureflow/internal/auth"
	"procureflow/internal/cart"
	"procureflow/internal/items"
	"procureflow/internal/purchases"
	"procureflow/internal/users"
	"procureflow/middleware"
	"procureflow/pkg/respond"

	"github.com/gin-gonic/gin"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 16 * 1024

type UserService interface {
	Register(ctx context.Context, nu users.NewUser) (users.User, error)
	Login(ctx context.Context, cred users.Credentials) (users.Session, error)
}

type ItemService interface {
	CreateItem(ctx context.Context, ni items.NewItem, createdBy string, allowForce bool) (items.Item, error)
	SearchItems(ctx context.Context, keyword string, limit, offset int) (items.SearchResult, error)
	GetItem(ctx context.Context, id string) (items.Item, error)
	DeleteItem(ctx context.Context, id string) error
}

type CartService interface {
	GetCart(ctx context.Context, userID string) (cart.Cart, error)
	AddItem(ctx context.Context, userID string, req cart.AddItemRequest) (cart.Cart, error)
	SetQuantity(ctx context.Context, userID, itemID string, req cart.SetQuantityRequest) (cart.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID string) (cart.Cart, error)
}

type PurchaseService interface {
	Checkout(ctx context.Context, userID, idempotencyKey string) (purchases.CheckoutResult, error)
	List(ctx context.Context, userID string) ([]purchases.PurchaseRequest, error)
	Get(ctx context.Context, userID, id string) (purchases.PurchaseRequest, error)
}

type AgentService interface {
	Chat(ctx context.Context, userID string, req agent.ChatRequest) (agent.Conversation, error)
	Transcript(ctx context.Context, userID, id string) (agent.Conversation, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// Services are the dependencies of the HTTP API. DB may be nil, in which case /ping only
// reports that the process is up.
type Services struct {
	Users     UserService
	Items     ItemService
	Cart      CartService
	Purchases PurchaseService
	Agent     AgentService
	DB        Pinger
}

type Handler struct {
	s Services
}

func NewHandler(s Services) *Handler {
	return &Handler{s: s}
}

// API builds the gin engine. limiter may be nil to disable rate limiting.
func API(s Services, a *auth.Keys, limiter *middleware.RateLimiter) (*gin.Engine, error) {
	m, err := middleware.NewMid(a)
	if err != nil {
		return nil, err
	}
	h := NewHandler(s)

	r := gin.New()
	r.Use(middleware.Logger(), gin.Recovery())
	if limiter != nil {
		r.Use(limiter.Middleware())
	}
	r.NoRoute(func(c *gin.Context) {
		respond.Abort(c, apperr.KindNotFound, "route not found")
	})

	r.GET("/ping", h.Ping)

	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)

	r.GET("/items", h.SearchItems)
	r.GET("/items/:id", h.GetItem)

	v1 := r.Group("/")
	{
		v1.Use(m.Authentication())
		v1.POST("/items", m.Authorize(h.CreateItem, auth.RoleUser, auth.RoleAdmin))
		v1.DELETE("/items/:id", m.Authorize(h.DeleteItem, auth.RoleAdmin))

		v1.GET("/cart", m.Authorize(h.GetCart, auth.RoleUser, auth.RoleAdmin))
		v1.POST("/cart/items", m.Authorize(h.AddToCart, auth.RoleUser, auth.RoleAdmin))
		v1.PUT("/cart/items/:itemId", m.Authorize(h.SetCartQuantity, auth.RoleUser, auth.RoleAdmin))
		v1.DELETE("/cart/items/:itemId", m.Authorize(h.RemoveFromCart, auth.RoleUser, auth.RoleAdmin))

		v1.POST("/checkout", m.Authorize(h.Checkout, auth.RoleUser, auth.RoleAdmin))
		v1.GET("/purchase-requests", m.Authorize(h.ListPurchaseRequests, auth.RoleUser, auth.RoleAdmin))
		v1.GET("/purchase-requests/:id", m.Authorize(h.GetPurchaseRequest, auth.RoleUser, auth.RoleAdmin))

		v1.POST("/agent/chat", m.Authorize(h.Chat, auth.RoleUser, auth.RoleAdmin))
		v1.GET("/agent/conversations/:id", m.Authorize(h.GetConversation, auth.RoleUser, auth.RoleAdmin))
	}

	return r, nil
}

// Ping reports liveness and, when a database is wired, its reachability.
func (h *Handler) Ping(c *gin.Context) {
	if h.s.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.s.DB.PingContext(ctx); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, respond.Body{Error: &respond.ErrorBody{
				Kind: apperr.KindInternal, Message: "database unreachable",
			}})
			return
		}
	}
	respond.OK(c, http.StatusOK, gin.H{"status": "ok"})
}

// bindJSON decodes the request body into dst. Decoding failures are validation errors.
func bindJSON(c *gin.Context, dst any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperr.Validation("request body too large", nil)
	}
	return apperr.Validation("malformed JSON body", nil)
}

// claimsOf returns the caller's claims or aborts with 401.
func claimsOf(c *gin.Context) (auth.Claims, bool) {
	claims, ok := auth.ClaimsFrom(c.Request.Context())
	if !ok {
		respond.Error(c, apperr.Unauthorized("authentication required"))
		return auth.Claims{}, false
	}
	return claims, true
}
