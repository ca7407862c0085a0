package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/rl1809/marketplace/internal/adapter/auth"
	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/logging"
)

const requestIDHeader = "X-Request-ID"

type RouterConfig struct {
	ServiceName    string
	CORSOrigins    []string
	RequestTimeout time.Duration
}

func (h *HTTPHandler) Router(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(requestID(), h.observe(), timeout(cfg.RequestTimeout))

	r.GET("/health", h.HealthCheck)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	api := r.Group("/api")
	api.GET("/promotions", h.ListPromotedProducts)
	api.GET("/listings/:seller_id/:listing_id", h.GetProduct)
	api.GET("/sellers/:seller_id/rating", h.SellerRating)

	buyer := api.Group("", h.requireRole(domain.RoleBuyer))
	buyer.POST("/cart", h.AddToCart)
	buyer.PUT("/cart", h.UpdateCart)
	buyer.GET("/cart", h.GetCart)
	buyer.DELETE("/cart", h.EmptyCart)
	buyer.DELETE("/cart/:seller_id/:listing_id", h.RemoveFromCart)
	buyer.POST("/checkout", h.ConfirmCheckout)
	buyer.GET("/orders", h.ListOrders)
	buyer.POST("/reviews", h.AddReview)

	seller := api.Group("", h.requireRole(domain.RoleSeller))
	seller.POST("/promotions", h.PromoteProduct)
	seller.GET("/promotions/mine", h.ListSellerPromotions)
	seller.GET("/listings/mine", h.ListSellerProducts)

	staff := api.Group("", h.requireRole(domain.RoleSeller, domain.RoleHelpdesk))
	staff.POST("/listings", h.ListProduct)
	staff.PUT("/listings", h.EditProduct)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", idempotencyHeader, requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// requireRole rejects callers without a valid token or with a role outside
// roles. Both cases answer 401.
func (h *HTTPHandler) requireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := h.verifier.Verify(c.GetHeader("Authorization"))
		if err != nil || !p.Is(roles...) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Message:   domain.ErrUnauthorized.Message,
				ErrorType: domain.ErrUnauthorized.Code,
			})
			return
		}
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// observe records request metrics and writes one log line per request.
func (h *HTTPHandler) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if h.metrics != nil {
			h.metrics.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
			h.metrics.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
		}

		f := logging.Fields{
			RequestID:  c.GetString(requestIDHeader),
			Step:       "http",
			Status:     c.Request.Method + " " + route,
			HTTPStatus: status,
			DurationMS: logging.Since(start),
		}
		if p, ok := auth.PrincipalFrom(c.Request.Context()); ok {
			switch p.Role {
			case domain.RoleBuyer:
				f.BuyerID = p.ID
			case domain.RoleSeller:
				f.SellerID = p.ID
			}
		}
		if len(c.Errors) > 0 {
			f.Error = c.Errors.Last().Error()
		}
		logging.Log(f)
	}
}
