package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/flicky/storehub-api/internal/middleware"
	"github.com/flicky/storehub-api/internal/service"
)

type RouterDeps struct {
	ServiceName string
	Logger      *slog.Logger
	Redis       *redis.Client
	// Metrics serves /metrics when set.
	Metrics http.Handler

	Auth     *service.AuthService
	Products *service.ProductService
	Carts    *service.CartService
	Orders   *service.OrderService
	Reviews  *service.ReviewService
	Health   *HealthHandler

	CookieSecure    bool
	RateLimitCount  int64
	RateLimitPeriod time.Duration
}

func NewRouter(d RouterDeps) *gin.Engine {
	useJSONFieldNames()

	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	authH := NewAuthHandler(d.Auth, d.CookieSecure, log)
	productH := NewProductHandler(d.Products, log)
	cartH := NewCartHandler(d.Carts, log)
	orderH := NewOrderHandler(d.Orders, log)
	reviewH := NewReviewHandler(d.Reviews, log)

	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(d.ServiceName), gzip.Gzip(gzip.DefaultCompression))

	if d.Health != nil {
		router.GET("/healthz", d.Health.Healthz)
		router.GET("/readyz", d.Health.Readyz)
	}
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics))
	}

	v1 := router.Group("/api/v1", middleware.Authenticate(d.Auth))
	{
		auth := v1.Group("/auth")
		auth.POST("/register",
			middleware.RateLimiter(d.Redis, "register", d.RateLimitCount, d.RateLimitPeriod, log), authH.Register)
		auth.POST("/login",
			middleware.RateLimiter(d.Redis, "login", d.RateLimitCount, d.RateLimitPeriod, log), authH.Login)
		auth.POST("/logout", authH.Logout)
		auth.GET("/me", middleware.RequireAuth(), authH.Me)

		products := v1.Group("/products")
		products.GET("", productH.List)
		products.GET("/:id", productH.GetByID)
		products.GET("/:id/reviews", reviewH.ListForProduct)

		adminProducts := products.Group("", middleware.RequireAdmin())
		adminProducts.POST("", productH.Create)
		adminProducts.PUT("/:id", productH.Update)
		adminProducts.DELETE("/:id", productH.Delete)

		cart := v1.Group("/cart", middleware.RequireAuth())
		cart.GET("", cartH.GetCart)
		cart.POST("", cartH.AddItem)
		cart.DELETE("", cartH.Clear)
		cart.PUT("/:id", cartH.UpdateItem)
		cart.DELETE("/:id", cartH.DeleteItem)

		orders := v1.Group("/orders", middleware.RequireAuth())
		orders.POST("", orderH.Checkout)
		orders.GET("", orderH.ListOrders)
		orders.GET("/:id", orderH.GetOrder)
		orders.PUT("/:id", middleware.RequireAdmin(), orderH.UpdateStatus)

		v1.POST("/reviews", middleware.RequireAuth(), reviewH.Submit)

		admin := v1.Group("/admin", middleware.RequireAdmin())
		admin.GET("/products", productH.ListAll)
		admin.GET("/orders", orderH.ListAll)
	}

	return router
}
