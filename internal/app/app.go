package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"servicemarket/internal/logger"
	"servicemarket/internal/metrics"
	"servicemarket/internal/middleware"
	"servicemarket/internal/modules/auth"
	"servicemarket/internal/modules/chat"
	"servicemarket/internal/modules/invoice"
	"servicemarket/internal/modules/notification"
	"servicemarket/internal/modules/order"
	"servicemarket/internal/orders"
	"servicemarket/internal/pkg/jwt"
	"servicemarket/internal/repository"
)

type Options struct {
	JWTSecret          string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	RefreshTokenPepper string
	Completion         orders.CompletionPolicy
	AuthRateLimit      float64
	AuthRateBurst      int
	CORSOrigins        []string
}

// App is the marketplace backend: repositories, services and the gin engine
// serving /api/v1, the realtime channel and the metrics endpoint.
type App struct {
	Engine *gin.Engine
	Tokens *jwt.Service
	Hub    *chat.Hub
	db     *gorm.DB
}

func New(db *gorm.DB, opts Options) *App {
	userRepo := repository.NewUserRepository(db)
	refreshRepo := repository.NewRefreshTokenRepository(db)
	serviceRepo := repository.NewServiceRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	chatRepo := repository.NewChatRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)

	tokens := jwt.New(opts.JWTSecret, opts.AccessTTL)
	hub := chat.NewHub()

	authHandler := auth.NewHandler(auth.NewService(userRepo, refreshRepo, tokens, opts.RefreshTokenPepper, opts.RefreshTTL))
	orderHandler := order.NewHandler(order.NewService(orderRepo, serviceRepo, notificationRepo, orders.NewPolicy(opts.Completion)))
	chatHandler := chat.NewHandler(chat.NewService(orderRepo, chatRepo, hub), hub, tokens)
	notificationHandler := notification.NewHandler(notification.NewService(notificationRepo, chatRepo))
	invoiceHandler := invoice.NewHandler(invoice.NewService(orderRepo, invoiceRepo))

	r := gin.New()
	r.Use(middleware.ErrorLogger(logger.WithComponent("http")))
	r.Use(middleware.CORS(opts.CORSOrigins...))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	chatHandler.RegisterRealtime(r)

	v1 := r.Group("/api/v1")
	{
		public := v1.Group("")
		public.Use(middleware.RateLimit(opts.AuthRateLimit, opts.AuthRateBurst))
		authHandler.RegisterPublicRoutes(public)

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(tokens))
		orderHandler.RegisterRoutes(protected)
		chatHandler.RegisterRoutes(protected)
		notificationHandler.RegisterRoutes(protected)
		invoiceHandler.RegisterRoutes(protected)
	}

	return &App{Engine: r, Tokens: tokens, Hub: hub, db: db}
}

// Close drops every realtime connection.
func (a *App) Close() {
	a.Hub.Close()
}
