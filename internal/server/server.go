package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"liyaqa/internal/auth"
	"liyaqa/internal/booking"
	"liyaqa/internal/config"
	"liyaqa/internal/email"
	"liyaqa/internal/ledger"
	"liyaqa/internal/member"
	"liyaqa/internal/schedule"
	"liyaqa/internal/subscription"
	"liyaqa/internal/user"
)

type Server struct {
	router *gin.Engine
	http   *http.Server
	db     *sqlx.DB
	config *config.Config
}

func New(db *sqlx.DB, cfg *config.Config, emailService *email.Service, bookingService booking.Service) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(corsMiddleware())

	userHandler := user.NewHandler(db, cfg.JWTSecret)
	memberHandler := member.NewHandler(db)
	subscriptionHandler := subscription.NewHandler(db)
	ledgerHandler := ledger.NewHandler(db)
	scheduleHandler := schedule.NewHandler(db)
	bookingHandler := booking.NewHandler(bookingService)

	router.GET("/health", Health(db))
	router.GET("/metrics", Metrics())
	router.GET("/test-email", TestEmail(emailService))

	public := router.Group("/auth")
	public.Use(RateLimitMiddleware(5, 10))
	{
		public.POST("/register", userHandler.Register)
		public.POST("/login", userHandler.Login)
		public.POST("/refresh", userHandler.RefreshToken)
	}

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", userHandler.GetMe)

		protected.GET("/classes", scheduleHandler.ListClasses)
		protected.GET("/sessions", scheduleHandler.ListUpcomingSessions)
		protected.GET("/sessions/:sessionID", scheduleHandler.GetSession)
		protected.GET("/sessions/:sessionID/booking-options", bookingHandler.Preview)

		protected.POST("/bookings", bookingHandler.Book)
		protected.GET("/bookings", bookingHandler.ListMyBookings)
		protected.DELETE("/bookings/:bookingID", bookingHandler.Cancel)

		protected.POST("/waitlist", bookingHandler.JoinWaitlist)
		protected.DELETE("/waitlist/:sessionID", bookingHandler.LeaveWaitlist)

		protected.POST("/subscriptions", subscriptionHandler.Purchase)
		protected.GET("/subscriptions/:subscriptionID", subscriptionHandler.GetSubscription)
		protected.POST("/subscriptions/:subscriptionID/freeze", subscriptionHandler.Freeze)
		protected.POST("/subscriptions/:subscriptionID/unfreeze", subscriptionHandler.Unfreeze)
		protected.POST("/subscriptions/:subscriptionID/cancel", subscriptionHandler.Cancel)
	}

	adminMiddleware := auth.RequireRole("admin")
	admin := router.Group("/admin")
	admin.Use(authMiddleware, adminMiddleware)
	{
		admin.POST("/members", memberHandler.CreateMember)
		admin.GET("/members", memberHandler.ListMembers)
		admin.GET("/members/:memberID", memberHandler.GetMember)
		admin.GET("/members/:memberID/subscriptions", subscriptionHandler.ListMemberSubscriptions)

		admin.POST("/members/:memberID/wallet/topup", ledgerHandler.TopUpWallet)
		admin.GET("/members/:memberID/wallet", ledgerHandler.GetWallet)
		admin.GET("/members/:memberID/wallet/transactions", ledgerHandler.ListWalletTransactions)
		admin.GET("/members/:memberID/wallet/reconciliation", ledgerHandler.ReconcileWallet)
		admin.POST("/packs", ledgerHandler.GrantPack)
		admin.GET("/members/:memberID/packs", ledgerHandler.ListPacks)

		admin.POST("/classes", scheduleHandler.CreateClass)
		admin.POST("/sessions", scheduleHandler.CreateSession)
		admin.POST("/sessions/:sessionID/cancel", scheduleHandler.CancelSession)

		admin.POST("/subscriptions/:subscriptionID/activate", subscriptionHandler.Activate)
		admin.POST("/subscriptions/:subscriptionID/renew", subscriptionHandler.Renew)
		admin.POST("/bookings/:bookingID/checkin", bookingHandler.CheckIn)
		admin.GET("/reports/bookings", bookingHandler.ClassReport)
	}

	return &Server{
		router: router,
		db:     db,
		config: cfg,
	}
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{
		Addr:              ":" + port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
