package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"atelier/api/internal/activity"
	"atelier/api/internal/billing"
	"atelier/api/internal/config"
	"atelier/api/internal/middleware"
	"atelier/api/internal/repository"
	"atelier/api/internal/service"
	"atelier/api/internal/webhook"
)

type HandlerSet struct {
	log           zerolog.Logger
	cfg           *config.AppConfig
	db            *pgxpool.Pool
	cache         *redis.Client
	authService   *service.AuthService
	billing       *service.BillingService
	gateway       *billing.StripeGateway
	processor     *webhook.Processor
	activity      *activity.Logger
	clients       *repository.ClientRepository
	projects      *repository.ProjectRepository
	payments      *repository.PaymentRepository
	subscriptions *repository.SubscriptionRepository
	activityLog   *repository.ActivityRepository
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, cfg *config.AppConfig) HandlerSet {
	adminRepo := repository.NewAdminRepository(db)
	clientRepo := repository.NewClientRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	gateway := billing.NewStripeGateway(cfg.Stripe, cfg.SiteBaseURL)
	auth := service.NewAuthService(adminRepo, cfg, log)
	billingSvc := service.NewBillingService(paymentRepo, subscriptionRepo, gateway, log)
	processor := webhook.NewProcessor(
		cfg.Stripe.WebhookSecret,
		clientRepo,
		paymentRepo,
		subscriptionRepo,
		webhook.NewRedisDeduper(cache, 0),
		log,
	)
	activityLogger := activity.NewLogger(cache, activityRepo, log)

	return HandlerSet{
		log:           log,
		cfg:           cfg,
		db:            db,
		cache:         cache,
		authService:   auth,
		billing:       billingSvc,
		gateway:       gateway,
		processor:     processor,
		activity:      activityLogger,
		clients:       clientRepo,
		projects:      projectRepo,
		payments:      paymentRepo,
		subscriptions: subscriptionRepo,
		activityLog:   activityRepo,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")

	// Authenticated by signature verification, not by session.
	v1.POST("/stripe/webhook", h.StripeWebhook)

	admin := v1.Group("/admin")
	admin.POST("/auth/login", h.Login)
	admin.POST("/auth/logout", h.Logout)

	protected := admin.Group("")
	protected.Use(middleware.Auth(h.authService))
	{
		protected.GET("/auth/me", h.Me)

		protected.GET("/clients", h.ListClients)
		protected.POST("/clients", h.CreateClient)
		protected.GET("/clients/:id", h.GetClient)
		protected.PATCH("/clients/:id", h.UpdateClient)
		protected.DELETE("/clients/:id", h.ArchiveClient)

		protected.GET("/projects", h.ListProjects)
		protected.POST("/projects", h.CreateProject)
		protected.PATCH("/projects/:id", h.UpdateProject)

		protected.GET("/payments", h.ListPayments)
		protected.GET("/payments/:id", h.GetPayment)
		protected.POST("/payments/:id/refund", h.RefundPayment)

		protected.GET("/subscriptions", h.ListSubscriptions)
		protected.POST("/subscriptions/:id/cancel", h.CancelSubscription)

		protected.POST("/checkout/sessions", h.CreateCheckoutSession)

		protected.GET("/accounts", h.ListAccounts)
		protected.POST("/accounts", h.CreateAccount)
		protected.POST("/accounts/:id/onboarding-link", h.CreateOnboardingLink)

		protected.GET("/activity", h.ListActivity)
	}
}
