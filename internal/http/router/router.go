package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"

	"github.com/ignatzorin/crm-backend/internal/config"
	"github.com/ignatzorin/crm-backend/internal/http/handlers"
	"github.com/ignatzorin/crm-backend/internal/http/middleware"
	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/service"
)

// Handlers набор HTTP обработчиков приложения.
type Handlers struct {
	Auth         *handlers.AuthHandler
	Contacts     *handlers.ContactHandler
	Activities   *handlers.ActivityHandler
	Pipeline     *handlers.PipelineHandler
	Deals        *handlers.DealHandler
	Proposals    *handlers.ProposalHandler
	Marketing    *handlers.MarketingHandler
	Appointments *handlers.AppointmentHandler
	Settings     *handlers.SettingsHandler
	Reports      *handlers.ReportHandler
	AI           *handlers.AIHandler
	Media        *handlers.MediaHandler
	WS           *handlers.WSHandler
	Health       *handlers.HealthHandler
	Seed         *handlers.SeedHandler
}

// SetupRouter собирает gin.Engine со всеми маршрутами.
// mediaRoot задаётся, когда файлы хранятся на локальном диске.
func SetupRouter(cfg *config.Config, h Handlers, tokenManager *service.TokenManager, rateStore limiter.Store, mediaRoot string) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)
	if mediaRoot != "" {
		r.StaticFS("/media", http.Dir(mediaRoot))
	}

	api := r.Group("/api")
	rateLimit := middleware.RateLimitMiddleware(rateStore, cfg.RateLimitLimit, cfg.RateLimitPeriod)
	auth := middleware.AuthMiddleware(tokenManager)
	managers := middleware.RequireRole(models.RoleAdmin, models.RoleManager)
	id := middleware.UUIDValidator("id")

	authGroup := api.Group("/auth")
	authGroup.Use(rateLimit)
	{
		authGroup.POST("/register", middleware.OptionalAuth(tokenManager), h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/logout", h.Auth.Logout)
		authGroup.GET("/me", auth, h.Auth.Me)
	}

	public := api.Group("/public")
	public.Use(rateLimit)
	{
		public.GET("/proposals/:token", h.Proposals.PublicView)
		public.POST("/proposals/:token/sign", h.Proposals.PublicSign)
		public.POST("/proposals/:token/reject", h.Proposals.PublicReject)
	}

	// WebSocket авторизуется токеном в query
	api.GET("/ws", h.WS.Handle)

	protected := api.Group("")
	protected.Use(auth)

	contacts := protected.Group("/contacts")
	{
		contacts.POST("", h.Contacts.Create)
		contacts.GET("", h.Contacts.List)
		contacts.GET("/search", h.Contacts.Search)
		contacts.GET("/:id", id, h.Contacts.Get)
		contacts.PUT("/:id", id, h.Contacts.Update)
		contacts.DELETE("/:id", id, h.Contacts.Delete)
		contacts.GET("/:id/timeline", id, h.Contacts.Timeline)
	}

	activities := protected.Group("/activities")
	{
		activities.POST("", h.Activities.Create)
		activities.GET("", h.Activities.List)
		activities.PUT("/:id/complete", id, h.Activities.Complete)
		activities.DELETE("/:id", id, h.Activities.Delete)
	}

	pipeline := protected.Group("/pipeline")
	{
		pipeline.GET("/stages", h.Pipeline.Stages)
		pipeline.GET("/board", h.Pipeline.Board)
		pipeline.POST("/stages", managers, h.Pipeline.CreateStage)
		pipeline.PUT("/stages/reorder", managers, h.Pipeline.Reorder)
		pipeline.PUT("/stages/:id", managers, id, h.Pipeline.UpdateStage)
		pipeline.DELETE("/stages/:id", managers, id, h.Pipeline.DeleteStage)
	}

	deals := protected.Group("/deals")
	{
		deals.POST("", h.Deals.Create)
		deals.GET("", h.Deals.List)
		deals.GET("/:id", id, h.Deals.Get)
		deals.PUT("/:id", id, h.Deals.Update)
		deals.DELETE("/:id", id, h.Deals.Delete)
		deals.PUT("/:id/stage", id, h.Deals.MoveStage)
	}

	proposals := protected.Group("/proposals")
	{
		proposals.POST("", h.Proposals.Create)
		proposals.GET("", h.Proposals.List)
		proposals.GET("/:id", id, h.Proposals.Get)
		proposals.PUT("/:id", id, h.Proposals.Update)
		proposals.DELETE("/:id", id, h.Proposals.Delete)
		proposals.PUT("/:id/status", id, h.Proposals.SetStatus)
		proposals.POST("/:id/send", id, h.Proposals.Send)
		proposals.GET("/:id/pdf", id, h.Proposals.PDF)
	}

	marketing := protected.Group("/marketing")
	{
		marketing.POST("/lists", h.Marketing.CreateList)
		marketing.GET("/lists", h.Marketing.Lists)
		marketing.GET("/lists/:id", id, h.Marketing.GetList)
		marketing.PUT("/lists/:id", id, h.Marketing.UpdateList)
		marketing.DELETE("/lists/:id", id, h.Marketing.DeleteList)
		marketing.GET("/lists/:id/members", id, h.Marketing.Members)
		marketing.POST("/lists/:id/members", id, h.Marketing.AddMembers)
		marketing.DELETE("/lists/:id/members/:contactId", middleware.UUIDValidator("id", "contactId"), h.Marketing.RemoveMember)

		marketing.POST("/campaigns", h.Marketing.CreateCampaign)
		marketing.GET("/campaigns", h.Marketing.Campaigns)
		marketing.GET("/campaigns/:id", id, h.Marketing.GetCampaign)
		marketing.PUT("/campaigns/:id", id, h.Marketing.UpdateCampaign)
		marketing.DELETE("/campaigns/:id", id, h.Marketing.DeleteCampaign)
		marketing.POST("/campaigns/:id/send", id, h.Marketing.Send)
		marketing.POST("/campaigns/:id/schedule", id, h.Marketing.Schedule)
		marketing.GET("/campaigns/:id/deliveries", id, h.Marketing.Deliveries)
	}

	appointments := protected.Group("/appointments")
	{
		appointments.POST("", h.Appointments.Create)
		appointments.GET("", h.Appointments.List)
		appointments.GET("/:id", id, h.Appointments.Get)
		appointments.PUT("/:id", id, h.Appointments.Update)
		appointments.DELETE("/:id", id, h.Appointments.Delete)
		appointments.PUT("/:id/status", id, h.Appointments.SetStatus)
	}

	settings := protected.Group("/settings")
	{
		settings.GET("/company", h.Settings.Company)
		settings.PUT("/company", managers, h.Settings.UpdateCompany)
		settings.POST("/company/logo", managers, h.Settings.UploadLogo)

		settings.GET("/fields/:entity", h.Settings.Fields)
		settings.POST("/fields/:entity", managers, h.Settings.CreateField)
		settings.PUT("/fields/:entity/reorder", managers, h.Settings.ReorderFields)
		settings.PUT("/fields/:entity/:id", managers, h.Settings.UpdateField)
		settings.DELETE("/fields/:entity/:id", managers, h.Settings.DeleteField)
	}

	protected.GET("/dashboard", h.Reports.Dashboard)
	protected.POST("/dashboard/cache/invalidate", h.Reports.InvalidateDashboard)
	protected.GET("/reports/pipeline", h.Reports.Pipeline)

	ai := protected.Group("/ai")
	{
		ai.POST("/chat", h.AI.Chat)
		ai.POST("/chat/stream", h.AI.ChatStream)
		ai.GET("/chat/history", h.AI.History)
		ai.DELETE("/chat/history", h.AI.ClearHistory)
		ai.POST("/report", h.Reports.AIReport)
		ai.POST("/proposals/draft", h.AI.DraftProposal)
		ai.POST("/campaigns/draft", h.AI.DraftCampaign)
	}

	media := protected.Group("/media")
	{
		media.POST("", h.Media.Upload)
		media.GET("", h.Media.List)
		media.DELETE("/:id", id, h.Media.Delete)
	}

	if h.Seed != nil {
		protected.POST("/admin/seed", middleware.RequireRole(models.RoleAdmin), h.Seed.Seed)
	}

	return r
}
