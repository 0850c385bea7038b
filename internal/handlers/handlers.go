package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"lendery/internal/config"
	"lendery/internal/database"
	"lendery/internal/email"
	"lendery/internal/live"
	"lendery/internal/logger"
	"lendery/internal/middleware"
	"lendery/internal/models"
	"lendery/internal/rules"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, db *sql.DB, cfg *config.Config, emailService *email.Service, hub *live.Hub) {
	r.Use(middleware.LogRequests())
	r.Use(middleware.IPBlocker(cfg))
	r.Use(middleware.Track404AndBlock(cfg))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(cfg))
	r.Use(middleware.RateLimit(cfg))
	r.Use(middleware.AddDBContext(db))
	r.Use(addServicesContext(cfg, emailService, hub))

	r.GET("/healthz", handleHealth)

	api := r.Group("/api")
	{
		api.POST("/register", middleware.AuthRateLimit(cfg), handleRegister)
		api.POST("/login", middleware.AuthRateLimit(cfg), handleLogin)
		api.GET("/categories", handleListCategories)
		api.GET("/items", handleListItems)
		api.GET("/items/:id", handleGetItem)
		api.GET("/items/:id/reviews", handleItemReviews)
		api.GET("/packages", handleListPackages)
	}

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(db, cfg))
	{
		protected.POST("/logout", handleLogout)
		protected.GET("/me", handleMe)
		protected.PUT("/me", handleUpdateProfile)
		protected.POST("/me/password", handleChangePassword)
		protected.POST("/me/onboarding", handleOnboardingSeen)
		protected.GET("/me/tokens", handleTokenMovements)
		protected.GET("/me/referrals", handleReferrals)
		protected.GET("/me/stats", handleUserStats)

		protected.POST("/rentals", handleRequestRental)
		protected.GET("/rentals", handleUserRentals)
		protected.GET("/rentals/:id", handleGetRental)
		protected.POST("/rentals/:id/return", handleRequestReturn)
		protected.POST("/rentals/:id/return/confirm", handleConfirmReturn)
		protected.POST("/rentals/:id/extend", handleExtendRental)

		protected.POST("/purchases", handleCreatePurchase)
		protected.GET("/purchases", handleUserPurchases)

		protected.POST("/items/:id/reviews", handleCreateReview)
		protected.GET("/reviews/eligibility/:item_id", handleReviewEligibility)

		protected.GET("/missions", handleUserMissions)
		protected.POST("/missions/:id/claim", handleClaimMission)

		protected.GET("/notifications", handleNotifications)
		protected.POST("/notifications/read-all", handleReadAllNotifications)
		protected.POST("/notifications/:id/read", handleReadNotification)

		protected.POST("/tickets", handleCreateTicket)
		protected.GET("/tickets", handleUserTickets)
		protected.GET("/tickets/:id", handleGetTicket)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AdminRequired(db, cfg))
	{
		admin.GET("/stats", handleAdminStats)
		admin.GET("/users", handleAdminUsers)
		admin.POST("/users/:id/toggle-admin", handleToggleUserAdmin)
		admin.POST("/users/:id/block", handleBlockUser)
		admin.POST("/users/:id/tokens", handleAdjustTokens)

		admin.POST("/categories", handleCreateCategory)
		admin.PUT("/categories/:id", handleUpdateCategory)
		admin.DELETE("/categories/:id", handleDeleteCategory)
		admin.GET("/items/export", handleExportCatalog)
		admin.POST("/items/import", handleImportCatalog)
		admin.POST("/items", handleCreateItem)
		admin.PUT("/items/:id", handleUpdateItem)
		admin.DELETE("/items/:id", handleDeleteItem)

		admin.GET("/rentals", handleAdminRentals)
		admin.GET("/rentals/:id", handleAdminGetRental)
		admin.POST("/rentals/:id/approve", handleApproveRental)
		admin.POST("/rentals/:id/reject", handleRejectRental)
		admin.POST("/rentals/:id/return", handleAdminRequestReturn)

		admin.GET("/packages", handleAdminPackages)
		admin.POST("/packages", handleCreatePackage)
		admin.PUT("/packages/:id", handleUpdatePackage)
		admin.POST("/packages/:id/active", handleSetPackageActive)

		admin.GET("/transactions", handleAdminTransactions)
		admin.GET("/transactions/export", handleExportTransactions)
		admin.POST("/transactions/:id/approve", handleApproveTransaction)
		admin.POST("/transactions/:id/reject", handleRejectTransaction)

		admin.GET("/missions", handleAdminMissions)
		admin.POST("/missions", handleCreateMission)
		admin.PUT("/missions/:id", handleUpdateMission)
		admin.DELETE("/missions/:id", handleDeleteMission)

		admin.GET("/tickets", handleAdminTickets)
		admin.POST("/tickets/:id/status", handleSetTicketStatus)

		admin.GET("/live", live.Handler(hub, cfg.AllowedOrigins))
	}
}

func addServicesContext(cfg *config.Config, emailService *email.Service, hub *live.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("config", cfg)
		c.Set("email_service", emailService)
		c.Set("live_hub", hub)
		c.Next()
	}
}

func handleHealth(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	if err := db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet("user").(*models.User)
}

func emailServiceFrom(c *gin.Context) *email.Service {
	svc, _ := c.Get("email_service")
	service, _ := svc.(*email.Service)
	return service
}

func hubFrom(c *gin.Context) *live.Hub {
	h, _ := c.Get("live_hub")
	hub, _ := h.(*live.Hub)
	return hub
}

// paramID parses a numeric path parameter, answering 400 when it is not one.
func paramID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return false
	}
	return true
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, database.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrInvalidCredentials),
		errors.Is(err, database.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, database.ErrNotOwner),
		errors.Is(err, database.ErrUserBlocked):
		return http.StatusForbidden
	case errors.Is(err, database.ErrInsufficientTokens),
		errors.Is(err, database.ErrItemUnavailable),
		errors.Is(err, database.ErrInvalidTransition),
		errors.Is(err, database.ErrAlreadyProcessed),
		errors.Is(err, database.ErrAlreadyClaimed),
		errors.Is(err, database.ErrDuplicate),
		errors.Is(err, database.ErrInUse):
		return http.StatusConflict
	case errors.Is(err, database.ErrReturnCodeMismatch),
		errors.Is(err, database.ErrInvalidInput),
		errors.Is(err, database.ErrMissingProof),
		errors.Is(err, database.ErrInactivePackage),
		errors.Is(err, database.ErrInvalidReferral),
		errors.Is(err, database.ErrNotEligible),
		errors.Is(err, rules.ErrInvalidDays),
		errors.Is(err, rules.ErrInvalidPrice),
		errors.Is(err, rules.ErrInvalidRating):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError maps domain errors to their status. Unexpected errors are
// logged and answered with a generic message.
func respondError(c *gin.Context, err error, action string) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("Failed to "+action, "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "Failed to " + action})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
