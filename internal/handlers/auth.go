package handlers

import (
	"database/sql"
	"net/http"
	"regexp"
	"strings"

	"lendery/internal/config"
	"lendery/internal/database"
	"lendery/internal/logger"
	"lendery/internal/models"

	"github.com/gin-gonic/gin"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type registerRequest struct {
	Name            string `json:"name" binding:"required,max=60"`
	Email           string `json:"email" binding:"required"`
	Phone           string `json:"phone" binding:"max=30"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
	ReferralCode    string `json:"referral_code"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func handleRegister(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	cfg := c.MustGet("config").(*config.Config)

	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)

	errors := make(map[string]string)

	if len(name) < 2 {
		errors["name"] = "Name must be at least 2 characters"
	}

	if !emailRegex.MatchString(email) {
		errors["email"] = "Please enter a valid email address"
	}

	if len(req.Password) < 8 {
		errors["password"] = "Password must be at least 8 characters"
	}

	if req.Password != req.ConfirmPassword {
		errors["confirm_password"] = "Passwords do not match"
	}

	if len(errors) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid registration", "fields": errors})
		return
	}

	user, err := database.CreateUser(db, database.NewUser{
		Name:         name,
		Email:        email,
		Phone:        strings.TrimSpace(req.Phone),
		Password:     req.Password,
		ReferralCode: req.ReferralCode,
	})
	if err != nil {
		respondError(c, err, "create account")
		return
	}

	session, err := database.CreateSession(db, user.ID, cfg.SessionDuration)
	if err != nil {
		respondError(c, err, "create session")
		return
	}

	logger.Info("User registered", "user_id", user.ID, "email", user.Email, "referred", req.ReferralCode != "")

	if service := emailServiceFrom(c); service.IsEnabled() {
		newUser := *user
		go func() {
			if err := service.SendWelcomeEmail(&newUser); err != nil {
				logger.Warn("Failed to send welcome email", "user_id", newUser.ID, "error", err)
			}

			admins, err := database.GetAllAdmins(db)
			if err != nil {
				logger.Warn("Failed to load admins for notification", "error", err)
				return
			}
			for i := range admins {
				if admins[i].ID == newUser.ID {
					continue
				}
				if err := service.SendAdminNotificationEmail(&admins[i], &newUser); err != nil {
					logger.Warn("Failed to send admin notification", "admin_id", admins[i].ID, "error", err)
				}
			}
		}()
	}

	setSessionCookie(c, cfg, session)
	c.JSON(http.StatusCreated, gin.H{"user": user, "token": session.ID})
}

func handleLogin(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	cfg := c.MustGet("config").(*config.Config)

	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := database.AuthenticateUser(db, req.Email, req.Password)
	if err != nil {
		respondError(c, err, "log in")
		return
	}

	session, err := database.CreateSession(db, user.ID, cfg.SessionDuration)
	if err != nil {
		respondError(c, err, "create session")
		return
	}

	logger.Info("User logged in", "user_id", user.ID)

	setSessionCookie(c, cfg, session)
	c.JSON(http.StatusOK, gin.H{"user": user, "token": session.ID})
}

func handleLogout(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	cfg := c.MustGet("config").(*config.Config)

	if err := database.DeleteSession(db, c.GetString("session_id")); err != nil {
		logger.Warn("Failed to delete session", "user_id", c.GetInt("user_id"), "error", err)
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie("session_id", "", -1, "/", "", !cfg.IsDevelopment(), true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func setSessionCookie(c *gin.Context, cfg *config.Config, session *models.Session) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie("session_id", session.ID, int(cfg.SessionDuration.Seconds()), "/", "", !cfg.IsDevelopment(), true)
}
