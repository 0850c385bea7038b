package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"lendery/internal/database"
	"lendery/internal/logger"

	"github.com/gin-gonic/gin"
)

type profileRequest struct {
	Name  string `json:"name" binding:"required,max=60"`
	Phone string `json:"phone" binding:"max=30"`
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

func handleMe(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	user, err := database.GetUserByID(db, userID)
	if err != nil {
		respondError(c, err, "load account")
		return
	}

	c.JSON(http.StatusOK, user)
}

func handleUpdateProfile(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	var req profileRequest
	if !bindJSON(c, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)
	if len(name) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name must be at least 2 characters"})
		return
	}

	if err := database.UpdateProfile(db, userID, name, strings.TrimSpace(req.Phone)); err != nil {
		respondError(c, err, "update profile")
		return
	}

	user, err := database.GetUserByID(db, userID)
	if err != nil {
		respondError(c, err, "load account")
		return
	}

	c.JSON(http.StatusOK, user)
}

func handleChangePassword(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	var req passwordRequest
	if !bindJSON(c, &req) {
		return
	}

	if req.NewPassword != req.ConfirmPassword {
		c.JSON(http.StatusBadRequest, gin.H{"error": "New passwords do not match"})
		return
	}

	if len(req.NewPassword) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "New password must be at least 8 characters"})
		return
	}

	if err := database.VerifyPassword(db, userID, req.CurrentPassword); err != nil {
		if errors.Is(err, database.ErrInvalidCredentials) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Current password is incorrect"})
			return
		}
		respondError(c, err, "verify password")
		return
	}

	if err := database.UpdatePassword(db, userID, req.NewPassword); err != nil {
		respondError(c, err, "update password")
		return
	}

	logger.Info("Password changed", "user_id", userID)
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}

func handleOnboardingSeen(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	if err := database.MarkOnboardingSeen(db, userID); err != nil {
		respondError(c, err, "update onboarding")
		return
	}

	c.JSON(http.StatusOK, gin.H{"onboarding_seen": true})
}

func handleTokenMovements(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	user := currentUser(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	movements, err := database.GetTokenMovements(db, user.ID, limit)
	if err != nil {
		respondError(c, err, "load token history")
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": user.Tokens, "movements": movements})
}

func handleReferrals(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	user := currentUser(c)

	referrals, err := database.GetReferrals(db, user.ID)
	if err != nil {
		respondError(c, err, "load referrals")
		return
	}

	c.JSON(http.StatusOK, gin.H{"referral_code": user.ReferralCode, "referrals": referrals})
}

func handleUserStats(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	stats, err := database.GetUserStats(db, userID)
	if err != nil {
		respondError(c, err, "load statistics")
		return
	}

	c.JSON(http.StatusOK, stats)
}

func handleNotifications(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	notifications, err := database.GetNotifications(db, userID, c.Query("unread") == "true")
	if err != nil {
		respondError(c, err, "load notifications")
		return
	}

	c.JSON(http.StatusOK, notifications)
}

func handleReadNotification(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := database.MarkNotificationRead(db, userID, id); err != nil {
		respondError(c, err, "update notification")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func handleReadAllNotifications(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	count, err := database.MarkAllNotificationsRead(db, userID)
	if err != nil {
		respondError(c, err, "update notifications")
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": count})
}
