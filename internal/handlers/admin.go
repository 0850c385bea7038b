package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"lendery/internal/database"
	"lendery/internal/logger"

	"github.com/gin-gonic/gin"
)

type blockRequest struct {
	Blocked bool `json:"blocked"`
}

type adjustTokensRequest struct {
	Amount int    `json:"amount" binding:"required"`
	Reason string `json:"reason" binding:"required,max=200"`
}

func handleAdminStats(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	stats, err := database.GetAdminStats(db)
	if err != nil {
		respondError(c, err, "get admin stats")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":            stats,
		"live_subscribers": hubFrom(c).ClientCount(),
	})
}

func handleAdminUsers(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	users, err := database.GetAllUsersWithStats(db)
	if err != nil {
		respondError(c, err, "get users")
		return
	}

	c.JSON(http.StatusOK, users)
}

func handleToggleUserAdmin(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	user := currentUser(c)

	userID, ok := paramID(c, "id")
	if !ok {
		return
	}

	// Prevent admin from removing their own admin status
	if userID == user.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot modify your own admin status"})
		return
	}

	if err := database.ToggleUserAdmin(db, userID); err != nil {
		respondError(c, err, "toggle admin status")
		return
	}

	logger.Info("Admin status toggled", "user_id", userID, "admin_id", user.ID)
	c.JSON(http.StatusOK, gin.H{"message": "User admin status toggled successfully"})
}

func handleBlockUser(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	user := currentUser(c)

	userID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req blockRequest
	if !bindJSON(c, &req) {
		return
	}

	if userID == user.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot block yourself"})
		return
	}

	if err := database.SetUserBlocked(db, userID, req.Blocked); err != nil {
		respondError(c, err, "update user")
		return
	}

	logger.Info("User block updated", "user_id", userID, "blocked", req.Blocked, "admin_id", user.ID)
	c.JSON(http.StatusOK, gin.H{"id": userID, "blocked": req.Blocked})
}

// handleAdjustTokens corrects a balance by hand. The change is recorded in
// the ledger and the user is notified.
func handleAdjustTokens(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	admin := currentUser(c)

	userID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req adjustTokensRequest
	if !bindJSON(c, &req) {
		return
	}

	reason := strings.TrimSpace(req.Reason)
	balance, err := database.AdjustTokens(db, userID, req.Amount, reason)
	if err != nil {
		respondError(c, err, "adjust tokens")
		return
	}

	logger.Info("Tokens adjusted", "user_id", userID, "amount", req.Amount, "admin_id", admin.ID)

	body := fmt.Sprintf("Your balance was adjusted by %+d tokens: %s", req.Amount, reason)
	if err := database.Notify(db, userID, "Balance adjusted", body); err != nil {
		logger.Warn("Failed to create notification", "user_id", userID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "balance": balance})
}
