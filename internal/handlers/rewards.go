package handlers

import (
	"database/sql"
	"net/http"
	"strings"

	"lendery/internal/database"
	"lendery/internal/logger"
	"lendery/internal/models"

	"github.com/gin-gonic/gin"
)

type reviewRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment" binding:"max=1000"`
}

type missionRequest struct {
	Title       string             `json:"title" binding:"required,max=100"`
	Description string             `json:"description" binding:"max=500"`
	Kind        models.MissionKind `json:"kind" binding:"required"`
	Target      int                `json:"target" binding:"required"`
	Reward      int                `json:"reward" binding:"required"`
	Active      bool               `json:"active"`
}

func (r missionRequest) toMission() models.Mission {
	return models.Mission{
		Title:       strings.TrimSpace(r.Title),
		Description: strings.TrimSpace(r.Description),
		Kind:        r.Kind,
		Target:      r.Target,
		Reward:      r.Reward,
		Active:      r.Active,
	}
}

func handleItemReviews(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	itemID, ok := paramID(c, "id")
	if !ok {
		return
	}

	reviews, err := database.GetItemReviews(db, itemID)
	if err != nil {
		respondError(c, err, "load reviews")
		return
	}

	c.JSON(http.StatusOK, reviews)
}

func handleReviewEligibility(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	itemID, ok := paramID(c, "item_id")
	if !ok {
		return
	}

	slots, err := database.ReviewEligibility(db, userID, itemID)
	if err != nil {
		respondError(c, err, "check review eligibility")
		return
	}

	c.JSON(http.StatusOK, gin.H{"eligible": slots > 0, "remaining": slots})
}

// handleCreateReview needs a completed rental of the item that has no review
// yet, and pays the review reward.
func handleCreateReview(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	itemID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req reviewRequest
	if !bindJSON(c, &req) {
		return
	}

	review, err := database.CreateReview(db, userID, itemID, req.Rating, req.Comment)
	if err != nil {
		respondError(c, err, "create review")
		return
	}

	logger.Info("Review created", "user_id", userID, "item_id", itemID, "rating", review.Rating)
	c.JSON(http.StatusCreated, review)
}

func handleUserMissions(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	missions, err := database.GetMissions(db, userID)
	if err != nil {
		respondError(c, err, "load missions")
		return
	}

	c.JSON(http.StatusOK, missions)
}

func handleClaimMission(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	missionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	balance, err := database.ClaimMission(db, userID, missionID)
	if err != nil {
		respondError(c, err, "claim mission")
		return
	}

	logger.Info("Mission claimed", "user_id", userID, "mission_id", missionID)
	c.JSON(http.StatusOK, gin.H{"mission_id": missionID, "balance": balance})
}

func handleAdminMissions(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	missions, err := database.GetMissions(db, 0)
	if err != nil {
		respondError(c, err, "load missions")
		return
	}

	c.JSON(http.StatusOK, missions)
}

func handleCreateMission(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	var req missionRequest
	if !bindJSON(c, &req) {
		return
	}

	mission, err := database.CreateMission(db, req.toMission())
	if err != nil {
		respondError(c, err, "create mission")
		return
	}

	c.JSON(http.StatusCreated, mission)
}

func handleUpdateMission(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	missionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req missionRequest
	if !bindJSON(c, &req) {
		return
	}

	mission := req.toMission()
	if err := database.UpdateMission(db, missionID, mission); err != nil {
		respondError(c, err, "update mission")
		return
	}

	mission.ID = missionID
	c.JSON(http.StatusOK, mission)
}

func handleDeleteMission(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	missionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := database.DeleteMission(db, missionID); err != nil {
		respondError(c, err, "delete mission")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Mission deleted successfully"})
}
