package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"lendery/internal/database"
	"lendery/internal/email"
	"lendery/internal/live"
	"lendery/internal/logger"
	"lendery/internal/models"

	"github.com/gin-gonic/gin"
)

type rentalRequest struct {
	ItemID int `json:"item_id" binding:"required,min=1"`
	Days   int `json:"days" binding:"required"`
}

type confirmReturnRequest struct {
	Code string `json:"code" binding:"required"`
}

type extendRequest struct {
	Days int `json:"days" binding:"required"`
}

// withoutReturnCode hides the code from renters; it is only read out by an
// admin at hand-over.
func withoutReturnCode(r *models.Rental) *models.Rental {
	view := *r
	view.ReturnCode = ""
	return &view
}

func rentalEvent(r *models.Rental) live.RentalEvent {
	event := live.RentalEvent{
		RentalID: r.ID,
		ItemID:   r.ItemID,
		UserName: r.UserName,
		Status:   string(r.Status),
	}
	if r.Item != nil {
		event.ItemName = r.Item.Name
	}
	return event
}

func handleRequestRental(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	user := currentUser(c)

	var req rentalRequest
	if !bindJSON(c, &req) {
		return
	}

	rental, err := database.RequestRental(db, user.ID, req.ItemID, req.Days, time.Now())
	if err != nil {
		respondError(c, err, "request rental")
		return
	}

	logger.Info("Rental requested", "user_id", user.ID, "rental_id", rental.ID, "item_id", rental.ItemID, "tokens", rental.TotalTokens)
	hubFrom(c).Broadcast(live.EventRentalRequested, rentalEvent(rental))

	c.JSON(http.StatusCreated, withoutReturnCode(rental))
}

func handleUserRentals(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	rentals, err := database.GetUserRentals(db, userID)
	if err != nil {
		respondError(c, err, "load rentals")
		return
	}

	views := make([]*models.Rental, 0, len(rentals))
	for i := range rentals {
		views = append(views, withoutReturnCode(&rentals[i]))
	}

	c.JSON(http.StatusOK, views)
}

func handleGetRental(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	rentalID, ok := paramID(c, "id")
	if !ok {
		return
	}

	rental, err := database.GetRental(db, rentalID)
	if err != nil {
		respondError(c, err, "load rental")
		return
	}

	if rental.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "rental not found"})
		return
	}

	c.JSON(http.StatusOK, withoutReturnCode(rental))
}

func handleRequestReturn(c *gin.Context) {
	startReturn(c, false)
}

func handleAdminRequestReturn(c *gin.Context) {
	startReturn(c, true)
}

// startReturn moves the rental to pending return and sends the fresh code to
// every admin. Only admins get the code back in the response.
func startReturn(c *gin.Context, asAdmin bool) {
	db := c.MustGet("db").(*sql.DB)
	user := currentUser(c)

	rentalID, ok := paramID(c, "id")
	if !ok {
		return
	}

	rental, err := database.RequestReturn(db, rentalID, user.ID, asAdmin)
	if err != nil {
		respondError(c, err, "request return")
		return
	}

	logger.Info("Return requested", "rental_id", rental.ID, "actor_id", user.ID)
	hubFrom(c).Broadcast(live.EventRentalReturnRequested, rentalEvent(rental))

	if service := emailServiceFrom(c); service.IsEnabled() {
		sent := *rental
		go sendReturnCode(service, db, &sent)
	}

	if asAdmin {
		c.JSON(http.StatusOK, rental)
		return
	}
	c.JSON(http.StatusOK, withoutReturnCode(rental))
}

func sendReturnCode(service *email.Service, db *sql.DB, rental *models.Rental) {
	admins, err := database.GetAllAdmins(db)
	if err != nil {
		logger.Warn("Failed to load admins for return code", "rental_id", rental.ID, "error", err)
		return
	}
	for i := range admins {
		if err := service.SendReturnCodeEmail(&admins[i], rental); err != nil {
			logger.Warn("Failed to send return code", "rental_id", rental.ID, "admin_id", admins[i].ID, "error", err)
		}
	}
}

func handleConfirmReturn(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	rentalID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req confirmReturnRequest
	if !bindJSON(c, &req) {
		return
	}

	rental, err := database.ConfirmReturn(db, rentalID, userID, req.Code, time.Now())
	if err != nil {
		respondError(c, err, "confirm return")
		return
	}

	logger.Info("Rental completed", "rental_id", rental.ID, "reward", rental.RewardGiven)
	hubFrom(c).Broadcast(live.EventRentalCompleted, rentalEvent(rental))

	body := "Thanks for returning the item."
	if rental.RewardGiven > 0 {
		body = fmt.Sprintf("Thanks for returning the item on time. %d tokens were added to your balance.", rental.RewardGiven)
	}
	if err := database.Notify(db, userID, "Return completed", body); err != nil {
		logger.Warn("Failed to create notification", "user_id", userID, "error", err)
	}

	c.JSON(http.StatusOK, withoutReturnCode(rental))
}

func handleExtendRental(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	rentalID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req extendRequest
	if !bindJSON(c, &req) {
		return
	}

	rental, err := database.ExtendRental(db, rentalID, userID, req.Days)
	if err != nil {
		respondError(c, err, "extend rental")
		return
	}

	logger.Info("Rental extended", "rental_id", rental.ID, "days", req.Days)
	hubFrom(c).Broadcast(live.EventRentalExtended, rentalEvent(rental))

	c.JSON(http.StatusOK, withoutReturnCode(rental))
}

// handleAdminRentals lists rentals, optionally filtered by a comma-separated
// status list.
func handleAdminRentals(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	var statuses []models.RentalStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := models.RentalStatus(strings.TrimSpace(s))
			if !status.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown rental status %q", status)})
				return
			}
			statuses = append(statuses, status)
		}
	}

	rentals, err := database.GetRentalsByStatus(db, statuses...)
	if err != nil {
		respondError(c, err, "load rentals")
		return
	}

	c.JSON(http.StatusOK, rentals)
}

func handleAdminGetRental(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	rentalID, ok := paramID(c, "id")
	if !ok {
		return
	}

	rental, err := database.GetRental(db, rentalID)
	if err != nil {
		respondError(c, err, "load rental")
		return
	}

	c.JSON(http.StatusOK, rental)
}

func handleApproveRental(c *gin.Context) {
	decideRental(c, true)
}

func handleRejectRental(c *gin.Context) {
	decideRental(c, false)
}

func decideRental(c *gin.Context, approve bool) {
	db := c.MustGet("db").(*sql.DB)

	rentalID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var (
		rental *models.Rental
		err    error
	)
	if approve {
		rental, err = database.ApproveRental(db, rentalID)
	} else {
		rental, err = database.RejectRental(db, rentalID)
	}
	if err != nil {
		respondError(c, err, "decide rental")
		return
	}

	event := live.EventRentalRejected
	title := "Rental not approved"
	body := fmt.Sprintf("Your request for %s was not approved. %d tokens were returned to your balance.", rentalItemName(rental), rental.TotalTokens)
	if approve {
		event = live.EventRentalApproved
		title = "Rental approved"
		body = fmt.Sprintf("Your rental of %s was approved. Please return it by %s.", rentalItemName(rental), rental.EndDate.Format("Jan 2"))
	}

	logger.Info("Rental decided", "rental_id", rental.ID, "status", rental.Status, "admin_id", c.GetInt("user_id"))
	hubFrom(c).Broadcast(event, rentalEvent(rental))

	if err := database.Notify(db, rental.UserID, title, body); err != nil {
		logger.Warn("Failed to create notification", "user_id", rental.UserID, "error", err)
	}

	if service := emailServiceFrom(c); service.IsEnabled() {
		decided := *rental
		go func() {
			renter, err := database.GetUserByID(db, decided.UserID)
			if err != nil {
				logger.Warn("Failed to load renter for email", "rental_id", decided.ID, "error", err)
				return
			}
			if err := service.SendRentalDecisionEmail(renter, &decided); err != nil {
				logger.Warn("Failed to send rental decision email", "rental_id", decided.ID, "error", err)
			}
		}()
	}

	c.JSON(http.StatusOK, rental)
}

func rentalItemName(r *models.Rental) string {
	if r.Item != nil && r.Item.Name != "" {
		return r.Item.Name
	}
	return fmt.Sprintf("item #%d", r.ItemID)
}
