package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"lendery/internal/database"
	"lendery/internal/live"
	"lendery/internal/logger"
	"lendery/internal/models"

	"github.com/gin-gonic/gin"
)

type ticketRequest struct {
	Subject string `json:"subject" binding:"required,max=200"`
	Message string `json:"message" binding:"required,max=5000"`
}

type ticketStatusRequest struct {
	Status models.TicketStatus `json:"status" binding:"required"`
	Note   string              `json:"note" binding:"max=2000"`
}

func handleCreateTicket(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	var req ticketRequest
	if !bindJSON(c, &req) {
		return
	}

	ticket, err := database.CreateTicket(db, userID, req.Subject, req.Message)
	if err != nil {
		respondError(c, err, "create ticket")
		return
	}

	logger.Info("Support ticket created", "user_id", userID, "ticket_id", ticket.ID)
	hubFrom(c).Broadcast(live.EventTicketCreated, live.TicketEvent{
		TicketID: ticket.ID,
		UserID:   userID,
		Subject:  ticket.Subject,
	})

	c.JSON(http.StatusCreated, ticket)
}

func handleUserTickets(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	tickets, err := database.GetUserTickets(db, userID)
	if err != nil {
		respondError(c, err, "load tickets")
		return
	}

	c.JSON(http.StatusOK, tickets)
}

func handleGetTicket(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	ticketID, ok := paramID(c, "id")
	if !ok {
		return
	}

	ticket, err := database.GetTicket(db, ticketID)
	if err != nil {
		respondError(c, err, "load ticket")
		return
	}

	if ticket.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		return
	}

	c.JSON(http.StatusOK, ticket)
}

func handleAdminTickets(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	tickets, err := database.GetAllTickets(db, models.TicketStatus(c.Query("status")))
	if err != nil {
		respondError(c, err, "load tickets")
		return
	}

	c.JSON(http.StatusOK, tickets)
}

func handleSetTicketStatus(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	ticketID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req ticketStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	ticket, err := database.SetTicketStatus(db, ticketID, req.Status, req.Note, time.Now())
	if err != nil {
		respondError(c, err, "update ticket")
		return
	}

	body := fmt.Sprintf("Your ticket %q is now %s.", ticket.Subject, ticketStatusLabel(ticket.Status))
	if ticket.AdminNote != "" {
		body += " " + ticket.AdminNote
	}
	if err := database.Notify(db, ticket.UserID, "Support ticket updated", body); err != nil {
		logger.Warn("Failed to create notification", "user_id", ticket.UserID, "error", err)
	}

	c.JSON(http.StatusOK, ticket)
}

func ticketStatusLabel(s models.TicketStatus) string {
	switch s {
	case models.TicketInProgress:
		return "in progress"
	case models.TicketClosed:
		return "closed"
	}
	return "open"
}
