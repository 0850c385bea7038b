package handlers

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lendery/internal/database"
	"lendery/internal/live"
	"lendery/internal/logger"
	"lendery/internal/models"

	"github.com/gin-gonic/gin"
)

type packageRequest struct {
	Name        string  `json:"name" binding:"required,max=100"`
	Tokens      int     `json:"tokens" binding:"required,min=1"`
	BonusTokens int     `json:"bonus_tokens" binding:"min=0"`
	Price       float64 `json:"price" binding:"required,gt=0"`
	Active      bool    `json:"active"`
}

type packageActiveRequest struct {
	Active bool `json:"active"`
}

type purchaseRequest struct {
	PackageID     int     `json:"package_id" binding:"required,min=1"`
	AmountPaid    float64 `json:"amount_paid" binding:"min=0"`
	BankReference string  `json:"bank_reference" binding:"max=100"`
	ReceiptURL    string  `json:"receipt_url" binding:"omitempty,url,max=500"`
}

func (r packageRequest) toPackage() models.TokenPackage {
	return models.TokenPackage{
		Name:        strings.TrimSpace(r.Name),
		Tokens:      r.Tokens,
		BonusTokens: r.BonusTokens,
		Price:       r.Price,
		Active:      r.Active,
	}
}

func transactionEvent(t *models.Transaction) live.TransactionEvent {
	event := live.TransactionEvent{
		TransactionID: t.ID,
		UserID:        t.UserID,
		Status:        string(t.Status),
	}
	if t.Package != nil {
		event.PackageName = t.Package.Name
	}
	return event
}

func handleListPackages(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	packages, err := database.GetPackages(db, true)
	if err != nil {
		respondError(c, err, "load packages")
		return
	}

	c.JSON(http.StatusOK, packages)
}

func handleAdminPackages(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	packages, err := database.GetPackages(db, false)
	if err != nil {
		respondError(c, err, "load packages")
		return
	}

	c.JSON(http.StatusOK, packages)
}

func handleCreatePackage(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	var req packageRequest
	if !bindJSON(c, &req) {
		return
	}

	pkg, err := database.CreatePackage(db, req.toPackage())
	if err != nil {
		respondError(c, err, "create package")
		return
	}

	c.JSON(http.StatusCreated, pkg)
}

func handleUpdatePackage(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	packageID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req packageRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := database.UpdatePackage(db, packageID, req.toPackage()); err != nil {
		respondError(c, err, "update package")
		return
	}

	pkg, err := database.GetPackage(db, packageID)
	if err != nil {
		respondError(c, err, "load package")
		return
	}

	c.JSON(http.StatusOK, pkg)
}

func handleSetPackageActive(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	packageID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req packageActiveRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := database.SetPackageActive(db, packageID, req.Active); err != nil {
		respondError(c, err, "update package")
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": packageID, "active": req.Active})
}

// handleCreatePurchase records a purchase claim. Tokens are only credited
// once an admin approves it.
func handleCreatePurchase(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	var req purchaseRequest
	if !bindJSON(c, &req) {
		return
	}

	txn, err := database.CreateTransaction(db, userID, database.PurchaseClaim{
		PackageID:     req.PackageID,
		AmountPaid:    req.AmountPaid,
		BankReference: req.BankReference,
		ReceiptURL:    req.ReceiptURL,
	})
	if err != nil {
		respondError(c, err, "submit purchase")
		return
	}

	logger.Info("Purchase submitted", "user_id", userID, "transaction_id", txn.ID, "package_id", txn.PackageID)
	hubFrom(c).Broadcast(live.EventTransactionSubmitted, transactionEvent(txn))

	c.JSON(http.StatusCreated, txn)
}

func handleUserPurchases(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	userID := c.MustGet("user_id").(int)

	transactions, err := database.GetUserTransactions(db, userID)
	if err != nil {
		respondError(c, err, "load purchases")
		return
	}

	c.JSON(http.StatusOK, transactions)
}

func transactionStatusQuery(c *gin.Context) (models.TransactionStatus, bool) {
	status := models.TransactionStatus(c.Query("status"))
	switch status {
	case "", models.TransactionPending, models.TransactionCompleted, models.TransactionCancelled:
		return status, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown transaction status %q", status)})
	return "", false
}

func handleAdminTransactions(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	status, ok := transactionStatusQuery(c)
	if !ok {
		return
	}

	transactions, err := database.GetTransactions(db, status)
	if err != nil {
		respondError(c, err, "load transactions")
		return
	}

	c.JSON(http.StatusOK, transactions)
}

func handleApproveTransaction(c *gin.Context) {
	decideTransaction(c, true)
}

func handleRejectTransaction(c *gin.Context) {
	decideTransaction(c, false)
}

func decideTransaction(c *gin.Context, approve bool) {
	db := c.MustGet("db").(*sql.DB)
	transactionID := c.Param("id")

	var (
		txn *models.Transaction
		err error
	)
	if approve {
		txn, err = database.ApproveTransaction(db, transactionID, time.Now())
	} else {
		txn, err = database.RejectTransaction(db, transactionID, time.Now())
	}
	if err != nil {
		respondError(c, err, "decide transaction")
		return
	}

	event := live.EventTransactionRejected
	title := "Purchase not approved"
	body := "We could not confirm your payment, so no tokens were added."
	if approve {
		event = live.EventTransactionApproved
		title = "Tokens added"
		body = fmt.Sprintf("Your payment was confirmed and %d tokens were added to your balance.", txn.TokensGranted)
	}

	logger.Info("Transaction decided", "transaction_id", txn.ID, "status", txn.Status, "tokens", txn.TokensGranted, "admin_id", c.GetInt("user_id"))
	hubFrom(c).Broadcast(event, transactionEvent(txn))

	if err := database.Notify(db, txn.UserID, title, body); err != nil {
		logger.Warn("Failed to create notification", "user_id", txn.UserID, "error", err)
	}

	if service := emailServiceFrom(c); service.IsEnabled() {
		decided := *txn
		go func() {
			buyer, err := database.GetUserByID(db, decided.UserID)
			if err != nil {
				logger.Warn("Failed to load buyer for email", "transaction_id", decided.ID, "error", err)
				return
			}
			if err := service.SendPurchaseDecisionEmail(buyer, &decided); err != nil {
				logger.Warn("Failed to send purchase decision email", "transaction_id", decided.ID, "error", err)
			}
		}()
	}

	c.JSON(http.StatusOK, txn)
}

func handleExportTransactions(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	status, ok := transactionStatusQuery(c)
	if !ok {
		return
	}

	transactions, err := database.GetTransactions(db, status)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to load transactions")
		return
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"ID", "User email", "Package", "Amount paid", "Bank reference", "Receipt URL", "Status", "Tokens granted", "Created at", "Processed at"}
	if err := writer.Write(header); err != nil {
		c.String(http.StatusInternalServerError, "Failed to generate CSV")
		return
	}

	for _, t := range transactions {
		record := []string{
			t.ID,
			t.UserEmail,
			"",
			strconv.FormatFloat(t.AmountPaid, 'f', 2, 64),
			derefString(t.BankReference),
			derefString(t.ReceiptURL),
			string(t.Status),
			strconv.Itoa(t.TokensGranted),
			t.CreatedAt.UTC().Format(time.RFC3339),
			"",
		}
		if t.Package != nil {
			record[2] = t.Package.Name
		}
		if t.ProcessedAt != nil {
			record[9] = t.ProcessedAt.UTC().Format(time.RFC3339)
		}
		if err := writer.Write(record); err != nil {
			c.String(http.StatusInternalServerError, "Failed to generate CSV")
			return
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		c.String(http.StatusInternalServerError, "Failed to generate CSV")
		return
	}

	c.Header("Content-Disposition", "attachment; filename=transactions.csv")
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
