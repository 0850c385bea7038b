package handlers

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"lendery/internal/database"
	"lendery/internal/models"

	"github.com/gin-gonic/gin"
)

type itemRequest struct {
	CategoryID      int                         `json:"category_id" binding:"required,min=1"`
	Name            string                      `json:"name" binding:"required,max=255"`
	Description     string                      `json:"description" binding:"max=2000"`
	PricePerDay     int                         `json:"price_per_day" binding:"required,min=1,max=100000"`
	Images          []string                    `json:"images" binding:"max=10,dive,url"`
	Characteristics []models.ItemCharacteristic `json:"characteristics" binding:"max=30"`
}

func (r itemRequest) toItem() models.Item {
	item := models.Item{
		CategoryID:  r.CategoryID,
		Name:        strings.TrimSpace(r.Name),
		Description: strings.TrimSpace(r.Description),
		PricePerDay: r.PricePerDay,
		Images:      r.Images,
	}
	for _, ch := range r.Characteristics {
		key := strings.TrimSpace(ch.Key)
		if key == "" {
			continue
		}
		item.Characteristics = append(item.Characteristics, models.ItemCharacteristic{
			Key:   key,
			Value: strings.TrimSpace(ch.Value),
		})
	}
	return item
}

func itemFilterFromQuery(c *gin.Context) database.ItemFilter {
	categoryID, _ := strconv.Atoi(c.Query("category_id"))
	return database.ItemFilter{
		CategoryID:    categoryID,
		AvailableOnly: c.Query("available") == "true",
		Search:        c.Query("q"),
	}
}

func handleListItems(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	items, err := database.GetItems(db, itemFilterFromQuery(c))
	if err != nil {
		respondError(c, err, "load items")
		return
	}

	c.JSON(http.StatusOK, items)
}

func handleGetItem(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	itemID, ok := paramID(c, "id")
	if !ok {
		return
	}

	item, err := database.GetItem(db, itemID)
	if err != nil {
		respondError(c, err, "load item")
		return
	}

	c.JSON(http.StatusOK, item)
}

func handleCreateItem(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	var req itemRequest
	if !bindJSON(c, &req) {
		return
	}

	item := req.toItem()
	if item.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Item name is required"})
		return
	}

	if _, err := database.GetCategory(db, item.CategoryID); err != nil {
		respondError(c, err, "load category")
		return
	}

	created, err := database.CreateItem(db, item)
	if err != nil {
		respondError(c, err, "create item")
		return
	}

	c.JSON(http.StatusCreated, created)
}

func handleUpdateItem(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	itemID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req itemRequest
	if !bindJSON(c, &req) {
		return
	}

	item := req.toItem()
	if item.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Item name is required"})
		return
	}

	if _, err := database.GetCategory(db, item.CategoryID); err != nil {
		respondError(c, err, "load category")
		return
	}

	if err := database.UpdateItem(db, itemID, item); err != nil {
		respondError(c, err, "update item")
		return
	}

	updated, err := database.GetItem(db, itemID)
	if err != nil {
		respondError(c, err, "load item")
		return
	}

	c.JSON(http.StatusOK, updated)
}

// handleDeleteItem archives items with rental history and refuses while a
// rental is still open.
func handleDeleteItem(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	itemID, ok := paramID(c, "id")
	if !ok {
		return
	}

	archived, err := database.DeleteItem(db, itemID)
	if err != nil {
		respondError(c, err, "delete item")
		return
	}

	if archived {
		c.JSON(http.StatusOK, gin.H{"message": "Item archived", "archived": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item deleted successfully", "archived": false})
}
