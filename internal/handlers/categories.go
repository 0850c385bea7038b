package handlers

import (
	"database/sql"
	"net/http"
	"strings"

	"lendery/internal/database"

	"github.com/gin-gonic/gin"
)

type categoryRequest struct {
	Name string `json:"name" binding:"required,max=100"`
	Icon string `json:"icon" binding:"max=50"`
}

func handleListCategories(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	categories, err := database.GetCategories(db)
	if err != nil {
		respondError(c, err, "load categories")
		return
	}

	c.JSON(http.StatusOK, categories)
}

func handleCreateCategory(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	var req categoryRequest
	if !bindJSON(c, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Category name is required"})
		return
	}

	category, err := database.CreateCategory(db, name, strings.TrimSpace(req.Icon))
	if err != nil {
		respondError(c, err, "create category")
		return
	}

	c.JSON(http.StatusCreated, category)
}

func handleUpdateCategory(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	categoryID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req categoryRequest
	if !bindJSON(c, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Category name is required"})
		return
	}

	if err := database.UpdateCategory(db, categoryID, name, strings.TrimSpace(req.Icon)); err != nil {
		respondError(c, err, "update category")
		return
	}

	category, err := database.GetCategory(db, categoryID)
	if err != nil {
		respondError(c, err, "load category")
		return
	}

	c.JSON(http.StatusOK, category)
}

// handleDeleteCategory refuses while items still use the category.
func handleDeleteCategory(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	categoryID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := database.DeleteCategory(db, categoryID); err != nil {
		respondError(c, err, "delete category")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Category deleted successfully"})
}
