package handlers

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"lendery/internal/database"
	"lendery/internal/logger"
	"lendery/internal/models"

	"github.com/gin-gonic/gin"
)

var catalogHeader = []string{"Name", "Category", "Price per day", "Description"}

func handleExportCatalog(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	items, err := database.GetItems(db, database.ItemFilter{})
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to load catalog")
		return
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(catalogHeader); err != nil {
		c.String(http.StatusInternalServerError, "Failed to generate CSV")
		return
	}

	for _, item := range items {
		category := ""
		if item.Category != nil {
			category = item.Category.Name
		}
		record := []string{
			item.Name,
			category,
			strconv.Itoa(item.PricePerDay),
			item.Description,
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

	c.Header("Content-Disposition", "attachment; filename=catalog.csv")
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

// handleImportCatalog adds every row of an uploaded CSV to the catalog,
// creating categories that do not exist yet. Existing items are kept, and a
// file that fails part way imports nothing.
func handleImportCatalog(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)

	file, header, err := c.Request.FormFile("csvFile")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A CSV file is required"})
		return
	}
	defer file.Close()

	if err := validateCSVFile(file, header); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}

	rows, err := parseCSVFile(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	imported, err := database.ImportCatalog(db, rows)
	if err != nil {
		logger.Error("Catalog import rolled back", "rows", len(rows), "error", err)
		respondError(c, err, "import catalog")
		return
	}

	logger.Info("Catalog imported", "items", imported, "admin_id", c.GetInt("user_id"))
	c.JSON(http.StatusOK, gin.H{"imported": imported})
}

func validateCSVFile(file multipart.File, header *multipart.FileHeader) error {
	if header.Size > 10*1024*1024 {
		return fmt.Errorf("file too large")
	}

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		return fmt.Errorf("invalid file extension")
	}

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return fmt.Errorf("cannot read file")
	}
	buffer = buffer[:n]

	contentType := http.DetectContentType(buffer)
	if !strings.HasPrefix(contentType, "text/") {
		return fmt.Errorf("invalid file type: %s", contentType)
	}

	content := string(buffer)
	if !strings.Contains(content, ",") && !strings.Contains(content, "\n") {
		return fmt.Errorf("file does not appear to be CSV format")
	}

	return nil
}

func parseCSVFile(r io.Reader) ([]database.CatalogEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(catalogHeader)

	var rows []database.CatalogEntry
	lineNumber := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("CSV parse error at line %d: %v", lineNumber+1, err)
		}

		lineNumber++

		// header
		if lineNumber == 1 {
			continue
		}

		if lineNumber > 10000 {
			return nil, fmt.Errorf("too many rows (max 10000)")
		}

		name := strings.TrimSpace(record[0])
		categoryName := strings.TrimSpace(record[1])
		priceStr := strings.TrimSpace(record[2])
		description := strings.TrimSpace(record[3])

		if name == "" || categoryName == "" {
			return nil, fmt.Errorf("empty required field at line %d", lineNumber)
		}

		if len(name) > 255 || len(categoryName) > 100 || len(description) > 2000 {
			return nil, fmt.Errorf("field too long at line %d", lineNumber)
		}

		price, err := strconv.Atoi(priceStr)
		if err != nil || price <= 0 || price > 100000 {
			return nil, fmt.Errorf("invalid price at line %d", lineNumber)
		}

		rows = append(rows, database.CatalogEntry{
			Item: models.Item{
				Name:        name,
				Description: description,
				PricePerDay: price,
			},
			Category: categoryName,
		})
	}

	return rows, nil
}
