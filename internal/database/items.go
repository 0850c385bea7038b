package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"lendery/internal/models"
)

type ItemFilter struct {
	CategoryID    int
	AvailableOnly bool
	Search        string
}

const itemSelect = `
	SELECT i.id, i.category_id, i.name, i.description, i.price_per_day, i.available,
	       i.created_at, i.updated_at,
	       c.id, c.name, c.icon,
	       COALESCE((SELECT AVG(r.rating) FROM reviews r WHERE r.item_id = i.id), 0),
	       (SELECT COUNT(*) FROM reviews r WHERE r.item_id = i.id)
	FROM items i
	LEFT JOIN categories c ON i.category_id = c.id
`

func scanItem(row rowScanner) (*models.Item, error) {
	item := &models.Item{}
	category := &models.Category{}
	err := row.Scan(
		&item.ID,
		&item.CategoryID,
		&item.Name,
		&item.Description,
		&item.PricePerDay,
		&item.Available,
		&item.CreatedAt,
		&item.UpdatedAt,
		&category.ID,
		&category.Name,
		&category.Icon,
		&item.AverageRating,
		&item.ReviewCount,
	)
	if err != nil {
		return nil, err
	}
	item.Category = category
	return item, nil
}

func CreateItem(db *sql.DB, item models.Item) (*models.Item, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertItem(tx, &item); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit item: %w", err)
	}

	item.Available = true
	item.CreatedAt = time.Now()
	item.UpdatedAt = time.Now()

	return &item, nil
}

func insertItem(tx *sql.Tx, item *models.Item) error {
	result, err := tx.Exec(`
		INSERT INTO items (category_id, name, description, price_per_day, available)
		VALUES (?, ?, ?, ?, TRUE)
	`, item.CategoryID, item.Name, item.Description, item.PricePerDay)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get item ID: %w", err)
	}
	item.ID = int(id)

	return replaceItemDetails(tx, *item)
}

// CatalogEntry is one imported item together with its category name.
type CatalogEntry struct {
	Item     models.Item
	Category string
}

// ImportCatalog adds all entries in one transaction. Categories are matched
// by name ignoring case and created when missing. If any entry fails nothing
// is written.
func ImportCatalog(db *sql.DB, entries []CatalogEntry) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT id, name FROM categories`)
	if err != nil {
		return 0, fmt.Errorf("failed to query categories: %w", err)
	}
	categoryIDs := make(map[string]int)
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan category: %w", err)
		}
		categoryIDs[strings.ToLower(name)] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read categories: %w", err)
	}

	for i, entry := range entries {
		key := strings.ToLower(strings.TrimSpace(entry.Category))
		categoryID, exists := categoryIDs[key]
		if !exists {
			result, err := tx.Exec(`INSERT INTO categories (name) VALUES (?)`, strings.TrimSpace(entry.Category))
			if err != nil {
				return 0, fmt.Errorf("row %d: failed to create category: %w", i+1, err)
			}
			id, err := result.LastInsertId()
			if err != nil {
				return 0, fmt.Errorf("failed to get category ID: %w", err)
			}
			categoryID = int(id)
			categoryIDs[key] = categoryID
		}

		item := entry.Item
		item.CategoryID = categoryID
		if err := insertItem(tx, &item); err != nil {
			return 0, fmt.Errorf("row %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}

	return len(entries), nil
}

func GetItems(db *sql.DB, filter ItemFilter) ([]models.Item, error) {
	var conditions []string
	args := []interface{}{}

	conditions = append(conditions, "i.archived = FALSE")
	if filter.CategoryID > 0 {
		conditions = append(conditions, "i.category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if filter.AvailableOnly {
		conditions = append(conditions, "i.available = TRUE")
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conditions = append(conditions, "(i.name LIKE ? OR i.description LIKE ?)")
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern)
	}

	query := itemSelect + " WHERE " + strings.Join(conditions, " AND ") + " ORDER BY c.name, i.name"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}

	var items []models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *item)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	for i := range items {
		if err := loadItemDetails(db, &items[i]); err != nil {
			return nil, err
		}
	}

	return items, nil
}

func GetItem(db *sql.DB, itemID int) (*models.Item, error) {
	item, err := scanItem(db.QueryRow(itemSelect+" WHERE i.id = ?", itemID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("item %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query item: %w", err)
	}

	if err := loadItemDetails(db, item); err != nil {
		return nil, err
	}

	return item, nil
}

// UpdateItem edits catalog fields. Availability is owned by the rental lifecycle
// and is not touched here.
func UpdateItem(db *sql.DB, itemID int, updatedItem models.Item) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE items
		SET category_id = ?, name = ?, description = ?, price_per_day = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND archived = FALSE
	`, updatedItem.CategoryID, updatedItem.Name, updatedItem.Description, updatedItem.PricePerDay, itemID)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("item %w", ErrNotFound)
	}

	updatedItem.ID = itemID
	if err := replaceItemDetails(tx, updatedItem); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteItem removes an item from the catalog. Items with an open rental cannot
// be deleted; items with rental history are archived instead of removed.
func DeleteItem(db *sql.DB, itemID int) (archived bool, err error) {
	var openRentals, allRentals int
	err = db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN status NOT IN ('completado', 'rechazado') THEN 1 ELSE 0 END), 0),
			COUNT(*)
		FROM rentals WHERE item_id = ?
	`, itemID).Scan(&openRentals, &allRentals)
	if err != nil {
		return false, fmt.Errorf("failed to check item rentals: %w", err)
	}

	if openRentals > 0 {
		return false, fmt.Errorf("item has an open rental: %w", ErrInUse)
	}

	var result sql.Result
	if allRentals > 0 {
		result, err = db.Exec(`UPDATE items SET archived = TRUE, available = FALSE, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, itemID)
	} else {
		result, err = db.Exec(`DELETE FROM items WHERE id = ?`, itemID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return false, fmt.Errorf("item %w", ErrNotFound)
	}

	return allRentals > 0, nil
}

func replaceItemDetails(tx *sql.Tx, item models.Item) error {
	if _, err := tx.Exec(`DELETE FROM item_images WHERE item_id = ?`, item.ID); err != nil {
		return fmt.Errorf("failed to clear item images: %w", err)
	}
	for i, url := range item.Images {
		if _, err := tx.Exec(`INSERT INTO item_images (item_id, url, position) VALUES (?, ?, ?)`, item.ID, url, i); err != nil {
			return fmt.Errorf("failed to add item image: %w", err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM item_characteristics WHERE item_id = ?`, item.ID); err != nil {
		return fmt.Errorf("failed to clear item characteristics: %w", err)
	}
	for _, ch := range item.Characteristics {
		_, err := tx.Exec(`INSERT INTO item_characteristics (item_id, key, value) VALUES (?, ?, ?)`, item.ID, ch.Key, ch.Value)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("characteristic %q %w", ch.Key, ErrDuplicate)
			}
			return fmt.Errorf("failed to add item characteristic: %w", err)
		}
	}

	return nil
}

func loadItemDetails(db *sql.DB, item *models.Item) error {
	rows, err := db.Query(`SELECT url FROM item_images WHERE item_id = ? ORDER BY position`, item.ID)
	if err != nil {
		return fmt.Errorf("failed to query item images: %w", err)
	}
	item.Images = []string{}
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan item image: %w", err)
		}
		item.Images = append(item.Images, url)
	}
	rows.Close()

	rows, err = db.Query(`SELECT key, value FROM item_characteristics WHERE item_id = ? ORDER BY key`, item.ID)
	if err != nil {
		return fmt.Errorf("failed to query item characteristics: %w", err)
	}
	defer rows.Close()

	item.Characteristics = []models.ItemCharacteristic{}
	for rows.Next() {
		var ch models.ItemCharacteristic
		if err := rows.Scan(&ch.Key, &ch.Value); err != nil {
			return fmt.Errorf("failed to scan item characteristic: %w", err)
		}
		item.Characteristics = append(item.Characteristics, ch)
	}

	return rows.Err()
}
