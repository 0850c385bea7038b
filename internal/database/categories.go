package database

import (
	"database/sql"
	"fmt"

	"lendery/internal/models"
)

func CreateCategory(db *sql.DB, name, icon string) (*models.Category, error) {
	result, err := db.Exec(`INSERT INTO categories (name, icon) VALUES (?, ?)`, name, icon)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("category %w", ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get category ID: %w", err)
	}

	return &models.Category{
		ID:   int(id),
		Name: name,
		Icon: icon,
	}, nil
}

func GetCategories(db *sql.DB) ([]models.Category, error) {
	rows, err := db.Query(`
		SELECT id, name, icon, created_at, updated_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var category models.Category
		err := rows.Scan(
			&category.ID,
			&category.Name,
			&category.Icon,
			&category.CreatedAt,
			&category.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

func GetCategory(db *sql.DB, categoryID int) (*models.Category, error) {
	category := &models.Category{}
	err := db.QueryRow(`
		SELECT id, name, icon, created_at, updated_at
		FROM categories
		WHERE id = ?
	`, categoryID).Scan(
		&category.ID,
		&category.Name,
		&category.Icon,
		&category.CreatedAt,
		&category.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("category %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query category: %w", err)
	}

	return category, nil
}

func UpdateCategory(db *sql.DB, categoryID int, name, icon string) error {
	result, err := db.Exec(`
		UPDATE categories
		SET name = ?, icon = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, name, icon, categoryID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("category %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to update category: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("category %w", ErrNotFound)
	}

	return nil
}

func DeleteCategory(db *sql.DB, categoryID int) error {
	var itemCount int
	err := db.QueryRow(`SELECT COUNT(*) FROM items WHERE category_id = ?`, categoryID).Scan(&itemCount)
	if err != nil {
		return fmt.Errorf("failed to check items in category: %w", err)
	}

	if itemCount > 0 {
		return fmt.Errorf("cannot delete category with %d items: %w", itemCount, ErrInUse)
	}

	result, err := db.Exec(`DELETE FROM categories WHERE id = ?`, categoryID)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("category %w", ErrNotFound)
	}

	return nil
}
