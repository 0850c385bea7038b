package database

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"

	_ "github.com/mattn/go-sqlite3"
)

func Initialize(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serialises writers anyway; one connection also keeps ":memory:" databases whole.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func Migrate(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			tokens INTEGER NOT NULL DEFAULT 0 CHECK (tokens >= 0),
			referral_code TEXT UNIQUE NOT NULL,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			is_blocked BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			expires_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			icon TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			category_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price_per_day INTEGER NOT NULL CHECK (price_per_day > 0),
			available BOOLEAN NOT NULL DEFAULT TRUE,
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (category_id) REFERENCES categories(id)
		)`,
		`CREATE TABLE IF NOT EXISTS item_images (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id INTEGER NOT NULL,
			url TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS item_characteristics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id INTEGER NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE,
			UNIQUE(item_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS rentals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			item_id INTEGER NOT NULL,
			start_date DATETIME NOT NULL,
			end_date DATETIME NOT NULL,
			days INTEGER NOT NULL,
			total_tokens INTEGER NOT NULL,
			status TEXT NOT NULL,
			return_code TEXT,
			reward_given INTEGER NOT NULL DEFAULT 0,
			completed_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (item_id) REFERENCES items(id)
		)`,
		`CREATE TABLE IF NOT EXISTS token_packages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			tokens INTEGER NOT NULL CHECK (tokens > 0),
			bonus_tokens INTEGER NOT NULL DEFAULT 0,
			price REAL NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			package_id INTEGER NOT NULL,
			amount_paid REAL NOT NULL,
			bank_reference TEXT,
			receipt_url TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			tokens_granted INTEGER NOT NULL DEFAULT 0,
			processed_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (package_id) REFERENCES token_packages(id)
		)`,
		`CREATE TABLE IF NOT EXISTS token_movements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			amount INTEGER NOT NULL,
			balance_after INTEGER NOT NULL,
			kind TEXT NOT NULL,
			rental_id INTEGER,
			transaction_id TEXT,
			description TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS referrals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			referrer_id INTEGER NOT NULL,
			referred_id INTEGER UNIQUE NOT NULL,
			bonus_granted INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (referrer_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (referred_id) REFERENCES users(id) ON DELETE CASCADE,
			CHECK (referrer_id != referred_id)
		)`,
		`CREATE TABLE IF NOT EXISTS reviews (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			item_id INTEGER NOT NULL,
			rental_id INTEGER UNIQUE,
			rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
			comment TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE,
			FOREIGN KEY (rental_id) REFERENCES rentals(id)
		)`,
		`CREATE TABLE IF NOT EXISTS missions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			target INTEGER NOT NULL CHECK (target > 0),
			reward INTEGER NOT NULL CHECK (reward > 0),
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS mission_claims (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mission_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			reward INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (mission_id) REFERENCES missions(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			UNIQUE(mission_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS support_tickets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			subject TEXT NOT NULL,
			message TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'abierto',
			admin_note TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_items_category_id ON items(category_id)`,
		`CREATE INDEX IF NOT EXISTS idx_item_images_item_id ON item_images(item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_user_id ON rentals(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_item_id ON rentals(item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_status ON rentals(status)`,
		// at most one open rental per item
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_rentals_open_item ON rentals(item_id)
			WHERE status NOT IN ('completado', 'rechazado')`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_token_movements_user_id ON token_movements(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_item_id ON reviews(item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_support_tickets_user_id ON support_tickets(user_id)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	// Columns added after the first release
	columns := []struct {
		table, column, definition string
	}{
		{"users", "onboarding_seen", "BOOLEAN NOT NULL DEFAULT FALSE"},
		{"users", "last_seen", "DATETIME"},
		{"support_tickets", "closed_at", "DATETIME"},
	}
	for _, col := range columns {
		if err := addColumnIfMissing(db, col.table, col.column, col.definition); err != nil {
			return fmt.Errorf("failed to add %s column to %s: %w", col.column, col.table, err)
		}
	}

	return nil
}

func addColumnIfMissing(db *sql.DB, table, column, definition string) error {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&count)
	if err != nil {
		return err
	}

	if count > 0 {
		return nil
	}

	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

const referralCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateUniqueReferralCode(db *sql.DB, idLength int) (string, error) {
	const maxRetries = 10

	for attempt := 0; attempt < maxRetries; attempt++ {
		b := make([]byte, idLength)
		for i := range b {
			num, err := rand.Int(rand.Reader, big.NewInt(int64(len(referralCharset))))
			if err != nil {
				return "", fmt.Errorf("failed to generate random number: %w", err)
			}
			b[i] = referralCharset[num.Int64()]
		}

		code := string(b)

		var exists bool
		err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE referral_code = ?)", code).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("failed to check referral code existence: %w", err)
		}

		if !exists {
			return code, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique referral code after %d attempts", maxRetries)
}
