package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tripplanner/internal/models"
)

type accountRow struct {
	ID          string    `db:"id"`
	Email       string    `db:"email"`
	Name        string    `db:"name"`
	Preferences string    `db:"preferences"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (db *DB) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var row accountRow
	query := db.Rebind(`SELECT id, email, name, preferences, created_at, updated_at FROM accounts WHERE id = ?`)
	if err := db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	account := &models.Account{
		ID:          row.ID,
		Email:       row.Email,
		Name:        row.Name,
		Preferences: models.DefaultTravelPreferences(),
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if row.Preferences != "" {
		if err := json.Unmarshal([]byte(row.Preferences), &account.Preferences); err != nil {
			return nil, fmt.Errorf("failed to decode account preferences: %w", err)
		}
	}
	return account, nil
}

// UpsertAccount inserts the account or overwrites its profile fields.
func (db *DB) UpsertAccount(ctx context.Context, account *models.Account) error {
	prefs, err := json.Marshal(account.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode account preferences: %w", err)
	}

	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	query := db.Rebind(`INSERT INTO accounts (id, email, name, preferences, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email, name = excluded.name,
			preferences = excluded.preferences, updated_at = excluded.updated_at`)
	_, err = db.ExecContext(ctx, query,
		account.ID, account.Email, account.Name, string(prefs), account.CreatedAt.UTC(), account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}
