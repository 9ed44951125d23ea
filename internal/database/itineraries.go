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

const itineraryColumns = `id, account_id, title, destination, start_date, end_date, budget, travelers,
	preferences, activities, accommodations, flights, status, ai_generated, created_at, updated_at`

type itineraryRow struct {
	ID             string    `db:"id"`
	AccountID      string    `db:"account_id"`
	Title          string    `db:"title"`
	Destination    string    `db:"destination"`
	StartDate      time.Time `db:"start_date"`
	EndDate        time.Time `db:"end_date"`
	Budget         float64   `db:"budget"`
	Travelers      int       `db:"travelers"`
	Preferences    string    `db:"preferences"`
	Activities     string    `db:"activities"`
	Accommodations string    `db:"accommodations"`
	Flights        string    `db:"flights"`
	Status         string    `db:"status"`
	AIGenerated    bool      `db:"ai_generated"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func newItineraryRow(it *models.Itinerary) (*itineraryRow, error) {
	it.Normalize()
	row := &itineraryRow{
		ID:          it.ID,
		AccountID:   it.AccountID,
		Title:       it.Title,
		Destination: it.Destination,
		StartDate:   it.StartDate.UTC(),
		EndDate:     it.EndDate.UTC(),
		Budget:      it.Budget,
		Travelers:   it.Travelers,
		Status:      it.Status,
		AIGenerated: it.AIGenerated,
		CreatedAt:   it.CreatedAt.UTC(),
		UpdatedAt:   it.UpdatedAt.UTC(),
	}

	fields := []struct {
		dst *string
		src any
	}{
		{&row.Preferences, it.Preferences},
		{&row.Activities, it.Activities},
		{&row.Accommodations, it.Accommodations},
		{&row.Flights, it.Flights},
	}
	for _, f := range fields {
		data, err := json.Marshal(f.src)
		if err != nil {
			return nil, fmt.Errorf("failed to encode itinerary: %w", err)
		}
		*f.dst = string(data)
	}
	return row, nil
}

func (r *itineraryRow) toModel() (*models.Itinerary, error) {
	it := &models.Itinerary{
		ID:          r.ID,
		AccountID:   r.AccountID,
		Title:       r.Title,
		Destination: r.Destination,
		StartDate:   r.StartDate.UTC(),
		EndDate:     r.EndDate.UTC(),
		Budget:      r.Budget,
		Travelers:   r.Travelers,
		Status:      r.Status,
		AIGenerated: r.AIGenerated,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}

	fields := []struct {
		src string
		dst any
	}{
		{r.Preferences, &it.Preferences},
		{r.Activities, &it.Activities},
		{r.Accommodations, &it.Accommodations},
		{r.Flights, &it.Flights},
	}
	for _, f := range fields {
		if f.src == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
			return nil, fmt.Errorf("failed to decode itinerary %s: %w", r.ID, err)
		}
	}
	it.Normalize()
	return it, nil
}

func (db *DB) CreateItinerary(ctx context.Context, it *models.Itinerary) error {
	row, err := newItineraryRow(it)
	if err != nil {
		return err
	}

	query := `INSERT INTO itineraries (` + itineraryColumns + `) VALUES (
		:id, :account_id, :title, :destination, :start_date, :end_date, :budget, :travelers,
		:preferences, :activities, :accommodations, :flights, :status, :ai_generated, :created_at, :updated_at)`
	if _, err := db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to create itinerary: %w", err)
	}
	return nil
}

func (db *DB) GetItinerary(ctx context.Context, accountID, id string) (*models.Itinerary, error) {
	var row itineraryRow
	query := db.Rebind(`SELECT ` + itineraryColumns + ` FROM itineraries WHERE id = ? AND account_id = ?`)
	if err := db.GetContext(ctx, &row, query, id, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get itinerary: %w", err)
	}
	return row.toModel()
}

func (db *DB) ItineraryExists(ctx context.Context, accountID, id string) (bool, error) {
	var count int
	query := db.Rebind(`SELECT COUNT(*) FROM itineraries WHERE id = ? AND account_id = ?`)
	if err := db.GetContext(ctx, &count, query, id, accountID); err != nil {
		return false, fmt.Errorf("failed to check itinerary: %w", err)
	}
	return count > 0, nil
}

func (db *DB) ListItineraries(ctx context.Context, accountID string, filter models.ItineraryFilter) ([]*models.Itinerary, error) {
	query := `SELECT ` + itineraryColumns + ` FROM itineraries WHERE account_id = ?`
	args := []any{accountID}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Destination != "" {
		query += ` AND LOWER(destination) LIKE ? ESCAPE '\'`
		args = append(args, containsPattern(filter.Destination))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	var rows []itineraryRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list itineraries: %w", err)
	}

	result := make([]*models.Itinerary, 0, len(rows))
	for i := range rows {
		it, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		result = append(result, it)
	}
	return result, nil
}

// UpdateItinerary overwrites every mutable column of an owned itinerary.
func (db *DB) UpdateItinerary(ctx context.Context, it *models.Itinerary) error {
	row, err := newItineraryRow(it)
	if err != nil {
		return err
	}

	query := `UPDATE itineraries SET
		title = :title, destination = :destination, start_date = :start_date, end_date = :end_date,
		budget = :budget, travelers = :travelers, preferences = :preferences, activities = :activities,
		accommodations = :accommodations, flights = :flights, status = :status,
		ai_generated = :ai_generated, updated_at = :updated_at
		WHERE id = :id AND account_id = :account_id`
	result, err := db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("failed to update itinerary: %w", err)
	}
	return requireRow(result)
}

func (db *DB) DeleteItinerary(ctx context.Context, accountID, id string) error {
	query := db.Rebind(`DELETE FROM itineraries WHERE id = ? AND account_id = ?`)
	result, err := db.ExecContext(ctx, query, id, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete itinerary: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
