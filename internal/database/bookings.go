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

const bookingColumns = `id, account_id, itinerary_id, type, provider, booking_reference, status,
	cost_amount, cost_currency, booking_date, travel_date, cancellation_policy, details, created_at, updated_at`

type bookingRow struct {
	ID                 string     `db:"id"`
	AccountID          string     `db:"account_id"`
	ItineraryID        *string    `db:"itinerary_id"`
	Type               string     `db:"type"`
	Provider           string     `db:"provider"`
	BookingReference   string     `db:"booking_reference"`
	Status             string     `db:"status"`
	CostAmount         float64    `db:"cost_amount"`
	CostCurrency       string     `db:"cost_currency"`
	BookingDate        time.Time  `db:"booking_date"`
	TravelDate         *time.Time `db:"travel_date"`
	CancellationPolicy string     `db:"cancellation_policy"`
	Details            string     `db:"details"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

func newBookingRow(b *models.Booking) (*bookingRow, error) {
	details := b.Details
	if details == nil {
		details = models.Details{}
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to encode booking details: %w", err)
	}

	row := &bookingRow{
		ID:                 b.ID,
		AccountID:          b.AccountID,
		ItineraryID:        b.ItineraryID,
		Type:               b.Type,
		Provider:           b.Provider,
		BookingReference:   b.BookingReference,
		Status:             b.Status,
		CostAmount:         b.Cost.Amount,
		CostCurrency:       b.Cost.Currency,
		BookingDate:        b.BookingDate.UTC(),
		CancellationPolicy: b.CancellationPolicy,
		Details:            string(data),
		CreatedAt:          b.CreatedAt.UTC(),
		UpdatedAt:          b.UpdatedAt.UTC(),
	}
	if b.TravelDate != nil {
		td := b.TravelDate.UTC()
		row.TravelDate = &td
	}
	return row, nil
}

func (r *bookingRow) toModel() (*models.Booking, error) {
	b := &models.Booking{
		ID:                 r.ID,
		AccountID:          r.AccountID,
		ItineraryID:        r.ItineraryID,
		Type:               r.Type,
		Provider:           r.Provider,
		BookingReference:   r.BookingReference,
		Status:             r.Status,
		Cost:               models.Cost{Amount: r.CostAmount, Currency: r.CostCurrency},
		BookingDate:        r.BookingDate.UTC(),
		CancellationPolicy: r.CancellationPolicy,
		Details:            models.Details{},
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
	if r.TravelDate != nil {
		td := r.TravelDate.UTC()
		b.TravelDate = &td
	}
	if r.Details != "" {
		if err := json.Unmarshal([]byte(r.Details), &b.Details); err != nil {
			return nil, fmt.Errorf("failed to decode booking %s details: %w", r.ID, err)
		}
	}
	return b, nil
}

// CreateBooking inserts a booking inside a transaction that first re-checks
// the global uniqueness of its reference. The unique index backs the check
// for writers racing on another connection.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	row, err := newBookingRow(booking)
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var count int
	err = tx.GetContext(ctx, &count, tx.Rebind(`SELECT COUNT(*) FROM bookings WHERE booking_reference = ?`), row.BookingReference)
	if err != nil {
		return fmt.Errorf("failed to check booking reference in tx: %w", err)
	}
	if count > 0 {
		return ErrDuplicateReference
	}

	query := `INSERT INTO bookings (` + bookingColumns + `) VALUES (
		:id, :account_id, :itinerary_id, :type, :provider, :booking_reference, :status,
		:cost_amount, :cost_currency, :booking_date, :travel_date, :cancellation_policy, :details,
		:created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to commit booking: %w", err)
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, accountID, id string) (*models.Booking, error) {
	var row bookingRow
	query := db.Rebind(`SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? AND account_id = ?`)
	if err := db.GetContext(ctx, &row, query, id, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return row.toModel()
}

func (db *DB) ListBookings(ctx context.Context, accountID string, filter models.BookingFilter) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE account_id = ?`
	args := []any{accountID}

	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.ItineraryID != "" {
		query += ` AND itinerary_id = ?`
		args = append(args, filter.ItineraryID)
	}
	query += ` ORDER BY booking_date DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	return db.selectBookings(ctx, "failed to list bookings", db.Rebind(query), args...)
}

// GetBookingsByDateRange returns the account's bookings made within [start, end).
func (db *DB) GetBookingsByDateRange(ctx context.Context, accountID string, start, end time.Time) ([]*models.Booking, error) {
	query := db.Rebind(`SELECT ` + bookingColumns + ` FROM bookings
		WHERE account_id = ? AND booking_date >= ? AND booking_date < ?
		ORDER BY booking_date ASC`)
	return db.selectBookings(ctx, "failed to get bookings by date range", query, accountID, start.UTC(), end.UTC())
}

func (db *DB) UpdateBookingStatus(ctx context.Context, accountID, id, status string) error {
	query := db.Rebind(`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND account_id = ?`)
	result, err := db.ExecContext(ctx, query, status, time.Now().UTC(), id, accountID)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	return requireRow(result)
}

func (db *DB) selectBookings(ctx context.Context, errMsg, query string, args ...any) ([]*models.Booking, error) {
	var rows []bookingRow
	if err := db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", errMsg, err)
	}

	bookings := make([]*models.Booking, 0, len(rows))
	for i := range rows {
		b, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}
