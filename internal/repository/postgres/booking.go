package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/stayadmin/internal/domain"
	"github.com/ignite/stayadmin/internal/service/notification"
)

// BookingRepo implements notification.BookingRepository against PostgreSQL.
type BookingRepo struct{ db *sql.DB }

// NewBookingRepo creates a Postgres-backed booking repository.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

func (r *BookingRepo) GetSnapshot(ctx context.Context, bookingID string) (*domain.BookingSnapshot, error) {
	var (
		b                 domain.BookingSnapshot
		checkIn, checkOut sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT b.id, b.uuid, b.reference, b.booking_type, b.status,
		       COALESCE(g.id::text, ''), COALESCE(g.first_name, ''), COALESCE(g.last_name, ''),
		       COALESCE(g.email, ''), COALESCE(g.phone, ''),
		       COALESCE(b.alternate_contact_name, ''), COALESCE(b.alternate_contact_email, ''),
		       COALESCE(b.alternate_contact_phone, ''),
		       b.check_in, b.check_out, b.created_at, b.updated_at
		FROM bookings b
		LEFT JOIN guests g ON g.id = b.guest_id
		WHERE b.id = $1
	`, bookingID).Scan(
		&b.ID, &b.UUID, &b.Reference, &b.Type, &b.Status,
		&b.Guest.ID, &b.Guest.FirstName, &b.Guest.LastName,
		&b.Guest.Email, &b.Guest.Phone,
		&b.AlternateContactName, &b.AlternateContactEmail,
		&b.AlternateContactPhone,
		&checkIn, &checkOut, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, notification.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if checkIn.Valid {
		b.CheckIn = &checkIn.Time
	}
	if checkOut.Valid {
		b.CheckOut = &checkOut.Time
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT room_name, room_type, adults, children, infants
		FROM booking_rooms
		WHERE booking_id = $1
		ORDER BY position, id
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking rooms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var room domain.RoomAllocation
		if err := rows.Scan(&room.Name, &room.Type, &room.Adults, &room.Children, &room.Infants); err != nil {
			return nil, fmt.Errorf("scan booking room: %w", err)
		}
		b.Rooms = append(b.Rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get booking rooms: %w", err)
	}
	return &b, nil
}
