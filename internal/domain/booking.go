package domain

import (
	"strings"
	"time"
)

// BookingStatus is the lifecycle state of a booking as stored by the
// booking backend. Values are compared case-insensitively.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingInReview  BookingStatus = "in_review"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// Equal compares two statuses ignoring case and surrounding whitespace.
func (s BookingStatus) Equal(other BookingStatus) bool {
	return strings.EqualFold(strings.TrimSpace(string(s)), strings.TrimSpace(string(other)))
}

// Guest is the primary contact on a booking.
type Guest struct {
	ID        string `json:"id" db:"id"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
	Email     string `json:"email" db:"email"`
	Phone     string `json:"phone" db:"phone"`
}

// FullName joins first and last name, skipping empty parts.
func (g Guest) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(g.FirstName) + " " + strings.TrimSpace(g.LastName))
}

// RoomAllocation is one room booked for a stay with its occupancy counts.
type RoomAllocation struct {
	Name     string `json:"name" db:"room_name"`
	Type     string `json:"type" db:"room_type"`
	Adults   int    `json:"adults" db:"adults"`
	Children int    `json:"children" db:"children"`
	Infants  int    `json:"infants" db:"infants"`
}

// Guests returns the total occupancy of the room.
func (r RoomAllocation) Guests() int { return r.Adults + r.Children + r.Infants }

// BookingSnapshot is the read-only view of a booking used to evaluate
// triggers and bind merge tags.
type BookingSnapshot struct {
	ID                    string           `json:"id" db:"id"`
	UUID                  string           `json:"uuid" db:"uuid"`
	Reference             string           `json:"reference" db:"reference"`
	Type                  string           `json:"type" db:"booking_type"`
	Status                BookingStatus    `json:"status" db:"status"`
	Guest                 Guest            `json:"guest"`
	AlternateContactName  string           `json:"alternate_contact_name" db:"alternate_contact_name"`
	AlternateContactEmail string           `json:"alternate_contact_email" db:"alternate_contact_email"`
	AlternateContactPhone string           `json:"alternate_contact_phone" db:"alternate_contact_phone"`
	Rooms                 []RoomAllocation `json:"rooms"`
	CheckIn               *time.Time       `json:"check_in" db:"check_in"`
	CheckOut              *time.Time       `json:"check_out" db:"check_out"`
	CreatedAt             time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at" db:"updated_at"`
}
