package models

import (
	"strings"
	"time"

	"glowdesk/internal/dates"
)

// Booking statuses as the booking API reports them.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Booking represents an appointment record from the booking API.
// Date is YYYY-MM-DD and Time is HH:MM (sometimes with trailing seconds);
// both are kept as strings because that is what the wire carries.
type Booking struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Service      string `json:"service"`
	Status       string `json:"status"`
	HairArtistID int64  `json:"hair_artist_id"`
}

// StartsAt resolves the booking's date+time into a local datetime.
// Returns false for malformed records; callers drop those with a diagnostic.
func (b *Booking) StartsAt() (time.Time, bool) {
	return dates.Combine(b.Date, b.Time)
}

// IsActive reports whether the booking still occupies its slot.
func (b *Booking) IsActive() bool {
	return strings.ToLower(b.Status) != StatusCancelled
}

// Service represents a salon service offering.
type Service struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	Description       string  `json:"description,omitempty"`
	Duration          int     `json:"duration"` // minutes
	Price             float64 `json:"price"`
	GenderSpecificity string  `json:"gender_specificity,omitempty"`
}

// HairArtist represents a stylist profile.
type HairArtist struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// TimeSlot is a bookable start time offered by the booking API.
type TimeSlot struct {
	Time      string `json:"time"` // HH:MM
	Available bool   `json:"available"`
}

// CalendarEvent is the view-only projection of a booking for calendar
// rendering. It is recomputed from bookings and services and never stored.
type CalendarEvent struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Color    string    `json:"color"`
	Name     string    `json:"name"`
	Email    string    `json:"email,omitempty"`
	Phone    string    `json:"phone,omitempty"`
	Service  string    `json:"service"`
	Status   string    `json:"status"`
	Duration int       `json:"duration"` // minutes
}

// StatusColor maps a booking status to the calendar display color.
func StatusColor(status string) string {
	switch strings.ToLower(status) {
	case StatusConfirmed:
		return "#4caf50"
	case StatusPending:
		return "#ff9800"
	case StatusCancelled:
		return "#f44336"
	default:
		return "#2196f3"
	}
}
