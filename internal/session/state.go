// Package session holds per-visitor server-side state: the staff auth
// token, the booking form draft, and the dashboard caches that make the
// calendar cheap to re-render.
package session

import "time"

// BookingDraft is the in-progress booking form for a client session. It
// survives a page reload so the visitor does not retype everything.
type BookingDraft struct {
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Service      string `json:"service,omitempty"`
	Date         string `json:"date,omitempty"` // YYYY-MM-DD
	Time         string `json:"time,omitempty"` // HH:MM
	HairArtistID int64  `json:"hair_artist_id,omitempty"`
}

// State is the durable part of a session, persisted through a
// StateRepository so it survives a process restart.
type State struct {
	SessionID string       `json:"session_id"`
	Token     string       `json:"token,omitempty"`
	Draft     BookingDraft `json:"draft"`
	UpdatedAt time.Time    `json:"updated_at"`
}
