package salonapi

import "errors"

var (
	// ErrNotFound is returned when the API reports a missing resource.
	ErrNotFound = errors.New("salonapi: not found")

	// ErrUnauthorized is returned for rejected or expired credentials.
	ErrUnauthorized = errors.New("salonapi: unauthorized")

	// ErrInvalidResponse is returned when the API answers with an
	// unexpected status or an undecodable body.
	ErrInvalidResponse = errors.New("salonapi: invalid response")

	// ErrUnavailable is returned when the API cannot be reached at all.
	// Callers degrade to cached or local data where they can.
	ErrUnavailable = errors.New("salonapi: unavailable")
)
