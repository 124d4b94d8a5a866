// Package repository implements all database queries for the coffee service.
// It uses pgx directly (no ORM) for transparency and performance.
package repository

import "errors"

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when registering an email that already exists.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrSessionExpired is returned when a session token exists but is past its
// expiry.
var ErrSessionExpired = errors.New("session expired")
