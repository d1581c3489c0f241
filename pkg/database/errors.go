// Copyright 2025 Certen Protocol
//
// Package database provides sentinel errors for repository operations.
// Explicit errors instead of nil, nil returns.

package database

import "errors"

// Sentinel errors for database operations.
var (
	// ErrNotFound is returned when a requested entity is not found in the database.
	ErrNotFound = errors.New("entity not found")

	// ErrStatementNotFound is returned when a Statement row is not found.
	ErrStatementNotFound = errors.New("statement not found")

	// ErrActorNotFound is returned when an Actor row is not found.
	ErrActorNotFound = errors.New("actor not found")
)
