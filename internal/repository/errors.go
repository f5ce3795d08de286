package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrStatusConflict is returned when a conditional write finds the attempt
	// already out of IN_PROGRESS.
	ErrStatusConflict = errors.New("attempt is no longer in progress")

	// ErrVersionConflict is returned when the attempt's answers changed between
	// the read and the conditional write. Callers re-read and retry.
	ErrVersionConflict = errors.New("attempt was modified concurrently")
)

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
