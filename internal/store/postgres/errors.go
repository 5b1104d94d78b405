package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"feedcraft/internal/domain"
)

// mapError converts pgconn errors to domain errors. Context errors pass through.
func mapError(err error, subject string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", subject, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", subject, domain.ErrDuplicate)
		case "22P02": // invalid_text_representation
			return fmt.Errorf("%s: %w: %s", subject, domain.ErrInvalidField, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", subject, err)
}
