package out

import (
	"context"

	"studyrun/internal/modules/aggregator/domain"
)

// Ledger stores session records and their append-only event logs. Storage
// layout stays behind this interface.
type Ledger interface {
	// AppendEvent stores e once; a repeated event ID is ignored and reported
	// as false.
	AppendEvent(ctx context.Context, e domain.Event) (bool, error)
	// Events returns the log of code ordered by timestamp.
	Events(ctx context.Context, code string) ([]domain.Event, error)
	// LoadSession returns apperrors.ErrNotFound for unknown codes.
	LoadSession(ctx context.Context, code string) (domain.Record, error)
	SaveSession(ctx context.Context, rec domain.Record) error
	SessionCodes(ctx context.Context) ([]string, error)
}
