package service

import (
	"context"
	"errors"
	"fmt"

	hclog "github.com/hashicorp/go-hclog"

	"studyrun/internal/modules/aggregator/domain"
	aggregatorout "studyrun/internal/modules/aggregator/port/out"
	sequenceout "studyrun/internal/modules/sequence/port/out"
	"studyrun/internal/platform/clock"
	apperrors "studyrun/internal/platform/errors"
	"studyrun/internal/platform/id"
	"studyrun/internal/platform/tx"
)

// AggregatorService keeps server-side session records consistent with their
// event logs. Every write runs under the document lock.
type AggregatorService struct {
	ledger  aggregatorout.Ledger
	catalog sequenceout.CatalogProvider
	lock    tx.Manager
	clock   clock.Clock
	ids     id.Generator
	log     hclog.Logger
}

func NewAggregatorService(ledger aggregatorout.Ledger, catalog sequenceout.CatalogProvider, lock tx.Manager, clk clock.Clock, log hclog.Logger) *AggregatorService {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &AggregatorService{ledger: ledger, catalog: catalog, lock: lock, clock: clk, ids: id.UUID{}, log: log.Named("aggregator")}
}

// Apply validates e, appends it and recomputes the session record. Nothing is
// written when validation fails.
func (s *AggregatorService) Apply(ctx context.Context, e domain.Event) (domain.Record, error) {
	if !e.Action.Valid() {
		return domain.Record{}, fmt.Errorf("%w: %q", apperrors.ErrUnknownAction, e.Action)
	}
	if !id.ValidCode(e.SessionCode) {
		return domain.Record{}, fmt.Errorf("%w: malformed session code %q", apperrors.ErrInvalidInput, e.SessionCode)
	}
	if e.ID == "" {
		e.ID = s.ids.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock.Now()
	}
	if e.Type == "" {
		e.Type = string(e.Action)
	}
	catalog, err := s.catalog.Catalog(ctx)
	if err != nil {
		return domain.Record{}, err
	}

	var out domain.Record
	err = s.lock.Within(ctx, func(ctx context.Context) error {
		rec, err := s.ledger.LoadSession(ctx, e.SessionCode)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			if e.Action != domain.ActionCreateSession {
				s.log.Debug("event for unregistered session", "code", e.SessionCode, "action", e.Action)
			}
			rec = domain.Record{Code: e.SessionCode}
		case err != nil:
			return err
		}

		inserted, err := s.ledger.AppendEvent(ctx, e)
		if err != nil {
			return err
		}
		if inserted {
			if err := rec.Apply(e); err != nil {
				return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
			}
		}
		events, err := s.ledger.Events(ctx, e.SessionCode)
		if err != nil {
			return err
		}
		rec = domain.Recompute(catalog, rec, events)
		rec.UpdatedAt = s.clock.Now()
		if err := s.ledger.SaveSession(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return domain.Record{}, err
	}
	return out, nil
}

// Summary returns the record with freshly recomputed totals and completion.
// It does not write.
func (s *AggregatorService) Summary(ctx context.Context, code string) (domain.Record, domain.Completion, int, error) {
	rec, err := s.ledger.LoadSession(ctx, code)
	if err != nil {
		return domain.Record{}, domain.Completion{}, 0, err
	}
	events, err := s.ledger.Events(ctx, code)
	if err != nil {
		return domain.Record{}, domain.Completion{}, 0, err
	}
	catalog, err := s.catalog.Catalog(ctx)
	if err != nil {
		return domain.Record{}, domain.Completion{}, 0, err
	}
	rec = domain.Recompute(catalog, rec, events)
	return rec, domain.RecomputeCompletion(catalog, rec, events), len(events), nil
}

// Repair rebuilds one record from its log. Running it twice yields the same
// record.
func (s *AggregatorService) Repair(ctx context.Context, code string) (domain.Record, error) {
	catalog, err := s.catalog.Catalog(ctx)
	if err != nil {
		return domain.Record{}, err
	}
	var out domain.Record
	err = s.lock.Within(ctx, func(ctx context.Context) error {
		events, err := s.ledger.Events(ctx, code)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return fmt.Errorf("session %s: %w", code, apperrors.ErrNotFound)
		}
		rec, err := domain.Replay(catalog, code, events)
		if err != nil {
			return err
		}
		if prev, err := s.ledger.LoadSession(ctx, code); err == nil {
			if rec.Snapshot == nil {
				rec.Snapshot = prev.Snapshot
			}
			rec.UpdatedAt = prev.UpdatedAt
			if prev.Totals != rec.Totals || prev.Status != rec.Status || prev.CompletedCount != rec.CompletedCount {
				s.log.Info("repaired session record", "code", code, "status", rec.Status, "active", rec.Totals.Active)
				rec.UpdatedAt = s.clock.Now()
			}
		} else {
			rec.UpdatedAt = s.clock.Now()
		}
		if err := s.ledger.SaveSession(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return domain.Record{}, err
	}
	return out, nil
}

// RepairAll repairs every known session, continuing past failures.
func (s *AggregatorService) RepairAll(ctx context.Context) (int, []string, error) {
	codes, err := s.ledger.SessionCodes(ctx)
	if err != nil {
		return 0, nil, err
	}
	repaired := 0
	failed := []string{}
	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return repaired, failed, err
		}
		if _, err := s.Repair(ctx, code); err != nil {
			s.log.Warn("repair failed", "code", code, "error", err)
			failed = append(failed, code)
			continue
		}
		repaired++
	}
	return repaired, failed, nil
}
