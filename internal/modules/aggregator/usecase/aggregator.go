package usecase

import (
	"context"
	"strings"

	"studyrun/internal/modules/aggregator/domain"
	aggregatordto "studyrun/internal/modules/aggregator/dto"
	aggregatorin "studyrun/internal/modules/aggregator/port/in"
	"studyrun/internal/modules/aggregator/service"
)

type Interactor struct {
	svc *service.AggregatorService
}

func NewInteractor(svc *service.AggregatorService) aggregatorin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) Apply(ctx context.Context, input aggregatordto.ActionRequest) error {
	_, err := i.svc.Apply(ctx, domain.Event{
		ID:          input.EventID,
		SessionCode: normalizeCode(input.SessionCode),
		Action:      domain.Action(strings.TrimSpace(input.Action)),
		Type:        input.EventType,
		Timestamp:   input.Timestamp.UTC(),
		Details:     input.Details,
	})
	return err
}

func (i *Interactor) Summary(ctx context.Context, code string) (aggregatordto.SummaryOutput, error) {
	rec, completion, count, err := i.svc.Summary(ctx, normalizeCode(code))
	if err != nil {
		return aggregatordto.SummaryOutput{}, err
	}
	return summaryOutput(rec, completion, count), nil
}

func (i *Interactor) Repair(ctx context.Context, code string) (aggregatordto.SummaryOutput, error) {
	code = normalizeCode(code)
	if _, err := i.svc.Repair(ctx, code); err != nil {
		return aggregatordto.SummaryOutput{}, err
	}
	return i.Summary(ctx, code)
}

func (i *Interactor) RepairAll(ctx context.Context) (aggregatordto.RepairOutput, error) {
	repaired, failed, err := i.svc.RepairAll(ctx)
	if err != nil {
		return aggregatordto.RepairOutput{}, err
	}
	return aggregatordto.RepairOutput{Repaired: repaired, Failed: failed}, nil
}

func summaryOutput(rec domain.Record, completion domain.Completion, events int) aggregatordto.SummaryOutput {
	return aggregatordto.SummaryOutput{
		Code:           rec.Code,
		Email:          rec.Email,
		DeviceClass:    rec.DeviceClass,
		Status:         string(rec.Status),
		CurrentTask:    rec.CurrentTask,
		CreatedAt:      rec.CreatedAt,
		LastActivityAt: rec.LastActivityAt,
		Totals: aggregatordto.TotalsOutput{
			TotalSeconds:    rec.Totals.Total.Seconds(),
			ActiveSeconds:   rec.Totals.Active.Seconds(),
			PausedSeconds:   rec.Totals.Paused.Seconds(),
			IdleSeconds:     rec.Totals.Idle.Seconds(),
			InactiveSeconds: rec.Totals.Inactive.Seconds(),
		},
		RequiredTasks:  completion.Required,
		FinishedTasks:  completion.Finished,
		ExemptedTasks:  completion.Exempted,
		CompletedCount: rec.CompletedCount,
		RequiredCount:  rec.RequiredCount,
		EventCount:     events,
		Snapshot:       rec.Snapshot,
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
