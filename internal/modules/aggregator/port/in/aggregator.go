package in

import (
	"context"

	"studyrun/internal/modules/aggregator/dto"
)

type Usecase interface {
	Apply(ctx context.Context, input dto.ActionRequest) error
	Summary(ctx context.Context, code string) (dto.SummaryOutput, error)
	Repair(ctx context.Context, code string) (dto.SummaryOutput, error)
	RepairAll(ctx context.Context) (dto.RepairOutput, error)
}
