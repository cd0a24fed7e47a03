package in

import (
	"context"

	aggregatordto "studyrun/internal/modules/aggregator/dto"
	aggregatorin "studyrun/internal/modules/aggregator/port/in"
)

type CLIHandler struct {
	usecase aggregatorin.Usecase
}

func NewCLIHandler(usecase aggregatorin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Summary(ctx context.Context, code string) (aggregatordto.SummaryOutput, error) {
	return h.usecase.Summary(ctx, code)
}

func (h CLIHandler) Recompute(ctx context.Context, code string) (aggregatordto.SummaryOutput, error) {
	return h.usecase.Repair(ctx, code)
}

func (h CLIHandler) RecomputeAll(ctx context.Context) (aggregatordto.RepairOutput, error) {
	return h.usecase.RepairAll(ctx)
}
