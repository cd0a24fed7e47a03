package in

import (
	"context"

	activityout "studyrun/internal/modules/activity/port/out"
	"studyrun/internal/modules/session/dto"
)

// InputSource is the activity feed a live session can be observed through.
type InputSource = activityout.InputSource

type Usecase interface {
	Preview(ctx context.Context, input dto.PreviewInput) (dto.PreviewOutput, error)
	Create(ctx context.Context, input dto.CreateInput) (dto.SessionOutput, error)
	Resume(ctx context.Context, code string) (dto.SessionOutput, error)
	CompleteTask(ctx context.Context, input dto.TaskInput) (dto.SessionOutput, error)
	SkipTask(ctx context.Context, input dto.TaskInput) (dto.SessionOutput, error)
	Pause(ctx context.Context, code string) (dto.SessionOutput, error)
	Unpause(ctx context.Context, code string) (dto.SessionOutput, error)
	SetRecording(ctx context.Context, input dto.RecordingInput) (dto.SessionOutput, error)
	Observe(ctx context.Context, code string, source InputSource) error
	Status(ctx context.Context, code string) (dto.SessionOutput, error)
	Close(ctx context.Context, code string) (dto.SessionOutput, error)
	CloseAll(ctx context.Context)
}
