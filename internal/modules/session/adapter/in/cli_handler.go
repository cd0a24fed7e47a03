package in

import (
	"context"

	sessiondto "studyrun/internal/modules/session/dto"
	sessionin "studyrun/internal/modules/session/port/in"
)

type CLIHandler struct {
	usecase sessionin.Usecase
}

func NewCLIHandler(usecase sessionin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Preview(ctx context.Context, code, device string) (sessiondto.PreviewOutput, error) {
	return h.usecase.Preview(ctx, sessiondto.PreviewInput{Code: code, DeviceClass: device})
}

func (h CLIHandler) Create(ctx context.Context, input sessiondto.CreateInput) (sessiondto.SessionOutput, error) {
	return h.usecase.Create(ctx, input)
}

func (h CLIHandler) Resume(ctx context.Context, code string) (sessiondto.SessionOutput, error) {
	return h.usecase.Resume(ctx, code)
}

func (h CLIHandler) Complete(ctx context.Context, code, task string) (sessiondto.SessionOutput, error) {
	return h.usecase.CompleteTask(ctx, sessiondto.TaskInput{Code: code, Task: task})
}

func (h CLIHandler) Skip(ctx context.Context, code, task, reason string) (sessiondto.SessionOutput, error) {
	return h.usecase.SkipTask(ctx, sessiondto.TaskInput{Code: code, Task: task, Reason: reason})
}

func (h CLIHandler) Pause(ctx context.Context, code string) (sessiondto.SessionOutput, error) {
	return h.usecase.Pause(ctx, code)
}

func (h CLIHandler) Unpause(ctx context.Context, code string) (sessiondto.SessionOutput, error) {
	return h.usecase.Unpause(ctx, code)
}

func (h CLIHandler) Recording(ctx context.Context, code, status string) (sessiondto.SessionOutput, error) {
	return h.usecase.SetRecording(ctx, sessiondto.RecordingInput{Code: code, Status: status})
}

func (h CLIHandler) Observe(ctx context.Context, code string, source sessionin.InputSource) error {
	return h.usecase.Observe(ctx, code, source)
}

func (h CLIHandler) Status(ctx context.Context, code string) (sessiondto.SessionOutput, error) {
	return h.usecase.Status(ctx, code)
}

func (h CLIHandler) Close(ctx context.Context, code string) (sessiondto.SessionOutput, error) {
	return h.usecase.Close(ctx, code)
}

func (h CLIHandler) CloseAll(ctx context.Context) {
	h.usecase.CloseAll(ctx)
}
