package out

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	aggregatordto "studyrun/internal/modules/aggregator/dto"
	"studyrun/internal/platform/audit"
	"studyrun/internal/platform/id"
)

const httpSinkTimeout = 10 * time.Second

// HTTPSink posts audit events to the aggregator's action endpoint.
type HTTPSink struct {
	endpoint string
	client   *http.Client
	ids      id.Generator
	log      hclog.Logger
}

var _ audit.Sink = (*HTTPSink)(nil)

func NewHTTPSink(baseURL string, log hclog.Logger) *HTTPSink {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &HTTPSink{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/action",
		client:   &http.Client{Timeout: httpSinkTimeout},
		ids:      id.UUID{},
		log:      log.Named("audit-http"),
	}
}

// ActionFor maps a client event type onto an aggregator action. Events with
// no dedicated action are logged as plain events.
func ActionFor(eventType string) string {
	switch eventType {
	case audit.EventSessionCreated:
		return aggregatordto.ActionCreateSession
	case audit.EventTaskStarted:
		return aggregatordto.ActionStartTask
	case audit.EventTaskCompleted:
		return aggregatordto.ActionCompleteTask
	case audit.EventTaskSkipped:
		return aggregatordto.ActionSkipTask
	case audit.EventSessionPaused:
		return aggregatordto.ActionPauseSession
	case audit.EventSessionUnpaused:
		return aggregatordto.ActionResumeSession
	case audit.EventSnapshotSaved:
		return aggregatordto.ActionSaveSnapshot
	default:
		return aggregatordto.ActionLogEvent
	}
}

func (s *HTTPSink) Emit(ctx context.Context, event audit.Event) {
	if err := s.post(ctx, event); err != nil {
		s.log.Warn("audit event not delivered", "type", event.Type, "code", event.SessionCode, "error", err)
	}
}

func (s *HTTPSink) post(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = s.ids.New()
	}
	request := aggregatordto.ActionRequest{
		Action:      ActionFor(event.Type),
		SessionCode: event.SessionCode,
		EventID:     event.ID,
		EventType:   event.Type,
		Timestamp:   event.Timestamp,
		Details:     event.Details,
	}
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post action: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	result := aggregatordto.ActionResponse{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !result.Success {
		return fmt.Errorf("aggregator rejected %s (status %d, retryable %t): %s", request.Action, resp.StatusCode, result.Retryable, result.Error)
	}
	return nil
}
