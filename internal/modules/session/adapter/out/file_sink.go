package out

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	"studyrun/internal/platform/audit"
	"studyrun/internal/platform/id"
)

// FileSink appends audit events to a JSON lines file.
type FileSink struct {
	path string
	ids  id.Generator
	log  hclog.Logger
	mu   sync.Mutex
}

var _ audit.Sink = (*FileSink)(nil)

func NewFileSink(path string, log hclog.Logger) *FileSink {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &FileSink{path: path, ids: id.UUID{}, log: log.Named("audit-file")}
}

func (s *FileSink) Emit(_ context.Context, event audit.Event) {
	if err := s.append(event); err != nil {
		s.log.Warn("audit event dropped", "type", event.Type, "code", event.SessionCode, "error", err)
	}
}

func (s *FileSink) append(event audit.Event) error {
	if event.ID == "" {
		event.ID = s.ids.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}
