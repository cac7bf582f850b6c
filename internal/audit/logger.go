// Package audit appends JSON-line records of user-visible operations.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Operation names recorded in the audit log.
const (
	OpGenerate   = "generate"
	OpExport     = "export"
	OpDepsScan   = "deps-scan"
	OpBuild      = "build"
	OpSDKInstall = "sdk-install"
	OpRun        = "run"
	OpRefresh    = "refs-refresh"
)

type Logger struct {
	path string
	mu   sync.Mutex
}

type Event struct {
	Timestamp string            `json:"timestamp"`
	Operation string            `json:"operation"`
	Status    string            `json:"status"`
	AppID     string            `json:"app_id,omitempty"`
	Code      string            `json:"code,omitempty"`
	Message   string            `json:"message,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func New(path string) *Logger {
	return &Logger{path: path}
}

// OK records a successful operation.
func (l *Logger) OK(op, appID string, fields map[string]string) error {
	return l.Log(Event{Operation: op, Status: "ok", AppID: appID, Fields: fields})
}

// Fail records a failed operation with the error's text.
func (l *Logger) Fail(op, appID string, err error) error {
	ev := Event{Operation: op, Status: "error", AppID: appID}
	if err != nil {
		ev.Message = err.Error()
	}
	return l.Log(ev)
}

func (l *Logger) Log(ev Event) error {
	if l == nil || l.path == "" {
		return nil
	}
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	blob, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(blob, '\n')); err != nil {
		return err
	}
	return nil
}
