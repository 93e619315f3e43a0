package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/revledger/revledger/internal/types"
)

// Mirror appends audit events to a JSONL file, one event per line. Several
// processes may share the file; appends are serialized with a file lock.
type Mirror struct {
	path string
	lock *flock.Flock
}

// NewMirror creates a mirror writing to path. The directory is created on
// first append.
func NewMirror(path string) *Mirror {
	return &Mirror{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the JSONL file path.
func (m *Mirror) Path() string {
	return m.path
}

// Append writes one event.
func (m *Mirror) Append(event *types.AuditEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	if err := m.lock.Lock(); err != nil {
		return fmt.Errorf("lock audit mirror: %w", err)
	}
	defer func() { _ = m.lock.Unlock() }()

	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 - path comes from trusted config
	if err != nil {
		return fmt.Errorf("open audit mirror: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("write audit mirror: %w", err)
	}
	return f.Close()
}

// ReadMirror reads every event in a JSONL mirror. A missing file yields no
// events.
func ReadMirror(path string) ([]*types.AuditEvent, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from trusted config
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit mirror: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []*types.AuditEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var evt types.AuditEvent
		if err := json.Unmarshal(sc.Bytes(), &evt); err != nil {
			return nil, fmt.Errorf("audit mirror line %d: %w", line, err)
		}
		events = append(events, &evt)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan audit mirror: %w", err)
	}
	return events, nil
}
