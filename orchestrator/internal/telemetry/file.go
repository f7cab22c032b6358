package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// FileSink appends outcomes to a JSON Lines file.
//
// The file is opened for each append, so external rotation (rename + new
// file) is picked up without a restart. Callers serialize appends through
// Recorder.
type FileSink struct {
	path string
}

// NewFileSink returns a sink writing to path. It verifies that the file can
// be opened for appending.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("telemetry: close %s: %w", path, err)
	}
	return &FileSink{path: path}, nil
}

// line is the on-disk shape: the outcome plus a leading timestamp.
type line struct {
	Timestamp string `json:"timestamp"`
	TaskOutcome
}

func (s *FileSink) Append(_ context.Context, o TaskOutcome) error {
	data, err := json.Marshal(line{Timestamp: o.End.UTC().Format(time.RFC3339Nano), TaskOutcome: o})
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	// One Write per entry: O_APPEND keeps a line contiguous even if another
	// process appends to the same file.
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return f.Close()
}

// ReadFile returns the last limit outcomes in path, oldest first.
// A limit <= 0 returns every outcome. Lines that do not decode are skipped.
func ReadFile(path string, limit int) ([]TaskOutcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	defer f.Close()

	var out []TaskOutcome
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var l line
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			continue
		}
		out = append(out, l.TaskOutcome)
		if limit > 0 && len(out) > limit {
			out = out[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("telemetry: read %s: %w", path, err)
	}
	return out, nil
}
